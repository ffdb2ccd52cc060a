/*
Package syncengine replicates operations between nodes: broadcasting
locally ingested operations to peers as they arrive, and periodically
reconciling divergent history via anti-entropy digest exchange. Both
paths are gated by pkg/resilience so a peer that is circuit-broken,
banned, or out of bandwidth is simply skipped rather than blocked on.

Startup replay (pkg/oplog.ReplayInOrder) happens before a Engine is
started, not inside it, so the facade only opens once local state is
consistent with durable history.
*/
package syncengine
