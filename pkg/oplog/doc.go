/*
Package oplog is the signed operation log: the single entry point through
which every mutation, local or received from a peer, is validated,
deduplicated, durably applied to typed storage, and (for locally
originated operations) queued for broadcast.

Ingest is used for operations submitted to this node directly. Receive is
used for operations arriving from a peer during gossip or anti-entropy;
it skips the broadcast hand-off since the operation did not originate
here. Both share the same validate-verify-dedup-apply pipeline, so a
locally submitted operation and one received twice from two different
peers converge to the same result.
*/
package oplog
