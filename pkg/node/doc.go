/*
Package node wires every other package into one running process: crypto
keys, the durable store, the cache, the typed stores, the signed op log,
the resilience gate, peer discovery, the sync engine, and the peer wire
API. Node.Start and Node.Shutdown mirror the reference manager's
aggregate lifecycle: construct everything that can fail up front, start
the long-running loops, and tear them down in reverse order.
*/
package node
