/*
Package resilience gates outbound sync traffic to peers: a per-peer circuit
breaker, a per-peer reputation score, and a token-bucket bandwidth
governor. ShouldCommunicate composes all three into the single check the
sync engine consults before talking to a peer.

The per-peer state tables are sync.RWMutex-guarded maps keyed by peer id,
matching the reference worker's guarded-map-of-state convention; none of
it is ambient or package-global, so a node constructs exactly one Gate at
startup and threads it through the sync engine.
*/
package resilience
