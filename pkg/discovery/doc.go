/*
Package discovery maintains the live peer table: broadcasting this node's
signed PeerAnnouncement on a warm-up/repeat schedule, verifying and
deduping announcements received from others, evicting entries whose last
announcement has aged out, and monitoring configured bootstrap peers for
disconnection with exponential-backoff reconnection.

The peer table itself is a sync.RWMutex-guarded map keyed by peer id,
matching the reference worker's container-table guard pattern, and the
announce/evict/reconnect loops are ticker-driven goroutines in the
reference's HealthMonitor style.
*/
package discovery
