package discovery

import (
	"sync"
	"time"
)

const peerTTL = 30 * time.Second

// PeerInfo is what the peer table knows about one remote node.
type PeerInfo struct {
	NodeID   string
	Region   string
	PeerIDs  []string
	LastSeen time.Time
}

// Table is the in-memory set of currently-known peers, keyed by node id.
// Entries expire if no announcement refreshes them within peerTTL.
type Table struct {
	mu    sync.RWMutex
	peers map[string]*PeerInfo
	now   func() time.Time
}

// NewTable constructs an empty peer table.
func NewTable() *Table {
	return &Table{peers: make(map[string]*PeerInfo), now: time.Now}
}

// Upsert records or refreshes info for a peer, returning true if the peer
// was not previously known (a "newly seen" peer the caller should dial).
func (t *Table) Upsert(info PeerInfo) (isNew bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, existed := t.peers[info.NodeID]
	info.LastSeen = t.now()
	t.peers[info.NodeID] = &info
	return !existed
}

// Get returns the known info for nodeID, if any.
func (t *Table) Get(nodeID string) (PeerInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[nodeID]
	if !ok {
		return PeerInfo{}, false
	}
	return *p, true
}

// List returns every currently-known peer.
func (t *Table) List() []PeerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]PeerInfo, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, *p)
	}
	return out
}

// EvictStale removes every peer whose last announcement is older than
// peerTTL, returning the evicted node ids.
func (t *Table) EvictStale() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-peerTTL)
	var evicted []string
	for id, p := range t.peers {
		if p.LastSeen.Before(cutoff) {
			delete(t.peers, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}
