package discovery

import (
	"errors"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cuemby/gossipdb/pkg/crypto"
	"github.com/cuemby/gossipdb/pkg/metrics"
	"github.com/cuemby/gossipdb/pkg/types"
)

// ErrSignatureInvalid is returned by Receive when an announcement's
// signature does not verify.
var ErrSignatureInvalid = errors.New("discovery: invalid announcement signature")

// ErrNodeIDMismatch is returned by Receive when the announcement's node id
// does not match the id of the peer that sent it.
var ErrNodeIDMismatch = errors.New("discovery: announcement node id does not match sender")

const (
	announceWarmup  = 5 * time.Second
	announceEvery   = 10 * time.Second
	evictionSweep   = 10 * time.Second
	dedupCacheSize  = 10_000
)

// Announcer builds, broadcasts, and ingests signed PeerAnnouncements and
// keeps Table up to date.
type Announcer struct {
	keyPair  *crypto.KeyPair
	verifier *crypto.Verifier
	table    *Table
	region   string

	mu         sync.Mutex
	connected  []string // ids of peers this node currently has live connections to
	dedup      *lru.Cache[string, struct{}]
	onNewPeer  func(nodeID string)
	broadcast  func(*types.PeerAnnouncement) error
}

// NewAnnouncer constructs an Announcer. broadcast sends the announcement
// over the peer-discovery gossip topic; onNewPeer, if non-nil, is called
// for every peer id seen for the first time (the caller should dial it).
func NewAnnouncer(kp *crypto.KeyPair, verifier *crypto.Verifier, table *Table, region string, broadcast func(*types.PeerAnnouncement) error, onNewPeer func(nodeID string)) (*Announcer, error) {
	dedup, err := lru.New[string, struct{}](dedupCacheSize)
	if err != nil {
		return nil, err
	}
	return &Announcer{
		keyPair:   kp,
		verifier:  verifier,
		table:     table,
		region:    region,
		dedup:     dedup,
		broadcast: broadcast,
		onNewPeer: onNewPeer,
	}, nil
}

// SetConnectedPeers updates the peer id list this node advertises in its
// next announcement.
func (a *Announcer) SetConnectedPeers(ids []string) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	a.mu.Lock()
	a.connected = sorted
	a.mu.Unlock()
}

// Announce builds, signs, and broadcasts this node's current announcement.
func (a *Announcer) Announce(now time.Time) error {
	a.mu.Lock()
	peerIDs := append([]string(nil), a.connected...)
	a.mu.Unlock()

	ann := &types.PeerAnnouncement{
		NodeID:    a.keyPair.PublicKey,
		Timestamp: now.UnixMilli(),
		PeerIDs:   peerIDs,
		Region:    a.region,
	}
	ann.Signature = a.keyPair.Sign(ann.CanonicalMessage())

	if a.broadcast == nil {
		return nil
	}
	return a.broadcast(ann)
}

// Receive verifies and integrates an announcement arriving from
// senderNodeID (the peer id the transport layer observed on the
// connection it arrived on). It is a no-op (not an error) for a duplicate.
func (a *Announcer) Receive(ann *types.PeerAnnouncement, senderNodeID string) error {
	if ann.NodeID != senderNodeID {
		metrics.PeerAnnouncementsTotal.WithLabelValues("node_id_mismatch").Inc()
		return ErrNodeIDMismatch
	}
	if err := a.verifier.Verify(ann.NodeID, ann.Signature, ann.CanonicalMessage()); err != nil {
		metrics.PeerAnnouncementsTotal.WithLabelValues("invalid_signature").Inc()
		return ErrSignatureInvalid
	}

	dedupKey := ann.DedupKey()
	if _, seen := a.dedup.Get(dedupKey); seen {
		metrics.PeerAnnouncementsTotal.WithLabelValues("duplicate").Inc()
		return nil
	}
	a.dedup.Add(dedupKey, struct{}{})

	isNew := a.table.Upsert(PeerInfo{NodeID: ann.NodeID, Region: ann.Region, PeerIDs: ann.PeerIDs})
	metrics.PeersKnownTotal.Set(float64(len(a.table.List())))
	metrics.PeerAnnouncementsTotal.WithLabelValues("accepted").Inc()
	if isNew && a.onNewPeer != nil {
		a.onNewPeer(ann.NodeID)
	}
	return nil
}
