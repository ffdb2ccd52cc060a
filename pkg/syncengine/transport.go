package syncengine

import (
	"context"

	"github.com/cuemby/gossipdb/pkg/types"
)

// OpRef is one entry in an anti-entropy digest: enough to decide whether
// the requester already has the operation without transferring it.
type OpRef struct {
	TimestampMs int64
	OpID        string
}

// Digest is one peer's summary of its oplog for a single database: a
// bounded recent window of (timestamp_ms, op_id) pairs plus a count of
// anything older than the window.
type Digest struct {
	Recent     []OpRef
	OlderCount int
}

// PeerClient is the outbound half of the peer wire protocol, implemented
// by the facade adapter's transport layer. Every method is peer-scoped
// and may fail with a network or peer-side error.
type PeerClient interface {
	SendOperation(ctx context.Context, peerID string, op *types.SignedOperation) error
	FetchDigest(ctx context.Context, peerID string, db string) (Digest, error)
	FetchOp(ctx context.Context, peerID string, opID string) (*types.SignedOperation, error)
}

// PeerSource supplies the current candidate peer set for broadcast and
// anti-entropy, typically backed by pkg/discovery's peer table.
type PeerSource interface {
	PeerIDs() []string
}
