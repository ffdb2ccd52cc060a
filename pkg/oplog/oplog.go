package oplog

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cuemby/gossipdb/pkg/crypto"
	"github.com/cuemby/gossipdb/pkg/events"
	"github.com/cuemby/gossipdb/pkg/metrics"
	"github.com/cuemby/gossipdb/pkg/storage"
	"github.com/cuemby/gossipdb/pkg/typedstore"
	"github.com/cuemby/gossipdb/pkg/types"
)

// BroadcastTopic is the event broker topic the sync engine subscribes to
// in order to pick up locally originated operations for gossip.
const BroadcastTopic = "oplog.broadcast"

var (
	// ErrPublisherMismatch is returned when an operation's db name suffix
	// does not match its claimed public key.
	ErrPublisherMismatch = errors.New("oplog: publisher mismatch")
	// ErrDuplicate is returned by Receive (and by validateAndApply
	// internally) when op_id has already been recorded. Ingest swallows
	// it and reports success instead, since a locally resubmitted op
	// needs no second broadcast; Receive's callers compare against it
	// directly to tell "already had this one" apart from a real failure.
	ErrDuplicate = errors.New("oplog: duplicate operation")
)

// Log is the signed operation log.
type Log struct {
	backing  *storage.Store
	typed    *typedstore.Store
	verifier *crypto.Verifier
	broker   *events.Broker
}

// New constructs a Log over the given backing store, typed store,
// signature verifier, and event broker.
func New(backing *storage.Store, typed *typedstore.Store, verifier *crypto.Verifier, broker *events.Broker) *Log {
	return &Log{backing: backing, typed: typed, verifier: verifier, broker: broker}
}

// Ingest validates and durably applies a locally originated operation,
// then publishes it on BroadcastTopic for the sync engine to gossip.
// A duplicate op is reported to the caller as success, per the "Duplicate
// (success, no-op)" propagation rule - it is not broadcast again.
func (l *Log) Ingest(op *types.SignedOperation) error {
	if err := l.validateAndApply(op); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil
		}
		return err
	}
	l.publishForBroadcast(op)
	return nil
}

// Receive validates and durably applies an operation arriving from a
// peer. It does not re-publish for broadcast.
func (l *Log) Receive(op *types.SignedOperation) error {
	return l.validateAndApply(op)
}

func (l *Log) validateAndApply(op *types.SignedOperation) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.OpIngestDuration)

	if want := types.PublisherKey(op.DBName); want == "" || want != op.PublicKey {
		metrics.OpsIngestedTotal.WithLabelValues("publisher_mismatch").Inc()
		return fmt.Errorf("%w: db %q does not match public key %q", ErrPublisherMismatch, op.DBName, op.PublicKey)
	}

	if err := l.verifier.Verify(op.PublicKey, op.Signature, op.CanonicalMessage()); err != nil {
		metrics.OpsIngestedTotal.WithLabelValues("invalid_signature").Inc()
		return fmt.Errorf("oplog: %w", err)
	}

	opID := op.OpID()
	seen, err := l.backing.HasOp(opID)
	if err != nil {
		metrics.OpsIngestedTotal.WithLabelValues("backend_error").Inc()
		return fmt.Errorf("oplog: check duplicate: %w", err)
	}
	if seen {
		metrics.OpsIngestedTotal.WithLabelValues("duplicate").Inc()
		return ErrDuplicate
	}

	if err := l.typed.Apply(op); err != nil {
		metrics.OpsIngestedTotal.WithLabelValues("backend_error").Inc()
		return fmt.Errorf("oplog: apply: %w", err)
	}

	metrics.OpsIngestedTotal.WithLabelValues("accepted").Inc()
	return nil
}

func (l *Log) publishForBroadcast(op *types.SignedOperation) {
	if l.broker == nil {
		return
	}
	data, err := json.Marshal(op)
	if err != nil {
		return
	}
	l.broker.Publish(&events.Event{Topic: BroadcastTopic, Payload: string(data)})
}

// Fetch returns the full operation recorded under opID in the local log.
func (l *Log) Fetch(opID string) (*types.SignedOperation, error) {
	data, err := l.backing.GetOpData(opID)
	if err != nil {
		return nil, fmt.Errorf("oplog: fetch %q: %w", opID, err)
	}
	var op types.SignedOperation
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, fmt.Errorf("oplog: fetch %q: decode: %w", opID, err)
	}
	return &op, nil
}

// ReplayInOrder applies every recorded operation for db in (timestamp_ms,
// op_id) order, as required at startup before the node opens its facade.
func (l *Log) ReplayInOrder(db string) error {
	var applyErr error
	err := l.backing.ScanOpsByDB(db, func(timestampMs int64, opID string) bool {
		op, err := l.Fetch(opID)
		if err != nil {
			applyErr = fmt.Errorf("oplog: replay fetch %q: %w", opID, err)
			return false
		}
		if err := l.typed.Apply(op); err != nil {
			applyErr = fmt.Errorf("oplog: replay apply %q: %w", opID, err)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return applyErr
}
