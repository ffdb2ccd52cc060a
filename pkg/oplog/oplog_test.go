package oplog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	gocrypto "github.com/cuemby/gossipdb/pkg/crypto"
	"github.com/cuemby/gossipdb/pkg/cache"
	"github.com/cuemby/gossipdb/pkg/events"
	"github.com/cuemby/gossipdb/pkg/storage"
	"github.com/cuemby/gossipdb/pkg/typedstore"
	"github.com/cuemby/gossipdb/pkg/types"
)

func newTestLog(t *testing.T) (*Log, *gocrypto.KeyPair) {
	t.Helper()
	backing, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backing.Close() })

	c, err := cache.New()
	require.NoError(t, err)
	typed := typedstore.New(backing, c)

	verifier, err := gocrypto.NewVerifier(0)
	require.NoError(t, err)

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	kp, err := gocrypto.Generate()
	require.NoError(t, err)

	return New(backing, typed, verifier, broker), kp
}

func signedStringOp(kp *gocrypto.KeyPair, key, value string, ts int64) *types.SignedOperation {
	op := &types.SignedOperation{
		DBName:      "mydb-" + kp.PublicKey,
		Key:         key,
		Value:       value,
		StoreType:   types.StoreString,
		PublicKey:   kp.PublicKey,
		TimestampMs: ts,
	}
	op.Signature = kp.Sign(op.CanonicalMessage())
	return op
}

func TestIngestThenReadBack(t *testing.T) {
	l, kp := newTestLog(t)
	op := signedStringOp(kp, "user:alice", "Alice", 1000)

	require.NoError(t, l.Ingest(op))
	v, err := l.typed.GetString(op.DBName, "user:alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", v)
}

func TestIngestIsIdempotent(t *testing.T) {
	l, kp := newTestLog(t)
	op := signedStringOp(kp, "user:alice", "Alice", 1000)

	require.NoError(t, l.Ingest(op))
	require.NoError(t, l.Ingest(op))

	seen, err := l.backing.HasOp(op.OpID())
	require.NoError(t, err)
	require.True(t, seen)
}

func TestIngestRejectsPublisherMismatch(t *testing.T) {
	l, kp := newTestLog(t)
	op := signedStringOp(kp, "user:alice", "Alice", 1000)
	op.DBName = "mydb-notthekey"

	err := l.Ingest(op)
	require.ErrorIs(t, err, ErrPublisherMismatch)
}

func TestIngestRejectsBadSignature(t *testing.T) {
	l, kp := newTestLog(t)
	op := signedStringOp(kp, "user:alice", "Alice", 1000)
	op.Signature = signedStringOp(kp, "user:alice", "Eve", 1000).Signature

	err := l.Ingest(op)
	require.Error(t, err)
}

func TestIngestPublishesForBroadcast(t *testing.T) {
	l, kp := newTestLog(t)
	sub := l.broker.Subscribe(BroadcastTopic)
	defer l.broker.Unsubscribe(sub)

	op := signedStringOp(kp, "user:alice", "Alice", 1000)
	require.NoError(t, l.Ingest(op))

	select {
	case ev := <-sub:
		require.Equal(t, BroadcastTopic, ev.Topic)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast event")
	}
}

func TestFetchReturnsStoredOperation(t *testing.T) {
	l, kp := newTestLog(t)
	op := signedStringOp(kp, "user:alice", "Alice", 1000)
	require.NoError(t, l.Ingest(op))

	fetched, err := l.Fetch(op.OpID())
	require.NoError(t, err)
	require.Equal(t, op.Value, fetched.Value)
	require.Equal(t, op.DBName, fetched.DBName)
}

func TestReplayInOrderReappliesHistory(t *testing.T) {
	l, kp := newTestLog(t)
	op1 := signedStringOp(kp, "user:alice", "Alice", 1000)
	op2 := signedStringOp(kp, "user:bob", "Bob", 2000)
	require.NoError(t, l.Ingest(op1))
	require.NoError(t, l.Ingest(op2))

	require.NoError(t, l.ReplayInOrder(op1.DBName))

	v, err := l.typed.GetString(op1.DBName, "user:alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", v)
}

func TestReceiveDoesNotPublishForBroadcast(t *testing.T) {
	l, kp := newTestLog(t)
	sub := l.broker.Subscribe(BroadcastTopic)
	defer l.broker.Unsubscribe(sub)

	op := signedStringOp(kp, "user:alice", "Alice", 1000)
	require.NoError(t, l.Receive(op))

	select {
	case ev := <-sub:
		t.Fatalf("unexpected broadcast event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReceiveReturnsErrDuplicateOnSecondReceive(t *testing.T) {
	l, kp := newTestLog(t)
	op := signedStringOp(kp, "user:alice", "Alice", 1000)

	require.NoError(t, l.Receive(op))
	require.ErrorIs(t, l.Receive(op), ErrDuplicate)
}

func TestIngestSwallowsErrDuplicate(t *testing.T) {
	l, kp := newTestLog(t)
	op := signedStringOp(kp, "user:alice", "Alice", 1000)

	require.NoError(t, l.Ingest(op))
	require.NoError(t, l.Ingest(op))
}
