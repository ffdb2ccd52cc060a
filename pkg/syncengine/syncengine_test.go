package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/gossipdb/pkg/cache"
	gocrypto "github.com/cuemby/gossipdb/pkg/crypto"
	"github.com/cuemby/gossipdb/pkg/events"
	"github.com/cuemby/gossipdb/pkg/oplog"
	"github.com/cuemby/gossipdb/pkg/resilience"
	"github.com/cuemby/gossipdb/pkg/storage"
	"github.com/cuemby/gossipdb/pkg/typedstore"
	"github.com/cuemby/gossipdb/pkg/types"
)

type fakeClient struct {
	mu     sync.Mutex
	sent   []string
	digest Digest
	ops    map[string]*types.SignedOperation
}

func newFakeClient() *fakeClient {
	return &fakeClient{ops: make(map[string]*types.SignedOperation)}
}

func (f *fakeClient) SendOperation(_ context.Context, peerID string, _ *types.SignedOperation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, peerID)
	return nil
}

func (f *fakeClient) FetchDigest(_ context.Context, _ string, _ string) (Digest, error) {
	return f.digest, nil
}

func (f *fakeClient) FetchOp(_ context.Context, _ string, opID string) (*types.SignedOperation, error) {
	op, ok := f.ops[opID]
	if !ok {
		return nil, errors.New("syncengine test: no such op")
	}
	return op, nil
}

func (f *fakeClient) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakePeers struct{ ids []string }

func (f fakePeers) PeerIDs() []string { return f.ids }

type fakeDBs struct{ names []string }

func (f fakeDBs) ListDBs() ([]string, error) { return f.names, nil }

func newTestGate() *resilience.Gate {
	return resilience.NewGate(resilience.NewBandwidth(1e9, 1e9, 1e9, 1e9))
}

func signedOp(kp *gocrypto.KeyPair, key, value string, ts int64) *types.SignedOperation {
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

func TestBroadcasterSendsToEligiblePeers(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	client := newFakeClient()
	peers := fakePeers{ids: []string{"peer-a", "peer-b"}}
	gate := newTestGate()
	b := NewBroadcaster(broker, client, peers, gate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	kp, err := gocrypto.Generate()
	require.NoError(t, err)
	op := signedOp(kp, "user:alice", "Alice", 1000)
	payload, err := json.Marshal(op)
	require.NoError(t, err)
	broker.Publish(&events.Event{Topic: oplog.BroadcastTopic, Payload: string(payload)})

	require.Eventually(t, func() bool {
		return len(client.sentTo()) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestBroadcasterSkipsBannedPeer(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	client := newFakeClient()
	peers := fakePeers{ids: []string{"peer-banned"}}
	gate := newTestGate()
	for i := 0; i < 10; i++ {
		gate.Reputation.RecordSyncFailure("peer-banned")
	}
	require.True(t, gate.Reputation.Banned("peer-banned"))

	b := NewBroadcaster(broker, client, peers, gate)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	kp, err := gocrypto.Generate()
	require.NoError(t, err)
	op := signedOp(kp, "user:alice", "Alice", 1000)
	payload, err := json.Marshal(op)
	require.NoError(t, err)
	broker.Publish(&events.Event{Topic: oplog.BroadcastTopic, Payload: string(payload)})

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, client.sentTo())
}

func newTestLog(t *testing.T) (*storage.Store, *oplog.Log, *gocrypto.KeyPair) {
	t.Helper()
	backing, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backing.Close() })

	c, err := cache.New()
	require.NoError(t, err)
	typed := typedstore.New(backing, c)

	verifier, err := gocrypto.NewVerifier(0)
	require.NoError(t, err)

	kp, err := gocrypto.Generate()
	require.NoError(t, err)

	return backing, oplog.New(backing, typed, verifier, nil), kp
}

func TestAntiEntropyPullsMissingOp(t *testing.T) {
	backing, l, kp := newTestLog(t)
	db := "mydb-" + kp.PublicKey

	remoteOp := signedOp(kp, "user:bob", "Bob", 2000)
	client := newFakeClient()
	client.ops[remoteOp.OpID()] = remoteOp
	client.digest = Digest{Recent: []OpRef{{TimestampMs: remoteOp.TimestampMs, OpID: remoteOp.OpID()}}}

	gate := newTestGate()
	ae := NewAntiEntropy(backing, l, client, fakePeers{ids: []string{"peer-a"}}, fakeDBs{names: []string{db}}, gate)

	ae.round(context.Background())

	ok, err := backing.HasOp(remoteOp.OpID())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAntiEntropySkipsAlreadyKnownOp(t *testing.T) {
	backing, l, kp := newTestLog(t)
	op := signedOp(kp, "user:alice", "Alice", 1000)
	require.NoError(t, l.Ingest(op))
	db := op.DBName

	client := newFakeClient()
	client.digest = Digest{Recent: []OpRef{{TimestampMs: op.TimestampMs, OpID: op.OpID()}}}

	gate := newTestGate()
	ae := NewAntiEntropy(backing, l, client, fakePeers{ids: []string{"peer-a"}}, fakeDBs{names: []string{db}}, gate)

	ae.round(context.Background())

	require.Empty(t, client.ops)
	// A fetch attempt would fail against the empty fake and cost -5; a
	// skipped op leaves the round successful at 50 + 2.
	require.Equal(t, 52.0, gate.Reputation.Score("peer-a"))
}
