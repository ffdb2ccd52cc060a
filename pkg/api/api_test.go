package api

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/gossipdb/pkg/cache"
	gocrypto "github.com/cuemby/gossipdb/pkg/crypto"
	"github.com/cuemby/gossipdb/pkg/discovery"
	"github.com/cuemby/gossipdb/pkg/oplog"
	"github.com/cuemby/gossipdb/pkg/storage"
	"github.com/cuemby/gossipdb/pkg/typedstore"
	"github.com/cuemby/gossipdb/pkg/types"
)

func TestFrameRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	sent := &envelope{Kind: kindFetchReq, Topic: dataTopic, OpID: "abc123"}
	require.NoError(t, writeFrame(&buf, sent))

	got, err := readFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, sent.Kind, got.Kind)
	require.Equal(t, sent.OpID, got.OpID)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x7f, 0xff, 0xff, 0xff}) // ~2GB claimed length
	_, err := readFrame(&buf)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

type testNode struct {
	backing *storage.Store
	log     *oplog.Log
	server  *Server
}

func newTestNode(t *testing.T, announcer *discovery.Announcer) *testNode {
	t.Helper()
	backing, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backing.Close() })

	c, err := cache.New()
	require.NoError(t, err)
	typed := typedstore.New(backing, c)

	verifier, err := gocrypto.NewVerifier(0)
	require.NoError(t, err)

	l := oplog.New(backing, typed, verifier, nil)

	srv, err := NewServer("127.0.0.1:0", l, announcer, backing)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() { cancel(); srv.Close() })
	go srv.Serve(ctx)

	return &testNode{backing: backing, log: l, server: srv}
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

func TestClientSendOperationDeliversToServer(t *testing.T) {
	node := newTestNode(t, nil)
	book := NewAddressBook()
	book.Set("peer-a", node.server.Addr())
	client := NewClient(book, "local-node")

	kp, err := gocrypto.Generate()
	require.NoError(t, err)
	op := signedOp(kp, "user:alice", "Alice", 1000)

	require.NoError(t, client.SendOperation(context.Background(), "peer-a", op))

	require.Eventually(t, func() bool {
		ok, _ := node.backing.HasOp(op.OpID())
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestClientFetchDigestAndOp(t *testing.T) {
	node := newTestNode(t, nil)
	book := NewAddressBook()
	book.Set("peer-a", node.server.Addr())
	client := NewClient(book, "local-node")

	kp, err := gocrypto.Generate()
	require.NoError(t, err)
	op := signedOp(kp, "user:alice", "Alice", 1000)
	require.NoError(t, node.log.Ingest(op))

	digest, err := client.FetchDigest(context.Background(), "peer-a", op.DBName)
	require.NoError(t, err)
	require.Len(t, digest.Recent, 1)
	require.Equal(t, op.OpID(), digest.Recent[0].OpID)

	fetched, err := client.FetchOp(context.Background(), "peer-a", op.OpID())
	require.NoError(t, err)
	require.Equal(t, op.Value, fetched.Value)
}

func TestClientFetchOpMissingReturnsError(t *testing.T) {
	node := newTestNode(t, nil)
	book := NewAddressBook()
	book.Set("peer-a", node.server.Addr())
	client := NewClient(book, "local-node")

	_, err := client.FetchOp(context.Background(), "peer-a", "does-not-exist")
	require.Error(t, err)
}

func TestClientSendOperationToUnknownPeerFails(t *testing.T) {
	book := NewAddressBook()
	client := NewClient(book, "local-node")

	kp, err := gocrypto.Generate()
	require.NoError(t, err)
	op := signedOp(kp, "user:alice", "Alice", 1000)

	err = client.SendOperation(context.Background(), "ghost-peer", op)
	require.ErrorIs(t, err, ErrPeerUnknown)
}

func TestFacadeSubmitAndGetString(t *testing.T) {
	node := newTestNode(t, nil)
	facade := NewFacade(node.log, typedstore.New(node.backing, mustCache(t)), node.backing, nil, nil)

	kp, err := gocrypto.Generate()
	require.NoError(t, err)
	op := signedOp(kp, "user:alice", "Alice", 1000)

	ok, msg := facade.Submit(op)
	require.True(t, ok, msg)

	v, err := facade.GetString(op.DBName, "user:alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", v)
}

func mustCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New()
	require.NoError(t, err)
	return c
}
