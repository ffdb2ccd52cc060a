package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cuemby/gossipdb/pkg/syncengine"
	"github.com/cuemby/gossipdb/pkg/types"
)

// ErrPeerUnknown is returned when a call targets a node id with no known
// dial address.
var ErrPeerUnknown = errors.New("api: unknown peer")

const dialTimeout = 5 * time.Second

// Client is the outbound half of the peer wire protocol: it satisfies
// pkg/syncengine.PeerClient by dialing a fresh connection per call,
// writing one envelope, and, for request/response kinds, reading one
// back before closing.
type Client struct {
	book    *AddressBook
	localID string
}

// NewClient constructs a Client that resolves peer addresses via book and
// identifies this node as localID in outbound announcements.
func NewClient(book *AddressBook, localID string) *Client {
	return &Client{book: book, localID: localID}
}

var _ syncengine.PeerClient = (*Client)(nil)

func (c *Client) dial(ctx context.Context, peerID string) (net.Conn, error) {
	addr, ok := c.book.Resolve(peerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeerUnknown, peerID)
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	var d net.Dialer
	return d.DialContext(dialCtx, "tcp", addr)
}

// SendOperation delivers op to peerID over the data topic. No response is
// expected; the connection is closed immediately after the write.
func (c *Client) SendOperation(ctx context.Context, peerID string, op *types.SignedOperation) error {
	conn, err := c.dial(ctx, peerID)
	if err != nil {
		return err
	}
	defer conn.Close()

	return writeFrame(conn, &envelope{Kind: kindOperation, Topic: dataTopic, FromNodeID: c.localID, Operation: op})
}

// AnnounceTo delivers ann to peerID over the discovery topic.
func (c *Client) AnnounceTo(ctx context.Context, peerID string, ann *types.PeerAnnouncement) error {
	conn, err := c.dial(ctx, peerID)
	if err != nil {
		return err
	}
	defer conn.Close()

	return writeFrame(conn, &envelope{Kind: kindAnnouncement, Topic: discoveryTopic, FromNodeID: c.localID, Announcement: ann})
}

// FetchDigest requests peerID's anti-entropy digest for db.
func (c *Client) FetchDigest(ctx context.Context, peerID string, db string) (syncengine.Digest, error) {
	conn, err := c.dial(ctx, peerID)
	if err != nil {
		return syncengine.Digest{}, err
	}
	defer conn.Close()

	if err := writeFrame(conn, &envelope{Kind: kindDigestReq, Topic: dataTopic, FromNodeID: c.localID, DBName: db}); err != nil {
		return syncengine.Digest{}, err
	}
	resp, err := readFrame(conn)
	if err != nil {
		return syncengine.Digest{}, fmt.Errorf("api: fetch digest from %s: %w", peerID, err)
	}
	if resp.Err != "" {
		return syncengine.Digest{}, fmt.Errorf("api: peer %s: %s", peerID, resp.Err)
	}
	if resp.Digest == nil {
		return syncengine.Digest{}, nil
	}
	return *resp.Digest, nil
}

// FetchOp requests the full operation recorded under opID on peerID.
func (c *Client) FetchOp(ctx context.Context, peerID string, opID string) (*types.SignedOperation, error) {
	conn, err := c.dial(ctx, peerID)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := writeFrame(conn, &envelope{Kind: kindFetchReq, Topic: dataTopic, FromNodeID: c.localID, OpID: opID}); err != nil {
		return nil, err
	}
	resp, err := readFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("api: fetch op %q from %s: %w", opID, peerID, err)
	}
	if resp.Err != "" {
		return nil, fmt.Errorf("api: peer %s: %s", peerID, resp.Err)
	}
	return resp.Operation, nil
}

// DialPeer probes connectivity to addr and, if reachable, records it in
// the address book under nodeID. It is the outbound half of the facade's
// dial_peer operation.
func (c *Client) DialPeer(ctx context.Context, nodeID, addr string) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("api: dial %s: %w", addr, err)
	}
	conn.Close()
	c.book.Set(nodeID, addr)
	return nil
}
