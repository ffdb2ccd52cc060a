package api

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cuemby/gossipdb/pkg/syncengine"
	"github.com/cuemby/gossipdb/pkg/types"
)

// maxFrameBytes bounds a single envelope to guard against a malformed or
// hostile length prefix driving an unbounded allocation.
const maxFrameBytes = 64 << 20

// dataTopic and discoveryTopic are the two fixed 32-byte gossip topic
// identifiers peers use to tell operation traffic from peer-discovery
// traffic apart. They are not secrets, just stable tags.
var (
	dataTopic      = sha256.Sum256([]byte("gossipdb.topic.data.v1"))
	discoveryTopic = sha256.Sum256([]byte("gossipdb.topic.discovery.v1"))
)

// ErrFrameTooLarge is returned by readFrame when a peer's length prefix
// exceeds maxFrameBytes.
var ErrFrameTooLarge = errors.New("api: frame exceeds maximum size")

// messageKind discriminates the envelope variants carried over a peer
// connection.
type messageKind string

const (
	kindOperation    messageKind = "operation"
	kindAnnouncement messageKind = "announcement"
	kindDigestReq    messageKind = "digest_req"
	kindDigestResp   messageKind = "digest_resp"
	kindFetchReq     messageKind = "fetch_req"
	kindFetchResp    messageKind = "fetch_resp"
)

// envelope is the single message type exchanged over a peer net.Conn. Only
// the fields relevant to Kind are populated; the rest are zero.
type envelope struct {
	Kind         messageKind             `json:"kind"`
	Topic        [32]byte                `json:"topic"`
	FromNodeID   string                  `json:"fromNodeId,omitempty"`
	Operation    *types.SignedOperation  `json:"operation,omitempty"`
	Announcement *types.PeerAnnouncement `json:"announcement,omitempty"`
	DBName       string                  `json:"dbName,omitempty"`
	OpID         string                  `json:"opId,omitempty"`
	Digest       *syncengine.Digest      `json:"digest,omitempty"`
	Err          string                  `json:"err,omitempty"`
}

// writeFrame writes v as a 4-byte big-endian length prefix followed by its
// canonical JSON encoding.
func writeFrame(w io.Writer, v *envelope) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("api: encode frame: %w", err)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("api: write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("api: write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed canonical JSON envelope from r.
func readFrame(r io.Reader) (*envelope, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("api: read frame body: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("api: decode frame: %w", err)
	}
	return &env, nil
}
