package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// StoreType identifies which of the nine typed stores an operation targets.
type StoreType string

const (
	StoreString    StoreType = "String"
	StoreHash      StoreType = "Hash"
	StoreList      StoreType = "List"
	StoreSet       StoreType = "Set"
	StoreSortedSet StoreType = "SortedSet"
	StoreJSON      StoreType = "JSON"
	StoreStream    StoreType = "Stream"
	StoreTimeSeries StoreType = "TimeSeries"
	StoreGeo       StoreType = "Geo"
)

// Valid reports whether s is one of the nine known store types.
func (s StoreType) Valid() bool {
	switch s {
	case StoreString, StoreHash, StoreList, StoreSet, StoreSortedSet, StoreJSON, StoreStream, StoreTimeSeries, StoreGeo:
		return true
	}
	return false
}

// SignedOperation is a single signed, timestamped mutation request: the
// unit of durability and of replication between nodes.
type SignedOperation struct {
	DBName    string    `json:"dbName"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	StoreType StoreType `json:"storeType"`

	// Variant-specific auxiliary fields. Populated only for the variants
	// that use them; zero value otherwise.
	Field        string  `json:"field,omitempty"`
	Score        float64 `json:"score,omitempty"`
	JSONPath     string  `json:"jsonPath,omitempty"`
	StreamFields string  `json:"streamFields,omitempty"` // JSON-encoded map[string]string
	Timestamp    int64   `json:"tsTimestamp,omitempty"`  // unix seconds, TimeSeries only
	Longitude    float64 `json:"longitude,omitempty"`
	Latitude     float64 `json:"latitude,omitempty"`

	PublicKey    string `json:"publicKey"` // hex-encoded ed25519 public key
	Signature    string `json:"signature"` // hex-encoded ed25519 signature
	TimestampMs  int64  `json:"timestampMs"`
}

// CanonicalMessage is the exact byte sequence the signature covers.
func (op *SignedOperation) CanonicalMessage() []byte {
	return []byte(op.DBName + ":" + op.Key + ":" + op.Value)
}

// PublisherKey returns the hex public key suffix embedded in DBName, i.e.
// the part after the final "-". Returns "" if DBName carries no suffix.
func PublisherKey(dbName string) string {
	idx := strings.LastIndex(dbName, "-")
	if idx < 0 {
		return ""
	}
	return dbName[idx+1:]
}

// OpID computes the deterministic idempotency key for op: a SHA-256 hash
// over db name, key, value, store type, timestamp_ms and public key. The
// variant-specific auxiliary fields (field, score, JSON path, stream
// fields, series timestamp, coordinates) are not part of the hash.
func (op *SignedOperation) OpID() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d|%s", op.DBName, op.Key, op.Value, op.StoreType, op.TimestampMs, op.PublicKey)
	return hex.EncodeToString(h.Sum(nil))
}

// Less implements the total order on operations: (timestamp_ms, op_id).
func (op *SignedOperation) Less(other *SignedOperation) bool {
	if op.TimestampMs != other.TimestampMs {
		return op.TimestampMs < other.TimestampMs
	}
	return op.OpID() < other.OpID()
}

// PeerAnnouncement is the signed gossip message a node broadcasts to
// advertise its liveness and current peer set.
type PeerAnnouncement struct {
	NodeID    string   `json:"nodeId"` // publisher public key, hex
	Timestamp int64    `json:"timestamp"`
	PeerIDs   []string `json:"peerIds"`
	Region    string   `json:"region,omitempty"`
	Signature string   `json:"signature"`
}

// CanonicalMessage is the exact byte sequence the announcement signature
// covers: node id, timestamp, and the sorted, comma-joined peer id list.
func (a *PeerAnnouncement) CanonicalMessage() []byte {
	sorted := append([]string(nil), a.PeerIDs...)
	sort.Strings(sorted)
	return []byte(fmt.Sprintf("%s:%d:%s", a.NodeID, a.Timestamp, strings.Join(sorted, ",")))
}

// DedupKey returns the key used to suppress replayed or duplicate
// announcements from the same node at the same timestamp.
func (a *PeerAnnouncement) DedupKey() string {
	return fmt.Sprintf("%s:%d", a.NodeID, a.Timestamp)
}
