package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/gossipdb/pkg/types"
)

var (
	bucketBlobs     = []byte("blobs")
	bucketIndex     = []byte("index")
	bucketOplog     = []byte("oplog")
	bucketOplogByDB = []byte("oplog_by_db")
)

// ErrNotFound is returned when a blob, index entry, or operation does not exist.
var ErrNotFound = errors.New("storage: not found")

// IndexEntry is the current value pointer for a logical key. OpID names
// the operation that last wrote this entry, so last-write-wins variants
// can retrieve and compare against it before accepting a new write.
type IndexEntry struct {
	Hash      string
	StoreType types.StoreType
	OpID      string
}

// Store is the bbolt-backed engine behind the blob store and index KV.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the store's database file under dataDir.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "gossipdb.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketBlobs, bucketIndex, bucketOplog, bucketOplogByDB} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("storage: create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Blob store ---

// HashOf computes the content address of data without storing it.
func HashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PutBlob stores data under its content hash and returns the hash.
func (s *Store) PutBlob(data []byte) (string, error) {
	hash := HashOf(data)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return putBlobTx(tx, hash, data)
	})
	if err != nil {
		return "", fmt.Errorf("storage: put blob: %w", err)
	}
	return hash, nil
}

func putBlobTx(tx *bolt.Tx, hash string, data []byte) error {
	b := tx.Bucket(bucketBlobs)
	existing := b.Get([]byte(hash))
	if existing != nil && bytes.Equal(existing, data) {
		return nil
	}
	return b.Put([]byte(hash), data)
}

// GetBlob retrieves the bytes stored under hash.
func (s *Store) GetBlob(hash string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlobs).Get([]byte(hash))
		if v == nil {
			return ErrNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

// HasBlob reports whether hash is present.
func (s *Store) HasBlob(hash string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketBlobs).Get([]byte(hash)) != nil
		return nil
	})
	return found, err
}

// --- Index KV ---

// GetIndex returns the current pointer for logicalKey.
func (s *Store) GetIndex(logicalKey string) (IndexEntry, error) {
	var entry IndexEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketIndex).Get([]byte(logicalKey))
		if v == nil {
			return ErrNotFound
		}
		hash, storeType, opID, ok := decodeIndexValue(v)
		if !ok {
			return fmt.Errorf("storage: corrupt index entry for %q", logicalKey)
		}
		entry = IndexEntry{Hash: hash, StoreType: storeType, OpID: opID}
		return nil
	})
	return entry, err
}

// DeleteIndex removes the pointer for logicalKey, if present.
func (s *Store) DeleteIndex(logicalKey string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIndex).Delete([]byte(logicalKey))
	})
}

// ScanPrefix calls fn for every index entry whose key starts with prefix,
// in byte order, stopping early if fn returns false.
func (s *Store) ScanPrefix(prefix string, fn func(key string, entry IndexEntry) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketIndex).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			hash, storeType, opID, ok := decodeIndexValue(v)
			if !ok {
				continue
			}
			if !fn(string(k), IndexEntry{Hash: hash, StoreType: storeType, OpID: opID}) {
				break
			}
		}
		return nil
	})
}

func encodeIndexValue(hash string, storeType types.StoreType, opID string) []byte {
	return []byte(string(storeType) + "\x00" + opID + "\x00" + hash)
}

func decodeIndexValue(v []byte) (hash string, storeType types.StoreType, opID string, ok bool) {
	first := bytes.IndexByte(v, 0)
	if first < 0 {
		return "", "", "", false
	}
	rest := v[first+1:]
	second := bytes.IndexByte(rest, 0)
	if second < 0 {
		return "", "", "", false
	}
	return string(rest[second+1:]), types.StoreType(v[:first]), string(rest[:second]), true
}

// --- Oplog ---

// HasOp reports whether opID has already been recorded.
func (s *Store) HasOp(opID string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketOplog).Get([]byte(opID)) != nil
		return nil
	})
	return found, err
}

// ScanOpsByDB calls fn for every recorded op_id under db, in
// (timestamp_ms, op_id) order, stopping early if fn returns false.
func (s *Store) ScanOpsByDB(db string, fn func(timestampMs int64, opID string) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOplogByDB).Cursor()
		prefix := []byte(db + ":")
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			ts, opID, ok := decodeOplogByDBKey(k, db)
			if !ok {
				continue
			}
			if !fn(ts, opID) {
				break
			}
		}
		return nil
	})
}

func encodeOplogByDBKey(db string, timestampMs int64, opID string) []byte {
	return []byte(fmt.Sprintf("%s:%020d:%s", db, timestampMs, opID))
}

func decodeOplogByDBKey(k []byte, db string) (timestampMs int64, opID string, ok bool) {
	prefix := db + ":"
	s := string(k)
	if len(s) <= len(prefix)+20 {
		return 0, "", false
	}
	rest := s[len(prefix):]
	var ts int64
	if _, err := fmt.Sscanf(rest[:20], "%020d", &ts); err != nil {
		return 0, "", false
	}
	return ts, rest[21:], true
}

// Batch is the set of writes ApplyBatch commits atomically: an index
// pointer swap plus the corresponding oplog records. Blob is stored
// first if non-nil (its bytes have already been hashed by the caller).
//
// OpData/OpHash store the serialized operation itself (distinct from
// BlobData/BlobHash, which store the variant's current value) so that a
// historical operation can be recovered in full for replay or for
// answering a peer's anti-entropy pull, even after its value has been
// superseded by a later write.
type Batch struct {
	BlobData    []byte // optional: bytes to put under BlobHash
	BlobHash    string
	IndexKey    string
	IndexEntry  IndexEntry
	DeleteKeys  []string // index keys to remove as part of this same commit (e.g. _id dedup)
	OpID        string
	OpData      []byte // serialized SignedOperation
	OpHash      string
	DBName      string
	TimestampMs int64
}

// ApplyBatch durably commits b's blob write, index swap, and oplog
// records in a single bbolt transaction.
func (s *Store) ApplyBatch(b Batch) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if b.BlobData != nil {
			if err := putBlobTx(tx, b.BlobHash, b.BlobData); err != nil {
				return err
			}
		}
		if b.OpData != nil {
			if err := putBlobTx(tx, b.OpHash, b.OpData); err != nil {
				return err
			}
		}
		if b.IndexKey != "" {
			v := encodeIndexValue(b.IndexEntry.Hash, b.IndexEntry.StoreType, b.IndexEntry.OpID)
			if err := tx.Bucket(bucketIndex).Put([]byte(b.IndexKey), v); err != nil {
				return err
			}
		}
		for _, dk := range b.DeleteKeys {
			if err := tx.Bucket(bucketIndex).Delete([]byte(dk)); err != nil {
				return err
			}
		}
		if b.OpID == "" {
			return nil
		}
		if err := tx.Bucket(bucketOplog).Put([]byte(b.OpID), []byte(b.OpHash)); err != nil {
			return err
		}
		dbKey := encodeOplogByDBKey(b.DBName, b.TimestampMs, b.OpID)
		return tx.Bucket(bucketOplogByDB).Put(dbKey, nil)
	})
}

// ListDBs returns the distinct database names with at least one recorded
// operation, in lexical order.
func (s *Store) ListDBs() ([]string, error) {
	var dbs []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOplogByDB).Cursor()
		var last string
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			idx := bytes.IndexByte(k, ':')
			if idx < 0 {
				continue
			}
			db := string(k[:idx])
			if db != last {
				dbs = append(dbs, db)
				last = db
			}
		}
		return nil
	})
	return dbs, err
}

// GetOpData returns the serialized SignedOperation recorded under opID.
func (s *Store) GetOpData(opID string) ([]byte, error) {
	var hash string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketOplog).Get([]byte(opID))
		if v == nil {
			return ErrNotFound
		}
		hash = string(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetBlob(hash)
}
