package typedstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cuemby/gossipdb/pkg/cache"
	"github.com/cuemby/gossipdb/pkg/keylock"
	"github.com/cuemby/gossipdb/pkg/storage"
	"github.com/cuemby/gossipdb/pkg/types"
)

var (
	// ErrTypeMismatch is returned when an operation's store type disagrees
	// with the variant already recorded for its logical key.
	ErrTypeMismatch = errors.New("typedstore: type mismatch")
	// ErrNotFound is returned when a logical key has no value.
	ErrNotFound = errors.New("typedstore: not found")
	// ErrInvalidValue is returned when a variant fails to parse its value bytes.
	ErrInvalidValue = errors.New("typedstore: invalid value")
)

// Store dispatches typed reads and writes across the nine variants.
type Store struct {
	backing *storage.Store
	cache   *cache.Cache
	locks   *keylock.Map
}

// New constructs a Store over the given backing engine and cache.
func New(backing *storage.Store, c *cache.Cache) *Store {
	return &Store{backing: backing, cache: c, locks: keylock.New()}
}

// LogicalKey renders the addressable unit for (db, key[, field]).
func LogicalKey(db, key string, field ...string) string {
	if len(field) > 0 && field[0] != "" {
		return db + ":" + key + ":" + field[0]
	}
	return db + ":" + key
}

// Apply performs op against the typed store, dispatching on op.StoreType.
// Callers (the op log) are responsible for signature verification,
// idempotency, and durability ordering before calling Apply.
func (s *Store) Apply(op *types.SignedOperation) error {
	if !op.StoreType.Valid() {
		return fmt.Errorf("%w: unknown store type %q", ErrInvalidValue, op.StoreType)
	}

	logicalKey := LogicalKey(op.DBName, op.Key)
	var lockKey = logicalKey
	if op.StoreType == types.StoreHash {
		lockKey = LogicalKey(op.DBName, op.Key, op.Field)
	}

	var applyErr error
	s.locks.WithLock(lockKey, func() {
		switch op.StoreType {
		case types.StoreString:
			applyErr = s.applyString(op)
		case types.StoreHash:
			applyErr = s.applyHash(op)
		case types.StoreList:
			applyErr = s.applyList(op)
		case types.StoreSet:
			applyErr = s.applySet(op)
		case types.StoreSortedSet:
			applyErr = s.applySortedSet(op)
		case types.StoreJSON:
			applyErr = s.applyJSON(op)
		case types.StoreStream:
			applyErr = s.applyStream(op)
		case types.StoreTimeSeries:
			applyErr = s.applyTimeSeries(op)
		case types.StoreGeo:
			applyErr = s.applyGeo(op)
		}
	})
	return applyErr
}

// checkType verifies that logicalKey, if it already holds a value, holds
// one of the given variant.
func (s *Store) checkType(logicalKey string, want types.StoreType) error {
	entry, err := s.backing.GetIndex(logicalKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if entry.StoreType != want {
		return fmt.Errorf("%w: key %q holds %s, got %s", ErrTypeMismatch, logicalKey, entry.StoreType, want)
	}
	return nil
}

// readRaw returns the current raw bytes for logicalKey, checking the
// cache first and falling back to the backing store.
func (s *Store) readRaw(logicalKey string) ([]byte, error) {
	if v, ok := s.cache.Get(logicalKey); ok {
		return v, nil
	}
	entry, err := s.backing.GetIndex(logicalKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	data, err := s.backing.GetBlob(entry.Hash)
	if err != nil {
		return nil, err
	}
	s.cache.Put(logicalKey, data)
	return data, nil
}

// opByID loads the full operation recorded under opID. It returns nil,
// nil if opID is empty or no longer present, so callers can treat "no
// prior writer" the same as "prior writer's record was pruned".
func (s *Store) opByID(opID string) (*types.SignedOperation, error) {
	if opID == "" {
		return nil, nil
	}
	data, err := s.backing.GetOpData(opID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var owner types.SignedOperation
	if err := json.Unmarshal(data, &owner); err != nil {
		return nil, fmt.Errorf("%w: unmarshal recorded operation: %v", ErrInvalidValue, err)
	}
	return &owner, nil
}

// staleAgainst reports whether op is not newer than the operation
// recorded under ownerOpID, per the (timestamp_ms, op_id) total order.
// Last-write-wins variants call this before overwriting so that two
// nodes applying the same conflicting writes in opposite arrival order
// still converge on the same value.
func (s *Store) staleAgainst(ownerOpID string, op *types.SignedOperation) (bool, error) {
	owner, err := s.opByID(ownerOpID)
	if err != nil {
		return false, err
	}
	if owner == nil {
		return false, nil
	}
	return !owner.Less(op), nil
}

// rejectStale reports whether op is not newer than the operation
// currently recorded for logicalKey.
func (s *Store) rejectStale(logicalKey string, op *types.SignedOperation) (bool, error) {
	entry, err := s.backing.GetIndex(logicalKey)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.staleAgainst(entry.OpID, op)
}

// writeRaw commits data as the new value for logicalKey as part of op's
// durable batch, optionally deleting other index pointers in the same
// commit (used by _id dedup), and refreshes the cache.
func (s *Store) writeRaw(op *types.SignedOperation, logicalKey string, storeType types.StoreType, data []byte, deleteKeys ...string) error {
	hash := storage.HashOf(data)

	opData, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("%w: marshal operation: %v", ErrInvalidValue, err)
	}
	opHash := storage.HashOf(opData)

	err = s.backing.ApplyBatch(storage.Batch{
		BlobData:    data,
		BlobHash:    hash,
		IndexKey:    logicalKey,
		IndexEntry:  storage.IndexEntry{Hash: hash, StoreType: storeType, OpID: op.OpID()},
		DeleteKeys:  deleteKeys,
		OpID:        op.OpID(),
		OpData:      opData,
		OpHash:      opHash,
		DBName:      op.DBName,
		TimestampMs: op.TimestampMs,
	})
	if err != nil {
		return fmt.Errorf("typedstore: write %q: %w", logicalKey, err)
	}
	s.cache.Put(logicalKey, data)
	for _, dk := range deleteKeys {
		s.cache.Invalidate(dk)
	}
	return nil
}
