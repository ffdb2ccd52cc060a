package typedstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cuemby/gossipdb/pkg/storage"
	"github.com/cuemby/gossipdb/pkg/types"
)

// idIndexKey is the logical key under which a db's "_id" -> owning-key
// map is stored, one entry per _id value, so that a new document
// carrying a previously-seen _id can find and retire its predecessor
// even when the predecessor lives under a different logical key.
func idIndexKey(db, id string) string {
	return db + ":\x00jsonid:" + id
}

func (s *Store) applyJSON(op *types.SignedOperation) error {
	logicalKey := LogicalKey(op.DBName, op.Key)
	if err := s.checkType(logicalKey, types.StoreJSON); err != nil {
		return err
	}

	var doc map[string]any
	if err := s.readJSON(logicalKey, &doc); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		doc = make(map[string]any)
	}

	var newValue any
	if err := json.Unmarshal([]byte(op.Value), &newValue); err != nil {
		newValue = op.Value
	}

	if op.JSONPath == "" {
		stale, err := s.rejectStale(logicalKey, op)
		if err != nil {
			return err
		}
		if stale {
			return nil
		}
		if obj, ok := newValue.(map[string]any); ok {
			doc = obj
		} else {
			return fmt.Errorf("%w: root JSON update must be an object", ErrInvalidValue)
		}
	} else {
		setDottedPath(doc, op.JSONPath, newValue)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	var deleteKeys []string
	id, hasID := doc["_id"].(string)
	if hasID {
		idxKey := idIndexKey(op.DBName, id)
		if prevOwner, err := s.backing.GetIndex(idxKey); err == nil && prevOwner.StoreType == types.StoreString {
			if ownerKey, err := s.backing.GetBlob(prevOwner.Hash); err == nil && string(ownerKey) != logicalKey {
				// The _id is currently held by a different logical key.
				// Only evict it if this op is newer than whatever op last
				// wrote that key, so two nodes applying the same pair of
				// conflicting _id writes in opposite order both retire
				// the older one and keep the newer.
				if ownerEntry, err := s.backing.GetIndex(string(ownerKey)); err == nil {
					stale, err := s.staleAgainst(ownerEntry.OpID, op)
					if err != nil {
						return err
					}
					if stale {
						return nil
					}
				}
				deleteKeys = append(deleteKeys, string(ownerKey))
			}
		}
		idxHash := storage.HashOf([]byte(logicalKey))
		if err := s.backing.ApplyBatch(storage.Batch{
			BlobData:   []byte(logicalKey),
			BlobHash:   idxHash,
			IndexKey:   idxKey,
			IndexEntry: storage.IndexEntry{Hash: idxHash, StoreType: types.StoreString},
		}); err != nil {
			return fmt.Errorf("typedstore: update json id index: %w", err)
		}
	}

	return s.writeRaw(op, logicalKey, types.StoreJSON, data, deleteKeys...)
}

// GetJSON returns the document stored under (db, key).
func (s *Store) GetJSON(db, key string) (map[string]any, error) {
	var doc map[string]any
	if err := s.readJSON(LogicalKey(db, key), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// setDottedPath assigns value at the dotted path inside doc, creating
// intermediate objects as needed.
func setDottedPath(doc map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := doc
	for i, p := range parts {
		if i == len(parts)-1 {
			cur[p] = value
			return
		}
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
}
