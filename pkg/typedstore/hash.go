package typedstore

import (
	"errors"
	"strings"

	"github.com/cuemby/gossipdb/pkg/storage"
	"github.com/cuemby/gossipdb/pkg/types"
)

func (s *Store) applyHash(op *types.SignedOperation) error {
	baseKey := LogicalKey(op.DBName, op.Key)
	if err := s.checkType(baseKey, types.StoreHash); err != nil {
		return err
	}
	// The base key's index entry only marks the variant; field values
	// live under their own field-suffixed logical keys.
	if _, err := s.backing.GetIndex(baseKey); errors.Is(err, storage.ErrNotFound) {
		if err := s.writeRaw(op, baseKey, types.StoreHash, nil); err != nil {
			return err
		}
	}
	fieldKey := LogicalKey(op.DBName, op.Key, op.Field)
	stale, err := s.rejectStale(fieldKey, op)
	if err != nil {
		return err
	}
	if stale {
		return nil
	}
	return s.writeRaw(op, fieldKey, types.StoreHash, []byte(op.Value))
}

// GetHashField returns a single field's value.
func (s *Store) GetHashField(db, key, field string) (string, error) {
	data, err := s.readRaw(LogicalKey(db, key, field))
	if errors.Is(err, ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetHash returns every field currently stored under (db, key).
func (s *Store) GetHash(db, key string) (map[string]string, error) {
	baseKey := LogicalKey(db, key)
	if err := s.checkType(baseKey, types.StoreHash); err != nil {
		return nil, err
	}
	prefix := baseKey + ":"
	result := make(map[string]string)
	err := s.backing.ScanPrefix(prefix, func(k string, entry storage.IndexEntry) bool {
		field := strings.TrimPrefix(k, prefix)
		data, err := s.backing.GetBlob(entry.Hash)
		if err != nil {
			return true
		}
		result[field] = string(data)
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}
