package typedstore

import (
	"errors"

	"github.com/cuemby/gossipdb/pkg/storage"
	"github.com/cuemby/gossipdb/pkg/types"
)

func (s *Store) applyString(op *types.SignedOperation) error {
	logicalKey := LogicalKey(op.DBName, op.Key)
	if err := s.checkType(logicalKey, types.StoreString); err != nil {
		return err
	}
	stale, err := s.rejectStale(logicalKey, op)
	if err != nil {
		return err
	}
	if stale {
		return nil
	}
	return s.writeRaw(op, logicalKey, types.StoreString, []byte(op.Value))
}

// GetString returns the current string value for (db, key).
func (s *Store) GetString(db, key string) (string, error) {
	logicalKey := LogicalKey(db, key)
	data, err := s.readRaw(logicalKey)
	if errors.Is(err, ErrNotFound) || errors.Is(err, storage.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
