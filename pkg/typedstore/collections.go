package typedstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cuemby/gossipdb/pkg/storage"
	"github.com/cuemby/gossipdb/pkg/types"
)

// listAppend is one recorded List append, tagged with the (timestamp_ms,
// op_id) of the operation that produced it. Appends are kept sorted by
// that total order and the materialized list is rebuilt from them on
// every read, so two nodes that apply the same set of List ops in
// different arrival orders still converge on the same element order -
// the same guarantee ReplayInOrder gives cold-storage replay.
type listAppend struct {
	Value       string `json:"value"`
	Head        bool   `json:"head"`
	TimestampMs int64  `json:"timestampMs"`
	OpID        string `json:"opId"`
}

func (s *Store) applyList(op *types.SignedOperation) error {
	logicalKey := LogicalKey(op.DBName, op.Key)
	if err := s.checkType(logicalKey, types.StoreList); err != nil {
		return err
	}

	var appends []listAppend
	if err := s.readJSON(logicalKey, &appends); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	opID := op.OpID()
	for _, a := range appends {
		if a.OpID == opID {
			// Already recorded; re-applying it (as ReplayInOrder does at
			// startup) leaves the list unchanged.
			return nil
		}
	}

	appends = append(appends, listAppend{
		Value:       op.Value,
		Head:        op.Field == "head",
		TimestampMs: op.TimestampMs,
		OpID:        op.OpID(),
	})
	sortAppends(appends)

	data, err := json.Marshal(appends)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return s.writeRaw(op, logicalKey, types.StoreList, data)
}

// sortAppends orders appends by the (timestamp_ms, op_id) total order.
func sortAppends(appends []listAppend) {
	sort.Slice(appends, func(i, j int) bool {
		if appends[i].TimestampMs != appends[j].TimestampMs {
			return appends[i].TimestampMs < appends[j].TimestampMs
		}
		return appends[i].OpID < appends[j].OpID
	})
}

// GetList returns the full ordered list stored under (db, key), rebuilt
// by replaying each recorded append in (timestamp_ms, op_id) order.
func (s *Store) GetList(db, key string) ([]string, error) {
	var appends []listAppend
	if err := s.readJSON(LogicalKey(db, key), &appends); err != nil {
		return nil, err
	}
	list := make([]string, 0, len(appends))
	for _, a := range appends {
		if a.Head {
			list = append([]string{a.Value}, list...)
		} else {
			list = append(list, a.Value)
		}
	}
	return list, nil
}

func (s *Store) applySet(op *types.SignedOperation) error {
	logicalKey := LogicalKey(op.DBName, op.Key)
	if err := s.checkType(logicalKey, types.StoreSet); err != nil {
		return err
	}

	var members []string
	if err := s.readJSON(logicalKey, &members); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	found := false
	for _, m := range members {
		if m == op.Value {
			found = true
			break
		}
	}
	if !found {
		members = append(members, op.Value)
	}

	data, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return s.writeRaw(op, logicalKey, types.StoreSet, data)
}

// GetSet returns the members of the set stored under (db, key).
func (s *Store) GetSet(db, key string) ([]string, error) {
	var members []string
	if err := s.readJSON(LogicalKey(db, key), &members); err != nil {
		return nil, err
	}
	return members, nil
}

// readJSON is a small helper shared by every collection variant: read raw
// bytes for logicalKey and unmarshal into out, translating "no value yet"
// into ErrNotFound and parse failures into ErrInvalidValue.
func (s *Store) readJSON(logicalKey string, out any) error {
	data, err := s.readRaw(logicalKey)
	if errors.Is(err, ErrNotFound) || errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return nil
}
