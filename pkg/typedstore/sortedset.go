package typedstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cuemby/gossipdb/pkg/types"
)

// SortedSetMember is one (member, score) pair in a SortedSet. OpID
// records the operation that inserted this member, so a later write
// sharing its "_id" can be compared against it by the (timestamp_ms,
// op_id) total order before evicting it.
type SortedSetMember struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
	OpID   string  `json:"opId,omitempty"`
}

func (s *Store) applySortedSet(op *types.SignedOperation) error {
	logicalKey := LogicalKey(op.DBName, op.Key)
	if err := s.checkType(logicalKey, types.StoreSortedSet); err != nil {
		return err
	}

	var members []SortedSetMember
	if err := s.readJSON(logicalKey, &members); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	opID := op.OpID()
	for _, m := range members {
		if m.OpID == opID {
			// Already recorded; re-applying it (as ReplayInOrder does at
			// startup) leaves the set unchanged.
			return nil
		}
	}

	if id, ok := memberID(op.Value); ok {
		filtered := members[:0]
		for _, m := range members {
			mid, mok := memberID(m.Member)
			if !mok || mid != id {
				filtered = append(filtered, m)
				continue
			}
			stale, err := s.staleAgainst(m.OpID, op)
			if err != nil {
				return err
			}
			if stale {
				// The existing member was written by a newer operation
				// than this one; keep it and drop the incoming write.
				return nil
			}
		}
		members = filtered
	}

	members = append(members, SortedSetMember{Member: op.Value, Score: op.Score, OpID: op.OpID()})
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score < members[j].Score
		}
		return members[i].Member < members[j].Member
	})

	data, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return s.writeRaw(op, logicalKey, types.StoreSortedSet, data)
}

// GetSortedSet returns every member of the sorted set stored under (db, key),
// in score order.
func (s *Store) GetSortedSet(db, key string) ([]SortedSetMember, error) {
	var members []SortedSetMember
	if err := s.readJSON(LogicalKey(db, key), &members); err != nil {
		return nil, err
	}
	return members, nil
}

// memberID extracts the "_id" field from a JSON-object member, if any.
func memberID(member string) (string, bool) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(member), &doc); err != nil {
		return "", false
	}
	id, ok := doc["_id"]
	if !ok {
		return "", false
	}
	s, ok := id.(string)
	return s, ok
}
