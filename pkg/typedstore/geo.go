package typedstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cuemby/gossipdb/pkg/types"
)

// GeoPoint is a member's coordinates in a Geo store. OpID records the
// operation that last wrote this member, so a later write to the same
// member can be compared against it by the (timestamp_ms, op_id) total
// order rather than by local arrival order.
type GeoPoint struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	OpID      string  `json:"opId,omitempty"`
}

func (s *Store) applyGeo(op *types.SignedOperation) error {
	logicalKey := LogicalKey(op.DBName, op.Key)
	if err := s.checkType(logicalKey, types.StoreGeo); err != nil {
		return err
	}

	members := make(map[string]GeoPoint)
	if err := s.readJSON(logicalKey, &members); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if existing, ok := members[op.Value]; ok {
		stale, err := s.staleAgainst(existing.OpID, op)
		if err != nil {
			return err
		}
		if stale {
			return nil
		}
	}

	members[op.Value] = GeoPoint{Longitude: op.Longitude, Latitude: op.Latitude, OpID: op.OpID()}

	data, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return s.writeRaw(op, logicalKey, types.StoreGeo, data)
}

// GetGeo returns every member and its coordinates stored under (db, key).
func (s *Store) GetGeo(db, key string) (map[string]GeoPoint, error) {
	members := make(map[string]GeoPoint)
	if err := s.readJSON(LogicalKey(db, key), &members); err != nil {
		return nil, err
	}
	return members, nil
}
