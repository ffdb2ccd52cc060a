package typedstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/cuemby/gossipdb/pkg/types"
)

// TimeSeriesPoint is a single (unix-second timestamp, value) sample. OpID
// records the operation that last wrote this timestamp, so a later
// collision at the same timestamp can be compared against it by the
// (timestamp_ms, op_id) total order rather than by local apply order.
type TimeSeriesPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
	OpID      string  `json:"opId,omitempty"`
}

func (s *Store) applyTimeSeries(op *types.SignedOperation) error {
	logicalKey := LogicalKey(op.DBName, op.Key)
	if err := s.checkType(logicalKey, types.StoreTimeSeries); err != nil {
		return err
	}

	value, err := strconv.ParseFloat(op.Value, 64)
	if err != nil {
		return fmt.Errorf("%w: time series value: %v", ErrInvalidValue, err)
	}

	var points []TimeSeriesPoint
	if err := s.readJSON(logicalKey, &points); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	replaced := false
	for i := range points {
		if points[i].Timestamp == op.Timestamp {
			stale, err := s.staleAgainst(points[i].OpID, op)
			if err != nil {
				return err
			}
			if stale {
				return nil
			}
			points[i].Value = value
			points[i].OpID = op.OpID()
			replaced = true
			break
		}
	}
	if !replaced {
		points = append(points, TimeSeriesPoint{Timestamp: op.Timestamp, Value: value, OpID: op.OpID()})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })

	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return s.writeRaw(op, logicalKey, types.StoreTimeSeries, data)
}

// GetTimeSeries returns every point stored under (db, key), in timestamp order.
func (s *Store) GetTimeSeries(db, key string) ([]TimeSeriesPoint, error) {
	var points []TimeSeriesPoint
	if err := s.readJSON(LogicalKey(db, key), &points); err != nil {
		return nil, err
	}
	return points, nil
}
