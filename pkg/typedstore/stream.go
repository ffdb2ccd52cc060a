package typedstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cuemby/gossipdb/pkg/types"
)

// StreamEntry is a single appended record in a Stream: a monotonic id
// plus the field map the publisher submitted with it.
type StreamEntry struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// streamRecord is the durable representation of one appended entry,
// tagged with the (timestamp_ms, op_id) of the operation that produced
// it. The stream-id suffix (the "seq" in "<ms>-<seq>") is recomputed
// from this total order on every apply rather than from local arrival
// order, so two nodes applying the same same-millisecond Stream ops in
// opposite order assign the same ids and converge to the same state.
type streamRecord struct {
	TimestampMs int64             `json:"timestampMs"`
	OpID        string            `json:"opId"`
	Fields      map[string]string `json:"fields"`
}

func (s *Store) applyStream(op *types.SignedOperation) error {
	logicalKey := LogicalKey(op.DBName, op.Key)
	if err := s.checkType(logicalKey, types.StoreStream); err != nil {
		return err
	}

	var records []streamRecord
	if err := s.readJSON(logicalKey, &records); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	opID := op.OpID()
	for _, r := range records {
		if r.OpID == opID {
			// Already recorded; re-applying it (as ReplayInOrder does at
			// startup) leaves the stream unchanged.
			return nil
		}
	}

	var fields map[string]string
	if op.StreamFields != "" {
		if err := json.Unmarshal([]byte(op.StreamFields), &fields); err != nil {
			return fmt.Errorf("%w: stream fields: %v", ErrInvalidValue, err)
		}
	}

	records = append(records, streamRecord{TimestampMs: op.TimestampMs, OpID: op.OpID(), Fields: fields})
	sort.Slice(records, func(i, j int) bool {
		if records[i].TimestampMs != records[j].TimestampMs {
			return records[i].TimestampMs < records[j].TimestampMs
		}
		return records[i].OpID < records[j].OpID
	})

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return s.writeRaw(op, logicalKey, types.StoreStream, data)
}

// GetStream returns every entry appended to the stream at (db, key), in
// stream-id order, with ids assigned deterministically from the
// (timestamp_ms, op_id) total order of the operations that produced them.
func (s *Store) GetStream(db, key string) ([]StreamEntry, error) {
	var records []streamRecord
	if err := s.readJSON(LogicalKey(db, key), &records); err != nil {
		return nil, err
	}
	entries := make([]StreamEntry, 0, len(records))
	seq := 0
	for i, r := range records {
		if i > 0 && records[i-1].TimestampMs != r.TimestampMs {
			seq = 0
		}
		entries = append(entries, StreamEntry{
			ID:     fmt.Sprintf("%d-%d", r.TimestampMs, seq),
			Fields: r.Fields,
		})
		seq++
	}
	return entries, nil
}
