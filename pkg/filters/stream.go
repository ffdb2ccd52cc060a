package filters

import (
	"fmt"

	"github.com/cuemby/gossipdb/pkg/typedstore"
)

// StreamRange selects a window of stream entries by stream-id bounds, in
// either append order or reverse, with an optional "last N" shortcut that
// takes precedence over From/To when non-zero.
type StreamRange struct {
	From    string // inclusive; "" means unbounded
	To      string // inclusive; "" means unbounded
	Reverse bool
	LastN   int
}

// FilterStream applies r to entries, which must already be in append order.
func FilterStream(entries []typedstore.StreamEntry, r StreamRange) []typedstore.StreamEntry {
	if r.LastN > 0 {
		if r.LastN >= len(entries) {
			return reverseIfNeeded(append([]typedstore.StreamEntry(nil), entries...), r.Reverse)
		}
		tail := append([]typedstore.StreamEntry(nil), entries[len(entries)-r.LastN:]...)
		return reverseIfNeeded(tail, r.Reverse)
	}

	var fromTS, fromSeq int64 = -1, -1
	var toTS, toSeq int64 = -1, -1
	hasFrom := r.From != ""
	hasTo := r.To != ""
	if hasFrom {
		fromTS, fromSeq = parseStreamID(r.From)
	}
	if hasTo {
		toTS, toSeq = parseStreamID(r.To)
	}

	out := make([]typedstore.StreamEntry, 0, len(entries))
	for _, e := range entries {
		ts, seq := parseStreamID(e.ID)
		if hasFrom && idLess(ts, seq, fromTS, fromSeq) {
			continue
		}
		if hasTo && idLess(toTS, toSeq, ts, seq) {
			continue
		}
		out = append(out, e)
	}
	return reverseIfNeeded(out, r.Reverse)
}

func idLess(ts1, seq1, ts2, seq2 int64) bool {
	if ts1 != ts2 {
		return ts1 < ts2
	}
	return seq1 < seq2
}

func parseStreamID(id string) (ts int64, seq int64) {
	_, _ = fmt.Sscanf(id, "%d-%d", &ts, &seq)
	return ts, seq
}

func reverseIfNeeded(entries []typedstore.StreamEntry, reverse bool) []typedstore.StreamEntry {
	if !reverse {
		return entries
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}
