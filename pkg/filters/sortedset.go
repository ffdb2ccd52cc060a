package filters

import "github.com/cuemby/gossipdb/pkg/typedstore"

// SortedSetRange selects members by score bounds and/or by position,
// applied in that order: score bounds first, then index slicing.
type SortedSetRange struct {
	MinScore    *float64
	MaxScore    *float64
	StartIndex  int // inclusive, applied after score filtering
	StopIndex   int // inclusive; -1 means "to the end"
}

// FilterSortedSet applies r to members, which must already be in score order.
func FilterSortedSet(members []typedstore.SortedSetMember, r SortedSetRange) []typedstore.SortedSetMember {
	byScore := make([]typedstore.SortedSetMember, 0, len(members))
	for _, m := range members {
		if r.MinScore != nil && m.Score < *r.MinScore {
			continue
		}
		if r.MaxScore != nil && m.Score > *r.MaxScore {
			continue
		}
		byScore = append(byScore, m)
	}

	start := r.StartIndex
	if start < 0 {
		start = 0
	}
	if start >= len(byScore) {
		return nil
	}
	stop := r.StopIndex
	if stop < 0 || stop >= len(byScore) {
		stop = len(byScore) - 1
	}
	if stop < start {
		return nil
	}
	return byScore[start : stop+1]
}
