package filters

import "github.com/cuemby/gossipdb/pkg/typedstore"

// Aggregation is a time-series bucket reduction function.
type Aggregation string

const (
	AggAvg   Aggregation = "avg"
	AggSum   Aggregation = "sum"
	AggMin   Aggregation = "min"
	AggMax   Aggregation = "max"
	AggCount Aggregation = "count"
	AggFirst Aggregation = "first"
	AggLast  Aggregation = "last"
)

// TimeSeriesQuery selects a time range, value bounds, and a bucketed
// aggregation over a TimeSeries store.
type TimeSeriesQuery struct {
	From          int64 // inclusive, unix seconds
	To            int64 // inclusive, unix seconds
	BucketSeconds int64 // 0 means a single bucket spanning [From, To]
	Agg           Aggregation
	MinValue      *float64
	MaxValue      *float64
}

// TimeSeriesBucket is one aggregated window of a time-series query result.
type TimeSeriesBucket struct {
	Start int64   `json:"start"`
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

// AggregateTimeSeries buckets points, which must already be in timestamp
// order, according to q and reduces each bucket with q.Agg.
func AggregateTimeSeries(points []typedstore.TimeSeriesPoint, q TimeSeriesQuery) []TimeSeriesBucket {
	bucketWidth := q.BucketSeconds
	if bucketWidth <= 0 {
		bucketWidth = q.To - q.From + 1
		if bucketWidth <= 0 {
			bucketWidth = 1
		}
	}

	type acc struct {
		values []float64
	}
	buckets := make(map[int64]*acc)
	var order []int64

	for _, p := range points {
		if p.Timestamp < q.From || p.Timestamp > q.To {
			continue
		}
		if q.MinValue != nil && p.Value < *q.MinValue {
			continue
		}
		if q.MaxValue != nil && p.Value > *q.MaxValue {
			continue
		}
		bucketStart := q.From + ((p.Timestamp - q.From) / bucketWidth) * bucketWidth
		a, ok := buckets[bucketStart]
		if !ok {
			a = &acc{}
			buckets[bucketStart] = a
			order = append(order, bucketStart)
		}
		a.values = append(a.values, p.Value)
	}

	out := make([]TimeSeriesBucket, 0, len(order))
	for _, start := range order {
		out = append(out, TimeSeriesBucket{
			Start: start,
			Value: reduce(q.Agg, buckets[start].values),
			Count: len(buckets[start].values),
		})
	}
	sortBucketsByStart(out)
	return out
}

func reduce(agg Aggregation, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch agg {
	case AggSum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	case AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case AggMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max
	case AggCount:
		return float64(len(values))
	case AggFirst:
		return values[0]
	case AggLast:
		return values[len(values)-1]
	case AggAvg:
		fallthrough
	default:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	}
}

func sortBucketsByStart(buckets []TimeSeriesBucket) {
	for i := 1; i < len(buckets); i++ {
		for j := i; j > 0 && buckets[j-1].Start > buckets[j].Start; j-- {
			buckets[j-1], buckets[j] = buckets[j], buckets[j-1]
		}
	}
}
