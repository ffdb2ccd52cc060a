package typedstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/gossipdb/pkg/cache"
	"github.com/cuemby/gossipdb/pkg/storage"
	"github.com/cuemby/gossipdb/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	backing, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backing.Close() })
	c, err := cache.New()
	require.NoError(t, err)
	return New(backing, c)
}

const testDB = "mydb-aa"

// TestStringWriteThenRead is scenario S1.
func TestStringWriteThenRead(t *testing.T) {
	s := newTestStore(t)
	op := &types.SignedOperation{DBName: testDB, Key: "user:alice", Value: "Alice", StoreType: types.StoreString}

	require.NoError(t, s.Apply(op))
	v, err := s.GetString(testDB, "user:alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", v)

	// Re-applying the identical op is the op log's job to dedupe by op_id;
	// typedstore.Apply itself treats it as not newer than the recorded
	// writer and leaves the value as it is.
	require.NoError(t, s.Apply(op))
	v, err = s.GetString(testDB, "user:alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", v)
}

// TestHashFieldAfterStringIsTypeMismatch is scenario S3.
func TestHashFieldAfterStringIsTypeMismatch(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Apply(&types.SignedOperation{
		DBName: testDB, Key: "user:alice", Value: "Alice", StoreType: types.StoreString,
	}))

	err := s.Apply(&types.SignedOperation{
		DBName: testDB, Key: "user:alice", Field: "age", Value: "30", StoreType: types.StoreHash,
	})
	require.ErrorIs(t, err, ErrTypeMismatch)

	v, err := s.GetString(testDB, "user:alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", v)
}

func TestHashRoundtrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Apply(&types.SignedOperation{
		DBName: testDB, Key: "user:bob", Field: "age", Value: "40", StoreType: types.StoreHash,
	}))
	require.NoError(t, s.Apply(&types.SignedOperation{
		DBName: testDB, Key: "user:bob", Field: "city", Value: "nyc", StoreType: types.StoreHash,
	}))

	age, err := s.GetHashField(testDB, "user:bob", "age")
	require.NoError(t, err)
	require.Equal(t, "40", age)

	all, err := s.GetHash(testDB, "user:bob")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"age": "40", "city": "nyc"}, all)
}

// TestSortedSetIDDedup is scenario S4, ops applied in forward arrival
// order (the order in which they were written).
func TestSortedSetIDDedup(t *testing.T) {
	s := newTestStore(t)
	op1 := &types.SignedOperation{
		DBName: testDB, Key: "leaderboard", Value: `{"_id":"x","v":1}`, Score: 10, StoreType: types.StoreSortedSet, TimestampMs: 10,
	}
	op2 := &types.SignedOperation{
		DBName: testDB, Key: "leaderboard", Value: `{"_id":"x","v":2}`, Score: 20, StoreType: types.StoreSortedSet, TimestampMs: 20,
	}
	require.NoError(t, s.Apply(op1))
	require.NoError(t, s.Apply(op2))

	members, err := s.GetSortedSet(testDB, "leaderboard")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, float64(20), members[0].Score)
	require.JSONEq(t, `{"_id":"x","v":2}`, members[0].Member)
}

// TestSortedSetIDDedupReverseOrder is TestSortedSetIDDedup's ops applied
// in the opposite order, as a node that receives them via gossip in
// reverse might. Property #4 and #3 require the same (ts, op_id)-newest
// member to survive regardless of arrival order.
func TestSortedSetIDDedupReverseOrder(t *testing.T) {
	s := newTestStore(t)
	op1 := &types.SignedOperation{
		DBName: testDB, Key: "leaderboard", Value: `{"_id":"x","v":1}`, Score: 10, StoreType: types.StoreSortedSet, TimestampMs: 10,
	}
	op2 := &types.SignedOperation{
		DBName: testDB, Key: "leaderboard", Value: `{"_id":"x","v":2}`, Score: 20, StoreType: types.StoreSortedSet, TimestampMs: 20,
	}
	require.NoError(t, s.Apply(op2))
	require.NoError(t, s.Apply(op1))

	members, err := s.GetSortedSet(testDB, "leaderboard")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, float64(20), members[0].Score)
	require.JSONEq(t, `{"_id":"x","v":2}`, members[0].Member)
}

// TestTimeSeriesOverwritesSameTimestamp applies two writes at the same
// series timestamp in forward order; the later one replaces the first.
func TestTimeSeriesOverwritesSameTimestamp(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Apply(&types.SignedOperation{
		DBName: testDB, Key: "sensor:t", Value: "22.0", Timestamp: 1000, StoreType: types.StoreTimeSeries, TimestampMs: 10,
	}))
	require.NoError(t, s.Apply(&types.SignedOperation{
		DBName: testDB, Key: "sensor:t", Value: "22.5", Timestamp: 1000, StoreType: types.StoreTimeSeries, TimestampMs: 20,
	}))

	points, err := s.GetTimeSeries(testDB, "sensor:t")
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, 22.5, points[0].Value)
}

// TestTimeSeriesOverwritesSameTimestampReverseOrder applies the same two
// conflicting same-instant writes in the opposite order. The op with the
// greater TimestampMs must win either way, per the (ts, op_id) total
// order - not whichever op happened to apply last.
func TestTimeSeriesOverwritesSameTimestampReverseOrder(t *testing.T) {
	s := newTestStore(t)
	older := &types.SignedOperation{
		DBName: testDB, Key: "sensor:t", Value: "22.0", Timestamp: 1000, StoreType: types.StoreTimeSeries, TimestampMs: 10,
	}
	newer := &types.SignedOperation{
		DBName: testDB, Key: "sensor:t", Value: "22.5", Timestamp: 1000, StoreType: types.StoreTimeSeries, TimestampMs: 20,
	}
	require.NoError(t, s.Apply(newer))
	require.NoError(t, s.Apply(older))

	points, err := s.GetTimeSeries(testDB, "sensor:t")
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, 22.5, points[0].Value)
}

func TestJSONDedupByIDAcrossKeys(t *testing.T) {
	s := newTestStore(t)
	op1 := &types.SignedOperation{
		DBName: testDB, Key: "doc:1", Value: `{"_id":"u1","name":"old"}`, StoreType: types.StoreJSON, TimestampMs: 10,
	}
	op2 := &types.SignedOperation{
		DBName: testDB, Key: "doc:2", Value: `{"_id":"u1","name":"new"}`, StoreType: types.StoreJSON, TimestampMs: 20,
	}
	require.NoError(t, s.Apply(op1))
	require.NoError(t, s.Apply(op2))

	_, err := s.GetJSON(testDB, "doc:1")
	require.ErrorIs(t, err, ErrNotFound)

	doc, err := s.GetJSON(testDB, "doc:2")
	require.NoError(t, err)
	require.Equal(t, "new", doc["name"])
}

// TestJSONDedupByIDAcrossKeysReverseOrder applies the same two
// conflicting _id writes in the opposite order. The newer op (by
// TimestampMs) must end up the sole holder of the _id either way;
// applying op2 before op1 must not let the older op1 evict it.
func TestJSONDedupByIDAcrossKeysReverseOrder(t *testing.T) {
	s := newTestStore(t)
	op1 := &types.SignedOperation{
		DBName: testDB, Key: "doc:1", Value: `{"_id":"u1","name":"old"}`, StoreType: types.StoreJSON, TimestampMs: 10,
	}
	op2 := &types.SignedOperation{
		DBName: testDB, Key: "doc:2", Value: `{"_id":"u1","name":"new"}`, StoreType: types.StoreJSON, TimestampMs: 20,
	}
	require.NoError(t, s.Apply(op2))
	require.NoError(t, s.Apply(op1))

	doc2, err := s.GetJSON(testDB, "doc:2")
	require.NoError(t, err)
	require.Equal(t, "new", doc2["name"])

	_, err = s.GetJSON(testDB, "doc:1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListAppendHeadAndTail(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Apply(&types.SignedOperation{DBName: testDB, Key: "l", Value: "b", StoreType: types.StoreList, TimestampMs: 10}))
	require.NoError(t, s.Apply(&types.SignedOperation{DBName: testDB, Key: "l", Value: "c", StoreType: types.StoreList, TimestampMs: 20}))
	require.NoError(t, s.Apply(&types.SignedOperation{DBName: testDB, Key: "l", Value: "a", Field: "head", StoreType: types.StoreList, TimestampMs: 30}))

	list, err := s.GetList(testDB, "l")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, list)
}

// TestListConvergesRegardlessOfArrivalOrder is TestListAppendHeadAndTail's
// three ops applied in a different arrival order (as two nodes receiving
// them via live gossip might see). The materialized list must come out
// identical either way, since order is determined by (ts, op_id), not by
// local apply order.
func TestListConvergesRegardlessOfArrivalOrder(t *testing.T) {
	s := newTestStore(t)
	opB := &types.SignedOperation{DBName: testDB, Key: "l", Value: "b", StoreType: types.StoreList, TimestampMs: 10}
	opC := &types.SignedOperation{DBName: testDB, Key: "l", Value: "c", StoreType: types.StoreList, TimestampMs: 20}
	opA := &types.SignedOperation{DBName: testDB, Key: "l", Value: "a", Field: "head", StoreType: types.StoreList, TimestampMs: 30}

	require.NoError(t, s.Apply(opA))
	require.NoError(t, s.Apply(opC))
	require.NoError(t, s.Apply(opB))

	list, err := s.GetList(testDB, "l")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, list)
}

// TestGeoLastWriterWinsRegardlessOfArrivalOrder applies two conflicting
// writes to the same Geo member in both arrival orders and requires the
// op with the greater TimestampMs to win either way.
func TestGeoLastWriterWinsRegardlessOfArrivalOrder(t *testing.T) {
	older := &types.SignedOperation{
		DBName: testDB, Key: "drivers", Value: "car1", Longitude: 1, Latitude: 1, StoreType: types.StoreGeo, TimestampMs: 10,
	}
	newer := &types.SignedOperation{
		DBName: testDB, Key: "drivers", Value: "car1", Longitude: 2, Latitude: 2, StoreType: types.StoreGeo, TimestampMs: 20,
	}

	forward := newTestStore(t)
	require.NoError(t, forward.Apply(older))
	require.NoError(t, forward.Apply(newer))
	forwardMembers, err := forward.GetGeo(testDB, "drivers")
	require.NoError(t, err)
	require.Equal(t, GeoPoint{Longitude: 2, Latitude: 2, OpID: newer.OpID()}, forwardMembers["car1"])

	reverse := newTestStore(t)
	require.NoError(t, reverse.Apply(newer))
	require.NoError(t, reverse.Apply(older))
	reverseMembers, err := reverse.GetGeo(testDB, "drivers")
	require.NoError(t, err)
	require.Equal(t, forwardMembers["car1"], reverseMembers["car1"])
}

// TestStreamIDsAreDeterministicRegardlessOfArrivalOrder applies two
// same-millisecond Stream ops in both arrival orders and requires both
// the assigned ids and their order to come out identical, per property
// #3 - the stream-id seq must be a function of the (ts, op_id) total
// order, not of local apply order.
func TestStreamIDsAreDeterministicRegardlessOfArrivalOrder(t *testing.T) {
	opOne := &types.SignedOperation{
		DBName: testDB, Key: "events", Value: "1", StreamFields: `{"who":"alice"}`, StoreType: types.StoreStream, TimestampMs: 1000,
	}
	opTwo := &types.SignedOperation{
		DBName: testDB, Key: "events", Value: "2", StreamFields: `{"who":"bob"}`, StoreType: types.StoreStream, TimestampMs: 1000,
	}

	forward := newTestStore(t)
	require.NoError(t, forward.Apply(opOne))
	require.NoError(t, forward.Apply(opTwo))
	forwardEntries, err := forward.GetStream(testDB, "events")
	require.NoError(t, err)
	require.Len(t, forwardEntries, 2)

	reverse := newTestStore(t)
	require.NoError(t, reverse.Apply(opTwo))
	require.NoError(t, reverse.Apply(opOne))
	reverseEntries, err := reverse.GetStream(testDB, "events")
	require.NoError(t, err)
	require.Equal(t, forwardEntries, reverseEntries)
}

func TestSetDedupsMembers(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Apply(&types.SignedOperation{DBName: testDB, Key: "tags", Value: "go", StoreType: types.StoreSet}))
	require.NoError(t, s.Apply(&types.SignedOperation{DBName: testDB, Key: "tags", Value: "go", StoreType: types.StoreSet}))
	require.NoError(t, s.Apply(&types.SignedOperation{DBName: testDB, Key: "tags", Value: "db", StoreType: types.StoreSet}))

	members, err := s.GetSet(testDB, "tags")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"go", "db"}, members)
}
