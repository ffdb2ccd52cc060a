package api

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cuemby/gossipdb/pkg/events"
	"github.com/cuemby/gossipdb/pkg/filters"
	"github.com/cuemby/gossipdb/pkg/oplog"
	"github.com/cuemby/gossipdb/pkg/storage"
	"github.com/cuemby/gossipdb/pkg/typedstore"
	"github.com/cuemby/gossipdb/pkg/types"
)

// Facade is the node's single entry point for the non-core transport
// layer: submit, the typed get_<variant> reads, the filter_<variant>
// query evaluators, subscription to the event broker, and dial_peer.
type Facade struct {
	log     *oplog.Log
	typed   *typedstore.Store
	backing *storage.Store
	broker  *events.Broker
	client  *Client

	mu   sync.Mutex
	subs map[string]events.Subscriber
}

// NewFacade composes a Facade over the node's core components.
func NewFacade(l *oplog.Log, typed *typedstore.Store, backing *storage.Store, broker *events.Broker, client *Client) *Facade {
	return &Facade{log: l, typed: typed, backing: backing, broker: broker, client: client, subs: make(map[string]events.Subscriber)}
}

// Submit validates and durably applies a locally originated signed
// operation, matching the `submit(signed_op_dto)` facade contract.
func (f *Facade) Submit(op *types.SignedOperation) (ok bool, msg string) {
	if err := f.log.Ingest(op); err != nil {
		return false, err.Error()
	}
	return true, "ok"
}

// --- get_<variant> ---

func (f *Facade) GetString(db, key string) (string, error) { return f.typed.GetString(db, key) }

func (f *Facade) GetHash(db, key string) (map[string]string, error) { return f.typed.GetHash(db, key) }

func (f *Facade) GetHashField(db, key, field string) (string, error) {
	return f.typed.GetHashField(db, key, field)
}

func (f *Facade) GetList(db, key string) ([]string, error) { return f.typed.GetList(db, key) }

func (f *Facade) GetSet(db, key string) ([]string, error) { return f.typed.GetSet(db, key) }

func (f *Facade) GetSortedSet(db, key string) ([]typedstore.SortedSetMember, error) {
	return f.typed.GetSortedSet(db, key)
}

func (f *Facade) GetJSON(db, key string) (map[string]any, error) { return f.typed.GetJSON(db, key) }

func (f *Facade) GetStream(db, key string) ([]typedstore.StreamEntry, error) {
	return f.typed.GetStream(db, key)
}

func (f *Facade) GetTimeSeries(db, key string) ([]typedstore.TimeSeriesPoint, error) {
	return f.typed.GetTimeSeries(db, key)
}

func (f *Facade) GetGeo(db, key string) (map[string]typedstore.GeoPoint, error) {
	return f.typed.GetGeo(db, key)
}

// --- filter_<variant> ---

// FilterKeys returns every key in db whose name matches the glob pattern.
func (f *Facade) FilterKeys(db, pattern string) ([]string, error) {
	prefix := db + ":"
	var keys []string
	err := f.backing.ScanPrefix(prefix, func(k string, _ storage.IndexEntry) bool {
		key := strings.TrimPrefix(k, prefix)
		if filters.MatchKey(pattern, key) {
			keys = append(keys, key)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("api: filter keys: %w", err)
	}
	return keys, nil
}

func (f *Facade) FilterJSON(db, key string, q filters.JSONQuery) ([]map[string]any, error) {
	doc, err := f.typed.GetJSON(db, key)
	if err != nil {
		return nil, err
	}
	return filters.FilterJSON([]map[string]any{doc}, q), nil
}

func (f *Facade) FilterStream(db, key string, r filters.StreamRange) ([]typedstore.StreamEntry, error) {
	entries, err := f.typed.GetStream(db, key)
	if err != nil {
		return nil, err
	}
	return filters.FilterStream(entries, r), nil
}

func (f *Facade) FilterSortedSet(db, key string, r filters.SortedSetRange) ([]typedstore.SortedSetMember, error) {
	members, err := f.typed.GetSortedSet(db, key)
	if err != nil {
		return nil, err
	}
	return filters.FilterSortedSet(members, r), nil
}

func (f *Facade) FilterTimeSeries(db, key string, q filters.TimeSeriesQuery) ([]filters.TimeSeriesBucket, error) {
	points, err := f.typed.GetTimeSeries(db, key)
	if err != nil {
		return nil, err
	}
	return filters.AggregateTimeSeries(points, q), nil
}

func (f *Facade) FilterGeo(db, key string, q filters.GeoQuery) ([]filters.GeoResult, error) {
	members, err := f.typed.GetGeo(db, key)
	if err != nil {
		return nil, err
	}
	return filters.SearchGeo(members, q)
}

// --- subscriptions ---

// SubscribeTopic streams every broker event whose topic matches pattern,
// handing back a subscription id the caller later passes to Unsubscribe.
func (f *Facade) SubscribeTopic(pattern string) (id string, sub events.Subscriber) {
	return f.track(f.broker.Subscribe(pattern))
}

// SubscribeAll streams every broker event.
func (f *Facade) SubscribeAll() (id string, sub events.Subscriber) {
	return f.track(f.broker.Subscribe("*"))
}

func (f *Facade) track(sub events.Subscriber) (string, events.Subscriber) {
	id := uuid.New().String()
	f.mu.Lock()
	f.subs[id] = sub
	f.mu.Unlock()
	return id, sub
}

// Unsubscribe cancels the subscription identified by id, as returned by
// SubscribeTopic or SubscribeAll.
func (f *Facade) Unsubscribe(id string) {
	f.mu.Lock()
	sub, ok := f.subs[id]
	delete(f.subs, id)
	f.mu.Unlock()
	if ok {
		f.broker.Unsubscribe(sub)
	}
}

// --- dial_peer ---

// DialPeer probes connectivity to addr and, on success, records nodeID in
// the peer wire client's address book so future sync traffic can reach it.
func (f *Facade) DialPeer(ctx context.Context, nodeID, addr string) (success bool, msg string) {
	if err := f.client.DialPeer(ctx, nodeID, addr); err != nil {
		return false, err.Error()
	}
	return true, "ok"
}
