// Package cache implements the two-tier read cache in front of the
// index/blob store: a small hot tier with no expiry, and a larger warm
// tier with a TTL. A warm hit is promoted into hot; writes land in warm
// only. Entries carry no authority and are always rebuildable from the
// durable store.
package cache
