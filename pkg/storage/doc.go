/*
Package storage is the durable backing store for both the content-addressed
blob store and the secondary index, implemented over a single bbolt
database file with four buckets:

  - blobs: hash -> raw bytes (content-addressed, intrinsic dedup)
  - index: "db:key[:field]" -> {hash, storeType} (the current value pointer)
  - oplog: op_id -> hash of the serialized operation
  - oplog_by_db: "db:timestamp_ms:op_id" -> nil (ordered replay index)

Single-key operations (GetBlob, GetIndex, HasOp) run their own bbolt
transaction. Operations that must be atomic across buckets - an ingest
writing a blob, swapping the index pointer, and recording the two oplog
entries - go through ApplyBatch, which commits a caller-built Batch in a
single bbolt.Tx spanning all four buckets. bbolt's single-writer transaction model makes
this a true all-or-nothing commit.
*/
package storage
