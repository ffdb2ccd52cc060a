/*
Package typedstore implements the nine typed data-model variants (String,
Hash, List, Set, SortedSet, JSON, Stream, TimeSeries, Geo) over the
storage engine's blob store and index, with the tiered cache sitting in
front of reads.

Every write is read-modify-write under a per-logical-key lock
(pkg/keylock), serialized into the variant's on-disk representation, and
committed as a single atomic storage.Batch: blob put, index pointer
swap, and oplog record together. A write to a key already holding a
different variant fails with ErrTypeMismatch.
*/
package typedstore
