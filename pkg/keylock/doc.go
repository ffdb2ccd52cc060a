// Package keylock provides a striped keyed mutex so that reads and
// writes to the same logical key are totally ordered without
// serializing unrelated keys behind a single global lock.
package keylock
