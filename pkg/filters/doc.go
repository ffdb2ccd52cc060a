/*
Package filters implements the read-only query evaluators that run over
pkg/typedstore's accessor methods: key pattern matching, dotted-path JSON
conditions, stream range queries, sorted-set score/index ranges, bucketed
time-series aggregation, and geo radius search.

Nothing in this package mutates typed storage; every function here takes
already-fetched store data and returns a filtered/transformed view.
*/
package filters
