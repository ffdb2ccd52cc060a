// Package executor provides a small bounded goroutine pool. Its one user
// is the sync engine's anti-entropy round, which runs each per-(peer, db)
// reconciliation job on it; storage I/O and serialization elsewhere run
// on the caller's goroutine.
package executor
