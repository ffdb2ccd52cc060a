package keylock

import (
	"hash/fnv"
	"sync"
)

// defaultStripes bounds the number of distinct mutexes regardless of how
// many keys are locked; collisions only cost unrelated keys a shared lock.
const defaultStripes = 256

// Map stripes keys over a fixed set of mutexes, keyed by hash.
type Map struct {
	stripes []sync.Mutex
}

// New constructs a Map with the default number of stripes.
func New() *Map {
	return &Map{stripes: make([]sync.Mutex, defaultStripes)}
}

// Lock acquires the mutex for key, blocking until available.
func (m *Map) Lock(key string) {
	m.stripes[stripeFor(key, len(m.stripes))].Lock()
}

// Unlock releases the mutex for key.
func (m *Map) Unlock(key string) {
	m.stripes[stripeFor(key, len(m.stripes))].Unlock()
}

// WithLock runs fn while holding key's mutex.
func (m *Map) WithLock(key string, fn func()) {
	m.Lock(key)
	defer m.Unlock(key)
	fn()
}

func stripeFor(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()) % n
}
