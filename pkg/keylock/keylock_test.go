package keylock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithLockSerializesSameKey(t *testing.T) {
	m := New()
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.WithLock("k", func() {
				cur := counter
				time.Sleep(time.Microsecond)
				counter = cur + 1
			})
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter)
}
