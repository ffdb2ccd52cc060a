package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoRunsWork(t *testing.T) {
	p := New(2)
	v, err := Do(context.Background(), p, func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestDoRespectsCancellation(t *testing.T) {
	p := New(1)
	// Fill the only slot.
	block := make(chan struct{})
	go func() {
		_, _ = Do(context.Background(), p, func() (int, error) {
			<-block
			return 0, nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := Do(ctx, p, func() (int, error) { return 1, nil })
	require.Error(t, err)
	close(block)
}
