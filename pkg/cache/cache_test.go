package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutThenGetHitsWarm(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	c.Put("k", []byte("v"))
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

func TestWarmHitPromotesToHot(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	c.Put("k", []byte("v"))
	_, ok := c.Get("k") // promotes
	require.True(t, ok)

	v, ok := c.hot.Peek("k")
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

func TestWarmEntryExpiresAfterTTL(t *testing.T) {
	c, err := New(WithWarmTTL(10 * time.Millisecond))
	require.NoError(t, err)

	c.Put("k", []byte("v"))
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("k")
	require.False(t, ok)
}

func TestInvalidateRemovesFromBothTiers(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	c.Put("k", []byte("v1"))
	_, _ = c.Get("k") // promote into hot
	c.Invalidate("k")

	_, ok := c.Get("k")
	require.False(t, ok)
}
