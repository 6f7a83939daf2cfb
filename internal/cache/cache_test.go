package cache

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, slog.Default()), mr
}

func TestGetSetTTL_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.SetTTL(ctx, "k1", []byte("hello"), time.Minute)

	val, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), val)
}

func TestGet_MissReturnsErrMiss(t *testing.T) {
	c, _ := newTestCache(t)
	_, err := c.Get(context.Background(), "absent")
	require.ErrorIs(t, err, ErrMiss)
}

func TestGet_DegradesOnRedisDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, err := c.Get(context.Background(), "k1")
	require.ErrorIs(t, err, ErrMiss)
}

func TestDelete_RemovesKey(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.SetTTL(ctx, "k1", []byte("v"), time.Minute)
	c.Delete(ctx, "k1")

	_, err := c.Get(ctx, "k1")
	require.ErrorIs(t, err, ErrMiss)
}

func TestDeletePrefix_RemovesOnlyMatching(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.SetTTL(ctx, "analytics:summary:a", []byte("1"), time.Minute)
	c.SetTTL(ctx, "analytics:summary:b", []byte("2"), time.Minute)
	c.SetTTL(ctx, "analytics:topics:a", []byte("3"), time.Minute)

	c.DeletePrefix(ctx, "analytics:summary:")

	_, err := c.Get(ctx, "analytics:summary:a")
	require.ErrorIs(t, err, ErrMiss)
	_, err = c.Get(ctx, "analytics:summary:b")
	require.ErrorIs(t, err, ErrMiss)

	val, err := c.Get(ctx, "analytics:topics:a")
	require.NoError(t, err)
	require.Equal(t, []byte("3"), val)
}

func TestKey_StableAcrossParamOrder(t *testing.T) {
	a := Key("summary", map[string]string{"start": "2026-01-01", "end": "2026-02-01"})
	b := Key("summary", map[string]string{"end": "2026-02-01", "start": "2026-01-01"})
	require.Equal(t, a, b)
}

func TestKey_DiffersByEndpointOrParams(t *testing.T) {
	base := Key("summary", map[string]string{"start": "2026-01-01"})
	diffEndpoint := Key("topics", map[string]string{"start": "2026-01-01"})
	diffParams := Key("summary", map[string]string{"start": "2026-02-01"})

	require.NotEqual(t, base, diffEndpoint)
	require.NotEqual(t, base, diffParams)
}
