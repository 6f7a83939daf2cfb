package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/wisbric/feedbackapi/internal/cache"
	"github.com/wisbric/feedbackapi/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.New(rdb, slog.Default())
	// store is left nil: every test here only exercises the cache-hit path,
	// so compute() must never run.
	return New(nil, c)
}

func TestWindow_ParamsAreDateOnly(t *testing.T) {
	w := Window{
		Start: time.Date(2026, 1, 1, 15, 30, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC),
	}
	p := w.params()
	require.Equal(t, "2026-01-01", p["start"])
	require.Equal(t, "2026-02-01", p["end"])
}

func TestEngine_Summary_ServesFromCacheWithoutTouchingStore(t *testing.T) {
	e := newTestEngine(t)
	w := Window{Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}

	want := &store.Summary{Total: 42, NegativePercentage: 9.5}
	body, err := json.Marshal(want)
	require.NoError(t, err)
	e.cache.SetTTL(context.Background(), cache.Key("summary", w.params()), body, time.Minute)

	got, err := e.Summary(context.Background(), w)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestEngine_ToxicityStats_KeyIncludesThreshold(t *testing.T) {
	e := newTestEngine(t)
	w := Window{Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}

	params := w.params()
	params["threshold"] = "0.75"
	want := &store.ToxicityStats{CountAboveThreshold: 3, Mean: 0.8}
	body, err := json.Marshal(want)
	require.NoError(t, err)
	e.cache.SetTTL(context.Background(), cache.Key("toxicity", params), body, time.Minute)

	got, err := e.ToxicityStats(context.Background(), 0.75, w)
	require.NoError(t, err)
	require.Equal(t, want, got)

	// A different threshold must miss the same cache entry and fall through
	// to compute(), which panics on the nil store here — proving the key
	// is threshold-scoped.
	require.Panics(t, func() {
		_, _ = e.ToxicityStats(context.Background(), 0.25, w)
	})
}

func TestEngine_TopicStats_ServesFromCache(t *testing.T) {
	e := newTestEngine(t)
	w := Window{Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}

	want := []store.TopicStat{{TopicID: 1, Label: "shipping", Count: 10, AvgSentiment: -0.1, DeltaVsPrior: 2}}
	body, err := json.Marshal(want)
	require.NoError(t, err)
	e.cache.SetTTL(context.Background(), cache.Key("topics", w.params()), body, time.Minute)

	got, err := e.TopicStats(context.Background(), w)
	require.NoError(t, err)
	require.Equal(t, want, got)
}
