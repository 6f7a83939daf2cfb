// Package analytics implements the read-only rollup engine (C7): ten
// parameterised endpoints, each following the same cache-read, miss,
// query, write-through sequence over the persistence adapter and the
// response cache.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wisbric/feedbackapi/internal/cache"
	"github.com/wisbric/feedbackapi/internal/store"
)

// TTLs per the rollup's recency: "recent" summaries refresh fastest,
// historical rollups are cheapest to leave stale longest.
const (
	defaultTTL    = 300 * time.Second
	recentTTL     = 60 * time.Second
	historicalTTL = 900 * time.Second
)

// Engine wires the store's rollup queries to the cache.
type Engine struct {
	store *store.Store
	cache *cache.Cache
}

// New creates an Engine.
func New(st *store.Store, c *cache.Cache) *Engine {
	return &Engine{store: st, cache: c}
}

// cached runs a cache-read → miss → compute → write-through sequence for
// one endpoint, serialising the result as the cached representation.
func cached[T any](ctx context.Context, e *Engine, endpoint string, params map[string]string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	key := cache.Key(endpoint, params)

	var zero T
	if raw, err := e.cache.Get(ctx, key); err == nil {
		var out T
		if uerr := json.Unmarshal(raw, &out); uerr == nil {
			return out, nil
		}
	}

	result, err := compute(ctx)
	if err != nil {
		return zero, err
	}

	if body, merr := json.Marshal(result); merr == nil {
		e.cache.SetTTL(ctx, key, body, ttl)
	}

	return result, nil
}

// Window is the canonicalised date range shared by every rollup request.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) params() map[string]string {
	return map[string]string{
		"start": w.Start.UTC().Format("2006-01-02"),
		"end":   w.End.UTC().Format("2006-01-02"),
	}
}

// SentimentTrends wraps store.SentimentTrends with caching.
func (e *Engine) SentimentTrends(ctx context.Context, groupBy store.GroupBy, w Window) ([]store.SentimentTrendPoint, error) {
	params := w.params()
	params["group_by"] = string(groupBy)
	return cached(ctx, e, "sentiment-trends", params, defaultTTL, func(ctx context.Context) ([]store.SentimentTrendPoint, error) {
		return e.store.SentimentTrends(ctx, groupBy, store.DateRange{Start: w.Start, End: w.End})
	})
}

// VolumeTrends wraps store.VolumeTrends with caching.
func (e *Engine) VolumeTrends(ctx context.Context, groupBy store.GroupBy, w Window) ([]store.VolumeTrendPoint, error) {
	params := w.params()
	params["group_by"] = string(groupBy)
	return cached(ctx, e, "volume-trends", params, defaultTTL, func(ctx context.Context) ([]store.VolumeTrendPoint, error) {
		return e.store.VolumeTrends(ctx, groupBy, store.DateRange{Start: w.Start, End: w.End})
	})
}

// dailyAggregatesResult bundles the page plus its total count so both
// serialise through one cache entry.
type dailyAggregatesResult struct {
	Items []store.DailyAggregate `json:"items"`
	Total int                    `json:"total"`
}

// DailyAggregates wraps store.DailyAggregates with caching. TTL is the
// longest of the rollups since the materialised view itself only refreshes
// once per batch completion.
func (e *Engine) DailyAggregates(ctx context.Context, w Window, limit, offset int) ([]store.DailyAggregate, int, error) {
	params := w.params()
	params["limit"] = fmt.Sprintf("%d", limit)
	params["offset"] = fmt.Sprintf("%d", offset)
	res, err := cached(ctx, e, "daily-aggregates", params, historicalTTL, func(ctx context.Context) (dailyAggregatesResult, error) {
		items, total, err := e.store.DailyAggregates(ctx, store.DateRange{Start: w.Start, End: w.End}, limit, offset)
		return dailyAggregatesResult{Items: items, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Items, res.Total, nil
}

// CustomerStats wraps store.CustomerStats with caching.
func (e *Engine) CustomerStats(ctx context.Context, minCount int, w Window) ([]store.CustomerStat, error) {
	params := w.params()
	params["min_feedback_count"] = fmt.Sprintf("%d", minCount)
	return cached(ctx, e, "customers", params, historicalTTL, func(ctx context.Context) ([]store.CustomerStat, error) {
		return e.store.CustomerStats(ctx, minCount, store.DateRange{Start: w.Start, End: w.End})
	})
}

// SourceStats wraps store.SourceStats with caching.
func (e *Engine) SourceStats(ctx context.Context, w Window) ([]store.SourceStat, error) {
	return cached(ctx, e, "sources", w.params(), defaultTTL, func(ctx context.Context) ([]store.SourceStat, error) {
		return e.store.SourceStats(ctx, store.DateRange{Start: w.Start, End: w.End})
	})
}

// ToxicityStats wraps store.ToxicityStats with caching.
func (e *Engine) ToxicityStats(ctx context.Context, threshold float64, w Window) (*store.ToxicityStats, error) {
	params := w.params()
	params["threshold"] = fmt.Sprintf("%.2f", threshold)
	return cached(ctx, e, "toxicity", params, defaultTTL, func(ctx context.Context) (*store.ToxicityStats, error) {
		return e.store.ToxicityStats(ctx, threshold, store.DateRange{Start: w.Start, End: w.End})
	})
}

// Summary wraps store.Summary with caching at the "recent" TTL since it is
// the dashboard's headline number.
func (e *Engine) Summary(ctx context.Context, w Window) (*store.Summary, error) {
	return cached(ctx, e, "summary", w.params(), recentTTL, func(ctx context.Context) (*store.Summary, error) {
		return e.store.Summary(ctx, store.DateRange{Start: w.Start, End: w.End})
	})
}

// TopicStats wraps store.TopicStats with caching.
func (e *Engine) TopicStats(ctx context.Context, w Window) ([]store.TopicStat, error) {
	return cached(ctx, e, "topics", w.params(), defaultTTL, func(ctx context.Context) ([]store.TopicStat, error) {
		return e.store.TopicStats(ctx, store.DateRange{Start: w.Start, End: w.End})
	})
}

// Examples wraps store.Examples with caching.
func (e *Engine) Examples(ctx context.Context, f store.ExampleFilter) ([]store.ExampleItem, error) {
	params := map[string]string{"limit": fmt.Sprintf("%d", f.Limit)}
	if f.TopicID != nil {
		params["topic_id"] = fmt.Sprintf("%d", *f.TopicID)
	}
	if f.Sentiment != nil {
		params["sentiment"] = fmt.Sprintf("%d", int(*f.Sentiment))
	}
	return cached(ctx, e, "examples", params, defaultTTL, func(ctx context.Context) ([]store.ExampleItem, error) {
		return e.store.Examples(ctx, f)
	})
}

// DashboardSummary wraps store.DashboardSummary with caching at the
// "recent" TTL.
func (e *Engine) DashboardSummary(ctx context.Context, w Window) (*store.DashboardSummary, error) {
	return cached(ctx, e, "dashboard-summary", w.params(), recentTTL, func(ctx context.Context) (*store.DashboardSummary, error) {
		return e.store.DashboardSummary(ctx, store.DateRange{Start: w.Start, End: w.End})
	})
}
