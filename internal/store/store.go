// Package store is the persistence adapter (C1): parameterised access to the
// primary relational store. Callers never construct raw SQL themselves.
package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/feedbackapi/internal/platform"
)

// Store wraps a pooled connection and the retry policy applied to every
// write operation; reads run once, without retry. There is no read-only
// accessor or statement whitelist: Pool hands out the full pool.
type Store struct {
	pool   *pgxpool.Pool
	retry  platform.RetryPolicy
}

// New creates a Store over an already-connected pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, retry: platform.DefaultRetryPolicy()}
}

// Pool exposes the underlying pool for direct query/row access rather than
// the mutation helpers below.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// withRetry runs op under the store's retry policy.
func (s *Store) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	return s.retry.WithRetry(ctx, op)
}

// RefreshDailyAggregates triggers a concurrent refresh of the
// daily_feedback_aggregates materialised view. Concurrent refresh requires a
// unique index on the view, created by the migration, and does not block
// concurrent reads.
func (s *Store) RefreshDailyAggregates(ctx context.Context) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY daily_feedback_aggregates`)
		return err
	})
}
