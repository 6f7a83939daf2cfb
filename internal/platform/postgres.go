package platform

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgresPool creates a connection pool sized per the configured
// base + overflow, the bounded pool the persistence adapter (C1) requires.
func NewPostgresPool(ctx context.Context, databaseURL string, poolSize, overflow int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	cfg.MaxConns = poolSize + overflow
	cfg.MinConns = 0

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// RetryPolicy implements the persistence adapter's bounded retry with
// exponential backoff and jitter, applied only to transient failures.
// Constraint violations and other logical errors are never retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	JitterFrac  float64
}

// DefaultRetryPolicy matches the spec: 3 attempts, 50ms base, 2x factor, ±20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond, Factor: 2, JitterFrac: 0.2}
}

// WithRetry runs op, retrying transient failures according to the policy.
// op is retried in place — it must be idempotent or scoped to a single
// statement outside of an explicit transaction.
func (p RetryPolicy) WithRetry(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	delay := p.BaseDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		jitter := 1 + (rand.Float64()*2-1)*p.JitterFrac
		sleep := time.Duration(float64(delay) * jitter)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		delay = time.Duration(float64(delay) * p.Factor)
	}

	return fmt.Errorf("after %d attempts: %w", p.MaxAttempts, lastErr)
}

// IsTransient classifies an error from the driver as retryable: connection
// resets, pool acquisition timeouts, and deadline exceeded. Constraint
// violations and other pgconn.PgError logical errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, pgxpool.ErrClosedPool) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 = connection exception, 53 = insufficient resources,
		// 57P03 = cannot_connect_now. Everything else (23xxx constraint
		// violations, 22xxx data exceptions, ...) is a logical error.
		switch pgErr.Code[:2] {
		case "08", "53":
			return true
		}
		return pgErr.Code == "57P03"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
