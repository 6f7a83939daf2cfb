// Package admin implements the admin mutation engine (C9): the two
// transactional write operations (relabel-topic, reassign-feedback) plus
// the supplemented maintenance/stats/cleanup endpoints that accompany them.
// Every mutating route here requires the admin role; the middleware chain
// gating that is wired by the caller (see app wiring), not this package.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/feedbackapi/internal/audit"
	"github.com/wisbric/feedbackapi/internal/cache"
	"github.com/wisbric/feedbackapi/internal/store"
)

// Service wires the transactional mutations over the pool directly (the
// package-level store helpers open their own transactions, which this
// service needs to span mutation + audit + invalidation in one commit).
type Service struct {
	pool   *pgxpool.Pool
	store  *store.Store
	cache  *cache.Cache
	audit  *audit.Writer
}

// New creates a Service.
func New(pool *pgxpool.Pool, st *store.Store, c *cache.Cache, aw *audit.Writer) *Service {
	return &Service{pool: pool, store: st, cache: c, audit: aw}
}

// RelabelTopic applies a new label/keywords to a topic, audits the delta in
// the same transaction as the mutation, invalidates cached analytics, and
// refreshes the materialised view. Fails with store.ErrNotFound if the
// topic does not exist. The audit entry is atomic with the mutation; the
// cache invalidation and the materialised-view refresh run after commit.
func (s *Service) RelabelTopic(ctx context.Context, topicID int64, newLabel string, newKeywords []string, actor func(before, after json.RawMessage) audit.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	before, after, err := store.RelabelTopicTx(ctx, tx, topicID, newLabel, newKeywords)
	if err != nil {
		return err
	}

	if actor != nil {
		beforeJSON, _ := json.Marshal(before)
		afterJSON, _ := json.Marshal(after)
		if err := s.audit.WriteTx(ctx, tx, actor(beforeJSON, afterJSON)); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing relabel: %w", err)
	}

	s.cache.DeletePrefix(ctx, "analytics:")

	if err := s.store.RefreshDailyAggregates(ctx); err != nil {
		return fmt.Errorf("refreshing daily aggregates: %w", err)
	}
	return nil
}

// ReassignFeedback moves a list of feedback onto a target topic, auditing
// one entry per affected feedback id within the same transaction as the
// mutation, then invalidates cache and refreshes the materialised view.
// Fails with store.ErrNotFound if the target topic does not exist. Partial
// failure — including an audit write failure — rolls back the whole
// transaction, so the mutation and its audit trail always land together.
func (s *Service) ReassignFeedback(ctx context.Context, feedbackIDs []uuid.UUID, targetTopicID int64, reason string, actor func(feedbackID uuid.UUID, before, after json.RawMessage) audit.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	exists, err := store.TopicExistsTx(ctx, tx, targetTopicID)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}

	priorTopics := make(map[uuid.UUID]*int64, len(feedbackIDs))
	for _, id := range feedbackIDs {
		ann, err := s.store.GetAnnotation(ctx, id)
		if err != nil && err != store.ErrNotFound {
			return err
		}
		if ann != nil {
			priorTopics[id] = ann.TopicID
		}
	}

	if err := store.ReassignFeedbackTopics(ctx, tx, feedbackIDs, targetTopicID); err != nil {
		return err
	}

	if actor != nil {
		for _, id := range feedbackIDs {
			before, _ := json.Marshal(map[string]any{"feedback_id": id, "topic_id": priorTopics[id]})
			after, _ := json.Marshal(map[string]any{"feedback_id": id, "topic_id": targetTopicID, "reason": reason})
			if err := s.audit.WriteTx(ctx, tx, actor(id, before, after)); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing reassignment: %w", err)
	}

	s.cache.DeletePrefix(ctx, "analytics:")

	if err := s.store.RefreshDailyAggregates(ctx); err != nil {
		return fmt.Errorf("refreshing daily aggregates: %w", err)
	}
	return nil
}

// RefreshMaterializedView triggers an out-of-band refresh, used by the
// maintenance endpoint.
func (s *Service) RefreshMaterializedView(ctx context.Context) error {
	return s.store.RefreshDailyAggregates(ctx)
}

// ClearCache invalidates every cached analytics entry.
func (s *Service) ClearCache(ctx context.Context) {
	s.cache.DeletePrefix(ctx, "analytics:")
}

// CleanupOldData deletes feedback older than the given age, or reports the
// count that would be deleted when dryRun is set.
func (s *Service) CleanupOldData(ctx context.Context, daysOld int, dryRun bool) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -daysOld)
	return s.store.DeleteOldFeedback(ctx, cutoff, dryRun)
}
