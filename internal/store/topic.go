package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CreateTopic spawns a new topic with a synthesised label, used when the
// cluster stage's unassigned pool exceeds its threshold.
func (s *Store) CreateTopic(ctx context.Context, label string, keywords []string) (*Topic, error) {
	t := &Topic{Label: label, Keywords: keywords}
	err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO topics (label, keywords, updated_at) VALUES ($1, $2, now()) RETURNING id, updated_at`,
			label, keywords,
		).Scan(&t.ID, &t.UpdatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("creating topic: %w", err)
	}
	return t, nil
}

// GetTopic fetches one topic by id.
func (s *Store) GetTopic(ctx context.Context, id int64) (*Topic, error) {
	t := &Topic{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT label, keywords, updated_at FROM topics WHERE id = $1`, id,
	).Scan(&t.Label, &t.Keywords, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListTopics returns every topic ordered by label.
func (s *Store) ListTopics(ctx context.Context) ([]Topic, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, label, keywords, updated_at FROM topics ORDER BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Topic
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.ID, &t.Label, &t.Keywords, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TopicCentroids returns every topic's current centroid, computed as the
// mean embedding of its member feedback — used by the cluster stage's
// nearest-centroid assignment. Topics with no embedded members are skipped.
func (s *Store) TopicCentroids(ctx context.Context) (map[int64][]float32, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT topic_id, avg(e)
		 FROM annotations, unnest(embedding) WITH ORDINALITY AS u(e, ord)
		 WHERE topic_id IS NOT NULL AND embedding IS NOT NULL
		 GROUP BY topic_id, ord
		 ORDER BY topic_id, ord`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]float32)
	for rows.Next() {
		var topicID int64
		var v float64
		if err := rows.Scan(&topicID, &v); err != nil {
			return nil, err
		}
		out[topicID] = append(out[topicID], float32(v))
	}
	return out, rows.Err()
}

// RelabelTopicTx applies a relabel inside an already-open transaction and
// returns the row's prior state for the audit delta.
func RelabelTopicTx(ctx context.Context, tx pgx.Tx, topicID int64, newLabel string, newKeywords []string) (before Topic, after Topic, err error) {
	before.ID = topicID
	err = tx.QueryRow(ctx, `SELECT label, keywords, updated_at FROM topics WHERE id = $1 FOR UPDATE`, topicID).
		Scan(&before.Label, &before.Keywords, &before.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return before, after, ErrNotFound
		}
		return before, after, err
	}

	after = Topic{ID: topicID, Label: newLabel, Keywords: newKeywords}
	err = tx.QueryRow(ctx,
		`UPDATE topics SET label = $2, keywords = $3, updated_at = now() WHERE id = $1 RETURNING updated_at`,
		topicID, newLabel, newKeywords,
	).Scan(&after.UpdatedAt)
	return before, after, err
}

// TopicExistsTx checks existence inside an open transaction, used by
// reassign-feedback to validate the target before mutating.
func TopicExistsTx(ctx context.Context, tx pgx.Tx, topicID int64) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM topics WHERE id = $1)`, topicID).Scan(&exists)
	return exists, err
}

// DeleteTopic reassigns every dependent annotation to the sentinel
// "unassigned" topic, then deletes the topic row.
func (s *Store) DeleteTopic(ctx context.Context, topicID int64) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx,
			`UPDATE annotations SET topic_id = $2, updated_at = now() WHERE topic_id = $1`,
			topicID, UnassignedTopicID,
		); err != nil {
			return fmt.Errorf("reassigning dependents to unassigned: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM topics WHERE id = $1`, topicID); err != nil {
			return fmt.Errorf("deleting topic: %w", err)
		}

		return tx.Commit(ctx)
	})
}
