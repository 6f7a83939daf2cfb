package store

import (
	"context"
	"encoding/json"
	"time"
)

// FeedbackByTopic lists feedback assigned to one topic, newest first.
func (s *Store) FeedbackByTopic(ctx context.Context, topicID int64, limit, offset int) ([]Feedback, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM annotations WHERE topic_id = $1`, topicID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT f.id, f.source, f.customer_id, f.body, f.normalized_text, f.language, f.metadata, f.created_at
		 FROM feedback f
		 JOIN annotations a ON a.feedback_id = f.id
		 WHERE a.topic_id = $1
		 ORDER BY f.created_at DESC
		 LIMIT $2 OFFSET $3`,
		topicID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var f Feedback
		var metaJSON []byte
		if err := rows.Scan(&f.ID, &f.Source, &f.CustomerID, &f.Body, &f.NormalizedText, &f.Language, &metaJSON, &f.CreatedAt); err != nil {
			return nil, 0, err
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &f.Metadata)
		}
		out = append(out, f)
	}
	return out, total, rows.Err()
}

// Stats is the headline operational snapshot served at /admin/stats.
type Stats struct {
	TotalFeedback   int
	TotalTopics     int
	TotalBatches    int
	UnannotatedCount int
	OldestFeedback  *time.Time
	NewestFeedback  *time.Time
}

// AdminStats computes the operational snapshot.
func (s *Store) AdminStats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM feedback`).Scan(&st.TotalFeedback); err != nil {
		return nil, err
	}
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM topics`).Scan(&st.TotalTopics); err != nil {
		return nil, err
	}
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM batches`).Scan(&st.TotalBatches); err != nil {
		return nil, err
	}
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM feedback f LEFT JOIN annotations a ON a.feedback_id = f.id WHERE a.feedback_id IS NULL`,
	).Scan(&st.UnannotatedCount); err != nil {
		return nil, err
	}
	if err := s.pool.QueryRow(ctx, `SELECT min(created_at), max(created_at) FROM feedback`).Scan(&st.OldestFeedback, &st.NewestFeedback); err != nil {
		return nil, err
	}
	return st, nil
}

// PingDatabase verifies connectivity for the database health endpoint.
func (s *Store) PingDatabase(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// DeleteOldFeedback removes feedback (and its dependent annotations, via
// cascade) older than the cutoff. dryRun reports the count without deleting.
func (s *Store) DeleteOldFeedback(ctx context.Context, cutoff time.Time, dryRun bool) (int, error) {
	if dryRun {
		var count int
		err := s.pool.QueryRow(ctx, `SELECT count(*) FROM feedback WHERE created_at < $1`, cutoff).Scan(&count)
		return count, err
	}

	var count int
	err := s.withRetry(ctx, func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, `DELETE FROM feedback WHERE created_at < $1`, cutoff)
		if err != nil {
			return err
		}
		count = int(tag.RowsAffected())
		return nil
	})
	return count, err
}
