package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateBatch records the start of an ingest file or bulk submission.
func (s *Store) CreateBatch(ctx context.Context, source string) (*Batch, error) {
	b := &Batch{ID: uuid.New(), Source: source}
	err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO batches (id, source, received_at, created_count, duplicate_count, error_count, skipped_non_english_count)
			 VALUES ($1, $2, now(), 0, 0, 0, 0) RETURNING received_at`,
			b.ID, b.Source,
		).Scan(&b.ReceivedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("creating batch: %w", err)
	}
	return b, nil
}

// UpdateBatchOutcome records the final per-row counters and optional job id
// for a batch once ingestion completes.
func (s *Store) UpdateBatchOutcome(ctx context.Context, batchID uuid.UUID, outcome BatchOutcome, jobID *uuid.UUID) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx,
			`UPDATE batches SET created_count = $2, duplicate_count = $3, error_count = $4,
			   skipped_non_english_count = $5, job_id = $6
			 WHERE id = $1`,
			batchID, outcome.Created, outcome.Duplicate, outcome.Error, outcome.SkippedNonEnglish, jobID,
		)
		return err
	})
}

// GetBatch fetches one batch's current state, used by the upload-status
// endpoints.
func (s *Store) GetBatch(ctx context.Context, batchID uuid.UUID) (*Batch, error) {
	b := &Batch{ID: batchID}
	err := s.pool.QueryRow(ctx,
		`SELECT source, received_at, created_count, duplicate_count, error_count, skipped_non_english_count, job_id
		 FROM batches WHERE id = $1`,
		batchID,
	).Scan(&b.Source, &b.ReceivedAt, &b.Outcome.Created, &b.Outcome.Duplicate, &b.Outcome.Error, &b.Outcome.SkippedNonEnglish, &b.JobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// BatchCoveredWindow returns the min/max created_at dates of the feedback
// rows in a batch.
func (s *Store) BatchCoveredWindow(ctx context.Context, batchID uuid.UUID) (start, end *string, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT to_char(min(created_at), 'YYYY-MM-DD'), to_char(max(created_at), 'YYYY-MM-DD')
		 FROM feedback WHERE batch_id = $1`,
		batchID,
	).Scan(&start, &end)
	return start, end, err
}
