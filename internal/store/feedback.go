package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("not found")

// ErrEmptyBody is returned when a feedback item's body is empty after
// normalisation.
var ErrEmptyBody = errors.New("feedback body must not be empty")

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize lowercases and collapses whitespace runs, the canonical form
// used for within-batch deduplication.
func Normalize(body string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(strings.ToLower(body), " "))
}

// CreateFeedbackParams are the fields accepted on insert.
type CreateFeedbackParams struct {
	Source     string
	CustomerID *string
	Body       string
	Language   *string
	Metadata   map[string]any
}

// CreateFeedback inserts one feedback row and returns its generated id and
// creation timestamp. It does not enqueue enrichment — callers (the ingest
// service) own that.
func (s *Store) CreateFeedback(ctx context.Context, p CreateFeedbackParams) (*Feedback, error) {
	normalized := Normalize(p.Body)
	if normalized == "" {
		return nil, ErrEmptyBody
	}

	metaJSON, err := marshalMetadata(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	fb := &Feedback{
		ID:             uuid.New(),
		Source:         p.Source,
		CustomerID:     p.CustomerID,
		Body:           p.Body,
		NormalizedText: normalized,
		Language:       p.Language,
		Metadata:       p.Metadata,
	}

	err = s.withRetry(ctx, func(ctx context.Context) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO feedback (id, source, customer_id, body, normalized_text, language, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			 RETURNING created_at`,
			fb.ID, fb.Source, fb.CustomerID, fb.Body, fb.NormalizedText, fb.Language, metaJSON,
		).Scan(&fb.CreatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("inserting feedback: %w", err)
	}

	return fb, nil
}

// CreateFeedbackBatched inserts multiple feedback rows tagged with batchID in
// one transaction, in input order, returning the id generated for each
// accepted row (nil entries mark rows skipped here because the body is empty
// after normalisation or the metadata does not marshal). batchID is nil for callers that
// have no persisted Batch row to reference (the JSON create-batch path),
// which leaves the column NULL rather than violating its foreign key.
func (s *Store) CreateFeedbackBatched(ctx context.Context, batchID *uuid.UUID, items []CreateFeedbackParams) ([]*uuid.UUID, error) {
	ids := make([]*uuid.UUID, len(items))

	err := s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		batch := &pgx.Batch{}
		indices := make([]int, 0, len(items))
		for i, item := range items {
			normalized := Normalize(item.Body)
			if normalized == "" {
				continue
			}
			metaJSON, merr := marshalMetadata(item.Metadata)
			if merr != nil {
				continue
			}
			id := uuid.New()
			ids[i] = &id
			indices = append(indices, i)
			batch.Queue(
				`INSERT INTO feedback (id, batch_id, source, customer_id, body, normalized_text, language, metadata, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
				id, batchID, item.Source, item.CustomerID, item.Body, normalized, item.Language, metaJSON,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range indices {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("inserting batched feedback: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("closing batch: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// GetFeedback fetches one feedback row by id.
func (s *Store) GetFeedback(ctx context.Context, id uuid.UUID) (*Feedback, error) {
	fb := &Feedback{ID: id}
	var metaJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT source, customer_id, body, normalized_text, language, metadata, created_at
		 FROM feedback WHERE id = $1`,
		id,
	).Scan(&fb.Source, &fb.CustomerID, &fb.Body, &fb.NormalizedText, &fb.Language, &metaJSON, &fb.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &fb.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}

	return fb, nil
}

// BatchRowsPersisted reports whether every feedback row tagged with batchID
// has been durably written, used by the enrichment ingest stage to confirm
// the HTTP layer's writes landed before proceeding.
func (s *Store) BatchRowsPersisted(ctx context.Context, batchID uuid.UUID, expected int) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM feedback WHERE batch_id = $1`, batchID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count >= expected, nil
}

// FeedbackIDsInBatch returns the feedback identifiers tagged with batchID,
// in insertion order.
func (s *Store) FeedbackIDsInBatch(ctx context.Context, batchID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM feedback WHERE batch_id = $1 ORDER BY created_at`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
