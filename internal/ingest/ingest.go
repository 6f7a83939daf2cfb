// Package ingest implements the ingestion pipeline's public operations
// (C5): create-one, create-batch, and the streaming CSV/JSONL upload
// paths. It persists via the store package and hands off enrichment to the
// job queue — create-one and create-batch enqueue annotate jobs, uploads
// enqueue an ingest job for their batch. This package never computes
// sentiment, toxicity, or embeddings itself.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/wisbric/feedbackapi/internal/queue"
	"github.com/wisbric/feedbackapi/internal/store"
)

// MaxBatchItems caps a single create-batch request.
const MaxBatchItems = 1000

// uploadChunkSize is how many rows are persisted per transaction during a
// streamed upload, bounding peak memory regardless of file size.
const uploadChunkSize = 500

// Service implements create-one, create-batch, and streamed upload.
type Service struct {
	store         *store.Store
	queue         *queue.Queue
	englishOnly   bool
}

// New creates a Service. englishOnly gates the upload-path language filter.
func New(st *store.Store, q *queue.Queue, englishOnly bool) *Service {
	return &Service{store: st, queue: q, englishOnly: englishOnly}
}

// GetFeedback fetches one feedback item by id, used by the single-item
// retrieval endpoint that the QA facade's citations point back to.
func (s *Service) GetFeedback(ctx context.Context, id uuid.UUID) (*store.Feedback, error) {
	return s.store.GetFeedback(ctx, id)
}

// CreateOneParams are the fields accepted by create-one.
type CreateOneParams struct {
	Source     string
	Body       string
	CustomerID *string
	Metadata   map[string]any
}

// CreateOne persists a single feedback item and enqueues its annotate job,
// synchronously with respect to the HTTP response — only the enrichment
// itself is asynchronous.
func (s *Service) CreateOne(ctx context.Context, p CreateOneParams) (*store.Feedback, error) {
	fb, err := s.store.CreateFeedback(ctx, store.CreateFeedbackParams{
		Source:     p.Source,
		CustomerID: p.CustomerID,
		Body:       p.Body,
		Metadata:   p.Metadata,
	})
	if err != nil {
		return nil, err
	}

	if err := s.enqueueAnnotate(ctx, []uuid.UUID{fb.ID}); err != nil {
		return nil, fmt.Errorf("enqueuing annotate job: %w", err)
	}

	return fb, nil
}

// BatchItemOutcome is one create-batch item's fate, in input order.
type BatchItemOutcome struct {
	Status string     `json:"status"` // created | duplicate | error
	ID     *uuid.UUID `json:"id,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// BatchItem is one create-batch input row.
type BatchItem struct {
	Source     string
	Body       string
	CustomerID *string
	Metadata   map[string]any
}

// CreateBatch validates and inserts every accepted row of items in one
// transaction, returning an outcome per item in input order. Items with an
// empty body are reported as errors rather than silently dropped, since the
// caller supplied them explicitly (unlike the streamed upload path, which
// tolerates unparseable rows as a matter of course). Items whose
// (normalised-text, source, customer-id) triple repeats an earlier item in
// the same batch are reported as duplicates and never inserted. This request
// shape has no single Batch row to reference — each item may carry its own
// source — so inserted rows leave batch_id NULL rather than pointing at one.
func (s *Service) CreateBatch(ctx context.Context, items []BatchItem) ([]BatchItemOutcome, error) {
	if len(items) > MaxBatchItems {
		return nil, fmt.Errorf("batch exceeds maximum of %d items", MaxBatchItems)
	}

	outcomes := make([]BatchItemOutcome, len(items))
	seen := make(map[string]struct{})
	indices := make([]int, 0, len(items))
	params := make([]store.CreateFeedbackParams, 0, len(items))

	for i, item := range items {
		normalized := store.Normalize(item.Body)
		if normalized == "" {
			outcomes[i] = BatchItemOutcome{Status: "error", Error: store.ErrEmptyBody.Error()}
			continue
		}

		key := dedupKey(normalized, item.Source, item.CustomerID)
		if _, dup := seen[key]; dup {
			outcomes[i] = BatchItemOutcome{Status: "duplicate"}
			continue
		}
		seen[key] = struct{}{}

		indices = append(indices, i)
		params = append(params, store.CreateFeedbackParams{
			Source:     item.Source,
			CustomerID: item.CustomerID,
			Body:       item.Body,
			Metadata:   item.Metadata,
		})
	}

	ids, err := s.store.CreateFeedbackBatched(ctx, nil, params)
	if err != nil {
		return nil, fmt.Errorf("inserting batch: %w", err)
	}

	var toAnnotate []uuid.UUID
	for j, id := range ids {
		i := indices[j]
		if id == nil {
			outcomes[i] = BatchItemOutcome{Status: "error", Error: store.ErrEmptyBody.Error()}
			continue
		}
		outcomes[i] = BatchItemOutcome{Status: "created", ID: id}
		toAnnotate = append(toAnnotate, *id)
	}

	if len(toAnnotate) > 0 {
		if err := s.enqueueAnnotate(ctx, toAnnotate); err != nil {
			return nil, fmt.Errorf("enqueuing annotate job: %w", err)
		}
	}

	return outcomes, nil
}

func (s *Service) enqueueAnnotate(ctx context.Context, ids []uuid.UUID) error {
	payload, err := json.Marshal(queue.AnnotatePayload{FeedbackIDs: ids})
	if err != nil {
		return err
	}
	_, err = s.queue.Enqueue(ctx, queue.Annotate, payload)
	return err
}
