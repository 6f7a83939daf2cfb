package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UpsertAnnotationParams are the fields written by the annotate stage. A
// feedback item has at most one live annotation, so this is an upsert
// keyed on feedback_id — replaying the same job produces the same row.
type UpsertAnnotationParams struct {
	FeedbackID          uuid.UUID
	SentimentClass      SentimentClass
	SentimentConfidence float64
	ToxicityScore       *float64
}

// UpsertAnnotation writes or replaces the sentiment/toxicity fields of a
// feedback item's annotation, leaving any existing topic assignment intact.
func (s *Store) UpsertAnnotation(ctx context.Context, p UpsertAnnotationParams) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO annotations (feedback_id, sentiment_class, sentiment_confidence, toxicity_score, updated_at)
			 VALUES ($1, $2, $3, $4, now())
			 ON CONFLICT (feedback_id) DO UPDATE SET
			   sentiment_class = EXCLUDED.sentiment_class,
			   sentiment_confidence = EXCLUDED.sentiment_confidence,
			   toxicity_score = EXCLUDED.toxicity_score,
			   updated_at = now()`,
			p.FeedbackID, int(p.SentimentClass), p.SentimentConfidence, p.ToxicityScore,
		)
		return err
	})
}

// SetEmbedding stores the cluster stage's embedding vector for a feedback
// item, as a flattened float4 array.
func (s *Store) SetEmbedding(ctx context.Context, feedbackID uuid.UUID, embedding []float32) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx,
			`UPDATE annotations SET embedding = $2, updated_at = now() WHERE feedback_id = $1`,
			feedbackID, embedding,
		)
		return err
	})
}

// AssignTopic sets an annotation's topic field — used by both the cluster
// stage's online assignment and admin reassignment. Updating the same
// feedback to the same topic again is a no-op replay.
func (s *Store) AssignTopic(ctx context.Context, feedbackID uuid.UUID, topicID int64) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx,
			`UPDATE annotations SET topic_id = $2, updated_at = now() WHERE feedback_id = $1`,
			feedbackID, topicID,
		)
		return err
	})
}

// ReassignFeedbackTopics moves a list of feedback's annotations onto a
// target topic inside tx. Used by the admin mutation engine, which commits
// this alongside its audit append.
func ReassignFeedbackTopics(ctx context.Context, tx pgx.Tx, feedbackIDs []uuid.UUID, targetTopicID int64) error {
	batch := &pgx.Batch{}
	for _, id := range feedbackIDs {
		batch.Queue(
			`UPDATE annotations SET topic_id = $2, updated_at = now() WHERE feedback_id = $1`,
			id, targetTopicID,
		)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range feedbackIDs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("reassigning feedback topic: %w", err)
		}
	}
	return nil
}

// GetAnnotation fetches the annotation for one feedback item.
func (s *Store) GetAnnotation(ctx context.Context, feedbackID uuid.UUID) (*Annotation, error) {
	a := &Annotation{FeedbackID: feedbackID}
	var sentimentClass *int
	err := s.pool.QueryRow(ctx,
		`SELECT sentiment_class, sentiment_confidence, topic_id, toxicity_score, embedding, updated_at
		 FROM annotations WHERE feedback_id = $1`,
		feedbackID,
	).Scan(&sentimentClass, &a.SentimentConfidence, &a.TopicID, &a.ToxicityScore, &a.Embedding, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if sentimentClass != nil {
		sc := SentimentClass(*sentimentClass)
		a.SentimentClass = &sc
	}
	return a, nil
}

// HasAnnotation reports whether a feedback item already has an annotation
// row — used by the annotate stage to decide a replay is a no-op.
func (s *Store) HasAnnotation(ctx context.Context, feedbackID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM annotations WHERE feedback_id = $1)`, feedbackID).Scan(&exists)
	return exists, err
}

// HasEmbedding reports whether a feedback item's embedding has already been
// computed — used by the cluster stage to skip recomputation on replay.
func (s *Store) HasEmbedding(ctx context.Context, feedbackID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM annotations WHERE feedback_id = $1 AND embedding IS NOT NULL)`,
		feedbackID,
	).Scan(&exists)
	return exists, err
}
