// Package vectorstore implements the semantic retrieval adapter (C4): a
// Redis-backed store of feedback embeddings supporting an upsert and a
// filtered brute-force nearest-neighbour query. The core never interprets
// the vectors themselves — similarity is entirely this package's concern.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const vectorsKey = "vectorstore:embeddings"

type record struct {
	FeedbackID uuid.UUID `json:"feedback_id"`
	TopicID    *int64    `json:"topic_id,omitempty"`
	Sentiment  *int      `json:"sentiment,omitempty"`
	Embedding  []float32 `json:"embedding"`
}

// Store is a Redis-backed brute-force vector index. Every embedding is held
// in a single hash so queries can be answered with one round trip; this is
// the adapter's choice of relevance implementation, not a spec requirement,
// and is sized for the corpus this service targets (tens of thousands of
// items, not web-scale).
type Store struct {
	redis  *redis.Client
	logger *slog.Logger
}

// New creates a Store over an already-connected Redis client.
func New(rdb *redis.Client, logger *slog.Logger) *Store {
	return &Store{redis: rdb, logger: logger}
}

// Upsert stores or replaces a feedback item's embedding plus the topic and
// sentiment tags used to pre-filter queries.
func (s *Store) Upsert(ctx context.Context, feedbackID uuid.UUID, embedding []float32, topicID *int64, sentiment *int) error {
	rec := record{FeedbackID: feedbackID, TopicID: topicID, Sentiment: sentiment, Embedding: embedding}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling embedding record: %w", err)
	}
	return s.redis.HSet(ctx, vectorsKey, feedbackID.String(), body).Err()
}

// Delete removes a feedback item's embedding.
func (s *Store) Delete(ctx context.Context, feedbackID uuid.UUID) error {
	return s.redis.HDel(ctx, vectorsKey, feedbackID.String()).Err()
}

// Filter narrows a Query to a topic and/or sentiment class.
type Filter struct {
	TopicID   *int64
	Sentiment *int
}

// Match is one ranked query result.
type Match struct {
	FeedbackID uuid.UUID
	Score      float64
}

// Query returns up to k feedback identifiers matching filter, ordered by
// descending cosine similarity to query. Returns an empty result (never an
// error) after logging a warning if Redis is unreachable; on an empty
// result the QA facade falls back to the store's examples query.
func (s *Store) Query(ctx context.Context, query []float32, filter Filter, k int) []Match {
	all, err := s.redis.HGetAll(ctx, vectorsKey).Result()
	if err != nil {
		s.logger.WarnContext(ctx, "vector store query degraded to empty result", "error", err)
		return nil
	}

	candidates := make([]Match, 0, len(all))
	for _, raw := range all {
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		if filter.TopicID != nil && (rec.TopicID == nil || *rec.TopicID != *filter.TopicID) {
			continue
		}
		if filter.Sentiment != nil && (rec.Sentiment == nil || *rec.Sentiment != *filter.Sentiment) {
			continue
		}
		score := cosineSimilarity(query, rec.Embedding)
		candidates = append(candidates, Match{FeedbackID: rec.FeedbackID, Score: score})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
