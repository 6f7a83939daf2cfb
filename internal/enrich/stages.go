package enrich

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/wisbric/feedbackapi/internal/cache"
	"github.com/wisbric/feedbackapi/internal/queue"
	"github.com/wisbric/feedbackapi/internal/store"
	"github.com/wisbric/feedbackapi/internal/vectorstore"
)

// defaultSimilarityThreshold is the minimum cosine similarity to an
// existing topic centroid for the cluster stage's online assignment.
const defaultSimilarityThreshold = 0.75

// defaultUnassignedPoolThreshold is how many unassigned feedback items
// accumulate before the cluster stage spawns a new topic from them.
const defaultUnassignedPoolThreshold = 50

// Stages implements the four enrichment worker-pool stages over a shared
// set of adapters and models.
type Stages struct {
	store     *store.Store
	queue     *queue.Queue
	vectors   *vectorstore.Store
	cache     *cache.Cache
	sentiment SentimentModel
	toxicity  ToxicityModel
	embedding EmbeddingModel

	similarityThreshold     float64
	unassignedPoolThreshold int
}

// New creates a Stages using the default lexicon/hashing models.
func New(st *store.Store, q *queue.Queue, vs *vectorstore.Store, c *cache.Cache) *Stages {
	return &Stages{
		store:                   st,
		queue:                   q,
		vectors:                 vs,
		cache:                   c,
		sentiment:               NewLexiconSentimentModel(),
		toxicity:                NewLexiconToxicityModel(),
		embedding:               NewHashingEmbeddingModel(64),
		similarityThreshold:     defaultSimilarityThreshold,
		unassignedPoolThreshold: defaultUnassignedPoolThreshold,
	}
}

// RunIngest implements the ingest stage: verifies the batch's rows
// persisted, then enqueues annotate for the batch.
func (s *Stages) RunIngest(ctx context.Context, payload json.RawMessage) error {
	var p queue.IngestPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("unmarshaling ingest payload: %w", err)
	}

	ids, err := s.store.FeedbackIDsInBatch(ctx, p.BatchID)
	if err != nil {
		return fmt.Errorf("listing batch feedback: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	ok, err := s.store.BatchRowsPersisted(ctx, p.BatchID, len(ids))
	if err != nil {
		return fmt.Errorf("checking batch persistence: %w", err)
	}
	if !ok {
		return fmt.Errorf("batch %s rows not fully persisted yet", p.BatchID)
	}

	out, err := json.Marshal(queue.AnnotatePayload{FeedbackIDs: ids, BatchID: &p.BatchID})
	if err != nil {
		return err
	}
	_, err = s.queue.Enqueue(ctx, queue.Annotate, out)
	return err
}

// RunAnnotate implements the annotate stage: scores sentiment and toxicity
// for each feedback id not already annotated, then enqueues cluster.
func (s *Stages) RunAnnotate(ctx context.Context, payload json.RawMessage) error {
	var p queue.AnnotatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("unmarshaling annotate payload: %w", err)
	}

	for _, id := range p.FeedbackIDs {
		if err := s.annotateOne(ctx, id); err != nil {
			return fmt.Errorf("annotating feedback %s: %w", id, err)
		}
	}

	out, err := json.Marshal(queue.ClusterPayload{FeedbackIDs: p.FeedbackIDs, BatchID: p.BatchID})
	if err != nil {
		return err
	}
	_, err = s.queue.Enqueue(ctx, queue.Cluster, out)
	return err
}

func (s *Stages) annotateOne(ctx context.Context, id uuid.UUID) error {
	has, err := s.store.HasAnnotation(ctx, id)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	fb, err := s.store.GetFeedback(ctx, id)
	if err != nil {
		return err
	}

	class, confidence := s.sentiment.Score(fb.Body)
	toxicity := s.toxicity.Score(fb.Body)

	return s.store.UpsertAnnotation(ctx, store.UpsertAnnotationParams{
		FeedbackID:          id,
		SentimentClass:      class,
		SentimentConfidence: confidence,
		ToxicityScore:       &toxicity,
	})
}

// RunCluster implements the cluster stage: embeds each feedback not already
// embedded, upserts into the vector store, and performs the online topic
// assignment before enqueueing reports.
func (s *Stages) RunCluster(ctx context.Context, payload json.RawMessage) error {
	var p queue.ClusterPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("unmarshaling cluster payload: %w", err)
	}

	centroids, err := s.store.TopicCentroids(ctx)
	if err != nil {
		return fmt.Errorf("loading topic centroids: %w", err)
	}

	var unassignedBodies []string
	for _, id := range p.FeedbackIDs {
		assigned, err := s.clusterOne(ctx, id, centroids, &unassignedBodies)
		if err != nil {
			return fmt.Errorf("clustering feedback %s: %w", id, err)
		}
		_ = assigned
	}

	if len(unassignedBodies) >= s.unassignedPoolThreshold {
		if _, err := s.store.CreateTopic(ctx, synthesizeLabel(unassignedBodies), topKeywords(unassignedBodies, 5)); err != nil {
			return fmt.Errorf("spawning topic from unassigned pool: %w", err)
		}
	}

	out, err := json.Marshal(queue.ReportsPayload{BatchID: valueOrZero(p.BatchID)})
	if err != nil {
		return err
	}
	_, err = s.queue.Enqueue(ctx, queue.Reports, out)
	return err
}

func (s *Stages) clusterOne(ctx context.Context, id uuid.UUID, centroids map[int64][]float32, unassignedBodies *[]string) (bool, error) {
	has, err := s.store.HasEmbedding(ctx, id)
	if err != nil {
		return false, err
	}

	fb, err := s.store.GetFeedback(ctx, id)
	if err != nil {
		return false, err
	}

	ann, err := s.store.GetAnnotation(ctx, id)
	if err != nil {
		return false, err
	}

	var sentiment *int
	if ann.SentimentClass != nil {
		v := int(*ann.SentimentClass)
		sentiment = &v
	}

	embedding := ann.Embedding
	if !has {
		embedding = s.embedding.Embed(fb.Body)
		if err := s.store.SetEmbedding(ctx, id, embedding); err != nil {
			return false, err
		}
	}

	topicID, ok := nearestCentroid(embedding, centroids, s.similarityThreshold)
	if ok {
		if err := s.store.AssignTopic(ctx, id, topicID); err != nil {
			return false, err
		}
		if err := s.vectors.Upsert(ctx, id, embedding, &topicID, sentiment); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := s.store.AssignTopic(ctx, id, store.UnassignedTopicID); err != nil {
		return false, err
	}
	if err := s.vectors.Upsert(ctx, id, embedding, nil, sentiment); err != nil {
		return false, err
	}
	*unassignedBodies = append(*unassignedBodies, fb.Body)
	return false, nil
}

func nearestCentroid(embedding []float32, centroids map[int64][]float32, threshold float64) (int64, bool) {
	var bestID int64
	var bestScore float64 = -1
	for id, centroid := range centroids {
		score := cosineSimilarityVec(embedding, centroid)
		if score > bestScore {
			bestScore = score
			bestID = id
		}
	}
	if bestScore >= threshold {
		return bestID, true
	}
	return 0, false
}

func cosineSimilarityVec(a, b []float32) float64 {
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
	return dot / (sqrt(normA) * sqrt(normB))
}

func synthesizeLabel(bodies []string) string {
	keywords := topKeywords(bodies, 3)
	if len(keywords) == 0 {
		return "unlabeled topic"
	}
	label := keywords[0]
	for _, k := range keywords[1:] {
		label += " " + k
	}
	return label
}

func valueOrZero(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

// RunReports implements the reports stage: invalidates every analytics-cache
// entry (the payload's window is not consulted) and requests a
// materialised-view refresh.
func (s *Stages) RunReports(ctx context.Context, payload json.RawMessage) error {
	var p queue.ReportsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("unmarshaling reports payload: %w", err)
	}

	s.cache.DeletePrefix(ctx, "analytics:")

	if err := s.store.RefreshDailyAggregates(ctx); err != nil {
		return fmt.Errorf("refreshing daily aggregates: %w", err)
	}

	return nil
}
