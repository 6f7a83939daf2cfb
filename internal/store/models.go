package store

import (
	"time"

	"github.com/google/uuid"
)

// Feedback is one customer utterance.
type Feedback struct {
	ID             uuid.UUID
	Source         string
	CustomerID     *string
	Body           string
	NormalizedText string
	Language       *string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// SentimentClass follows the fixed three-way taxonomy: -1, 0, +1.
type SentimentClass int

const (
	SentimentNegative SentimentClass = -1
	SentimentNeutral  SentimentClass = 0
	SentimentPositive SentimentClass = 1
)

// Annotation is the enrichment of one feedback item. A feedback has at most
// one live annotation; reassigning a topic updates this row in place.
type Annotation struct {
	FeedbackID         uuid.UUID
	SentimentClass     *SentimentClass
	SentimentConfidence *float64
	TopicID            *int64
	ToxicityScore       *float64
	Embedding            []float32
	UpdatedAt            time.Time
}

// Topic is a named cluster of semantically related feedback.
type Topic struct {
	ID        int64
	Label     string
	Keywords  []string
	UpdatedAt time.Time
}

// UnassignedTopicID is the sentinel topic that absorbs annotations whose
// topic was deleted.
const UnassignedTopicID int64 = 0

// BatchOutcome tallies the per-row results of an ingest batch.
type BatchOutcome struct {
	Created            int
	Duplicate          int
	Error              int
	SkippedNonEnglish int
}

// Batch is an ingest file or bulk submission.
type Batch struct {
	ID         uuid.UUID
	Source     string
	ReceivedAt time.Time
	Outcome    BatchOutcome
	JobID      *uuid.UUID
}
