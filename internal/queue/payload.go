package queue

import "github.com/google/uuid"

// IngestPayload is carried by jobs on the ingest queue: a raw-upload
// notification naming the batch whose rows need post-persistence
// canonicalisation before annotation begins.
type IngestPayload struct {
	BatchID uuid.UUID `json:"batch_id"`
}

// AnnotatePayload is carried by jobs on the annotate queue: the feedback
// identifiers to score for sentiment and toxicity.
type AnnotatePayload struct {
	FeedbackIDs []uuid.UUID `json:"feedback_ids"`
	BatchID     *uuid.UUID  `json:"batch_id,omitempty"`
}

// ClusterPayload is carried by jobs on the cluster queue: the feedback
// identifiers to embed and topic-assign.
type ClusterPayload struct {
	FeedbackIDs []uuid.UUID `json:"feedback_ids"`
	BatchID     *uuid.UUID  `json:"batch_id,omitempty"`
}

// ReportsPayload is carried by jobs on the reports queue. The cluster stage
// sets only BatchID; WindowFrom/WindowTo are left empty, and the reports
// stage's cache invalidation and view refresh are global either way.
type ReportsPayload struct {
	BatchID    uuid.UUID `json:"batch_id"`
	WindowFrom string    `json:"window_from,omitempty"`
	WindowTo   string    `json:"window_to,omitempty"`
}
