// Package qa implements the grounded question-answering facade (C11): a
// bounded tool-calling loop that routes a free-text question through a
// small whitelisted tool set and enforces citation and numeric-claim
// invariants on the synthesised answer before returning it.
package qa

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/feedbackapi/internal/analytics"
	"github.com/wisbric/feedbackapi/internal/enrich"
	"github.com/wisbric/feedbackapi/internal/store"
	"github.com/wisbric/feedbackapi/internal/vectorstore"
)

// MaxQuestionChars and MaxEstimatedTokens bound the accepted input.
const (
	MaxQuestionChars   = 1000
	MaxEstimatedTokens = 4000
	RequestTimeout     = 30 * time.Second
)

// Citation points an answer's claim back to a concrete feedback item.
type Citation struct {
	FeedbackID uuid.UUID `json:"feedback_id"`
	TopicID    *int64    `json:"topic_id,omitempty"`
}

// Filters is the optional caller-supplied scoping bundle. The tools apply
// only part of it: Start/End bound every analytics call, while Sentiment
// and the first TopicIDs entry narrow only the examples lookup. Source,
// CustomerID and any further TopicIDs entries are not applied by any tool.
type Filters struct {
	Start      *time.Time
	End        *time.Time
	Sentiment  *store.SentimentClass
	TopicIDs   []int64
	Source     string
	CustomerID string
}

// Answer is the facade's response shape.
type Answer struct {
	AnswerText string     `json:"answer"`
	Citations  []Citation `json:"citations"`
}

// Service implements the facade over the analytics engine, the vector
// store, and the store's grounding queries.
type Service struct {
	analytics *analytics.Engine
	vectors   *vectorstore.Store
	store     *store.Store
	embedding enrich.EmbeddingModel
	memory    *Memory
}

// New creates a Service.
func New(a *analytics.Engine, vs *vectorstore.Store, st *store.Store, mem *Memory) *Service {
	return &Service{
		analytics: a,
		vectors:   vs,
		store:     st,
		embedding: enrich.NewHashingEmbeddingModel(64),
		memory:    mem,
	}
}

// Ask runs the bounded tool-calling loop for one question and returns a
// verified answer. ctx should already carry the 30s wall-clock timeout;
// Ask does not impose its own.
func (s *Service) Ask(ctx context.Context, subject, question string, f Filters) (*Answer, error) {
	if len(question) > MaxQuestionChars {
		return nil, fmt.Errorf("question exceeds %d characters", MaxQuestionChars)
	}
	if estimateTokens(question) > MaxEstimatedTokens {
		return nil, fmt.Errorf("question exceeds estimated token ceiling of %d", MaxEstimatedTokens)
	}

	intent := classifyIntent(question)

	toolResults, err := s.runTools(ctx, intent, question, f)
	if err != nil {
		return nil, fmt.Errorf("running grounding tools: %w", err)
	}

	answer := synthesize(question, intent, toolResults)
	verified := verify(answer, toolResults)

	if s.memory != nil {
		s.memory.Append(ctx, subject, question, verified.AnswerText)
	}

	return verified, nil
}

// Conversations returns the subject's conversation history, newest first.
func (s *Service) Conversations(ctx context.Context, subject string, limit, offset int) ([]Turn, error) {
	if s.memory == nil {
		return nil, nil
	}
	return s.memory.List(ctx, subject, limit, offset)
}

// ClearMemory discards a subject's conversation history.
func (s *Service) ClearMemory(ctx context.Context, subject string) error {
	if s.memory == nil {
		return nil
	}
	return s.memory.Clear(ctx, subject)
}

// Suggestions returns a small set of canned starter questions, grounded on
// the current topic set so they reference real labels instead of being
// purely static.
func (s *Service) Suggestions(ctx context.Context) ([]string, error) {
	topics, err := s.store.ListTopics(ctx)
	if err != nil {
		return nil, err
	}

	suggestions := []string{
		"What is the overall sentiment trend this month?",
		"Which customers submitted the most feedback?",
		"How many feedback items exceed the toxicity threshold?",
	}
	for i, t := range topics {
		if i >= 3 {
			break
		}
		suggestions = append(suggestions, fmt.Sprintf("Show me examples of feedback about %s", t.Label))
	}
	return suggestions, nil
}

func estimateTokens(s string) int {
	return len(strings.Fields(s)) * 4 / 3
}
