package qa

import (
	"context"
	"strings"
	"time"

	"github.com/wisbric/feedbackapi/internal/analytics"
	"github.com/wisbric/feedbackapi/internal/store"
	"github.com/wisbric/feedbackapi/internal/vectorstore"
)

// intent is the facade's coarse classification of the question, driving
// which whitelisted tool(s) get called. This is not a language model — it's
// a keyword dispatcher, matching the rest of this service's dependency-free
// grounding stance (see the enrichment stage's lexicon models).
type intent int

const (
	intentSummary intent = iota
	intentSentimentTrend
	intentToxicity
	intentCustomers
	intentTopics
	intentExamples
	intentWeeklyReport
)

func classifyIntent(question string) intent {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "weekly report") || strings.Contains(q, "this week"):
		return intentWeeklyReport
	case strings.Contains(q, "toxic"):
		return intentToxicity
	case strings.Contains(q, "customer"):
		return intentCustomers
	case strings.Contains(q, "topic"):
		return intentTopics
	case strings.Contains(q, "trend") || strings.Contains(q, "sentiment"):
		return intentSentimentTrend
	case strings.Contains(q, "example") || strings.Contains(q, "show me") || strings.Contains(q, "negative feedback") || strings.Contains(q, "positive feedback"):
		return intentExamples
	default:
		return intentSummary
	}
}

// toolResults bundles whatever the tool-calling loop retrieved, available
// to both synthesis and verification.
type toolResults struct {
	summary   *store.Summary
	trends    []store.SentimentTrendPoint
	toxicity  *store.ToxicityStats
	customers []store.CustomerStat
	topics    []store.TopicStat
	examples  []store.ExampleItem
}

func windowOrDefault(f Filters) store.DateRange {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)
	if f.Start != nil {
		start = *f.Start
	}
	if f.End != nil {
		end = *f.End
	}
	return store.DateRange{Start: start, End: end}
}

// runTools calls the analytics-sql and vector-examples tools the intent
// needs. Every call is bounded by the filters' date window; see Filters for
// which of the other filter fields are applied.
func (s *Service) runTools(ctx context.Context, i intent, question string, f Filters) (*toolResults, error) {
	dr := windowOrDefault(f)
	win := analytics.Window{Start: dr.Start, End: dr.End}
	tr := &toolResults{}

	switch i {
	case intentToxicity:
		stats, err := s.analytics.ToxicityStats(ctx, 0.5, win)
		if err != nil {
			return nil, err
		}
		tr.toxicity = stats

	case intentCustomers:
		stats, err := s.analytics.CustomerStats(ctx, 1, win)
		if err != nil {
			return nil, err
		}
		tr.customers = stats

	case intentSentimentTrend:
		points, err := s.analytics.SentimentTrends(ctx, store.GroupByDay, win)
		if err != nil {
			return nil, err
		}
		tr.trends = points

	case intentTopics:
		topics, err := s.analytics.TopicStats(ctx, win)
		if err != nil {
			return nil, err
		}
		tr.topics = topics

	case intentExamples:
		examples, err := s.vectorExamples(ctx, question, f, 10)
		if err != nil {
			return nil, err
		}
		tr.examples = examples

	case intentWeeklyReport:
		weekWin := analytics.Window{Start: win.End.AddDate(0, 0, -7), End: win.End}
		summary, err := s.analytics.Summary(ctx, weekWin)
		if err != nil {
			return nil, err
		}
		topics, err := s.analytics.TopicStats(ctx, weekWin)
		if err != nil {
			return nil, err
		}
		tr.summary = summary
		tr.topics = topics

	default:
		summary, err := s.analytics.Summary(ctx, win)
		if err != nil {
			return nil, err
		}
		tr.summary = summary
	}

	return tr, nil
}

// vectorExamples is the "vector-examples" tool: embeds the question and runs
// a filtered nearest-neighbour query over the vector store, then resolves
// each match back to its feedback body for quoting.
func (s *Service) vectorExamples(ctx context.Context, question string, f Filters, k int) ([]store.ExampleItem, error) {
	if k > 10 {
		k = 10
	}

	vf := vectorstore.Filter{}
	if len(f.TopicIDs) > 0 {
		vf.TopicID = &f.TopicIDs[0]
	}
	if f.Sentiment != nil {
		v := int(*f.Sentiment)
		vf.Sentiment = &v
	}

	queryVec := s.embedding.Embed(question)
	matches := s.vectors.Query(ctx, queryVec, vf, k)
	if len(matches) == 0 {
		ef := store.ExampleFilter{Limit: k, Sentiment: f.Sentiment}
		if len(f.TopicIDs) > 0 {
			ef.TopicID = &f.TopicIDs[0]
		}
		return s.store.Examples(ctx, ef)
	}

	out := make([]store.ExampleItem, 0, len(matches))
	for _, m := range matches {
		fb, err := s.store.GetFeedback(ctx, m.FeedbackID)
		if err != nil {
			continue
		}
		ann, err := s.store.GetAnnotation(ctx, m.FeedbackID)
		var topicID *int64
		if err == nil {
			topicID = ann.TopicID
		}
		out = append(out, store.ExampleItem{FeedbackID: fb.ID, Body: fb.Body, TopicID: topicID, Metadata: fb.Metadata})
	}
	return out, nil
}
