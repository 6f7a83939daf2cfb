package qa

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wisbric/feedbackapi/internal/store"
)

func TestClassifyIntent(t *testing.T) {
	cases := map[string]intent{
		"give me this week's weekly report":       intentWeeklyReport,
		"what's toxic in here":                    intentToxicity,
		"who is our top customer":                 intentCustomers,
		"show the sentiment trend over time":      intentSentimentTrend,
		"what topics are trending":                intentTopics,
		"show me some negative feedback examples": intentExamples,
		"how are we doing overall":                intentSummary,
	}
	for q, want := range cases {
		require.Equal(t, want, classifyIntent(q), q)
	}
}

func TestSynthesizeSummary(t *testing.T) {
	a := synthesizeSummary(&store.Summary{Total: 120, NegativePercentage: 12.5})
	require.Contains(t, a.AnswerText, "120")
	require.Contains(t, a.AnswerText, "12.5")
}

func TestSynthesizeSummary_NilData(t *testing.T) {
	a := synthesizeSummary(nil)
	require.Equal(t, "No feedback data is available for the requested window.", a.AnswerText)
}

func TestSynthesizeTopics_CitesEveryTopic(t *testing.T) {
	stats := []store.TopicStat{
		{TopicID: 1, Label: "shipping", Count: 40, AvgSentiment: -0.2, DeltaVsPrior: 5},
		{TopicID: 2, Label: "pricing", Count: 10, AvgSentiment: 0.1, DeltaVsPrior: -1},
	}
	a := synthesizeTopics(stats)
	require.Len(t, a.Citations, 2)
	require.Equal(t, int64(1), *a.Citations[0].TopicID)
	require.Contains(t, a.AnswerText, "shipping")
}

func TestSynthesizeExamples_CitesEveryItem(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	topicID := int64(3)
	items := []store.ExampleItem{
		{FeedbackID: id1, Body: "the app crashed on login"},
		{FeedbackID: id2, Body: "great support response", TopicID: &topicID},
	}
	a := synthesizeExamples(items)
	require.Len(t, a.Citations, 2)
	require.Equal(t, id1, a.Citations[0].FeedbackID)
	require.Nil(t, a.Citations[0].TopicID)
	require.Equal(t, &topicID, a.Citations[1].TopicID)
	require.Contains(t, a.AnswerText, "app crashed on login")
}

func TestShortID(t *testing.T) {
	require.Equal(t, "abc", shortID("abc"))
	full := uuid.New().String()
	require.Equal(t, full[:8], shortID(full))
}

func TestRenderWeeklyReport(t *testing.T) {
	summary := &store.Summary{Total: 50, NegativePercentage: 8}
	topics := []store.TopicStat{{Label: "billing", Count: 5, AvgSentiment: 0.4, DeltaVsPrior: 1.5}}
	text := renderWeeklyReport(summary, topics)
	require.Contains(t, text, "50 feedback items")
	require.Contains(t, text, "billing")
}

func TestVerify_PassesThroughGroundedNumbers(t *testing.T) {
	tr := &toolResults{summary: &store.Summary{Total: 100, NegativePercentage: 25}}
	a := &Answer{AnswerText: "There were 100 items, 25.0% negative."}
	out := verify(a, tr)
	require.NotContains(t, out.AnswerText, "unverified")
}

func TestVerify_FlagsUngroundedNumber(t *testing.T) {
	tr := &toolResults{summary: &store.Summary{Total: 100, NegativePercentage: 25}}
	a := &Answer{AnswerText: "There were 100 items, but 999 were urgent."}
	out := verify(a, tr)
	require.Contains(t, out.AnswerText, "[unverified figure: 999]")
}

func TestVerify_ToleratesSmallRoundingDrift(t *testing.T) {
	tr := &toolResults{summary: &store.Summary{Total: 100, NegativePercentage: 25.3}}
	a := &Answer{AnswerText: "About 25% were negative."}
	out := verify(a, tr)
	require.NotContains(t, out.AnswerText, "unverified")
}

func TestWithinTolerance(t *testing.T) {
	require.True(t, withinTolerance(10, []float64{10}))
	require.True(t, withinTolerance(10.4, []float64{10}))
	require.False(t, withinTolerance(50, []float64{10}))
}

func TestCollectNumbers_GathersAcrossAllToolResults(t *testing.T) {
	tr := &toolResults{
		summary:   &store.Summary{Total: 10, NegativePercentage: 1, Series: []store.VolumeTrendPoint{{Total: 3}}},
		toxicity:  &store.ToxicityStats{CountAboveThreshold: 2, Mean: 0.5},
		customers: []store.CustomerStat{{Count: 4, AvgSentiment: 0.2}},
		trends:    []store.SentimentTrendPoint{{PositiveCount: 1, NegativeCount: 2, NeutralCount: 3}},
		topics:    []store.TopicStat{{TopicID: 7, Count: 8, AvgSentiment: 0.1, DeltaVsPrior: 2}},
		examples:  []store.ExampleItem{{}, {}},
	}
	nums := collectNumbers(tr)
	require.Contains(t, nums, float64(10))
	require.Contains(t, nums, float64(3))
	require.Contains(t, nums, float64(2))
	require.Contains(t, nums, 0.5)
	require.Contains(t, nums, float64(7))
	require.Contains(t, nums, float64(2)) // len(examples)
}
