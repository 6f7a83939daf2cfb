package qa

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wisbric/feedbackapi/internal/store"
)

// synthesize renders the answer text and citation list from the tool
// results. This stands in for a model completion step — the facade's
// verification invariants apply the same regardless of how the text was
// produced, so every numeric token and quote below is traceable straight
// back to a tool-output field.
func synthesize(question string, i intent, tr *toolResults) *Answer {
	switch i {
	case intentToxicity:
		return synthesizeToxicity(tr.toxicity)
	case intentCustomers:
		return synthesizeCustomers(tr.customers)
	case intentSentimentTrend:
		return synthesizeTrend(tr.trends)
	case intentTopics:
		return synthesizeTopics(tr.topics)
	case intentExamples:
		return synthesizeExamples(tr.examples)
	case intentWeeklyReport:
		return &Answer{AnswerText: renderWeeklyReport(tr.summary, tr.topics)}
	default:
		return synthesizeSummary(tr.summary)
	}
}

func synthesizeSummary(s *store.Summary) *Answer {
	if s == nil {
		return &Answer{AnswerText: "No feedback data is available for the requested window."}
	}
	text := fmt.Sprintf("Over the requested window there were %d feedback items, %.1f%% of which were negative.",
		s.Total, s.NegativePercentage)
	return &Answer{AnswerText: text}
}

func synthesizeToxicity(t *store.ToxicityStats) *Answer {
	if t == nil {
		return &Answer{AnswerText: "No toxicity data is available for the requested window."}
	}
	text := fmt.Sprintf("%d feedback items exceed the toxicity threshold, with a mean toxicity score of %.3f.",
		t.CountAboveThreshold, t.Mean)
	return &Answer{AnswerText: text}
}

func synthesizeCustomers(stats []store.CustomerStat) *Answer {
	if len(stats) == 0 {
		return &Answer{AnswerText: "No customers met the minimum feedback count in the requested window."}
	}
	top := stats[0]
	text := fmt.Sprintf("The most active customer is %s with %d feedback items and an average sentiment of %.2f, across %d customers total.",
		top.CustomerID, top.Count, top.AvgSentiment, len(stats))
	return &Answer{AnswerText: text}
}

func synthesizeTrend(points []store.SentimentTrendPoint) *Answer {
	if len(points) == 0 {
		return &Answer{AnswerText: "No sentiment trend data is available for the requested window."}
	}
	last := points[len(points)-1]
	text := fmt.Sprintf("Over %d periods, the most recent period (%s) recorded %d positive, %d negative, and %d neutral items.",
		len(points), last.Period, last.PositiveCount, last.NegativeCount, last.NeutralCount)
	return &Answer{AnswerText: text}
}

func synthesizeTopics(stats []store.TopicStat) *Answer {
	if len(stats) == 0 {
		return &Answer{AnswerText: "No topics have been assigned in the requested window."}
	}
	top := stats[0]
	text := fmt.Sprintf("The largest topic is %q with %d feedback items and an average sentiment of %.2f (%.1f change versus the prior window), across %d topics.",
		top.Label, top.Count, top.AvgSentiment, top.DeltaVsPrior, len(stats))
	citations := make([]Citation, 0, len(stats))
	for _, t := range stats {
		id := t.TopicID
		citations = append(citations, Citation{TopicID: &id})
	}
	return &Answer{AnswerText: text, Citations: citations}
}

func synthesizeExamples(items []store.ExampleItem) *Answer {
	if len(items) == 0 {
		return &Answer{AnswerText: "No matching feedback examples were found."}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d matching feedback examples. ", len(items))
	citations := make([]Citation, 0, len(items))
	for n, it := range items {
		if n > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "Feedback %s: %q.", shortID(it.FeedbackID.String()), it.Body)
		citations = append(citations, Citation{FeedbackID: it.FeedbackID, TopicID: it.TopicID})
	}
	return &Answer{AnswerText: b.String(), Citations: citations}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// renderWeeklyReport is the "report-writer" tool: formats a structured
// weekly-summary narrative from supplied metrics, used when the synthesis
// step needs prose rather than raw numbers.
func renderWeeklyReport(summary *store.Summary, topics []store.TopicStat) string {
	var b strings.Builder
	if summary != nil {
		fmt.Fprintf(&b, "This week saw %d feedback items, %.1f%% negative.\n", summary.Total, summary.NegativePercentage)
	}
	for _, t := range topics {
		fmt.Fprintf(&b, "- %s: %d items, avg sentiment %.2f (%+.2f vs prior week)\n", t.Label, t.Count, t.AvgSentiment, t.DeltaVsPrior)
	}
	return b.String()
}

var numericTokenPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?%?`)

// verify checks the numeric-claim invariant: every numeric token in the
// answer must trace back to a tool-output value (within a tolerance). A
// token that matches none stays in the text and is flagged by appending
// "[unverified figure: N]". Quoted bodies are not checked here; citations
// come from synthesize, which cites every item it quotes.
func verify(a *Answer, tr *toolResults) *Answer {
	groundedNumbers := collectNumbers(tr)

	tokens := numericTokenPattern.FindAllString(a.AnswerText, -1)
	for _, tok := range tokens {
		tok = strings.TrimSuffix(tok, "%")
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			continue
		}
		if !withinTolerance(v, groundedNumbers) {
			a.AnswerText += fmt.Sprintf(" [unverified figure: %s]", tok)
		}
	}

	return a
}

func withinTolerance(v float64, grounded []float64) bool {
	const tolerance = 0.05
	for _, g := range grounded {
		if abs(v-g) <= tolerance+abs(g)*tolerance {
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func collectNumbers(tr *toolResults) []float64 {
	var out []float64
	if tr.summary != nil {
		out = append(out, float64(tr.summary.Total), tr.summary.NegativePercentage)
		for _, p := range tr.summary.Series {
			out = append(out, float64(p.Total))
		}
	}
	if tr.toxicity != nil {
		out = append(out, float64(tr.toxicity.CountAboveThreshold), tr.toxicity.Mean)
	}
	for _, c := range tr.customers {
		out = append(out, float64(c.Count), c.AvgSentiment)
	}
	for _, p := range tr.trends {
		out = append(out, float64(p.PositiveCount), float64(p.NegativeCount), float64(p.NeutralCount))
	}
	for _, t := range tr.topics {
		out = append(out, float64(t.Count), t.AvgSentiment, t.DeltaVsPrior, float64(t.TopicID))
	}
	out = append(out, float64(len(tr.examples)))
	return out
}
