package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GroupBy is the time bucket granularity accepted by the trend rollups.
type GroupBy string

const (
	GroupByDay   GroupBy = "day"
	GroupByWeek  GroupBy = "week"
	GroupByMonth GroupBy = "month"
)

func (g GroupBy) truncUnit() string {
	switch g {
	case GroupByWeek:
		return "week"
	case GroupByMonth:
		return "month"
	default:
		return "day"
	}
}

// DateRange bounds a rollup query; both ends are inclusive UTC dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// SentimentTrendPoint is one period of the sentiment-trend rollup.
type SentimentTrendPoint struct {
	Period        time.Time `json:"period"`
	PositiveCount int       `json:"positive_count"`
	NegativeCount int       `json:"negative_count"`
	NeutralCount  int       `json:"neutral_count"`
}

// SentimentTrends computes the sentiment-trend rollup.
func (s *Store) SentimentTrends(ctx context.Context, groupBy GroupBy, dr DateRange) ([]SentimentTrendPoint, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT date_trunc('%s', f.created_at) AS period,
		       count(*) FILTER (WHERE a.sentiment_class = 1)  AS positive_count,
		       count(*) FILTER (WHERE a.sentiment_class = -1) AS negative_count,
		       count(*) FILTER (WHERE a.sentiment_class = 0)  AS neutral_count
		FROM feedback f
		JOIN annotations a ON a.feedback_id = f.id
		WHERE f.created_at >= $1 AND f.created_at < $2
		GROUP BY period ORDER BY period`, groupBy.truncUnit()),
		dr.Start, dr.End,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SentimentTrendPoint
	for rows.Next() {
		var p SentimentTrendPoint
		if err := rows.Scan(&p.Period, &p.PositiveCount, &p.NegativeCount, &p.NeutralCount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// VolumeTrendPoint is one period of the volume-trend rollup.
type VolumeTrendPoint struct {
	Period time.Time `json:"period"`
	Total  int       `json:"total"`
}

// VolumeTrends computes the volume-trend rollup.
func (s *Store) VolumeTrends(ctx context.Context, groupBy GroupBy, dr DateRange) ([]VolumeTrendPoint, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT date_trunc('%s', created_at) AS period, count(*) AS total
		FROM feedback
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY period ORDER BY period`, groupBy.truncUnit()),
		dr.Start, dr.End,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VolumeTrendPoint
	for rows.Next() {
		var p VolumeTrendPoint
		if err := rows.Scan(&p.Period, &p.Total); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DailyAggregate is one row of the daily_feedback_aggregates materialised view.
type DailyAggregate struct {
	Day             time.Time `json:"day"`
	TotalFeedback   int       `json:"total_feedback"`
	PositiveCount   int       `json:"positive_feedback"`
	NegativeCount   int       `json:"negative_feedback"`
	NeutralCount    int       `json:"neutral_feedback"`
	AvgSentiment    float64   `json:"avg_sentiment"`
	UniqueCustomers int       `json:"unique_customers"`
}

// DailyAggregates reads a page of the materialised view, most recent first.
func (s *Store) DailyAggregates(ctx context.Context, dr DateRange, limit, offset int) ([]DailyAggregate, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM daily_feedback_aggregates WHERE day >= $1 AND day < $2`,
		dr.Start, dr.End,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT day, total_feedback, positive_count, negative_count, neutral_count, avg_sentiment, unique_customers
		 FROM daily_feedback_aggregates
		 WHERE day >= $1 AND day < $2
		 ORDER BY day DESC LIMIT $3 OFFSET $4`,
		dr.Start, dr.End, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []DailyAggregate
	for rows.Next() {
		var d DailyAggregate
		if err := rows.Scan(&d.Day, &d.TotalFeedback, &d.PositiveCount, &d.NegativeCount, &d.NeutralCount, &d.AvgSentiment, &d.UniqueCustomers); err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// CustomerStat is one row of the customer-stats rollup.
type CustomerStat struct {
	CustomerID   string  `json:"customer_id"`
	Count        int     `json:"count"`
	AvgSentiment float64 `json:"avg_sentiment"`
}

// CustomerStats computes the customer-stats rollup, filtered to customers
// with at least minCount feedback items in the window.
func (s *Store) CustomerStats(ctx context.Context, minCount int, dr DateRange) ([]CustomerStat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT f.customer_id, count(*), coalesce(avg(a.sentiment_class), 0)
		FROM feedback f
		JOIN annotations a ON a.feedback_id = f.id
		WHERE f.customer_id IS NOT NULL AND f.created_at >= $1 AND f.created_at < $2
		GROUP BY f.customer_id
		HAVING count(*) >= $3
		ORDER BY count(*) DESC`,
		dr.Start, dr.End, minCount,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CustomerStat
	for rows.Next() {
		var c CustomerStat
		if err := rows.Scan(&c.CustomerID, &c.Count, &c.AvgSentiment); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SourceStat is one row of the source-stats rollup.
type SourceStat struct {
	Source        string  `json:"source"`
	Count         int     `json:"count"`
	PositiveCount int     `json:"positive_count"`
	NegativeCount int     `json:"negative_count"`
	NeutralCount  int     `json:"neutral_count"`
}

// SourceStats computes the source-stats rollup.
func (s *Store) SourceStats(ctx context.Context, dr DateRange) ([]SourceStat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT f.source, count(*),
		       count(*) FILTER (WHERE a.sentiment_class = 1),
		       count(*) FILTER (WHERE a.sentiment_class = -1),
		       count(*) FILTER (WHERE a.sentiment_class = 0)
		FROM feedback f
		JOIN annotations a ON a.feedback_id = f.id
		WHERE f.created_at >= $1 AND f.created_at < $2
		GROUP BY f.source ORDER BY count(*) DESC`,
		dr.Start, dr.End,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceStat
	for rows.Next() {
		var st SourceStat
		if err := rows.Scan(&st.Source, &st.Count, &st.PositiveCount, &st.NegativeCount, &st.NeutralCount); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ToxicityStats is the result of the toxicity-stats rollup.
type ToxicityStats struct {
	CountAboveThreshold int     `json:"count_above_threshold"`
	Mean                float64 `json:"mean"`
}

// ToxicityStats computes the toxicity-stats rollup.
func (s *Store) ToxicityStats(ctx context.Context, threshold float64, dr DateRange) (*ToxicityStats, error) {
	var ts ToxicityStats
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE a.toxicity_score >= $3), coalesce(avg(a.toxicity_score), 0)
		FROM feedback f
		JOIN annotations a ON a.feedback_id = f.id
		WHERE f.created_at >= $1 AND f.created_at < $2 AND a.toxicity_score IS NOT NULL`,
		dr.Start, dr.End, threshold,
	).Scan(&ts.CountAboveThreshold, &ts.Mean)
	return &ts, err
}

// Summary is the result of the summary rollup.
type Summary struct {
	Total              int                   `json:"total"`
	NegativePercentage float64               `json:"negative_percentage"`
	Series             []VolumeTrendPoint    `json:"series_14d"`
}

// Summary computes the summary rollup: totals, negative share, and a
// trailing 14-day daily series.
func (s *Store) Summary(ctx context.Context, dr DateRange) (*Summary, error) {
	var sum Summary
	var negative int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE a.sentiment_class = -1)
		FROM feedback f
		JOIN annotations a ON a.feedback_id = f.id
		WHERE f.created_at >= $1 AND f.created_at < $2`,
		dr.Start, dr.End,
	).Scan(&sum.Total, &negative)
	if err != nil {
		return nil, err
	}
	if sum.Total > 0 {
		sum.NegativePercentage = float64(negative) / float64(sum.Total) * 100
	}

	seriesStart := dr.End.AddDate(0, 0, -14)
	series, err := s.VolumeTrends(ctx, GroupByDay, DateRange{Start: seriesStart, End: dr.End})
	if err != nil {
		return nil, err
	}
	sum.Series = series
	return &sum, nil
}

// TopicStat is one row of the topics rollup.
type TopicStat struct {
	TopicID      int64   `json:"topic_id"`
	Label        string  `json:"label"`
	Count        int     `json:"count"`
	AvgSentiment float64 `json:"avg_sentiment"`
	DeltaVsPrior float64 `json:"delta_vs_prior_window"`
}

// TopicStats computes the topics rollup, including each topic's count delta
// against the immediately preceding window of equal length.
func (s *Store) TopicStats(ctx context.Context, dr DateRange) ([]TopicStat, error) {
	windowLen := dr.End.Sub(dr.Start)
	priorStart := dr.Start.Add(-windowLen)

	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.label,
		       count(*) FILTER (WHERE f.created_at >= $1 AND f.created_at < $2),
		       coalesce(avg(a.sentiment_class) FILTER (WHERE f.created_at >= $1 AND f.created_at < $2), 0),
		       count(*) FILTER (WHERE f.created_at >= $3 AND f.created_at < $1)
		FROM topics t
		JOIN annotations a ON a.topic_id = t.id
		JOIN feedback f ON f.id = a.feedback_id
		WHERE f.created_at >= $3 AND f.created_at < $2
		GROUP BY t.id, t.label
		ORDER BY count(*) FILTER (WHERE f.created_at >= $1 AND f.created_at < $2) DESC`,
		dr.Start, dr.End, priorStart,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TopicStat
	for rows.Next() {
		var t TopicStat
		var priorCount int
		if err := rows.Scan(&t.TopicID, &t.Label, &t.Count, &t.AvgSentiment, &priorCount); err != nil {
			return nil, err
		}
		t.DeltaVsPrior = float64(t.Count - priorCount)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ExampleItem is one row of the examples rollup.
type ExampleItem struct {
	FeedbackID uuid.UUID      `json:"feedback_id"`
	Body       string         `json:"body"`
	TopicID    *int64         `json:"topic_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ExampleFilter narrows the examples rollup.
type ExampleFilter struct {
	TopicID   *int64
	Sentiment *SentimentClass
	Limit     int
}

// Examples computes the examples rollup.
func (s *Store) Examples(ctx context.Context, f ExampleFilter) ([]ExampleItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT f.id, f.body, a.topic_id, f.metadata
		FROM feedback f
		JOIN annotations a ON a.feedback_id = f.id
		WHERE ($1::bigint IS NULL OR a.topic_id = $1)
		  AND ($2::int IS NULL OR a.sentiment_class = $2)
		ORDER BY f.created_at DESC
		LIMIT $3`,
		f.TopicID, sentimentParam(f.Sentiment), f.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExampleItem
	for rows.Next() {
		var e ExampleItem
		var metaJSON []byte
		if err := rows.Scan(&e.FeedbackID, &e.Body, &e.TopicID, &metaJSON); err != nil {
			return nil, err
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling example metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func sentimentParam(s *SentimentClass) *int {
	if s == nil {
		return nil
	}
	v := int(*s)
	return &v
}

// DashboardSummary is the composed at-a-glance rollup for the admin landing
// page: overall totals plus the top sources and topics by volume.
type DashboardSummary struct {
	Summary    Summary      `json:"summary"`
	TopSources []SourceStat `json:"top_sources"`
	TopTopics  []TopicStat  `json:"top_topics"`
}

// DashboardSummary computes the dashboard-summary rollup by composing the
// summary, source-stats, and topics rollups and trimming each side list to
// its top entries by volume.
func (s *Store) DashboardSummary(ctx context.Context, dr DateRange) (*DashboardSummary, error) {
	summary, err := s.Summary(ctx, dr)
	if err != nil {
		return nil, fmt.Errorf("computing summary: %w", err)
	}

	sources, err := s.SourceStats(ctx, dr)
	if err != nil {
		return nil, fmt.Errorf("computing source stats: %w", err)
	}
	if len(sources) > dashboardTopN {
		sources = sources[:dashboardTopN]
	}

	topics, err := s.TopicStats(ctx, dr)
	if err != nil {
		return nil, fmt.Errorf("computing topic stats: %w", err)
	}
	if len(topics) > dashboardTopN {
		topics = topics[:dashboardTopN]
	}

	return &DashboardSummary{Summary: *summary, TopSources: sources, TopTopics: topics}, nil
}

const dashboardTopN = 5
