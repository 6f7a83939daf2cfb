package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// FeedbackExportRow is one row of the feedback CSV export.
type FeedbackExportRow struct {
	ID             string
	Source         string
	CustomerID     *string
	Body           string
	Language       *string
	SentimentClass *int
	TopicID        *int64
	ToxicityScore  *float64
	CreatedAt      string
}

// StreamFeedbackExport runs the feedback export query and invokes fn once
// per row without buffering the result set, so a multi-million-row export
// holds only one row in memory at a time. Returning an error from fn (e.g.
// because the client disconnected and the response writer failed) stops
// iteration and is returned to the caller.
func (s *Store) StreamFeedbackExport(ctx context.Context, dr DateRange, fn func(FeedbackExportRow) error) error {
	rows, err := s.pool.Query(ctx, `
		SELECT f.id::text, f.source, f.customer_id, f.body, f.language,
		       a.sentiment_class, a.topic_id, a.toxicity_score, f.created_at::text
		FROM feedback f
		LEFT JOIN annotations a ON a.feedback_id = f.id
		WHERE f.created_at >= $1 AND f.created_at < $2
		ORDER BY f.created_at`,
		dr.Start, dr.End,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	return forEachRow(rows, func() (FeedbackExportRow, error) {
		var r FeedbackExportRow
		err := rows.Scan(&r.ID, &r.Source, &r.CustomerID, &r.Body, &r.Language,
			&r.SentimentClass, &r.TopicID, &r.ToxicityScore, &r.CreatedAt)
		return r, err
	}, fn)
}

// TopicExportRow is one row of the topics CSV export.
type TopicExportRow struct {
	ID             string
	Label          string
	Keywords       []string
	MemberCount    int
	AvgSentiment   float64
	UpdatedAt      string
}

// StreamTopicExport runs the topics export query and invokes fn once per row.
func (s *Store) StreamTopicExport(ctx context.Context, fn func(TopicExportRow) error) error {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id::text, t.label, t.keywords,
		       count(a.feedback_id), coalesce(avg(a.sentiment_class), 0), t.updated_at::text
		FROM topics t
		LEFT JOIN annotations a ON a.topic_id = t.id
		GROUP BY t.id, t.label, t.keywords, t.updated_at
		ORDER BY t.label`,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	return forEachRow(rows, func() (TopicExportRow, error) {
		var r TopicExportRow
		err := rows.Scan(&r.ID, &r.Label, &r.Keywords, &r.MemberCount, &r.AvgSentiment, &r.UpdatedAt)
		return r, err
	}, fn)
}

// DailyAggregateExportRow is one row of the daily-aggregate CSV export.
type DailyAggregateExportRow struct {
	Day             string
	TotalFeedback   int
	PositiveCount   int
	NegativeCount   int
	NeutralCount    int
	AvgSentiment    float64
	UniqueCustomers int
}

// StreamDailyAggregateExport runs the daily-aggregate export query over the
// materialised view and invokes fn once per row.
func (s *Store) StreamDailyAggregateExport(ctx context.Context, dr DateRange, fn func(DailyAggregateExportRow) error) error {
	rows, err := s.pool.Query(ctx, `
		SELECT day::text, total_feedback, positive_count, negative_count, neutral_count, avg_sentiment, unique_customers
		FROM daily_feedback_aggregates
		WHERE day >= $1 AND day < $2
		ORDER BY day`,
		dr.Start, dr.End,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	return forEachRow(rows, func() (DailyAggregateExportRow, error) {
		var r DailyAggregateExportRow
		err := rows.Scan(&r.Day, &r.TotalFeedback, &r.PositiveCount, &r.NegativeCount, &r.NeutralCount, &r.AvgSentiment, &r.UniqueCustomers)
		return r, err
	}, fn)
}

// forEachRow drives a pgx.Rows cursor through scan, generic over the row
// type each export variant scans into.
func forEachRow[T any](rows pgx.Rows, scan func() (T, error), fn func(T) error) error {
	for rows.Next() {
		row, err := scan()
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}
