// Package export implements the streaming CSV export engine (C8): three
// variants over the store's cursor-based queries, each writing a header row
// immediately and flushing in small batches so memory stays bounded
// regardless of result-set size.
package export

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/feedbackapi/internal/apierr"
	"github.com/wisbric/feedbackapi/internal/httpserver"
	"github.com/wisbric/feedbackapi/internal/store"
)

// flushEvery is how many rows accumulate between forced writer flushes,
// keeping the response streaming without flushing per-row.
const flushEvery = 500

// Handler exposes the export HTTP surface.
type Handler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(st *store.Store, logger *slog.Logger) *Handler {
	return &Handler{store: st, logger: logger}
}

// Routes mounts the export endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/export.csv", h.handleFeedbackExport)
	r.Get("/export/topics.csv", h.handleTopicsExport)
	r.Get("/export/analytics.csv", h.handleAnalyticsExport)
	return r
}

func (h *Handler) handleFeedbackExport(w http.ResponseWriter, r *http.Request) {
	dr, err := parseDateRange(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	source := r.URL.Query().Get("source")
	customerID := r.URL.Query().Get("customer_id")
	sentMin, sentMax, err := parseSentimentBounds(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	cw, flush := h.startCSV(w, "feedback_export.csv",
		[]string{"id", "text", "source", "customer_id", "sentiment_score", "created_at", "primary_topic", "toxicity_score"})

	n := 0
	err = h.store.StreamFeedbackExport(r.Context(), dr, func(row store.FeedbackExportRow) error {
		if source != "" && row.Source != source {
			return nil
		}
		if customerID != "" && (row.CustomerID == nil || *row.CustomerID != customerID) {
			return nil
		}
		if row.SentimentClass != nil {
			if sentMin != nil && *row.SentimentClass < *sentMin {
				return nil
			}
			if sentMax != nil && *row.SentimentClass > *sentMax {
				return nil
			}
		}

		if err := cw.Write([]string{
			row.ID,
			row.Body,
			row.Source,
			derefStr(row.CustomerID),
			derefIntStr(row.SentimentClass),
			row.CreatedAt,
			derefInt64Str(row.TopicID),
			derefFloatStr(row.ToxicityScore),
		}); err != nil {
			return err
		}
		n++
		if n%flushEvery == 0 {
			flush()
		}
		return r.Context().Err()
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "streaming feedback export", "error", err)
		return
	}
	cw.Flush()
}

func (h *Handler) handleTopicsExport(w http.ResponseWriter, r *http.Request) {
	minCount := 0
	if v := r.URL.Query().Get("min_feedback_count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.badRequest(w, r, apierr.New(apierr.KindValidation, "invalid min_feedback_count"))
			return
		}
		minCount = n
	}

	cw, flush := h.startCSV(w, "topics_export.csv",
		[]string{"id", "label", "keywords", "feedback_count", "avg_sentiment", "updated_at"})

	n := 0
	err := h.store.StreamTopicExport(r.Context(), func(row store.TopicExportRow) error {
		if row.MemberCount < minCount {
			return nil
		}
		if err := cw.Write([]string{
			row.ID,
			row.Label,
			joinKeywords(row.Keywords),
			strconv.Itoa(row.MemberCount),
			strconv.FormatFloat(row.AvgSentiment, 'f', 4, 64),
			row.UpdatedAt,
		}); err != nil {
			return err
		}
		n++
		if n%flushEvery == 0 {
			flush()
		}
		return r.Context().Err()
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "streaming topics export", "error", err)
		return
	}
	cw.Flush()
}

func (h *Handler) handleAnalyticsExport(w http.ResponseWriter, r *http.Request) {
	dr, err := parseDateRange(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	cw, flush := h.startCSV(w, "analytics_export.csv",
		[]string{"date", "total_feedback", "positive_feedback", "negative_feedback", "neutral_feedback", "avg_sentiment", "unique_customers"})

	n := 0
	err = h.store.StreamDailyAggregateExport(r.Context(), dr, func(row store.DailyAggregateExportRow) error {
		if err := cw.Write([]string{
			row.Day,
			strconv.Itoa(row.TotalFeedback),
			strconv.Itoa(row.PositiveCount),
			strconv.Itoa(row.NegativeCount),
			strconv.Itoa(row.NeutralCount),
			strconv.FormatFloat(row.AvgSentiment, 'f', 4, 64),
			strconv.Itoa(row.UniqueCustomers),
		}); err != nil {
			return err
		}
		n++
		if n%flushEvery == 0 {
			flush()
		}
		return r.Context().Err()
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "streaming analytics export", "error", err)
		return
	}
	cw.Flush()
}

// startCSV sets the response headers, writes the header row, and returns a
// csv.Writer plus a flush function that also flushes the underlying
// http.ResponseWriter so the client sees rows as they're produced.
func (h *Handler) startCSV(w http.ResponseWriter, filename string, header []string) (*csv.Writer, func()) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	cw.Write(header)

	flusher, _ := w.(http.Flusher)
	flush := func() {
		cw.Flush()
		if flusher != nil {
			flusher.Flush()
		}
	}
	flush()
	return cw, flush
}

func parseDateRange(r *http.Request) (store.DateRange, error) {
	q := r.URL.Query()
	dr := store.DateRange{}

	start := q.Get("start_date")
	end := q.Get("end_date")
	if start == "" || end == "" {
		return dr, apierr.New(apierr.KindValidation, "start_date and end_date are required")
	}

	t0, err := parseDate(start)
	if err != nil {
		return dr, apierr.New(apierr.KindValidation, "invalid start_date")
	}
	t1, err := parseDate(end)
	if err != nil {
		return dr, apierr.New(apierr.KindValidation, "invalid end_date")
	}
	dr.Start = t0
	dr.End = t1
	return dr, nil
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func parseSentimentBounds(r *http.Request) (*int, *int, error) {
	var min, max *int
	if v := r.URL.Query().Get("sentiment_min"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < -1 || n > 1 {
			return nil, nil, apierr.New(apierr.KindValidation, "invalid sentiment_min")
		}
		min = &n
	}
	if v := r.URL.Query().Get("sentiment_max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < -1 || n > 1 {
			return nil, nil, apierr.New(apierr.KindValidation, "invalid sentiment_max")
		}
		max = &n
	}
	return min, max, nil
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), err)
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefIntStr(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func derefInt64Str(n *int64) string {
	if n == nil {
		return ""
	}
	return strconv.FormatInt(*n, 10)
}

func derefFloatStr(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 4, 64)
}

func joinKeywords(keywords []string) string {
	out := ""
	for i, k := range keywords {
		if i > 0 {
			out += ";"
		}
		out += k
	}
	return out
}
