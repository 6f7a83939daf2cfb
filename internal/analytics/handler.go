package analytics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/feedbackapi/internal/apierr"
	"github.com/wisbric/feedbackapi/internal/httpserver"
	"github.com/wisbric/feedbackapi/internal/store"
)

// defaultWindow is how far back a rollup request looks when the caller
// omits both start_date and end_date.
const defaultWindow = 14 * 24 * time.Hour

// maxExamplesLimit and minExamplesLimit bound the examples endpoint's
// limit parameter.
const (
	minExamplesLimit     = 1
	maxExamplesLimit     = 50
	defaultExamplesLimit = 10
	maxDailyPageSize     = 365
)

// Handler exposes the rollup HTTP surface. Routes are mounted under
// /analytics/*, the canonical prefix; app wiring also aliases the same
// router under /api/* for callers still pointed at the compatibility path
// (see spec note on the two documented prefixes).
type Handler struct {
	engine *Engine
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(e *Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: e, logger: logger}
}

// Routes mounts the rollup endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/sentiment-trends", h.handleSentimentTrends)
	r.Get("/volume-trends", h.handleVolumeTrends)
	r.Get("/daily-aggregates", h.handleDailyAggregates)
	r.Get("/customers", h.handleCustomers)
	r.Get("/sources", h.handleSources)
	r.Get("/toxicity", h.handleToxicity)
	r.Get("/summary", h.handleSummary)
	r.Get("/topics", h.handleTopics)
	r.Get("/examples", h.handleExamples)
	r.Get("/dashboard/summary", h.handleDashboardSummary)
	return r
}

func (h *Handler) handleSentimentTrends(w http.ResponseWriter, r *http.Request) {
	groupBy, win, err := parseGroupByWindow(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	points, err := h.engine.SentimentTrends(r.Context(), groupBy, win)
	if err != nil {
		h.internalErr(w, r, "sentiment trends", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"points": points})
}

func (h *Handler) handleVolumeTrends(w http.ResponseWriter, r *http.Request) {
	groupBy, win, err := parseGroupByWindow(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	points, err := h.engine.VolumeTrends(r.Context(), groupBy, win)
	if err != nil {
		h.internalErr(w, r, "volume trends", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"points": points})
}

func (h *Handler) handleDailyAggregates(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	if params.PageSize > maxDailyPageSize {
		params.PageSize = maxDailyPageSize
	}

	items, total, err := h.engine.DailyAggregates(r.Context(), win, params.PageSize, params.Offset)
	if err != nil {
		h.internalErr(w, r, "daily aggregates", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(items, params, total))
}

func (h *Handler) handleCustomers(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	minCount := 1
	if v := r.URL.Query().Get("min_feedback_count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.badRequest(w, r, errInvalidParam("min_feedback_count"))
			return
		}
		minCount = n
	}

	stats, err := h.engine.CustomerStats(r.Context(), minCount, win)
	if err != nil {
		h.internalErr(w, r, "customer stats", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"customers": stats})
}

func (h *Handler) handleSources(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	stats, err := h.engine.SourceStats(r.Context(), win)
	if err != nil {
		h.internalErr(w, r, "source stats", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"sources": stats})
}

func (h *Handler) handleToxicity(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	threshold := 0.5
	if v := r.URL.Query().Get("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			h.badRequest(w, r, errInvalidParam("threshold"))
			return
		}
		threshold = f
	}

	stats, err := h.engine.ToxicityStats(r.Context(), threshold, win)
	if err != nil {
		h.internalErr(w, r, "toxicity stats", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, stats)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	summary, err := h.engine.Summary(r.Context(), win)
	if err != nil {
		h.internalErr(w, r, "summary", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, summary)
}

func (h *Handler) handleTopics(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	stats, err := h.engine.TopicStats(r.Context(), win)
	if err != nil {
		h.internalErr(w, r, "topic stats", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"topics": stats})
}

func (h *Handler) handleExamples(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultExamplesLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < minExamplesLimit || n > maxExamplesLimit {
			h.badRequest(w, r, errInvalidParam("limit"))
			return
		}
		limit = n
	}

	f := store.ExampleFilter{Limit: limit}
	if v := q.Get("topic_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.badRequest(w, r, errInvalidParam("topic_id"))
			return
		}
		f.TopicID = &id
	}
	if v := q.Get("sentiment"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < -1 || n > 1 {
			h.badRequest(w, r, errInvalidParam("sentiment"))
			return
		}
		sc := store.SentimentClass(n)
		f.Sentiment = &sc
	}

	items, err := h.engine.Examples(r.Context(), f)
	if err != nil {
		h.internalErr(w, r, "examples", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"examples": items})
}

func (h *Handler) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	summary, err := h.engine.DashboardSummary(r.Context(), win)
	if err != nil {
		h.internalErr(w, r, "dashboard summary", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, summary)
}

func parseWindow(r *http.Request) (Window, error) {
	q := r.URL.Query()
	now := time.Now().UTC()
	win := Window{Start: now.Add(-defaultWindow), End: now}

	start := firstNonEmpty(q.Get("start_date"), q.Get("start"))
	end := firstNonEmpty(q.Get("end_date"), q.Get("end"))

	if start != "" {
		t, err := time.Parse("2006-01-02", start)
		if err != nil {
			return win, errInvalidParam("start_date")
		}
		win.Start = t
	}
	if end != "" {
		t, err := time.Parse("2006-01-02", end)
		if err != nil {
			return win, errInvalidParam("end_date")
		}
		win.End = t.Add(24 * time.Hour)
	}
	return win, nil
}

func parseGroupByWindow(r *http.Request) (store.GroupBy, Window, error) {
	win, err := parseWindow(r)
	if err != nil {
		return "", win, err
	}

	groupBy := store.GroupByDay
	switch v := r.URL.Query().Get("group_by"); v {
	case "", "day":
		groupBy = store.GroupByDay
	case "week":
		groupBy = store.GroupByWeek
	case "month":
		groupBy = store.GroupByMonth
	default:
		return "", win, errInvalidParam("group_by")
	}

	return groupBy, win, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func errInvalidParam(name string) error {
	return apierr.New(apierr.KindValidation, "invalid "+name)
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), err)
}

func (h *Handler) internalErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), op+" failed", "error", err)
	httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.Wrap(apierr.KindInternal, op+" failed", err))
}
