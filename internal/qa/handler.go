package qa

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/feedbackapi/internal/apierr"
	"github.com/wisbric/feedbackapi/internal/auth"
	"github.com/wisbric/feedbackapi/internal/httpserver"
	"github.com/wisbric/feedbackapi/internal/store"
)

// Handler exposes the grounded question-answering HTTP surface.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the chat endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/query", h.handleQuery)
	r.Get("/conversations", h.handleConversations)
	r.Post("/clear-memory", h.handleClearMemory)
	r.Get("/suggestions", h.handleSuggestions)
	return r
}

type queryRequest struct {
	Question   string   `json:"question" validate:"required"`
	Start      *string  `json:"start,omitempty"`
	End        *string  `json:"end,omitempty"`
	Sentiment  *string  `json:"sentiment,omitempty"`
	TopicIDs   []int64  `json:"topic_ids,omitempty"`
	Source     string   `json:"source,omitempty"`
	CustomerID string   `json:"customer_id,omitempty"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	f, err := buildFilters(req)
	if err != nil {
		httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.New(apierr.KindValidation, err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), RequestTimeout)
	defer cancel()

	subject := subjectFor(r)
	answer, err := h.svc.Ask(ctx, subject, req.Question, f)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, answer)
}

func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.New(apierr.KindValidation, err.Error()))
		return
	}

	subject := subjectFor(r)
	turns, err := h.svc.Conversations(r.Context(), subject, params.PageSize, params.Offset)
	if err != nil {
		h.internalErr(w, r, "list conversations", err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"turns": turns})
}

func (h *Handler) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	subject := subjectFor(r)
	if err := h.svc.ClearMemory(r.Context(), subject); err != nil {
		h.internalErr(w, r, "clear conversation memory", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"cleared": true})
}

func (h *Handler) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.svc.Suggestions(r.Context())
	if err != nil {
		h.internalErr(w, r, "list suggestions", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// subjectFor keys conversation memory off the authenticated identity when
// present, falling back to a shared anonymous bucket otherwise.
func subjectFor(r *http.Request) string {
	if id := auth.FromContext(r.Context()); id != nil && id.Subject != "" {
		return id.Subject
	}
	return "anonymous"
}

func buildFilters(req queryRequest) (Filters, error) {
	var f Filters
	if req.Start != nil {
		t, err := time.Parse("2006-01-02", *req.Start)
		if err != nil {
			return f, errors.New("invalid start date")
		}
		f.Start = &t
	}
	if req.End != nil {
		t, err := time.Parse("2006-01-02", *req.End)
		if err != nil {
			return f, errors.New("invalid end date")
		}
		f.End = &t
	}
	if req.Sentiment != nil {
		sc, err := parseSentimentClass(*req.Sentiment)
		if err != nil {
			return f, errors.New("invalid sentiment filter")
		}
		f.Sentiment = &sc
	}
	f.TopicIDs = req.TopicIDs
	f.Source = req.Source
	f.CustomerID = req.CustomerID
	return f, nil
}

func parseSentimentClass(s string) (store.SentimentClass, error) {
	switch s {
	case "positive":
		return store.SentimentPositive, nil
	case "neutral":
		return store.SentimentNeutral, nil
	case "negative":
		return store.SentimentNegative, nil
	default:
		return 0, errors.New("sentiment must be positive, neutral, or negative")
	}
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.Wrap(apierr.KindValidation, "invalid question", err))
}

func (h *Handler) internalErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), op+" failed", "error", err)
	httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.Wrap(apierr.KindInternal, op+" failed", err))
}
