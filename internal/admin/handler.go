package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/feedbackapi/internal/apierr"
	"github.com/wisbric/feedbackapi/internal/audit"
	"github.com/wisbric/feedbackapi/internal/httpserver"
	"github.com/wisbric/feedbackapi/internal/store"
)

// Handler exposes the admin HTTP surface: mutations, maintenance, and
// read-side supplements over the topic/feedback/audit data.
type Handler struct {
	svc    *Service
	store  *store.Store
	audit  *audit.Writer
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc *Service, st *store.Store, aw *audit.Writer, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, store: st, audit: aw, logger: logger}
}

// Routes mounts every admin endpoint. Callers mount this behind
// auth.RequireAdmin except for the maintenance-reads which auth.RequireAuth
// alone would also satisfy — the spec grants admin every endpoint, so this
// router assumes admin-only gating applied by the caller.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/stats", h.handleStats)
	r.Get("/health/database", h.handleHealthDatabase)
	r.Post("/maintenance/refresh-materialized-view", h.handleRefreshView)
	r.Get("/topics", h.handleListTopics)
	r.Post("/relabel-topic", h.handleRelabelTopic)
	r.Post("/reassign-feedback", h.handleReassignFeedback)
	r.Get("/topics/{id}/feedback", h.handleTopicFeedback)
	r.Post("/cleanup/old-data", h.handleCleanupOldData)
	r.Post("/cache/clear", h.handleCacheClear)
	return r
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.AdminStats(r.Context())
	if err != nil {
		h.internalErr(w, r, "admin stats", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, stats)
}

func (h *Handler) handleHealthDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.store.PingDatabase(r.Context()); err != nil {
		httpserver.Respond(w, http.StatusServiceUnavailable, map[string]any{"healthy": false, "error": err.Error()})
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"healthy": true})
}

func (h *Handler) handleRefreshView(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RefreshMaterializedView(r.Context()); err != nil {
		h.internalErr(w, r, "refresh materialized view", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"refreshed": true})
}

func (h *Handler) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.store.ListTopics(r.Context())
	if err != nil {
		h.internalErr(w, r, "list topics", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"topics": topics})
}

type relabelTopicRequest struct {
	TopicID     int64    `json:"topic_id" validate:"required"`
	NewLabel    string   `json:"new_label" validate:"required"`
	NewKeywords []string `json:"new_keywords"`
}

func (h *Handler) handleRelabelTopic(w http.ResponseWriter, r *http.Request) {
	var req relabelTopicRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	err := h.svc.RelabelTopic(r.Context(), req.TopicID, req.NewLabel, req.NewKeywords, func(before, after json.RawMessage) audit.Entry {
		return h.audit.EntryFromRequest(r, audit.ActionRelabel, &req.TopicID, before, after)
	})
	if errors.Is(err, store.ErrNotFound) {
		httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.New(apierr.KindNotFound, "topic not found"))
		return
	}
	if err != nil {
		h.internalErr(w, r, "relabel topic", err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"topic_id": req.TopicID, "relabeled": true})
}

type reassignFeedbackRequest struct {
	FeedbackIDs   []uuid.UUID `json:"feedback_ids" validate:"required"`
	TargetTopicID int64       `json:"target_topic_id" validate:"required"`
	Reason        string      `json:"reason,omitempty"`
}

func (h *Handler) handleReassignFeedback(w http.ResponseWriter, r *http.Request) {
	var req reassignFeedbackRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	err := h.svc.ReassignFeedback(r.Context(), req.FeedbackIDs, req.TargetTopicID, req.Reason,
		func(feedbackID uuid.UUID, before, after json.RawMessage) audit.Entry {
			return h.audit.EntryFromRequest(r, audit.ActionReassign, &req.TargetTopicID, before, after)
		})
	if errors.Is(err, store.ErrNotFound) {
		httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.New(apierr.KindNotFound, "target topic not found"))
		return
	}
	if err != nil {
		h.internalErr(w, r, "reassign feedback", err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"reassigned_count": len(req.FeedbackIDs),
		"target_topic_id":  req.TargetTopicID,
	})
}

func (h *Handler) handleTopicFeedback(w http.ResponseWriter, r *http.Request) {
	topicID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.New(apierr.KindValidation, "invalid topic id"))
		return
	}

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.Wrap(apierr.KindValidation, "invalid pagination parameters", err))
		return
	}

	items, total, err := h.store.FeedbackByTopic(r.Context(), topicID, params.PageSize, params.Offset)
	if err != nil {
		h.internalErr(w, r, "topic feedback", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(items, params, total))
}

type cleanupOldDataRequest struct {
	DaysOld int  `json:"days_old" validate:"required"`
	DryRun  bool `json:"dry_run"`
}

func (h *Handler) handleCleanupOldData(w http.ResponseWriter, r *http.Request) {
	var req cleanupOldDataRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	count, err := h.svc.CleanupOldData(r.Context(), req.DaysOld, req.DryRun)
	if err != nil {
		h.internalErr(w, r, "cleanup old data", err)
		return
	}

	if !req.DryRun {
		entry := h.audit.EntryFromRequest(r, audit.ActionDelete, nil, nil, nil)
		if err := h.audit.Write(r.Context(), entry); err != nil {
			h.logger.ErrorContext(r.Context(), "writing cleanup audit entry", "error", err)
		}
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"dry_run": req.DryRun, "affected_count": count})
}

func (h *Handler) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	h.svc.ClearCache(r.Context())
	httpserver.Respond(w, http.StatusOK, map[string]any{"cleared": true})
}

func (h *Handler) internalErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), op+" failed", "error", err)
	httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.Wrap(apierr.KindInternal, op+" failed", err))
}
