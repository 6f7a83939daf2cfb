package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/feedbackapi/internal/apierr"
	"github.com/wisbric/feedbackapi/internal/httpserver"
)

type pgxRow interface {
	Scan(dest ...any) error
}

type pgxRows = pgx.Rows

// Record is the JSON shape returned by the audit log listing endpoint.
type Record struct {
	ID        uuid.UUID       `json:"id"`
	TopicID   *int64          `json:"topic_id,omitempty"`
	Action    string          `json:"action"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	ActorName string          `json:"actor_name"`
	ActorIP   string          `json:"actor_ip,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Handler provides HTTP handlers for the audit log API.
type Handler struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewHandler creates an audit log Handler.
func NewHandler(pool *pgxpool.Pool, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, logger: logger}
}

// Routes returns a chi.Router with audit log routes mounted. A bare GET lists
// every entry; GET /{topic_id} scopes the listing to one topic's mutations.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Get("/{topic_id}", h.handleListForTopic)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.Wrap(apierr.KindValidation, "invalid pagination parameters", err))
		return
	}

	records, total, err := h.list(r.Context(), nil, params.PageSize, params.Offset)
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.Wrap(apierr.KindInternal, "failed to list audit log", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(records, params, total))
}

func (h *Handler) handleListForTopic(w http.ResponseWriter, r *http.Request) {
	topicID, err := strconv.ParseInt(chi.URLParam(r, "topic_id"), 10, 64)
	if err != nil {
		httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.New(apierr.KindValidation, "invalid topic_id"))
		return
	}

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.Wrap(apierr.KindValidation, "invalid pagination parameters", err))
		return
	}

	records, total, err := h.list(r.Context(), &topicID, params.PageSize, params.Offset)
	if err != nil {
		h.logger.Error("listing audit log for topic", "error", err)
		httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.Wrap(apierr.KindInternal, "failed to list audit log", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(records, params, total))
}

func (h *Handler) list(ctx context.Context, topicID *int64, limit, offset int) ([]Record, int, error) {
	var total int
	var countRow pgxRow
	if topicID != nil {
		countRow = h.pool.QueryRow(ctx, `SELECT count(*) FROM audit_log WHERE topic_id = $1`, *topicID)
	} else {
		countRow = h.pool.QueryRow(ctx, `SELECT count(*) FROM audit_log`)
	}
	if err := countRow.Scan(&total); err != nil {
		return nil, 0, err
	}

	var rows pgxRows
	var err error
	if topicID != nil {
		rows, err = h.pool.Query(ctx,
			`SELECT id, topic_id, action, before_data, after_data, actor_name, actor_ip, created_at
			 FROM audit_log WHERE topic_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			*topicID, limit, offset,
		)
	} else {
		rows, err = h.pool.Query(ctx,
			`SELECT id, topic_id, action, before_data, after_data, actor_name, actor_ip, created_at
			 FROM audit_log ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset,
		)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var ip *string
		if err := rows.Scan(&rec.ID, &rec.TopicID, &rec.Action, &rec.Before, &rec.After, &rec.ActorName, &ip, &rec.CreatedAt); err != nil {
			return nil, 0, err
		}
		if ip != nil {
			rec.ActorIP = *ip
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}
