package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/feedbackapi/internal/apierr"
	"github.com/wisbric/feedbackapi/internal/httpserver"
	"github.com/wisbric/feedbackapi/internal/store"
)

// maxUploadBytes caps the whole multipart request body. ParseMultipartForm
// reads the entire body before any row is parsed, holding up to 32 MiB in
// memory and spilling the rest of the file part to a temporary file.
const maxUploadBytes = 200 << 20 // 200 MiB

// uploadLimiter is satisfied by httpserver.RateLimiter; declared as an
// interface here so this package doesn't need to import httpserver's
// concrete type for what is otherwise a one-method dependency.
type uploadLimiter interface {
	Middleware(next http.Handler) http.Handler
}

// Handler exposes the ingestion HTTP surface.
type Handler struct {
	svc     *Service
	logger  *slog.Logger
	limiter uploadLimiter
}

// NewHandler creates a Handler. limiter may be nil, in which case the
// upload endpoints carry no extra rate limiting beyond whatever the caller
// applies at the mount point.
func NewHandler(svc *Service, logger *slog.Logger, limiter uploadLimiter) *Handler {
	return &Handler{svc: svc, logger: logger, limiter: limiter}
}

// Routes mounts the ingestion endpoints. The streamed upload routes carry
// their own, tighter rate limit tier since a single upload request can
// drive far more write volume than a single create-one or create-batch call.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/feedback", h.handleCreateOne)
	r.Post("/feedback/batch", h.handleCreateBatch)

	r.Group(func(r chi.Router) {
		if h.limiter != nil {
			r.Use(h.limiter.Middleware)
		}
		r.Post("/upload/csv", h.handleUploadCSV)
		r.Post("/upload/json", h.handleUploadJSONL)
	})

	return r
}

type createOneRequest struct {
	Source     string         `json:"source" validate:"required"`
	Body       string         `json:"body" validate:"required"`
	CustomerID *string        `json:"customer_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (h *Handler) handleCreateOne(w http.ResponseWriter, r *http.Request) {
	var req createOneRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	fb, err := h.svc.CreateOne(r.Context(), CreateOneParams{
		Source:     req.Source,
		Body:       req.Body,
		CustomerID: req.CustomerID,
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.respondServiceErr(w, r, "create feedback", err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, map[string]any{"id": fb.ID})
}

type createBatchItem struct {
	Source     string         `json:"source" validate:"required"`
	Body       string         `json:"body" validate:"required"`
	CustomerID *string        `json:"customer_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (h *Handler) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var items []createBatchItem
	if err := httpserver.Decode(r, &items); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if len(items) > MaxBatchItems {
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "validation_error",
			"batch exceeds maximum of 1000 items")
		return
	}

	batchItems := make([]BatchItem, len(items))
	for i, it := range items {
		batchItems[i] = BatchItem{Source: it.Source, Body: it.Body, CustomerID: it.CustomerID, Metadata: it.Metadata}
	}

	outcomes, err := h.svc.CreateBatch(r.Context(), batchItems)
	if err != nil {
		h.respondServiceErr(w, r, "create batch", err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

func (h *Handler) handleUploadCSV(w http.ResponseWriter, r *http.Request) {
	h.handleUpload(w, r, h.svc.UploadCSV)
}

func (h *Handler) handleUploadJSONL(w http.ResponseWriter, r *http.Request) {
	h.handleUpload(w, r, h.svc.UploadJSONL)
}

// uploadFunc is the shape shared by Service.UploadCSV and Service.UploadJSONL.
type uploadFunc func(ctx context.Context, source string, r io.Reader) (*UploadOutcome, error)

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request, upload uploadFunc) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid multipart upload: "+err.Error())
		return
	}

	source := r.FormValue("source")
	if source == "" {
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "validation_error", "source is required")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "validation_error", "file is required")
		return
	}
	defer file.Close()

	outcome, err := upload(r.Context(), source, file)
	if err != nil {
		h.respondServiceErr(w, r, "upload", err)
		return
	}

	httpserver.Respond(w, http.StatusAccepted, map[string]any{
		"batch_id":            outcome.BatchID,
		"job_id":              outcome.JobID,
		"created":             outcome.Outcome.Created,
		"duplicate":           outcome.Outcome.Duplicate,
		"error":               outcome.Outcome.Error,
		"skipped_non_english": outcome.Outcome.SkippedNonEnglish,
	})
}

// HandleGetFeedback fetches one feedback item by id. Mounted separately from
// Routes() under the read-side prefix rather than the ingestion one.
func (h *Handler) HandleGetFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.New(apierr.KindValidation, "invalid feedback id"))
		return
	}

	fb, err := h.svc.GetFeedback(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.New(apierr.KindNotFound, "feedback not found"))
		return
	}
	if err != nil {
		h.respondServiceErr(w, r, "get feedback", err)
		return
	}

	httpserver.Respond(w, http.StatusOK, fb)
}

func (h *Handler) respondServiceErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), op+" failed", "error", err)
	httpserver.RespondErr(w, h.logger, httpserver.RequestIDFromContext(r.Context()), apierr.Wrap(apierr.KindInternal, op+" failed", err))
}
