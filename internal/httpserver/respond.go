package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/wisbric/feedbackapi/internal/apierr"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// RespondError writes a JSON error response with a bare kind/message pair.
func RespondError(w http.ResponseWriter, status int, err string, message string) {
	Respond(w, status, ErrorResponse{Error: err, Message: message})
}

// RespondErr is the single serialisation point from the apierr taxonomy to
// HTTP, per the error handling design's REDESIGN FLAG. Handlers call it
// directly with the error they hold; there is no error-mapping middleware.
// Request-decoding and rate-limit rejections are written with RespondError
// instead.
func RespondErr(w http.ResponseWriter, logger *slog.Logger, requestID string, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Wrap(apierr.KindInternal, "unexpected error", err)
	}

	status := apiErr.Kind.HTTPStatus()

	if apiErr.Kind == apierr.KindRateLimited && apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}

	resp := ErrorResponse{
		Error:   string(apiErr.Kind),
		Message: apiErr.Message,
	}

	if status >= 500 {
		resp.CorrelationID = requestID
		logger.Error("internal error",
			"request_id", requestID,
			"error", apiErr.Error(),
		)
	}

	Respond(w, status, resp)
}
