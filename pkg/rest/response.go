package rest

import (
	"encoding/json"
	"errors"
	"maps"
	"net/http"

	"github.com/notifykit/notifykit/pkg/notification"
	"github.com/notifykit/notifykit/pkg/queue"
)

// JSONResponse is the standard response envelope.
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail carries a machine-readable error code plus optional
// per-field validation details.
type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, JSONResponse{Data: data})
}

// respondError maps domain errors onto HTTP statuses: validation failures
// are 422 with field details, missing entities 404, a write-rejecting queue
// 503, malformed requests 400, everything else 500.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	detail := &ErrorDetail{Code: "internal_error", Message: err.Error()}

	var valErr notification.ValidationError
	switch {
	case errors.As(err, &valErr):
		status = http.StatusUnprocessableEntity
		detail.Code = "validation_error"
		detail.Message = "validation failed"
		if len(valErr) > 0 {
			detail.Details = make(map[string][]string)
			maps.Copy(detail.Details, valErr)
		}
	case errors.Is(err, notification.ErrNotFound), errors.Is(err, queue.ErrJobNotFound):
		status = http.StatusNotFound
		detail.Code = "not_found"
	case errors.Is(err, queue.ErrQueueUnavailable):
		status = http.StatusServiceUnavailable
		detail.Code = "queue_unavailable"
	case errors.Is(err, queue.ErrInvalidPriority),
		errors.Is(err, queue.ErrInvalidMaxAttempts),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
		detail.Code = "bad_request"
	}

	respondJSON(w, status, JSONResponse{Error: detail})
}

var errBadRequest = errors.New("bad request")
