package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/virupakshb/TrialMonitor/pkg/jobs"
	"github.com/virupakshb/TrialMonitor/pkg/ledger"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
	"github.com/virupakshb/TrialMonitor/pkg/server/middleware"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// APIError is the error object returned by every endpoint.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type errorResponse struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
}

// badRequest is an input error detected by the handlers themselves.
type badRequest struct {
	field   string
	message string
}

func (e *badRequest) Error() string {
	return fmt.Sprintf("%s: %s", e.field, e.message)
}

// classify maps an error to a status code and API error.
func classify(err error) (int, APIError) {
	var (
		br   *badRequest
		reqE *jobs.RequestError
		qe   *ledger.QueryError
		busy *jobs.SubjectBusyError
	)
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest, APIError{Code: "invalid_request", Message: br.message, Field: br.field}
	case errors.Is(err, rules.ErrUnknownRule):
		return http.StatusNotFound, APIError{Code: "rule_not_found", Message: err.Error()}
	case errors.As(err, &reqE):
		return http.StatusBadRequest, APIError{Code: "invalid_request", Message: reqE.Error(), Field: reqE.Field}
	case errors.As(err, &qe):
		return http.StatusBadRequest, APIError{Code: "invalid_query", Message: qe.Cause.Error()}
	case errors.As(err, &busy):
		return http.StatusConflict, APIError{Code: "subject_busy", Message: busy.Error()}
	case errors.Is(err, jobs.ErrJobNotFound), errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, APIError{Code: "not_found", Message: err.Error()}
	case errors.Is(err, jobs.ErrShuttingDown):
		return http.StatusServiceUnavailable, APIError{Code: "shutting_down", Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, APIError{Code: "timeout", Message: err.Error()}
	default:
		return http.StatusInternalServerError, APIError{Code: "internal_error", Message: "an internal error occurred"}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, apiErr := classify(err)
	if status >= 500 {
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: apiErr, RequestID: middleware.GetRequestID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// unchanged.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &badRequest{field: "body", message: err.Error()}
	}
	return nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &badRequest{field: name, message: fmt.Sprintf("%s must be a non-negative integer", name)}
	}
	return n, nil
}
