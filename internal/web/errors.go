package web

// errors.go turns errors into JSON responses. The technical error is logged
// with the request id; the client gets the coded message from core.MapError.

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JonMunkholm/payments/internal/core"
	"github.com/JonMunkholm/payments/internal/csv"
	"github.com/JonMunkholm/payments/internal/logging"
	"github.com/JonMunkholm/payments/internal/store"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Action string `json:"action,omitempty"`
	Code   string `json:"code"`
	Line   int    `json:"line,omitempty"`
}

// errNoFile is returned for a multipart request without a file part.
var errNoFile = errors.New("no file provided")

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var (
		parseErr *csv.ParseError
		sizeErr  *http.MaxBytesError
	)
	switch {
	case errors.As(err, &sizeErr):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusServiceUnavailable
	case errors.Is(err, store.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrStoreDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes it as an ErrorResponse.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request error", "path", r.URL.Path, "status", status, "code", msg.Code, "error", err)
	} else {
		logger.Warn("request rejected", "path", r.URL.Path, "status", status, "code", msg.Code, "error", err)
	}

	resp := ErrorResponse{Error: msg.Message, Action: msg.Action, Code: msg.Code}
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		resp.Line = parseErr.Line
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSONStatus(w, r, status, resp)
}

// badRequest writes a 400 for malformed request parameters.
func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	logging.FromContext(r.Context()).Warn("bad request", "path", r.URL.Path, "error", message)
	writeJSONStatus(w, r, http.StatusBadRequest, ErrorResponse{Error: message, Code: "REQ001"})
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	writeJSONStatus(w, r, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}
