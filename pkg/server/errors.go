package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	serrors "github.com/sunmao-dev/sunmao/internal/errors"
)

// Sentinel errors for connection and server conditions.
var (
	// ErrServerClosed is returned by operations on a shut down server.
	ErrServerClosed = errors.New("server: closed")

	// ErrSendBufferFull is reported when a client falls too far behind and
	// is disconnected.
	ErrSendBufferFull = errors.New("server: send buffer full")

	// ErrUnknownMessage is returned for a WebSocket message of unknown type.
	ErrUnknownMessage = errors.New("server: unknown message type")

	errServeStopped = errors.New("server: serve stopped")
)

// ConnError wraps an error with connection context for debugging.
type ConnError struct {
	ConnID string
	Op     string // Operation that failed
	Err    error  // Underlying error
}

// Error returns the error message with connection context.
func (e *ConnError) Error() string {
	if e.ConnID == "" {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: conn %s: %s: %v", e.ConnID, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnError) Unwrap() error {
	return e.Err
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// statusFor maps a coded error to an HTTP status.
func statusFor(err error) int {
	var e *serrors.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case "E304", "E200", "E201", "E202", "E203", "E204", "E205":
		return http.StatusBadRequest
	case "E301":
		return http.StatusNotFound
	case "E300":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func bodyFor(err error) errorBody {
	var e *serrors.Error
	if errors.As(err, &e) {
		msg := e.Message
		if e.Wrapped != nil {
			msg = fmt.Sprintf("%s: %v", msg, e.Wrapped)
		}
		return errorBody{Code: e.Code, Message: msg, Detail: e.Detail}
	}
	return errorBody{Message: err.Error()}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), bodyFor(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
