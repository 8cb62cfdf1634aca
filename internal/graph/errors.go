// Package graph provides an HTTP client for the Microsoft Graph API
// with automatic retry of idempotent reads and error classification.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, graph.ErrNotFound) to check.
var (
	ErrBadRequest         = errors.New("graph: bad request")
	ErrUnauthorized       = errors.New("graph: unauthorized")
	ErrForbidden          = errors.New("graph: forbidden")
	ErrNotFound           = errors.New("graph: not found")
	ErrConflict           = errors.New("graph: conflict")
	ErrGone               = errors.New("graph: resource gone")
	ErrPreconditionFailed = errors.New("graph: precondition failed")
	ErrTooLarge           = errors.New("graph: payload too large")
	ErrThrottled          = errors.New("graph: throttled")
	ErrLocked             = errors.New("graph: resource locked")
	ErrServerError        = errors.New("graph: server error")
)

// ErrNotLoggedIn is returned when no token file exists for the drive.
var ErrNotLoggedIn = errors.New("graph: not logged in")

// GraphError wraps a sentinel error with HTTP status code, request ID,
// and the API error message body for debugging.
type GraphError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *GraphError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("graph: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("graph: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure is on the remote side and may
// succeed later: throttling, 5xx, or a request timeout.
func (e *GraphError) Temporary() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusGone:
		return ErrGone
	case http.StatusPreconditionFailed:
		return ErrPreconditionFailed
	case http.StatusRequestEntityTooLarge:
		return ErrTooLarge
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusLocked:
		return ErrLocked
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		// 509 Bandwidth Limit Exceeded (SharePoint).
		const statusBandwidthExceeded = 509
		return code == statusBandwidthExceeded
	}
}

// isIdempotent reports whether a request with this method may be replayed.
// Mutations are sent exactly once; the caller decides what to do on failure.
func isIdempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// newGraphError builds a GraphError from a non-2xx response whose body has
// already been read.
func newGraphError(resp *http.Response, body []byte) *GraphError {
	return &GraphError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
		Message:    apiMessage(body),
		Err:        classifyStatus(resp.StatusCode),
	}
}

// errorEnvelope is the Graph API error body: {"error":{"code":..,"message":..}}.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// maxRawMessage caps how much of a non-JSON error body is kept.
const maxRawMessage = 512

// apiMessage extracts the human-readable message from an error body,
// falling back to the (truncated) raw text.
func apiMessage(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		if env.Error.Code != "" {
			return env.Error.Code + ": " + env.Error.Message
		}

		return env.Error.Message
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > maxRawMessage {
		msg = msg[:maxRawMessage]
	}

	return msg
}
