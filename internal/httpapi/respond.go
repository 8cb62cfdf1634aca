package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tonimelisma/onedrive-index/internal/gateway"
)

// Envelope codes that are not gateway kinds.
const (
	codeOK           = "OK"
	codeBadRequest   = "BadRequest"
	codeUnauthorized = "Unauthorized"
	codeNotFound     = "NotFound"
	codeTooLarge     = "TooLarge"
	codeUnsupported  = "UnsupportedMediaType"
)

const maxJSONBody = 1 << 20

// envelope is the body of every JSON response.
type envelope struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps a gateway error kind onto an HTTP status.
func statusFor(kind gateway.Kind) int {
	switch kind {
	case gateway.KindInvalidPath:
		return http.StatusBadRequest
	case gateway.KindTokenInvalid:
		return http.StatusForbidden
	case gateway.KindNotFound:
		return http.StatusNotFound
	case gateway.KindRemoteRejected:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

func (s *Server) writeOK(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	s.writeJSON(w, r, status, envelope{Code: codeOK, Message: message, Data: data})
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.writeJSON(w, r, status, envelope{Code: code, Message: message})
}

// writeError renders a gateway failure. Anything that is not a
// *gateway.Error is reported as the remote being unavailable without its
// text.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var gwErr *gateway.Error
	if !errors.As(err, &gwErr) {
		s.logger.Error("unclassified error",
			slog.String("error", err.Error()),
			slog.String("request_id", RequestID(r.Context())),
		)
		s.writeFailure(w, r, http.StatusServiceUnavailable, string(gateway.KindRemoteUnavailable), "remote storage unavailable")

		return
	}

	s.writeFailure(w, r, statusFor(gwErr.Kind), string(gwErr.Kind), gwErr.Message)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body envelope) {
	body.RequestID = RequestID(r.Context())

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("writing response failed", slog.String("error", err.Error()))
	}
}

// decodeBody reads a JSON request body into dst and validates its struct
// tags. Failures are written to w; the return reports whether to go on.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeFailure(w, r, http.StatusRequestEntityTooLarge, codeTooLarge, "request body too large")
			return false
		}

		s.writeFailure(w, r, http.StatusBadRequest, codeBadRequest, "malformed JSON body")

		return false
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		s.writeFailure(w, r, http.StatusBadRequest, codeBadRequest, "trailing data after JSON body")
		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		s.writeFailure(w, r, http.StatusBadRequest, codeBadRequest, validationMessage(err))
		return false
	}

	return true
}

// validationMessage turns validator errors into one line naming each
// offending field.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
	}

	return "invalid request: " + strings.Join(parts, "; ")
}
