package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/tonimelisma/onedrive-index/internal/captoken"
	"github.com/tonimelisma/onedrive-index/internal/graph"
	"github.com/tonimelisma/onedrive-index/internal/pathcodec"
	"github.com/tonimelisma/onedrive-index/internal/resolver"
)

// ErrLocked is returned by Open when an ancestor folder's lock marker does
// not match the supplied password.
var ErrLocked = errors.New("gateway: folder is locked")

// Kind classifies a failed operation. The set is closed: every error an
// operation returns carries exactly one of these.
type Kind string

// Error kinds.
const (
	KindInvalidPath       Kind = "InvalidPath"
	KindTokenInvalid      Kind = "TokenInvalid"
	KindNotFound          Kind = "NotFound"
	KindRemoteRejected    Kind = "RemoteRejected"
	KindRemoteUnavailable Kind = "RemoteUnavailable"
)

// Error is the only error type gateway operations return.
type Error struct {
	Op      string
	Kind    Kind
	Message string // safe to show to the caller
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or "" when err is not a *Error.
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}

	return ""
}

// normalize maps any failure onto the closed taxonomy. Unknown errors,
// transport failures and deadlines are treated as the remote being
// unavailable.
func normalize(op string, err error) *Error {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}

	e := &Error{Op: op, Err: err}

	var graphErr *graph.GraphError

	switch {
	case errors.Is(err, captoken.ErrTokenInvalid):
		// Never echo token material or the decryption detail.
		e.Kind, e.Message = KindTokenInvalid, "invalid or tampered token"
	case errors.Is(err, ErrLocked):
		e.Kind, e.Message = KindTokenInvalid, "folder is locked, password required"
	case errors.Is(err, pathcodec.ErrInvalidPath):
		e.Kind, e.Message = KindInvalidPath, err.Error()
	case errors.Is(err, resolver.ErrNotFolder):
		e.Kind, e.Message = KindInvalidPath, err.Error()
	case errors.Is(err, resolver.ErrNotFound):
		e.Kind, e.Message = KindNotFound, err.Error()
	case errors.As(err, &graphErr):
		e.Message = graphErr.Message
		if e.Message == "" {
			e.Message = fmt.Sprintf("remote returned status %d", graphErr.StatusCode)
		}

		if graphErr.Temporary() {
			e.Kind = KindRemoteUnavailable
		} else {
			e.Kind = KindRemoteRejected
		}
	case errors.Is(err, graph.ErrTooLarge), errors.Is(err, graph.ErrNoDownloadURL):
		e.Kind, e.Message = KindRemoteRejected, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		e.Kind, e.Message = KindRemoteUnavailable, "remote request timed out"
	default:
		e.Kind, e.Message = KindRemoteUnavailable, "remote storage unavailable"
	}

	return e
}

// invalidInput builds an InvalidPath error for argument problems that are
// not path syntax, such as a destination that is not a folder.
func invalidInput(op, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)

	return &Error{Op: op, Kind: KindInvalidPath, Message: msg, Err: fmt.Errorf("%w: %s", pathcodec.ErrInvalidPath, msg)}
}
