// Package apperr defines agentkit's error-kind taxonomy: a small closed
// set of kinds that every public operation's failures are classified
// into, so the transport layer can map them to HTTP status codes
// without inspecting error strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a coarse error classification, modeled on the teacher's
// ToolErrorType enum.
type Kind string

const (
	KindNotFound      Kind = "NOT_FOUND"
	KindInvalidInput  Kind = "INVALID_INPUT"
	KindConflict      Kind = "CONFLICT"
	KindPermission    Kind = "PERMISSION_DENIED"
	KindQuotaExceeded Kind = "QUOTA_EXCEEDED"
	KindUnavailable   Kind = "UNAVAILABLE"
	KindInternal      Kind = "INTERNAL"
	KindCanceled      Kind = "CANCELED"
	KindTimeout       Kind = "TIMEOUT"
)

// Error wraps a cause with a Kind, giving callers a stable thing to
// switch on independent of the underlying message.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for op, wrapping err under kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds an *Error from a formatted message.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// GetKind extracts the Kind from err if it (or something it wraps) is
// an *Error, falling back to matching the package's sentinel errors
// directly (stores are free to return those bare, without wrapping),
// and defaulting to KindInternal otherwise.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyExists):
		return KindConflict
	case errors.Is(err, ErrInvalidState):
		return KindConflict
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, ErrSessionTerminal):
		return KindConflict
	}
	return KindInternal
}

// HTTPStatus maps err's Kind to the HTTP status code the transport
// layer should return.
func HTTPStatus(err error) int {
	switch GetKind(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindPermission:
		return http.StatusForbidden
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindCanceled:
		return 499
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Sentinel errors for conditions checked by multiple packages via
// errors.Is.
var (
	ErrNotFound         = errors.New("apperr: not found")
	ErrAlreadyExists    = errors.New("apperr: already exists")
	ErrInvalidState     = errors.New("apperr: invalid state transition")
	ErrQuotaExceeded    = errors.New("apperr: quota exceeded")
	ErrSessionTerminal  = errors.New("apperr: session already in a terminal state")
)
