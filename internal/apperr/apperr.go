// Package apperr classifies failures so the HTTP layer can map them to
// distinct status codes while services keep returning plain errors.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is the failure class of an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindUnsupported
	KindUnprocessable
	KindNotFound
	KindUpstream
	KindResource
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnsupported:
		return "unsupported"
	case KindUnprocessable:
		return "unprocessable"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindResource:
		return "resource"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
	// Msg overrides the public message when set.
	Msg string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind. A nil err stays nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithMessage is E with a fixed caller-facing message; err stays in the
// chain for errors.Is and the logs.
func WithMessage(kind Kind, op, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err, Msg: msg}
}

// KindOf returns the outermost kind found in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusCode maps an error to the HTTP status returned to clients.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnsupported:
		return http.StatusUnsupportedMediaType
	case KindUnprocessable:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text shown to callers. Upstream and resource failures
// are reported generically; the detail only goes to the logs.
func PublicMessage(err error) string {
	switch KindOf(err) {
	case KindUpstream:
		return "upstream service failed"
	case KindResource, KindUnknown:
		return "internal error"
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Msg != "" {
			return e.Msg
		}
		return e.Err.Error()
	}
	return err.Error()
}
