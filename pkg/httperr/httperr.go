package httperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind partitions failures the way callers need to tell them apart:
// a bad invocation, a missing record, a failing collaborator, unusable extractor output.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindUpstream    Kind = "upstream"
	KindPartialData Kind = "partial_data"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any

	// Upstream only.
	UpstreamStatus int

	cause error
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = e.Code
	}
	if e.Kind == KindUpstream && e.UpstreamStatus != 0 {
		return fmt.Sprintf("%s: upstream status %d: %s", e.Code, e.UpstreamStatus, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

func NewValidation(code string, msg string) error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func NewValidationDetails(code string, msg string, details map[string]any) error {
	return &Error{Kind: KindValidation, Code: code, Message: msg, Details: details}
}

func NewNotFound(code string, msg string) error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func NewConflict(code string, msg string) error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

// NewUpstream wraps a failed collaborator call. status is the collaborator's
// status code when it answered, 0 when the call never completed.
func NewUpstream(code string, status int, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: KindUpstream, Code: code, Message: msg, UpstreamStatus: status, cause: cause}
}

func NewPartialData(code string, msg string, cause error) error {
	return &Error{Kind: KindPartialData, Code: code, Message: msg, cause: cause}
}

// WithDetail returns err with key=value added to its details. Errors outside
// the taxonomy get the pair appended to their message instead.
func WithDetail(err error, key string, value any) error {
	e, ok := errors.AsType[*Error](err)
	if !ok || e == nil {
		if err == nil {
			return nil
		}
		return fmt.Errorf("%w (%s=%v)", err, key, value)
	}
	out := *e
	out.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		out.Details[k] = v
	}
	out.Details[key] = value
	return &out
}

func KindOf(err error) (Kind, bool) {
	if e, ok := errors.AsType[*Error](err); ok && e != nil {
		return e.Kind, true
	}
	return "", false
}

func CodeOf(err error) string {
	if e, ok := errors.AsType[*Error](err); ok && e != nil {
		return e.Code
	}
	return ""
}

func IsValidation(err error) bool  { return isKind(err, KindValidation) }
func IsNotFound(err error) bool    { return isKind(err, KindNotFound) }
func IsConflict(err error) bool    { return isKind(err, KindConflict) }
func IsUpstream(err error) bool    { return isKind(err, KindUpstream) }
func IsPartialData(err error) bool { return isKind(err, KindPartialData) }

func isKind(err error, kind Kind) bool {
	got, ok := KindOf(err)
	return ok && got == kind
}

// StatusCode maps an error onto the HTTP status the API answers with.
func StatusCode(err error) int {
	kind, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	case KindPartialData:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
