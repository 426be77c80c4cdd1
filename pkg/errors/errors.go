package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
)

// Standard error types
var (
	ErrNotFound    = errors.New("resource not found")
	ErrBadRequest  = errors.New("bad request")
	ErrConflict    = errors.New("resource conflict")
	ErrInternal    = errors.New("internal server error")
	ErrValidation  = errors.New("validation error")
	ErrTransport   = errors.New("transport failure")
	ErrPayload     = errors.New("unexpected payload shape")
	ErrRender      = errors.New("render failure")
	ErrUnavailable = errors.New("capability unavailable")
	ErrStale       = errors.New("superseded refresh cycle")
)

// Kind classifies dashboard failures so callers can pick the right user-facing reaction.
type Kind string

const (
	KindNone        Kind = ""
	KindValidation  Kind = "validation"
	KindTransport   Kind = "transport"
	KindPayload     Kind = "payload"
	KindRender      Kind = "render"
	KindUnavailable Kind = "unavailable"
	KindStale       Kind = "stale"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindInternal    Kind = "internal"
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	MessageKey string            `json:"-"` // i18n key for localization
	Params     map[string]string `json:"-"` // Parameters for i18n interpolation
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
	Kind       Kind              `json:"kind,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Localize returns a localized version of the error message
func (e *AppError) Localize(ctx context.Context) string {
	if e.MessageKey == "" {
		return e.Message
	}
	return i18n.TFromContext(ctx, e.MessageKey, e.Params)
}

// LocalizeWith returns a localized version using a specific localizer
func (e *AppError) LocalizeWith(l *i18n.Localizer) string {
	if e.MessageKey == "" {
		return e.Message
	}
	return l.T(e.MessageKey, e.Params)
}

// LocalizedMessage words any error for the user of l. Errors that are not
// AppErrors keep their own text.
func LocalizedMessage(err error, l *i18n.Localizer) string {
	var appErr *AppError
	if As(err, &appErr) {
		return appErr.LocalizeWith(l)
	}
	return err.Error()
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewWithKey creates a new AppError with an i18n key
func NewWithKey(code string, messageKey string, statusCode int, params ...map[string]string) *AppError {
	var p map[string]string
	if len(params) > 0 {
		p = params[0]
	}
	return &AppError{
		Code:       code,
		Message:    i18n.T(messageKey, p),
		MessageKey: messageKey,
		Params:     p,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithCause attaches an underlying error while keeping the kind sentinel reachable through Is.
func (e *AppError) WithCause(err error) *AppError {
	if err == nil {
		return e
	}
	if e.Err != nil {
		e.Err = fmt.Errorf("%w: %w", e.Err, err)
	} else {
		e.Err = err
	}
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		MessageKey: "errors.not_found",
		Params:     map[string]string{"resource": resource},
		StatusCode: http.StatusNotFound,
		Kind:       KindNotFound,
	}
}

// NotFoundWithKey creates a not found error with localized resource name
func NotFoundWithKey(resourceKey string) *AppError {
	resourceName := i18n.T("resources." + resourceKey)
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resourceName),
		MessageKey: "errors.not_found",
		Params:     map[string]string{"resource": resourceName},
		StatusCode: http.StatusNotFound,
		Kind:       KindNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		MessageKey: "errors.bad_request",
		StatusCode: http.StatusBadRequest,
		Kind:       KindValidation,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		MessageKey: "errors.conflict",
		StatusCode: http.StatusConflict,
		Kind:       KindConflict,
	}
}

// ConflictWithKey creates a conflict error with a localized message
func ConflictWithKey(messageKey string, params ...map[string]string) *AppError {
	e := NewWithKey("CONFLICT", messageKey, http.StatusConflict, params...)
	e.Err = ErrConflict
	e.Kind = KindConflict
	return e
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		MessageKey: "errors.internal",
		StatusCode: http.StatusInternalServerError,
		Kind:       KindInternal,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		MessageKey: "errors.validation_failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
		Kind:       KindValidation,
	}
}

// InvalidInput is a validation failure whose user-facing text comes from messageKey.
// Filter checks and form checks use it so the alert text is localized.
func InvalidInput(messageKey string, params ...map[string]string) *AppError {
	e := NewWithKey("VALIDATION_ERROR", messageKey, http.StatusUnprocessableEntity, params...)
	e.Err = ErrValidation
	e.Kind = KindValidation
	return e
}

// Transport reports a failed or non-2xx backend request.
func Transport(endpoint string, status int, cause error) *AppError {
	e := &AppError{
		Err:        ErrTransport,
		Code:       "BACKEND_UNAVAILABLE",
		Message:    fmt.Sprintf("request to %s failed", endpoint),
		MessageKey: "errors.transport",
		StatusCode: http.StatusBadGateway,
		Kind:       KindTransport,
		Details:    map[string]string{"endpoint": endpoint},
	}
	if status != 0 {
		e.Details["status"] = fmt.Sprintf("%d", status)
	}
	return e.WithCause(cause)
}

// Payload reports a response that decoded but lacks a required structure.
func Payload(path string, cause error) *AppError {
	e := &AppError{
		Err:        ErrPayload,
		Code:       "UNEXPECTED_PAYLOAD",
		Message:    fmt.Sprintf("payload missing %s", path),
		MessageKey: "errors.payload",
		StatusCode: http.StatusBadGateway,
		Kind:       KindPayload,
		Details:    map[string]string{"path": path},
	}
	return e.WithCause(cause)
}

// Render reports a widget or chart that could not be built.
func Render(target string, cause error) *AppError {
	e := &AppError{
		Err:        ErrRender,
		Code:       "RENDER_FAILED",
		Message:    fmt.Sprintf("render of %s failed", target),
		MessageKey: "errors.render",
		StatusCode: http.StatusInternalServerError,
		Kind:       KindRender,
		Details:    map[string]string{"target": target},
	}
	return e.WithCause(cause)
}

// Unavailable reports a missing optional capability, such as the chart factory.
func Unavailable(capability string) *AppError {
	return &AppError{
		Err:        ErrUnavailable,
		Code:       "CAPABILITY_UNAVAILABLE",
		Message:    fmt.Sprintf("%s is not available", capability),
		MessageKey: "errors.unavailable",
		StatusCode: http.StatusServiceUnavailable,
		Kind:       KindUnavailable,
	}
}

// Stale marks a response that arrived after a newer refresh cycle started.
func Stale(cycle uint64) *AppError {
	return &AppError{
		Err:        ErrStale,
		Code:       "STALE_CYCLE",
		Message:    fmt.Sprintf("cycle %d superseded", cycle),
		MessageKey: "errors.stale",
		StatusCode: http.StatusConflict,
		Kind:       KindStale,
	}
}

// KindOf returns the failure kind of err, or KindNone when err carries none.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindNone
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
