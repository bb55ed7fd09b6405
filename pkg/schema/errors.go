package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeCycleDetected     = "CYCLE_DETECTED"
	ErrCodeRender            = "RENDER_ERROR"
	ErrCodeExportUnavailable = "EXPORT_UNAVAILABLE"
	ErrCodeNothingRendered   = "NOTHING_RENDERED"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeExpression        = "EXPRESSION_ERROR"
	ErrCodeSessionClosed     = "SESSION_CLOSED"
)

// ArchflowError is the structured error type for all archflow operations.
type ArchflowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Slug    string         `json:"slug,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ArchflowError) Error() string {
	if e.Slug != "" {
		return fmt.Sprintf("[%s] diagram %s: %s", e.Code, e.Slug, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ArchflowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new ArchflowError.
func NewError(code, message string) *ArchflowError {
	return &ArchflowError{Code: code, Message: message}
}

// NewErrorf creates a new ArchflowError with a formatted message.
func NewErrorf(code, format string, args ...any) *ArchflowError {
	return &ArchflowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithSlug attaches a diagram slug to the error.
func (e *ArchflowError) WithSlug(slug string) *ArchflowError {
	e.Slug = slug
	return e
}

// WithCause attaches an underlying cause.
func (e *ArchflowError) WithCause(err error) *ArchflowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ArchflowError) WithDetails(details map[string]any) *ArchflowError {
	e.Details = details
	return e
}

// IsCode reports whether err is an ArchflowError carrying the given code.
func IsCode(err error, code string) bool {
	for err != nil {
		if ae, ok := err.(*ArchflowError); ok {
			return ae.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
