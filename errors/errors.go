package errors

import "fmt"

// AppError carries a code from the taxonomy plus whatever context the
// detecting stage had. It serializes as the body of an HTTP error.
type AppError struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	Cause     error          `json:"-"`
}

// New builds an AppError; retryability follows the code.
func New(code ErrorCode, format string, args ...any) *AppError {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &AppError{Code: code, Message: msg, Retryable: IsRetryableCode(code)}
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return string(e.Code) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches any *AppError with the same code, so
// errors.Is(err, TornDown()) works through wrapping.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Status is the HTTP status for e's code.
func (e *AppError) Status() int { return e.Code.Status() }

// WithCause attaches the underlying error.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail adds one key to Details.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// ProjectionFailed reports a projector error for key.
func ProjectionFailed(key any, cause error) *AppError {
	return New(ErrCodeProjectionFailed, "projection failed for key %v", key).
		WithDetail("key", key).WithCause(cause)
}

// PredicateFailed reports a predicate that errored or panicked for key.
func PredicateFailed(key any, cause error) *AppError {
	return New(ErrCodePredicateFailed, "predicate failed for key %v", key).
		WithDetail("key", key).WithCause(cause)
}

// PageOutOfRange reports a request past the last of pages.
func PageOutOfRange(requested, pages int) *AppError {
	return New(ErrCodePageOutOfRange, "page %d exceeds %d available pages", requested, pages).
		WithDetail("requested", requested).WithDetail("pages", pages)
}

func TornDown() *AppError {
	return New(ErrCodeTornDown, "the view has been torn down")
}

func Timeout(operation string) *AppError {
	return New(ErrCodeTimeout, "%s timed out", operation).WithDetail("operation", operation)
}

// Unavailable reports a resource that is disabled or unreachable.
func Unavailable(resource string) *AppError {
	return New(ErrCodeUnavailable, "%s is unavailable", resource).WithDetail("resource", resource)
}

func RateLimited(limiter string) *AppError {
	return New(ErrCodeRateLimited, "rate limit exceeded").WithDetail("limiter", limiter)
}

// InvariantViolation reports a stage cache disagreeing with a change set.
func InvariantViolation(stage, reason string) *AppError {
	return New(ErrCodeInvariantViolation, "%s: %s", stage, reason).WithDetail("stage", stage)
}

// InvalidInput names the offending field when there is one.
func InvalidInput(field, reason string) *AppError {
	e := New(ErrCodeInvalidInput, "invalid input: %s", reason)
	if field != "" {
		e.WithDetail("field", field)
	}
	return e
}

// Validation is InvalidInput with a preformatted message.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Message: message}
}

func NotFound(resource, id string) *AppError {
	e := New(ErrCodeNotFound, "%s not found", resource).WithDetail("resource", resource)
	if id != "" {
		e.WithDetail("id", id)
	}
	return e
}

// Internal hides cause from clients behind a generic message.
func Internal(cause error) *AppError {
	return New(ErrCodeInternal, "an unexpected error occurred").WithCause(cause)
}
