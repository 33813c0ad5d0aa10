package errors

import "net/http"

// ErrorCode is the machine-readable kind of an AppError.
type ErrorCode string

// Per-item failures, absorbed by the stage that detects them.
const (
	ErrCodeProjectionFailed ErrorCode = "PROJECTION_FAILED"
	ErrCodePredicateFailed  ErrorCode = "PREDICATE_FAILED"
	ErrCodePageOutOfRange   ErrorCode = "PAGE_OUT_OF_RANGE"
)

// Lifecycle.
const (
	ErrCodeTornDown    ErrorCode = "TORN_DOWN"
	ErrCodeTimeout     ErrorCode = "TIMEOUT"
	ErrCodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
)

// Caller input.
const (
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
)

// Bugs: a stage cache disagreeing with a change set, or anything unexpected.
const (
	ErrCodeInvariantViolation ErrorCode = "INVARIANT_VIOLATION"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

type codeInfo struct {
	status    int
	retryable bool
}

var codes = map[ErrorCode]codeInfo{
	ErrCodeProjectionFailed:   {http.StatusUnprocessableEntity, true},
	ErrCodePredicateFailed:    {http.StatusUnprocessableEntity, false},
	ErrCodePageOutOfRange:     {http.StatusRequestedRangeNotSatisfiable, false},
	ErrCodeTornDown:           {http.StatusServiceUnavailable, false},
	ErrCodeTimeout:            {http.StatusGatewayTimeout, true},
	ErrCodeUnavailable:        {http.StatusServiceUnavailable, true},
	ErrCodeRateLimited:        {http.StatusTooManyRequests, true},
	ErrCodeInvalidInput:       {http.StatusBadRequest, false},
	ErrCodeNotFound:           {http.StatusNotFound, false},
	ErrCodeInvariantViolation: {http.StatusInternalServerError, false},
	ErrCodeInternal:           {http.StatusInternalServerError, false},
}

// IsRetryableCode reports whether failures with code may succeed on retry.
func IsRetryableCode(code ErrorCode) bool {
	return codes[code].retryable
}

// Status maps code to an HTTP status; unknown codes are 500.
func (c ErrorCode) Status() int {
	if info, ok := codes[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}
