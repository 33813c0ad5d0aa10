package errors

import stderrors "errors"

// ErrorResponse is the JSON envelope for HTTP errors: {"error": {...}}.
type ErrorResponse struct {
	Error *AppError `json:"error"`
}

// ToResponse wraps e in the HTTP envelope.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e}
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}

// HasCode reports whether err wraps an AppError with code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// Recovered turns a recovered panic value into an error.
func Recovered(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return New(ErrCodeInternal, "panic").WithDetail("value", v)
}
