package validation

import (
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/kbukum/liveview/errors"
)

// FieldError names one failing field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator gathers field errors from hand-written checks on values with no
// struct to carry tags, such as query parameters or either-or bodies.
type Validator struct {
	fields []FieldError
}

// New returns an empty Validator.
func New() *Validator { return &Validator{} }

// Check records message against field unless ok holds.
func (v *Validator) Check(ok bool, field, message string) *Validator {
	if !ok {
		v.fields = append(v.fields, FieldError{Field: field, Message: message})
	}
	return v
}

// OneOf accepts an empty value or one of allowed.
func (v *Validator) OneOf(field, value string, allowed ...string) *Validator {
	return v.Check(value == "" || slices.Contains(allowed, value),
		field, "must be one of: "+strings.Join(allowed, ", "))
}

// UUID accepts an empty value or a parseable UUID.
func (v *Validator) UUID(field, value string) *Validator {
	if value == "" {
		return v
	}
	_, err := uuid.Parse(value)
	return v.Check(err == nil, field, "must be a valid UUID")
}

// Errors returns the recorded field errors in check order.
func (v *Validator) Errors() []FieldError { return v.fields }

// Err is nil when every check passed, otherwise an INVALID_INPUT AppError
// whose details carry the field list.
func (v *Validator) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return fieldsError(v.fields)
}

func fieldsError(fields []FieldError) *errors.AppError {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return errors.Validation(strings.Join(parts, "; ")).WithDetail("fields", fields)
}
