package validation

import (
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kbukum/liveview/errors"
)

// structs is built on first use; validator.Validate caches per type.
var structs = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(fieldName)
	return v
})

// Validate checks s against its `validate` tags. Failures come back as one
// INVALID_INPUT AppError listing every field by its json name.
func Validate(s any) error {
	err := structs().Struct(s)
	if err == nil {
		return nil
	}
	failed, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Validation("validation failed").WithCause(err)
	}
	fields := make([]FieldError, 0, len(failed))
	for _, fe := range failed {
		fields = append(fields, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return fieldsError(fields)
}

// fieldName prefers the json tag and falls back to snake_case.
func fieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return toSnakeCase(f.Name)
	}
	return name
}

func describe(fe validator.FieldError) string {
	p := fe.Param()
	sized := isNumber(fe.Kind())
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		if sized {
			return "must be at least " + p
		}
		return "must be at least " + p + " characters"
	case "max", "lte":
		if sized {
			return "must be " + p + " or less"
		}
		return "must be at most " + p + " characters"
	case "gt":
		return "must be greater than " + p
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(p, " ", ", ")
	case "hostname_port":
		return "must be host:port"
	case "uuid":
		return "must be a valid UUID"
	}
	return "is invalid"
}

func isNumber(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
