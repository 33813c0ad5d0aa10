package logger

// Field keys shared by every stage.
const (
	FieldService   = "service"
	FieldComponent = "component"
	FieldViewID    = "view_id"
	FieldStage     = "stage"
	FieldKey       = "key"
	FieldReason    = "reason"
	FieldCount     = "count"
	FieldOperation = "operation"
	FieldError     = "error"
	FieldDuration  = "duration_ms"
	FieldRequestID = "request_id"
)

// Fields pairs up alternating keys and values. Non-string keys and a
// trailing key without a value are dropped.
//
//	log.Info("flushed", logger.Fields(logger.FieldStage, "sort", logger.FieldCount, 42))
func Fields(kvs ...any) map[string]any {
	m := make(map[string]any, len(kvs)/2)
	for i := 1; i < len(kvs); i += 2 {
		if k, ok := kvs[i-1].(string); ok {
			m[k] = kvs[i]
		}
	}
	return m
}

// ErrorFields describes a failed operation.
func ErrorFields(op string, err error) map[string]any {
	return MergeWithError(map[string]any{FieldOperation: op}, err)
}

// MergeWithError sets the error field on fields, allocating when nil.
func MergeWithError(fields map[string]any, err error) map[string]any {
	if fields == nil {
		fields = map[string]any{}
	}
	fields[FieldError] = err.Error()
	return fields
}
