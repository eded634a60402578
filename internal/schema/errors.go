package schema

// FieldError — ошибка валидации, привязанная к полю/колонке.
type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Коды ошибок валидации схемы
const (
	ErrDuplicateOrder = "duplicate_order"
	ErrDuplicateName  = "duplicate_name"
	ErrInvalidOptions = "invalid_options"
	ErrInvalidType    = "invalid_type"
	ErrReservedColumn = "reserved_column"
	ErrUnknownColumn  = "unknown_column"
	ErrEmptyName      = "empty_name"
)

func ferr(code, field, msg string) FieldError {
	return FieldError{Code: code, Field: field, Message: msg}
}
