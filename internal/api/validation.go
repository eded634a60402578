package api

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fieldday/internal/schema"
)

// Коды ошибок, которыми будем пользоваться
const (
	ErrRequired         = "required"
	ErrTypeMismatch     = "type_mismatch"
	ErrOptionInvalid    = "option_invalid"
	ErrUnknownField     = "unknown_field"
	ErrReadOnly         = "readonly_field"
	ErrNotFound         = "not_found"
	ErrVersionConflict  = "version_conflict"
	ErrIdentifierTaken  = "identifier_taken"
	ErrCapacityExceeded = "capacity_exceeded"
)

func ferr(code, field, msg string) schema.FieldError {
	return schema.FieldError{Code: code, Field: field, Message: msg}
}

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`) // YYYY-MM-DD

// ValidateEntry валидирует и НОРМАЛИЗУЕТ data записи под колонки таба.
// Ключи — имена колонок; служебные колонки (Actions, Date & Time) в data
// не пишутся, неизвестные ключи — ошибка, а не молчаливый пропуск.
func ValidateEntry(cols []schema.Column, data map[string]any) []schema.FieldError {
	var errs []schema.FieldError

	colByName := make(map[string]schema.Column, len(cols))
	for _, col := range cols {
		if col.Order < 0 {
			continue // Actions и Date & Time — чисто интерфейсные
		}
		colByName[col.Name] = col
	}

	// 1) required: значение должно быть и быть непустым
	for _, col := range colByName {
		if !col.Required {
			continue
		}
		v, ok := data[col.Name]
		if !ok || isEmptyValue(v) {
			errs = append(errs, ferr(ErrRequired, col.Name, "Field '"+col.Name+"' is required"))
		}
	}

	// 2) типы + нормализация
	for name, val := range data {
		col, ok := colByName[name]
		if !ok {
			code := ErrUnknownField
			if name == schema.ColumnActions || name == schema.ColumnDateTime {
				code = ErrReadOnly
			}
			errs = append(errs, ferr(code, name, "Field '"+name+"' is not an editable column"))
			continue
		}
		if isEmptyValue(val) {
			continue // пустое опциональное поле — ок, required уже проверен
		}
		norm, err := coerceValue(col, val)
		if err != nil {
			code := ErrTypeMismatch
			if col.Type == schema.TypeMultipleChoice {
				code = ErrOptionInvalid
			}
			errs = append(errs, ferr(code, name, "Field '"+name+"' "+err.Error()))
			continue
		}
		data[name] = norm
	}

	return errs
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(t)
		return s == "" || s == "Select"
	default:
		return false
	}
}

// coerceValue приводит значение к каноническому виду для типа колонки.
// Switch полный по DataType: новый тип не скомпилируется молча.
func coerceValue(col schema.Column, v any) (any, error) {
	switch col.Type {
	case schema.TypeNumber:
		return toFloatStrict(v)
	case schema.TypeWholeNumber:
		return toIntStrict(v)
	case schema.TypeDecimalNumber:
		return toFloatStrict(v)
	case schema.TypeDate:
		s, err := toStringStrict(v)
		if err != nil {
			return nil, err
		}
		if !dateRe.MatchString(s) {
			return nil, errors.New("must match YYYY-MM-DD")
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return nil, errors.New("invalid date")
		}
		return s, nil
	case schema.TypeText:
		return toStringStrict(v)
	case schema.TypeMultipleChoice:
		s, err := toStringStrict(v)
		if err != nil {
			return nil, err
		}
		for _, opt := range col.EntryOptions {
			if s == opt {
				return s, nil
			}
		}
		return nil, fmt.Errorf("value '%s' is not allowed", s)
	case schema.TypeAutoID:
		return toStringStrict(v)
	}
	return nil, fmt.Errorf("unknown type %q", string(col.Type))
}

func toStringStrict(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	default:
		return "", errors.New("must be string")
	}
}

func toIntStrict(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		// JSON числа приходят как float64 — проверяем целостность
		if t != float64(int64(t)) {
			return 0, errors.New("must be integer")
		}
		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, errors.New("must be integer")
		}
		return n, nil
	default:
		return 0, errors.New("must be integer")
	}
}

func toFloatStrict(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, errors.New("must be number")
		}
		return f, nil
	default:
		return 0, errors.New("must be number")
	}
}
