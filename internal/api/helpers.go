package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fieldday/internal/schema"

	"github.com/gin-gonic/gin"
)

func flatten(rec *schema.Entry) map[string]any {
	out := map[string]any{
		"id":         rec.ID,
		"version":    rec.Version,
		"entry_date": rec.EntryDate.Format(time.RFC3339),
		"updated_at": rec.UpdatedAt.Format(time.RFC3339),
	}
	for k, v := range rec.Data {
		// пользовательские имена колонок не перетирают служебные ключи
		if _, clash := out[k]; clash {
			out["data."+k] = v
			continue
		}
		out[k] = v
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

// readExpectedVersion достаёт ожидаемую версию из If-Match или body.version
// и убирает её из payload, чтобы не записать в Data.
func readExpectedVersion(c *gin.Context, obj map[string]any) (int64, bool) {
	if im := strings.Trim(c.GetHeader("If-Match"), `" `); im != "" {
		if n, err := strconv.ParseInt(im, 10, 64); err == nil {
			delete(obj, "version")
			return n, true
		}
	}
	if raw, ok := obj["version"]; ok {
		delete(obj, "version")
		switch t := raw.(type) {
		case float64:
			return int64(t), true
		case string:
			if n, err := strconv.ParseInt(t, 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func statusForErrors(errs []schema.FieldError) int {
	for _, e := range errs {
		if e.Code == ErrVersionConflict || e.Code == ErrIdentifierTaken {
			return http.StatusConflict
		}
		if e.Code == ErrCapacityExceeded {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusBadRequest
}
