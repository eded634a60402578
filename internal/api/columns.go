package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fieldday/internal/codes"
	"fieldday/internal/schema"

	"github.com/gin-gonic/gin"
)

// GET /api/tabs/:tab/columns
func ListColumnsHandler(s *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		tabID := c.Param("tab")

		s.mu.RLock()
		tab := s.Tabs[tabID]
		var version int64
		if tab != nil {
			version = tab.SchemaVersion
		}
		s.mu.RUnlock()
		if tab == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tab not found"})
			return
		}
		cols, _ := s.ColumnsOf(tabID)
		c.JSON(http.StatusOK, gin.H{
			"columns":        SortedColumns(cols),
			"schema_version": version,
		})
	}
}

// POST /api/tabs/:tab/columns — добавление одной колонки
func AddColumnHandler(s *Storage) gin.HandlerFunc {
	type req struct {
		Name             string   `json:"name" binding:"required"`
		DataType         string   `json:"dataType" binding:"required"`
		Required         bool     `json:"requiredField"`
		IdentifierDomain bool     `json:"identifierDomain"`
		EntryOptions     []string `json:"entryOptions"`
	}
	return func(c *gin.Context) {
		tabID := c.Param("tab")

		var r req
		if err := c.ShouldBindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}

		typ, ok := schema.ParseDataType(r.DataType)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"errors": []schema.FieldError{
				ferr(schema.ErrInvalidType, "dataType", fmt.Sprintf("Unknown data type %q", r.DataType)),
			}})
			return
		}
		name := strings.TrimSpace(r.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"errors": []schema.FieldError{
				ferr(schema.ErrEmptyName, "name", "Column name cannot be empty"),
			}})
			return
		}
		if typ == schema.TypeMultipleChoice && len(r.EntryOptions) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"errors": []schema.FieldError{
				ferr(schema.ErrInvalidOptions, name, "Dropdown needs at least one option"),
			}})
			return
		}
		if typ != schema.TypeMultipleChoice {
			r.EntryOptions = nil
		}

		col := schema.Column{
			ID:               s.newID(),
			Name:             name,
			Type:             typ,
			Required:         r.Required,
			IdentifierDomain: r.IdentifierDomain,
			EntryOptions:     r.EntryOptions,
		}

		s.mu.Lock()
		tab := s.Tabs[tabID]
		if tab == nil {
			s.mu.Unlock()
			c.JSON(http.StatusNotFound, gin.H{"error": "Tab not found"})
			return
		}
		maxOrder := 0
		for _, existing := range s.Columns[tabID] {
			if strings.EqualFold(existing.Name, name) {
				s.mu.Unlock()
				c.JSON(http.StatusBadRequest, gin.H{"errors": []schema.FieldError{
					ferr(schema.ErrDuplicateName, name, fmt.Sprintf("Column %q already exists", name)),
				}})
				return
			}
			if existing.Order > maxOrder {
				maxOrder = existing.Order
			}
		}
		col.Order = maxOrder + 1

		if s.store != nil {
			ctx := c.Request.Context()
			if err := s.store.SaveColumn(ctx, tabID, col); err != nil {
				s.mu.Unlock()
				c.JSON(http.StatusBadGateway, gin.H{"error": "Persistence failure", "details": err.Error()})
				return
			}
		}
		s.Columns[tabID] = append(s.Columns[tabID], col)
		tab.SchemaVersion++
		s.mu.Unlock()

		c.JSON(http.StatusCreated, col)
	}
}

// PUT /api/tabs/:tab/columns — батчевое сохранение правок колонок.
// Последовательность жёсткая: валидация Registry → патчи строк от
// ПРЕД-коммитного снапшота → атомарное применение. Не переставлять.
func SaveColumnsHandler(s *Storage) gin.HandlerFunc {
	type changeReq struct {
		ID               string    `json:"id" binding:"required"`
		Name             *string   `json:"name"`
		DataType         *string   `json:"dataType"`
		Order            *int      `json:"order"`
		Required         *bool     `json:"requiredField"`
		IdentifierDomain *bool     `json:"identifierDomain"`
		EntryOptions     *[]string `json:"entryOptions"`
		Delete           bool      `json:"delete"`
	}
	type req struct {
		SchemaVersion int64       `json:"schema_version"`
		Changes       []changeReq `json:"changes"`
	}
	return func(c *gin.Context) {
		tabID := c.Param("tab")
		cols, ok := s.ColumnsOf(tabID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tab not found"})
			return
		}

		var r req
		if err := c.ShouldBindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}

		// 1) стейджим правки поверх снапшота
		reg := schema.NewRegistry(cols)
		for _, ch := range r.Changes {
			staged := schema.Change{
				Name:             ch.Name,
				Order:            ch.Order,
				Required:         ch.Required,
				IdentifierDomain: ch.IdentifierDomain,
				EntryOptions:     ch.EntryOptions,
				Delete:           ch.Delete,
			}
			if ch.DataType != nil {
				// невалидный тип дойдёт до Registry и вернётся ошибкой валидации
				typ := schema.DataType(*ch.DataType)
				staged.Type = &typ
			}
			reg.Propose(ch.ID, staged)
		}

		// 2) валидация на коммите — любая ошибка блокирует весь батч
		batch, errs := reg.ValidateAndCommit()
		if len(errs) > 0 {
			s.notify(NotifyError, "Column changes were not saved")
			c.JSON(statusForErrors(errs), gin.H{"errors": errs})
			return
		}

		// пустой коммит не жжёт версию схемы
		if batch.Empty() {
			s.mu.RLock()
			var version int64
			if tab := s.Tabs[tabID]; tab != nil {
				version = tab.SchemaVersion
			}
			s.mu.RUnlock()
			c.JSON(http.StatusOK, gin.H{
				"columns":        SortedColumns(cols),
				"schema_version": version,
				"patched_rows":   0,
			})
			return
		}

		// 3) патчи строк считаем от пред-коммитного снапшота колонок
		patches := schema.PropagateBatch(batch.Renames, batch.DeletedNames, s.EntriesOf(tabID))

		// 4) атомарное применение с CAS по версии схемы
		if err := s.ApplySchemaBatch(c.Request.Context(), tabID, r.SchemaVersion, batch, patches); err != nil {
			var conflict *VersionConflictError
			if errors.As(err, &conflict) {
				c.JSON(http.StatusConflict, gin.H{"errors": []schema.FieldError{
					ferr(ErrVersionConflict, "schema_version",
						fmt.Sprintf("expected schema version %d", conflict.Expected)),
				}})
				return
			}
			s.notify(NotifyError, "Column changes were not saved")
			c.JSON(http.StatusBadGateway, gin.H{"error": "Persistence failure", "details": err.Error()})
			return
		}

		s.notify(NotifySuccess, "Column changes saved")
		next, _ := s.ColumnsOf(tabID)
		s.mu.RLock()
		var version int64
		if tab := s.Tabs[tabID]; tab != nil {
			version = tab.SchemaVersion
		}
		s.mu.RUnlock()
		c.JSON(http.StatusOK, gin.H{
			"columns":        SortedColumns(next),
			"schema_version": version,
			"patched_rows":   len(patches),
		})
	}
}

// POST /api/tabs/:tab/identifier — детерминированная генерация Entry ID.
func GenerateIDHandler(s *Storage) gin.HandlerFunc {
	type req struct {
		Desired     string            `json:"desired"`
		FieldValues map[string]string `json:"fieldValues"`
	}
	return func(c *gin.Context) {
		tabID := c.Param("tab")

		s.mu.RLock()
		tab := s.Tabs[tabID]
		s.mu.RUnlock()
		if tab == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tab not found"})
			return
		}
		cols, _ := s.ColumnsOf(tabID)

		var r req
		if err := c.ShouldBindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}

		// доменные поля должны быть заполнены ДО генерации — иначе подсказка
		domainValues := make(map[string]string)
		var missing []string
		for _, col := range SortedColumns(cols) {
			if !col.IdentifierDomain || col.Type == schema.TypeAutoID {
				continue
			}
			v := strings.TrimSpace(r.FieldValues[col.Name])
			if v == "" || v == codes.SelectPlaceholder {
				missing = append(missing, col.Name)
				continue
			}
			domainValues[col.Name] = v
		}
		if len(missing) > 0 {
			c.JSON(http.StatusOK, gin.H{
				"identifier": codes.Allocate("", nil, nil, missing),
				"complete":   false,
			})
			return
		}

		// занятые коды перечитываем каждый раз — никакого кэша между вызовами
		scope := Scope{ProjectID: tab.ProjectID, TabID: tabID}
		used := s.UsedIdentifiers(scope, domainValues, "")

		cands, err := codes.Generate(tab.MaxLetter[0], tab.MaxNumber, s.BlockSetOf(tab))
		if err != nil {
			if errors.Is(err, codes.ErrCapacityExceeded) {
				s.notify(NotifyError, "Too many code combinations - narrow the letter or number range")
				c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": []schema.FieldError{
					ferr(ErrCapacityExceeded, "identifier", err.Error()),
				}})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id := codes.Allocate(r.Desired, used, cands, nil)
		exhausted := id == codes.NoCodesMessage
		if exhausted {
			s.notify(NotifyInfo, codes.NoCodesMessage)
		}
		c.JSON(http.StatusOK, gin.H{
			"identifier": id,
			"complete":   true,
			"exhausted":  exhausted,
		})
	}
}
