package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"fieldday/internal/schema"

	"github.com/gin-gonic/gin"
)

// ===== PROJECTS =====

// POST /api/projects
func CreateProjectHandler(s *Storage) gin.HandlerFunc {
	type req struct {
		Name string `json:"name" binding:"required"`
	}
	return func(c *gin.Context) {
		var r req
		if err := c.ShouldBindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}

		p := &Project{ID: s.newID(), Name: r.Name, CreatedAt: time.Now().UTC()}

		s.mu.Lock()
		if s.store != nil {
			if err := s.store.SaveProject(c.Request.Context(), p.ID, p.Name, p.CreatedAt); err != nil {
				s.mu.Unlock()
				c.JSON(http.StatusBadGateway, gin.H{"error": "Persistence failure", "details": err.Error()})
				return
			}
		}
		s.Projects[p.ID] = p
		s.mu.Unlock()

		c.JSON(http.StatusCreated, p)
	}
}

// GET /api/projects
func ListProjectsHandler(s *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.RLock()
		out := make([]*Project, 0, len(s.Projects))
		for _, p := range s.Projects {
			out = append(out, p)
		}
		s.mu.RUnlock()
		c.JSON(http.StatusOK, out)
	}
}

// GET /api/projects/:project
func GetProjectHandler(s *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.RLock()
		p := s.Projects[c.Param("project")]
		s.mu.RUnlock()
		if p == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// DELETE /api/projects/:project — только пустой проект
func DeleteProjectHandler(s *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("project")

		s.mu.Lock()
		if _, ok := s.Projects[id]; !ok {
			s.mu.Unlock()
			c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
			return
		}
		for _, t := range s.Tabs {
			if t.ProjectID == id {
				s.mu.Unlock()
				c.JSON(http.StatusConflict, gin.H{"error": "Project still has tabs"})
				return
			}
		}
		if s.store != nil {
			if err := s.store.DeleteProject(c.Request.Context(), id); err != nil {
				s.mu.Unlock()
				c.JSON(http.StatusBadGateway, gin.H{"error": "Persistence failure", "details": err.Error()})
				return
			}
		}
		delete(s.Projects, id)
		s.mu.Unlock()

		c.Status(http.StatusNoContent)
	}
}

// ===== TABS =====

// POST /api/projects/:project/tabs
func CreateTabHandler(s *Storage) gin.HandlerFunc {
	type req struct {
		Name      string `json:"name" binding:"required"`
		MaxLetter string `json:"max_letter"`
		MaxNumber int    `json:"max_number"`
		Blocklist string `json:"blocklist"`
	}
	return func(c *gin.Context) {
		var r req
		if err := c.ShouldBindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
		tab, err := s.CreateTab(c.Param("project"), r.Name, r.MaxLetter, r.MaxNumber, r.Blocklist)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if s.store != nil {
			ctx := c.Request.Context()
			if err := s.store.SaveTab(ctx, tabRecord(tab)); err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": "Persistence failure", "details": err.Error()})
				return
			}
			cols, _ := s.ColumnsOf(tab.ID)
			for _, col := range cols {
				if err := s.store.SaveColumn(ctx, tab.ID, col); err != nil {
					c.JSON(http.StatusBadGateway, gin.H{"error": "Persistence failure", "details": err.Error()})
					return
				}
			}
		}
		c.JSON(http.StatusCreated, tab)
	}
}

// GET /api/projects/:project/tabs
func ListTabsHandler(s *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("project")

		s.mu.RLock()
		_, ok := s.Projects[projectID]
		out := make([]*Tab, 0)
		for _, t := range s.Tabs {
			if t.ProjectID == projectID {
				out = append(out, t)
			}
		}
		s.mu.RUnlock()

		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// GET /api/tabs/:tab
func GetTabHandler(s *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.RLock()
		t := s.Tabs[c.Param("tab")]
		s.mu.RUnlock()
		if t == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tab not found"})
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// DELETE /api/tabs/:tab — таб уносит с собой колонки и записи
func DeleteTabHandler(s *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("tab")

		s.mu.Lock()
		if _, ok := s.Tabs[id]; !ok {
			s.mu.Unlock()
			c.JSON(http.StatusNotFound, gin.H{"error": "Tab not found"})
			return
		}
		if s.store != nil {
			if err := s.store.DeleteTab(c.Request.Context(), id); err != nil {
				s.mu.Unlock()
				c.JSON(http.StatusBadGateway, gin.H{"error": "Persistence failure", "details": err.Error()})
				return
			}
		}
		delete(s.Tabs, id)
		delete(s.Columns, id)
		delete(s.Entries, id)
		s.mu.Unlock()

		c.Status(http.StatusNoContent)
	}
}

// ===== ENTRIES =====

// POST /api/tabs/:tab/entries
func CreateEntryHandler(s *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		tabID := c.Param("tab")
		cols, ok := s.ColumnsOf(tabID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tab not found"})
			return
		}

		var obj map[string]any
		if err := c.ShouldBindJSON(&obj); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}

		// Валидация — БЕЗ write-lock
		if errs := ValidateEntry(cols, obj); len(errs) > 0 {
			c.JSON(statusForErrors(errs), gin.H{"errors": errs})
			return
		}
		if errs := checkIdentifierFree(s, tabID, cols, obj, ""); len(errs) > 0 {
			c.JSON(statusForErrors(errs), gin.H{"errors": errs})
			return
		}

		now := time.Now().UTC()
		rec := &schema.Entry{
			ID:        s.newID(),
			Version:   1,
			EntryDate: now,
			UpdatedAt: now,
			Data:      obj,
		}

		// Запись — под write-lock; персист до правки памяти
		s.mu.Lock()
		if s.Entries[tabID] == nil {
			s.mu.Unlock()
			c.JSON(http.StatusNotFound, gin.H{"error": "Tab not found"})
			return
		}
		if s.store != nil {
			if err := s.store.UpsertEntry(c.Request.Context(), tabID, rec); err != nil {
				s.mu.Unlock()
				c.JSON(http.StatusBadGateway, gin.H{"error": "Persistence failure", "details": err.Error()})
				return
			}
		}
		s.Entries[tabID][rec.ID] = rec
		s.mu.Unlock()

		c.JSON(http.StatusCreated, flatten(rec))
	}
}

// GET /api/tabs/:tab/entries
func ListEntriesHandler(s *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		tabID := c.Param("tab")
		showDeleted := c.Query("deleted") == "true"

		s.mu.RLock()
		recMap, ok := s.Entries[tabID]
		all := make([]*schema.Entry, 0, len(recMap))
		for _, r := range recMap {
			if r.Deleted && !showDeleted {
				continue
			}
			all = append(all, r)
		}
		s.mu.RUnlock()

		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tab not found"})
			return
		}

		lp := parseListParams(c.Request.URL.Query())
		filtered := filterEntries(all, lp)
		sortEntriesMulti(filtered, lp.Sort, lp.Nulls)

		start := lp.Offset
		if start > len(filtered) {
			start = len(filtered)
		}
		end := start + lp.Limit
		if end > len(filtered) {
			end = len(filtered)
		}
		page := filtered[start:end]

		out := make([]map[string]any, 0, len(page))
		for _, rec := range page {
			out = append(out, flatten(rec))
		}
		c.Header("X-Total-Count", strconv.Itoa(len(filtered)))
		c.JSON(http.StatusOK, out)
	}
}

// GET /api/tabs/:tab/entries/:id
func GetEntryHandler(s *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		tabID := c.Param("tab")
		id := c.Param("id")

		s.mu.RLock()
		rec := s.Entries[tabID][id]
		s.mu.RUnlock()
		if rec == nil || rec.Deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
			return
		}
		c.Header("ETag", fmt.Sprintf(`"%d"`, rec.Version))
		c.JSON(http.StatusOK, flatten(rec))
	}
}

// PATCH /api/tabs/:tab/entries/:id
func PatchEntryHandler(s *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		tabID := c.Param("tab")
		id := c.Param("id")

		cols, ok := s.ColumnsOf(tabID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tab not found"})
			return
		}

		var patch map[string]any
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}

		// ожидаемую версию читаем ДО того, как уберём version из payload
		expVer, okExp := readExpectedVersion(c, patch)

		// --- читаем текущую запись под RLock
		s.mu.RLock()
		rec := s.Entries[tabID][id]
		var curVer int64
		var current map[string]any
		if rec != nil && !rec.Deleted {
			curVer = rec.Version
			current = copyData(rec.Data)
		}
		s.mu.RUnlock()
		if rec == nil || rec.Deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
			return
		}

		if !okExp || expVer != curVer {
			c.JSON(http.StatusConflict, gin.H{
				"errors": []schema.FieldError{ferr(ErrVersionConflict, "version",
					fmt.Sprintf("expected version %d", curVer))},
			})
			return
		}

		// merge + validate без локов
		merged := make(map[string]any, len(current)+len(patch))
		for k, v := range current {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}

		if errs := ValidateEntry(cols, merged); len(errs) > 0 {
			c.JSON(statusForErrors(errs), gin.H{"errors": errs})
			return
		}
		if errs := checkIdentifierFree(s, tabID, cols, merged, id); len(errs) > 0 {
			c.JSON(statusForErrors(errs), gin.H{"errors": errs})
			return
		}

		// применяем под write-lock c повторной проверкой версии
		now := time.Now().UTC()
		s.mu.Lock()
		rec2 := s.Entries[tabID][id]
		if rec2 == nil || rec2.Deleted {
			s.mu.Unlock()
			c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
			return
		}
		if rec2.Version != curVer {
			s.mu.Unlock()
			c.JSON(http.StatusConflict, gin.H{
				"errors": []schema.FieldError{ferr(ErrVersionConflict, "version",
					fmt.Sprintf("expected version %d", rec2.Version))},
			})
			return
		}
		next := *rec2
		next.Data = merged
		next.Version++
		next.UpdatedAt = now
		if s.store != nil {
			if err := s.store.UpsertEntry(c.Request.Context(), tabID, &next); err != nil {
				s.mu.Unlock()
				c.JSON(http.StatusBadGateway, gin.H{"error": "Persistence failure", "details": err.Error()})
				return
			}
		}
		*rec2 = next
		s.mu.Unlock()

		c.JSON(http.StatusOK, flatten(rec2))
	}
}

// PUT /api/tabs/:tab/entries/:id — полная замена Data (в отличие от PATCH)
func UpdateEntryHandler(s *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		tabID := c.Param("tab")
		id := c.Param("id")

		cols, ok := s.ColumnsOf(tabID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tab not found"})
			return
		}

		var obj map[string]any
		if err := c.ShouldBindJSON(&obj); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
		expVer, okExp := readExpectedVersion(c, obj)

		if errs := ValidateEntry(cols, obj); len(errs) > 0 {
			c.JSON(statusForErrors(errs), gin.H{"errors": errs})
			return
		}
		if errs := checkIdentifierFree(s, tabID, cols, obj, id); len(errs) > 0 {
			c.JSON(statusForErrors(errs), gin.H{"errors": errs})
			return
		}

		now := time.Now().UTC()
		s.mu.Lock()
		rec := s.Entries[tabID][id]
		if rec == nil || rec.Deleted {
			s.mu.Unlock()
			c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
			return
		}
		if !okExp || expVer != rec.Version {
			cur := rec.Version
			s.mu.Unlock()
			c.JSON(http.StatusConflict, gin.H{
				"errors": []schema.FieldError{ferr(ErrVersionConflict, "version",
					fmt.Sprintf("expected version %d", cur))},
			})
			return
		}
		next := *rec
		next.Data = obj
		next.Version++
		next.UpdatedAt = now
		if s.store != nil {
			if err := s.store.UpsertEntry(c.Request.Context(), tabID, &next); err != nil {
				s.mu.Unlock()
				c.JSON(http.StatusBadGateway, gin.H{"error": "Persistence failure", "details": err.Error()})
				return
			}
		}
		*rec = next
		s.mu.Unlock()

		c.JSON(http.StatusOK, flatten(rec))
	}
}

// DELETE /api/tabs/:tab/entries/:id  (soft delete)
func DeleteEntryHandler(s *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		tabID := c.Param("tab")
		id := c.Param("id")

		s.mu.Lock()
		rec := s.Entries[tabID][id]
		if rec == nil || rec.Deleted {
			s.mu.Unlock()
			c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
			return
		}
		next := *rec
		next.Deleted = true
		next.UpdatedAt = time.Now().UTC()
		next.Version++
		if s.store != nil {
			if err := s.store.SetEntryDeleted(c.Request.Context(), tabID, id, true, next.Version); err != nil {
				s.mu.Unlock()
				c.JSON(http.StatusBadGateway, gin.H{"error": "Persistence failure", "details": err.Error()})
				return
			}
		}
		*rec = next
		s.mu.Unlock()

		c.Status(http.StatusNoContent)
	}
}

// POST /api/tabs/:tab/entries/:id/restore
func RestoreEntryHandler(s *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		tabID := c.Param("tab")
		id := c.Param("id")

		s.mu.Lock()
		rec := s.Entries[tabID][id]
		if rec == nil {
			s.mu.Unlock()
			c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
			return
		}
		if rec.Deleted {
			next := *rec
			next.Deleted = false
			next.UpdatedAt = time.Now().UTC()
			next.Version++
			if s.store != nil {
				if err := s.store.SetEntryDeleted(c.Request.Context(), tabID, id, false, next.Version); err != nil {
					s.mu.Unlock()
					c.JSON(http.StatusBadGateway, gin.H{"error": "Persistence failure", "details": err.Error()})
					return
				}
			}
			*rec = next
		}
		s.mu.Unlock()
		c.JSON(http.StatusOK, flatten(rec))
	}
}

// checkIdentifierFree: Entry ID должен быть свободен в скоупе identifier domain
// (точное совпадение всех доменных значений), а не глобально по табу.
func checkIdentifierFree(s *Storage, tabID string, cols []schema.Column, data map[string]any, exceptID string) []schema.FieldError {
	entryID := stringify(data[schema.ColumnEntryID])
	if entryID == "" {
		return nil
	}
	used := s.UsedIdentifiers(Scope{TabID: tabID}, domainValuesOf(cols, data), exceptID)
	if _, taken := used[entryID]; taken {
		return []schema.FieldError{ferr(ErrIdentifierTaken, schema.ColumnEntryID,
			fmt.Sprintf("Entry ID %q is already used", entryID))}
	}
	return nil
}

// domainValuesOf — значения identifier-domain колонок записи (без самой autoId).
func domainValuesOf(cols []schema.Column, data map[string]any) map[string]string {
	out := make(map[string]string)
	for _, col := range cols {
		if !col.IdentifierDomain || col.Type == schema.TypeAutoID {
			continue
		}
		out[col.Name] = stringify(data[col.Name])
	}
	return out
}
