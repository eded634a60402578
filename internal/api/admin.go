package api

import (
	"net/http"
	"sort"
	"strings"

	"fieldday/internal/reference"

	"github.com/gin-gonic/gin"
)

type reloadReq struct {
	BlocklistRoot string `json:"blocklist_root"` // директория со справочниками *.yaml
}

// AdminReloadHandler перечитывает каталог блок-листов с диска без рестарта.
// Табы, ссылающиеся на исчезнувший справочник, блокируют замену.
func AdminReloadHandler(s *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reloadReq
		if err := c.ShouldBindJSON(&req); err != nil && err != http.ErrBodyNotAllowed {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}

		root := strings.TrimSpace(req.BlocklistRoot)
		if root == "" {
			root = "reference/blocklist"
		}

		next, err := reference.LoadBlocklistCatalog(root)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Blocklist load error", "details": err.Error()})
			return
		}

		// существующие табы не должны остаться без своего справочника
		s.mu.Lock()
		for _, tab := range s.Tabs {
			if tab.Blocklist == "" {
				continue
			}
			if _, ok := next[tab.Blocklist]; !ok {
				s.mu.Unlock()
				c.JSON(http.StatusConflict, gin.H{
					"error": "blocklist in use would disappear",
					"name":  tab.Blocklist,
					"tab":   tab.ID,
				})
				return
			}
		}
		s.Blocklists = next
		s.mu.Unlock()

		c.JSON(http.StatusOK, gin.H{
			"ok":            true,
			"blocklistRoot": root,
			"directories":   len(next),
		})
	}
}

// AdminBlocklistsHandler — список справочников с размерами, для выбора при
// создании таба.
func AdminBlocklistsHandler(s *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.RLock()
		out := make([]gin.H, 0, len(s.Blocklists))
		for name, dir := range s.Blocklists {
			out = append(out, gin.H{"name": name, "codes": len(dir.Codes)})
		}
		s.mu.RUnlock()
		sort.Slice(out, func(i, j int) bool {
			return out[i]["name"].(string) < out[j]["name"].(string)
		})
		c.JSON(http.StatusOK, gin.H{"blocklists": out, "total": len(out)})
	}
}
