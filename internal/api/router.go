// api/router.go
package api

import (
	"github.com/gin-gonic/gin"
)

// NewRouter собирает все маршруты; вынесен отдельно от RunServer ради httptest.
func NewRouter(storage *Storage) *gin.Engine {
	r := gin.Default()

	apiGroup := r.Group("/api")
	{
		// служебные маршруты — СНАЧАЛА, до параметрических
		apiGroup.POST("/admin/reload", AdminReloadHandler(storage))
		apiGroup.GET("/blocklists", AdminBlocklistsHandler(storage))

		apiGroup.POST("/projects", CreateProjectHandler(storage))
		apiGroup.GET("/projects", ListProjectsHandler(storage))
		apiGroup.GET("/projects/:project", GetProjectHandler(storage))
		apiGroup.DELETE("/projects/:project", DeleteProjectHandler(storage))
		apiGroup.POST("/projects/:project/tabs", CreateTabHandler(storage))
		apiGroup.GET("/projects/:project/tabs", ListTabsHandler(storage))

		apiGroup.GET("/tabs/:tab", GetTabHandler(storage))
		apiGroup.DELETE("/tabs/:tab", DeleteTabHandler(storage))
		apiGroup.GET("/tabs/:tab/columns", ListColumnsHandler(storage))
		apiGroup.POST("/tabs/:tab/columns", AddColumnHandler(storage))
		apiGroup.PUT("/tabs/:tab/columns", SaveColumnsHandler(storage))
		apiGroup.POST("/tabs/:tab/identifier", GenerateIDHandler(storage))

		apiGroup.POST("/tabs/:tab/entries/:id/restore", RestoreEntryHandler(storage))

		// обычные CRUD по записям
		apiGroup.POST("/tabs/:tab/entries", CreateEntryHandler(storage))
		apiGroup.GET("/tabs/:tab/entries", ListEntriesHandler(storage))
		apiGroup.GET("/tabs/:tab/entries/:id", GetEntryHandler(storage))
		apiGroup.PUT("/tabs/:tab/entries/:id", UpdateEntryHandler(storage))
		apiGroup.PATCH("/tabs/:tab/entries/:id", PatchEntryHandler(storage))
		apiGroup.DELETE("/tabs/:tab/entries/:id", DeleteEntryHandler(storage))
	}

	return r
}

func RunServer(addr string, storage *Storage) {
	_ = NewRouter(storage).Run(addr)
}
