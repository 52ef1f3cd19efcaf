package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouterConfig carries the controllers and settings for NewRouter.
type RouterConfig struct {
	UserHeader string
	Notes      *NotesController
	Chat       *ChatController
	// Ready reports dependency health for /health; nil means always healthy.
	Ready func() error
}

// NewRouter builds the gin engine with every route of the service.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), Recovery(), CORSMiddleware(cfg.UserHeader))

	router.GET("/health", func(c *gin.Context) {
		if cfg.Ready != nil {
			if err := cfg.Ready(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "AI Notes API",
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "AI Notes API",
			"version": "1.0.0",
		})
	})

	api := router.Group("/api", IdentityMiddleware(cfg.UserHeader))
	{
		api.GET("/notes", cfg.Notes.ListNotes)
		api.POST("/notes", cfg.Notes.CreateNote)
		api.PUT("/notes", cfg.Notes.UpdateNote)
		api.DELETE("/notes", cfg.Notes.DeleteNote)
		api.POST("/notes/import", cfg.Notes.ImportNote)
		api.POST("/chat", cfg.Chat.Chat)
	}

	return router
}
