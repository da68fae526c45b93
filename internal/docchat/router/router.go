// Package router provides docchat service routing.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docchat/internal/docchat/handler"
	"github.com/kart-io/docchat/internal/docchat/metrics"
)

// Register registers the docchat service routes.
func Register(engine *gin.Engine, h *handler.DocChatHandler) {
	logger.Info("Registering docchat routes...")

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", func(c *gin.Context) {
		c.String(http.StatusOK, metrics.Get().Export("docchat", "service"))
	})

	v1 := engine.Group("/v1")
	{
		dc := v1.Group("/docchat")
		{
			// Document endpoints
			dc.POST("/documents", h.UploadDocument)
			dc.GET("/documents", h.ListDocuments)
			dc.GET("/documents/:id", h.GetDocument)
			dc.DELETE("/documents/:id", h.DeleteDocument)

			// Question endpoint
			dc.POST("/ask", h.Ask)

			// Conversation endpoints
			dc.POST("/conversations/:id/documents", h.AssociateDocument)
			dc.GET("/conversations/:id/context", h.GetContext)
			dc.PUT("/conversations/:id/page", h.SetPage)
			dc.GET("/conversations/:id/history", h.History)
			dc.DELETE("/conversations/:id", h.DeleteConversation)

			// Stats endpoint
			dc.GET("/stats", h.Stats)
		}
	}

	logger.Info("HTTP routes registered")
}
