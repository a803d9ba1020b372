// Package router provides document QA service routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docquery/internal/docquery/handler"
	"github.com/kart-io/docquery/internal/pkg/middleware"
)

// Register registers the document QA routes.
func Register(engine *gin.Engine, h *handler.Handler) {
	logger.Info("Registering document QA routes...")

	engine.Use(middleware.RequestID())

	engine.GET("/healthz", h.Healthz)
	engine.GET("/metrics", h.Metrics)

	v1 := engine.Group("/v1")
	{
		docs := v1.Group("/documents")
		{
			docs.POST("", h.Ingest)
			docs.GET("", h.ListDocuments)
			docs.GET("/:id", h.GetDocument)
			docs.DELETE("/:id", h.DeleteDocument)
		}

		v1.POST("/ask", h.Ask)
		v1.POST("/search", h.Search)
		v1.GET("/stats", h.Stats)
	}

	logger.Info("HTTP routes registered")
}
