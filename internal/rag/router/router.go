// Package router provides RAG service routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/learning-rag/internal/rag/handler"
)

// Register registers the RAG service routes.
func Register(engine *gin.Engine, h *handler.RAGHandler) {
	logger.Info("Registering RAG routes...")

	// System
	engine.GET("/", h.Root)
	engine.GET("/health", h.Health)
	engine.GET("/ready", h.Ready)
	engine.GET("/version", h.Version)
	engine.GET("/stats", h.Stats)
	engine.GET("/metrics", h.Metrics)

	// Indexing
	engine.POST("/index/upload", h.Upload)

	// Collections
	engine.GET("/collections", h.ListCollections)
	engine.DELETE("/collections/:name", h.DropCollection)

	// Topics
	topics := engine.Group("/topics")
	{
		topics.GET("", h.ListTopics)
		topics.GET("/:topic/files", h.ListFiles)
		topics.DELETE("/:topic/files/:filename", h.DeleteFile)
		topics.DELETE("/:topic", h.DeleteTopic)
		topics.PUT("/:topic", h.RenameTopic)
	}

	// Retrieval & generation
	engine.POST("/search", h.Search)
	engine.POST("/chat", h.Chat)

	logger.Info("RAG routes registered")
}
