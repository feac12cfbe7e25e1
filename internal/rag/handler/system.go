package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/learning-rag/internal/rag/metrics"
	"github.com/kart-io/learning-rag/pkg/component"
	"github.com/kart-io/learning-rag/pkg/infra/app"
	"github.com/kart-io/learning-rag/pkg/infra/pool"
	"github.com/kart-io/learning-rag/pkg/llm"
	"github.com/kart-io/learning-rag/pkg/llm/resilience"
	"github.com/kart-io/learning-rag/pkg/utils/response"
)

const readyTimeout = 3 * time.Second

// StatsResponse is the response of GET /stats.
type StatsResponse struct {
	RAG            metrics.Snapshot         `json:"rag"`
	Pools          []pool.Stats             `json:"pools,omitempty"`
	CircuitBreaker *resilience.BreakerStats `json:"circuit_breaker,omitempty"`
	EmbeddingCache *llm.EmbeddingCacheStats `json:"embedding_cache,omitempty"`
}

// Root describes the service.
func (h *RAGHandler) Root(c *gin.Context) {
	response.OK(c, gin.H{
		"message": "Learning RAG API",
		"version": app.GetVersion(),
		"docs":    "/health, /stats, /index/upload, /topics, /search, /chat",
	})
}

// Health is the liveness probe. It does not touch dependencies.
func (h *RAGHandler) Health(c *gin.Context) {
	response.OK(c, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   ServiceName,
	})
}

// Ready pings every dependency.
func (h *RAGHandler) Ready(c *gin.Context) {
	statuses, ok := component.CheckAll(c.Request.Context(), readyTimeout, h.deps.Components...)
	status, code := "ready", http.StatusOK
	if !ok {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "components": statuses})
}

// Version returns build information.
func (h *RAGHandler) Version(c *gin.Context) {
	response.OK(c, app.GetVersionInfo())
}

// Stats returns runtime statistics.
func (h *RAGHandler) Stats(c *gin.Context) {
	out := StatsResponse{}
	if h.deps.Metrics != nil {
		out.RAG = h.deps.Metrics.Snapshot()
	}
	if h.deps.Pools != nil {
		out.Pools = h.deps.Pools.Stats()
	}
	if h.deps.Breaker != nil {
		st := h.deps.Breaker.Stats()
		out.CircuitBreaker = &st
	}
	if h.deps.EmbeddingCache != nil {
		st := h.deps.EmbeddingCache.Stats()
		out.EmbeddingCache = &st
	}
	response.OK(c, out)
}

// Metrics exports metrics in the Prometheus text format.
func (h *RAGHandler) Metrics(c *gin.Context) {
	if h.deps.Metrics == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(h.deps.Metrics.Export("learning_rag")))
}

