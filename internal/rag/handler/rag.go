// Package handler provides HTTP handlers for RAG service.
package handler

import (
	"errors"
	"strings"

	"github.com/kart-io/learning-rag/internal/rag/biz"
	"github.com/kart-io/learning-rag/internal/rag/metrics"
	"github.com/kart-io/learning-rag/pkg/component"
	"github.com/kart-io/learning-rag/pkg/infra/pool"
	"github.com/kart-io/learning-rag/pkg/llm"
	"github.com/kart-io/learning-rag/pkg/llm/resilience"
	errno "github.com/kart-io/learning-rag/pkg/utils/errors"
	"github.com/kart-io/learning-rag/pkg/utils/validator"
)

// ServiceName is reported by /health.
const ServiceName = "learning-rag-api"

// Deps are the collaborators of RAGHandler. Optional fields may be nil.
type Deps struct {
	Indexer   *biz.Indexer
	Retriever *biz.Retriever
	Registry  *biz.Registry
	Generator *biz.Generator
	Metrics   *metrics.RAGMetrics

	// Pools, Breaker and EmbeddingCache only feed /stats.
	Pools          *pool.Manager
	Breaker        *resilience.CircuitBreaker
	EmbeddingCache *llm.CachedEmbeddingProvider

	// Components are pinged by /ready.
	Components []component.Component

	// MaxUploadSize bounds a single uploaded file in bytes.
	MaxUploadSize int64
}

// RAGHandler handles RAG HTTP requests.
type RAGHandler struct {
	deps Deps
}

// NewRAGHandler creates a new RAGHandler.
func NewRAGHandler(deps Deps) *RAGHandler {
	if deps.MaxUploadSize <= 0 {
		deps.MaxUploadSize = 32 << 20
	}
	return &RAGHandler{deps: deps}
}

// bindError turns a binding failure into a validation error with a readable message.
func bindError(err error) error {
	var verrs *validator.ValidationErrors
	if errors.As(err, &verrs) {
		return errno.ErrValidation.WithMessage(strings.Join(verrs.Messages(), "; "))
	}
	return errno.ErrValidation.WithCause(err)
}

// topicsFilter returns the topics echoed back to clients, never nil.
func topicsFilter(topics []string) []string {
	if topics == nil {
		return []string{}
	}
	return topics
}
