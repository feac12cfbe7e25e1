package biz

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/learning-rag/internal/rag/metrics"
	"github.com/kart-io/learning-rag/internal/rag/store"
	"github.com/kart-io/learning-rag/pkg/infra/tracing"
	errno "github.com/kart-io/learning-rag/pkg/utils/errors"
)

// DefaultLimit 默认返回的块数量。
const DefaultLimit = 8

// RetrieverConfig 检索器配置。
type RetrieverConfig struct {
	// Collection 默认集合名称。
	Collection string
	// Limit 请求未指定时返回的结果数量。
	Limit int
}

// SearchRequest 检索请求。
type SearchRequest struct {
	Query string
	// Topics 非空时只检索这些主题。
	Topics     []string
	Limit      int
	Collection string
}

// RetrievedChunk 检索结果。
type RetrievedChunk struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
	SourceFile string  `json:"source_file"`
	Topic      string  `json:"topic"`
	ChunkIndex int     `json:"chunk_index"`
	CharStart  int     `json:"char_start"`
	CharEnd    int     `json:"char_end"`
	UploadedAt string  `json:"uploaded_at"`
}

// Retriever 负责向量检索。
type Retriever struct {
	embedder *Embedder
	store    store.VectorStore
	config   *RetrieverConfig
	metrics  *metrics.RAGMetrics
}

// NewRetriever 创建检索器实例。
func NewRetriever(embedder *Embedder, vectorStore store.VectorStore, config *RetrieverConfig, m *metrics.RAGMetrics) *Retriever {
	if config.Limit <= 0 {
		config.Limit = DefaultLimit
	}
	return &Retriever{embedder: embedder, store: vectorStore, config: config, metrics: m}
}

// Search 执行检索，结果按分数降序。集合不存在或无匹配时返回空切片。
func (r *Retriever) Search(ctx context.Context, req SearchRequest) ([]RetrievedChunk, error) {
	ctx, span := tracing.StartSpan(ctx, "rag.Search",
		attribute.StringSlice("rag.topics", req.Topics),
		attribute.Int("rag.limit", req.Limit),
	)
	start := time.Now()
	chunks, err := r.search(ctx, req)
	if r.metrics != nil {
		r.metrics.RecordSearch(time.Since(start), err)
	}
	span.SetAttributes(attribute.Int("rag.hits", len(chunks)))
	tracing.End(span, err)
	return chunks, err
}

func (r *Retriever) search(ctx context.Context, req SearchRequest) ([]RetrievedChunk, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errno.ErrValidation.WithMessage("query must not be empty")
	}
	collection := strings.TrimSpace(req.Collection)
	if collection == "" {
		collection = r.config.Collection
	}
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = r.config.Limit
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	filter := store.Filter{Topics: normalizeTopics(req.Topics)}
	hits, err := r.store.Search(ctx, collection, vector, limit, filter)
	if err != nil {
		return nil, storeError(err)
	}

	chunks := make([]RetrievedChunk, len(hits))
	for i, h := range hits {
		chunks[i] = RetrievedChunk{
			ID:         h.ID,
			Text:       h.Payload.Text,
			Score:      h.Score,
			SourceFile: h.Payload.SourceFile,
			Topic:      h.Payload.Topic,
			ChunkIndex: h.Payload.ChunkIndex,
			CharStart:  h.Payload.CharStart,
			CharEnd:    h.Payload.CharEnd,
			UploadedAt: h.Payload.UploadedAt,
		}
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })

	logger.Debugw("Retrieved chunks",
		"collection", collection,
		"topics", filter.Topics,
		"count", len(chunks),
	)
	return chunks, nil
}
