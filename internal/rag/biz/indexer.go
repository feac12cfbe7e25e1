package biz

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/learning-rag/internal/rag/extract"
	"github.com/kart-io/learning-rag/internal/rag/metrics"
	"github.com/kart-io/learning-rag/internal/rag/store"
	"github.com/kart-io/learning-rag/pkg/infra/pool"
	"github.com/kart-io/learning-rag/pkg/infra/tracing"
	errno "github.com/kart-io/learning-rag/pkg/utils/errors"
)

// chunkNamespace 文档块 ID 的 UUIDv5 命名空间。
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/kart-io/learning-rag/chunks"))

// ChunkID 返回 (topic, file, index) 对应的确定性 ID，重复索引同一文件会覆盖同一批记录。
func ChunkID(topic, sourceFile string, index int) string {
	name := topic + "\x00" + sourceFile + "\x00" + strconv.Itoa(index)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

// IndexerConfig 索引器配置。
type IndexerConfig struct {
	// Collection 默认集合名称。
	Collection string
	// ScanBatchSize 清理旧块时的扫描页大小。
	ScanBatchSize int
}

// IndexRequest 单个文档的索引请求。
type IndexRequest struct {
	Content    string
	Filename   string
	Topic      string
	Collection string
	// UploadedAt 为零值时使用当前时间。
	UploadedAt time.Time
}

// IndexResult 索引结果。
type IndexResult struct {
	ChunksIndexed int      `json:"chunks_indexed"`
	Filename      string   `json:"filename"`
	Topic         string   `json:"topic"`
	Collection    string   `json:"collection"`
	Errors        []string `json:"errors,omitempty"`
}

// FileUpload 一个待提取和索引的上传文件。
type FileUpload struct {
	Filename   string
	Data       []byte
	Topic      string
	Collection string
	UploadedAt time.Time
}

// FileResult 多文件上传中单个文件的结果，Err 非空表示该文件失败。
type FileResult struct {
	*IndexResult
	Err error
}

// Indexer 负责文档索引：分块、向量化、写入向量库。
type Indexer struct {
	chunker  *Chunker
	embedder *Embedder
	store    store.VectorStore
	topics   *TopicIndex
	pool     *pool.Pool
	config   *IndexerConfig
	metrics  *metrics.RAGMetrics
	now      func() time.Time
}

// NewIndexer 创建索引器。topics 与 p 可以为 nil。
func NewIndexer(
	chunker *Chunker,
	embedder *Embedder,
	vectorStore store.VectorStore,
	topics *TopicIndex,
	p *pool.Pool,
	config *IndexerConfig,
	m *metrics.RAGMetrics,
) *Indexer {
	if config.ScanBatchSize <= 0 {
		config.ScanBatchSize = 256
	}
	return &Indexer{
		chunker:  chunker,
		embedder: embedder,
		store:    vectorStore,
		topics:   topics,
		pool:     p,
		config:   config,
		metrics:  m,
		now:      time.Now,
	}
}

// IndexDocument 索引一个已提取文本的文档。
// 向量化失败时不写入任何记录；重复索引同一文件会覆盖原有块并删除多余的旧块。
func (i *Indexer) IndexDocument(ctx context.Context, req IndexRequest) (result *IndexResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "rag.IndexDocument",
		attribute.String("rag.topic", req.Topic),
		attribute.String("rag.filename", req.Filename),
	)
	defer func() { tracing.End(span, err) }()

	result, stale, err := i.indexDocument(ctx, req)
	if i.metrics != nil {
		chunks := 0
		if result != nil {
			chunks = result.ChunksIndexed
		}
		i.metrics.RecordIndexing(chunks, stale, err)
	}
	return result, err
}

func (i *Indexer) indexDocument(ctx context.Context, req IndexRequest) (*IndexResult, int, error) {
	topic, err := normalizeTopic(req.Topic)
	if err != nil {
		return nil, 0, err
	}
	if err := checkFilename(req.Filename); err != nil {
		return nil, 0, err
	}
	collection := i.collection(req.Collection)
	if err := checkCollection(collection); err != nil {
		return nil, 0, err
	}

	result := &IndexResult{Filename: req.Filename, Topic: topic, Collection: collection}

	chunks := i.chunker.Split(req.Content)
	if len(chunks) == 0 {
		result.Errors = append(result.Errors, "document produced no chunks")
		return result, 0, nil
	}

	texts := make([]string, len(chunks))
	for idx, c := range chunks {
		texts[idx] = c.Text
	}
	vectors, err := i.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, 0, err
	}

	if err := i.store.EnsureCollection(ctx, collection, len(vectors[0])); err != nil {
		return nil, 0, storeError(err)
	}
	if i.topics != nil {
		defer i.topics.Invalidate(collection)
	}

	uploadedAt := req.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = i.now()
	}
	stamp := uploadedAt.UTC().Format(time.RFC3339)

	points := make([]store.Point, len(chunks))
	for idx, c := range chunks {
		points[idx] = store.Point{
			ID:     ChunkID(topic, req.Filename, c.Index),
			Vector: vectors[idx],
			Payload: store.Payload{
				Topic:      topic,
				SourceFile: req.Filename,
				ChunkIndex: c.Index,
				CharStart:  c.Start,
				CharEnd:    c.End,
				UploadedAt: stamp,
				Text:       c.Text,
			},
		}
	}
	if err := i.store.Upsert(ctx, collection, points); err != nil {
		return nil, 0, storeError(err)
	}
	result.ChunksIndexed = len(points)

	stale, err := i.removeStale(ctx, collection, topic, req.Filename, len(points))
	if err != nil {
		logger.Warnw("Failed to remove stale chunks",
			"collection", collection,
			"topic", topic,
			"filename", req.Filename,
			"error", err.Error(),
		)
		result.Errors = append(result.Errors, "stale chunk cleanup failed: "+err.Error())
	}

	logger.Infow("Document indexed",
		"collection", collection,
		"topic", topic,
		"filename", req.Filename,
		"chunks", result.ChunksIndexed,
		"stale_removed", stale,
	)
	return result, stale, nil
}

// removeStale 删除该文件 chunk_index >= keep 的旧块。
func (i *Indexer) removeStale(ctx context.Context, collection, topic, filename string, keep int) (int, error) {
	filter := store.Filter{Topics: []string{topic}, SourceFile: filename}

	var stale []string
	cursor := ""
	for {
		page, err := i.store.Scan(ctx, collection, store.ScanRequest{
			Filter: filter,
			Cursor: cursor,
			Limit:  i.config.ScanBatchSize,
		})
		if err != nil {
			return 0, storeError(err)
		}
		for _, p := range page.Points {
			if p.Payload.ChunkIndex >= keep {
				stale = append(stale, p.ID)
			}
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if len(stale) == 0 {
		return 0, nil
	}

	deleted, err := i.store.Delete(ctx, collection, stale)
	if err != nil {
		return 0, storeError(err)
	}
	return deleted, nil
}

// IndexUpload 提取上传文件的文本并索引。
func (i *Indexer) IndexUpload(ctx context.Context, upload FileUpload) (*IndexResult, error) {
	if err := checkFilename(upload.Filename); err != nil {
		return nil, err
	}
	text, err := extract.Extract(upload.Filename, upload.Data)
	if err != nil {
		return nil, extractError(err)
	}
	return i.IndexDocument(ctx, IndexRequest{
		Content:    text,
		Filename:   upload.Filename,
		Topic:      upload.Topic,
		Collection: upload.Collection,
		UploadedAt: upload.UploadedAt,
	})
}

// IndexFiles 并发索引多个文件，单个文件失败不影响其他文件。结果顺序与输入一致。
func (i *Indexer) IndexFiles(ctx context.Context, uploads []FileUpload) []*FileResult {
	results := make([]*FileResult, len(uploads))
	run := func(idx int) {
		res, err := i.IndexUpload(ctx, uploads[idx])
		if res == nil {
			res = &IndexResult{
				Filename:   uploads[idx].Filename,
				Topic:      strings.TrimSpace(uploads[idx].Topic),
				Collection: i.collection(uploads[idx].Collection),
			}
		}
		results[idx] = &FileResult{IndexResult: res, Err: err}
	}

	if i.pool == nil || len(uploads) == 1 {
		for idx := range uploads {
			run(idx)
		}
		return results
	}

	g := pool.NewGroup(ctx, i.pool)
	for idx := range uploads {
		g.Go(func(context.Context) error {
			run(idx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for idx, r := range results {
			if r == nil {
				results[idx] = &FileResult{
					IndexResult: &IndexResult{Filename: uploads[idx].Filename, Collection: i.collection(uploads[idx].Collection)},
					Err:         err,
				}
			}
		}
	}
	return results
}

func (i *Indexer) collection(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return i.config.Collection
}

func extractError(err error) error {
	switch {
	case errors.Is(err, extract.ErrUnsupported), errors.Is(err, extract.ErrEmpty):
		return errno.ErrValidation.WithCause(err)
	default:
		return errno.ErrExtraction.WithCause(err)
	}
}
