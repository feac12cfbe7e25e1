package biz

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kart-io/learning-rag/internal/rag/metrics"
	"github.com/kart-io/learning-rag/internal/rag/store"
	"github.com/kart-io/learning-rag/pkg/llm"
	"github.com/kart-io/learning-rag/pkg/llm/resilience"
)

const testDim = 8

// letterVector 按字符分桶的确定性向量，内容相似的文本得分更高。
func letterVector(text string) []float32 {
	v := make([]float32, testDim)
	v[0] = 1
	for _, r := range text {
		v[int(r)%testDim]++
	}
	return v
}

type fakeEmbedder struct {
	calls atomic.Int32
	// fail 返回非 nil 时该次调用失败。
	fail func(call int32, texts []string) error
	// short 为 true 时少返回一个向量。
	short bool
	// block 为 true 时阻塞到 ctx 结束。
	block bool
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	call := f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.fail != nil {
		if err := f.fail(call, texts); err != nil {
			return nil, err
		}
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, letterVector(t))
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	v, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

var _ llm.EmbeddingProvider = (*fakeEmbedder)(nil)

// fakeChat 记录最后一次提示词，流式输出 fragments。
type fakeChat struct {
	mu        sync.Mutex
	prompt    string
	system    string
	answer    string
	err       error
	block     bool
	fragments []string
	streamErr error
	stream    *fakeStream
}

func (f *fakeChat) Name() string { return "fake-chat" }

func (f *fakeChat) record(prompt, system string) {
	f.mu.Lock()
	f.prompt, f.system = prompt, system
	f.mu.Unlock()
}

func (f *fakeChat) Generate(ctx context.Context, prompt, system string) (string, error) {
	f.record(prompt, system)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeChat) GenerateStream(ctx context.Context, prompt, system string) (llm.TokenStream, error) {
	f.record(prompt, system)
	if f.err != nil {
		return nil, f.err
	}
	f.stream = &fakeStream{ctx: ctx, fragments: f.fragments, err: f.streamErr, block: f.block}
	return f.stream, nil
}

var _ llm.ChatProvider = (*fakeChat)(nil)

type fakeStream struct {
	ctx       context.Context
	fragments []string
	err       error
	block     bool
	recvs     atomic.Int32
	closed    atomic.Bool
}

func (s *fakeStream) Recv() (string, error) {
	n := int(s.recvs.Add(1))
	if n <= len(s.fragments) {
		return s.fragments[n-1], nil
	}
	if s.block {
		<-s.ctx.Done()
		return "", s.ctx.Err()
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

// faultyStore 在第 failDeleteAt 次 Delete 时返回错误。
type faultyStore struct {
	store.VectorStore
	deletes      atomic.Int32
	failDeleteAt int32
	upserts      atomic.Int32
}

var errInjected = errors.New("injected failure")

func (s *faultyStore) Delete(ctx context.Context, collection string, ids []string) (int, error) {
	if s.deletes.Add(1) == s.failDeleteAt {
		return 0, errInjected
	}
	return s.VectorStore.Delete(ctx, collection, ids)
}

func (s *faultyStore) Upsert(ctx context.Context, collection string, points []store.Point) error {
	s.upserts.Add(1)
	return s.VectorStore.Upsert(ctx, collection, points)
}

func fastRetry() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    time.Millisecond,
		MaxDelay:        2 * time.Millisecond,
		Multiplier:      2,
		RetryableErrors: func(error) bool { return true },
	}
}

const testCollection = "learning_docs"

// fixture 在内存向量库上组装完整的业务组件。
type fixture struct {
	store     store.VectorStore
	embedder  *fakeEmbedder
	chat      *fakeChat
	metrics   *metrics.RAGMetrics
	indexer   *Indexer
	retriever *Retriever
	registry  *Registry
	generator *Generator
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	store      store.VectorStore
	chunkSize  int
	overlap    int
	batchSize  int
	topicCache bool
	budget     int
	timeout    time.Duration
}

func withStore(s store.VectorStore) fixtureOption {
	return func(c *fixtureConfig) { c.store = s }
}

func withChunking(size, overlap int) fixtureOption {
	return func(c *fixtureConfig) { c.chunkSize, c.overlap = size, overlap }
}

func withJobBatch(n int) fixtureOption {
	return func(c *fixtureConfig) { c.batchSize = n }
}

func withTopicCache() fixtureOption {
	return func(c *fixtureConfig) { c.topicCache = true }
}

func withChatTimeout(d time.Duration) fixtureOption {
	return func(c *fixtureConfig) { c.timeout = d }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := &fixtureConfig{store: store.NewMemoryStore(), chunkSize: 40, overlap: 10, batchSize: 256}
	for _, opt := range opts {
		opt(cfg)
	}

	chunker, err := NewChunker(cfg.chunkSize, cfg.overlap)
	require.NoError(t, err)

	m := metrics.New()
	emb := &fakeEmbedder{}
	chat := &fakeChat{answer: "42"}
	embedder := NewEmbedder(emb, nil, &EmbedderConfig{BatchSize: 4, Timeout: time.Second, Retry: fastRetry()}, m)
	topics := NewTopicIndex(cfg.store, TopicIndexConfig{Enabled: cfg.topicCache, TTL: time.Minute})
	registry := NewRegistry(cfg.store, topics, NewMemoryCheckpointStore(),
		&RegistryConfig{Collection: testCollection, BatchSize: cfg.batchSize}, m)
	retriever := NewRetriever(embedder, cfg.store, &RetrieverConfig{Collection: testCollection}, m)

	return &fixture{
		store:     cfg.store,
		embedder:  emb,
		chat:      chat,
		metrics:   m,
		indexer:   NewIndexer(chunker, embedder, cfg.store, topics, nil, &IndexerConfig{Collection: testCollection}, m),
		retriever: retriever,
		registry:  registry,
		generator: NewGenerator(retriever, chat, &GeneratorConfig{
			Prompt:  PromptConfig{Budget: cfg.budget},
			Timeout: cfg.timeout,
		}, m),
	}
}

func (f *fixture) index(t *testing.T, topic, filename, content string) *IndexResult {
	t.Helper()
	res, err := f.indexer.IndexDocument(context.Background(), IndexRequest{
		Content:  content,
		Filename: filename,
		Topic:    topic,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	n, err := f.store.Count(context.Background(), testCollection)
	require.NoError(t, err)
	return n
}

const biologyText = "Cells are the basic unit of life. Mitochondria produce energy for the cell. " +
	"DNA stores genetic information in the nucleus. Ribosomes build proteins from amino acids."

const historyText = "The Roman Empire reached its greatest extent under Trajan. " +
	"Rome was founded, according to legend, by Romulus and Remus."
