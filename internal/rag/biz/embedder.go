package biz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/learning-rag/internal/rag/metrics"
	"github.com/kart-io/learning-rag/pkg/infra/pool"
	"github.com/kart-io/learning-rag/pkg/llm"
	"github.com/kart-io/learning-rag/pkg/llm/resilience"
	errno "github.com/kart-io/learning-rag/pkg/utils/errors"
)

// EmbeddingFailure 某个批次在重试耗尽后仍失败。
type EmbeddingFailure struct {
	// Batch 批次序号（从 0 开始）。
	Batch int
	// Start/End 批次覆盖的输入区间 [Start, End)。
	Start int
	End   int
	Cause error
}

func (e *EmbeddingFailure) Error() string {
	return fmt.Sprintf("embedding batch %d [%d:%d) failed: %v", e.Batch, e.Start, e.End, e.Cause)
}

func (e *EmbeddingFailure) Unwrap() error { return e.Cause }

// EmbedderConfig 向量化配置。
type EmbedderConfig struct {
	// BatchSize 每批文本数。
	BatchSize int
	// Timeout 单次 provider 调用超时。
	Timeout time.Duration
	// Retry 批次重试策略。
	Retry *resilience.RetryConfig
}

// DefaultEmbedderConfig 返回默认向量化配置。
func DefaultEmbedderConfig() *EmbedderConfig {
	return &EmbedderConfig{
		BatchSize: 32,
		Timeout:   60 * time.Second,
		Retry:     resilience.DefaultRetryConfig(),
	}
}

// Embedder 分批并发调用 EmbeddingProvider，输出顺序与输入一致。
// 文档与查询共用同一条调用路径。
type Embedder struct {
	provider llm.EmbeddingProvider
	pool     *pool.Pool
	config   *EmbedderConfig
	metrics  *metrics.RAGMetrics
}

// NewEmbedder 创建向量化器。p 为 nil 时批次依次执行。
func NewEmbedder(provider llm.EmbeddingProvider, p *pool.Pool, config *EmbedderConfig, m *metrics.RAGMetrics) *Embedder {
	if config == nil {
		config = DefaultEmbedderConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if config.Retry == nil {
		config.Retry = resilience.DefaultRetryConfig()
	}
	return &Embedder{provider: provider, pool: p, config: config, metrics: m}
}

// EmbedDocuments 向量化一组文本。任一批次失败时返回 errno.ErrEmbeddingFailure，
// 其 cause 为 *EmbeddingFailure。
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([][]float32, len(texts))
	var (
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	run := func(batch, start, end int) func(context.Context) error {
		return func(ctx context.Context) error {
			vectors, err := e.embedBatch(ctx, texts[start:end])
			if err != nil {
				failure := &EmbeddingFailure{Batch: batch, Start: start, End: end, Cause: err}
				fail(failure)
				return failure
			}
			copy(out[start:end], vectors)
			return nil
		}
	}

	size := e.config.BatchSize
	if e.pool == nil {
		for batch, start := 0, 0; start < len(texts); batch, start = batch+1, start+size {
			if err := run(batch, start, min(start+size, len(texts)))(ctx); err != nil {
				break
			}
		}
	} else {
		g := pool.NewGroup(ctx, e.pool)
		for batch, start := 0, 0; start < len(texts); batch, start = batch+1, start+size {
			g.Go(run(batch, start, min(start+size, len(texts))))
		}
		if err := g.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		return nil, errno.ErrEmbeddingFailure.WithCause(firstErr)
	}
	if err := checkDimensions(out); err != nil {
		return nil, errno.ErrEmbeddingFailure.WithCause(&EmbeddingFailure{Batch: 0, Start: 0, End: len(texts), Cause: err})
	}
	return out, nil
}

// EmbedQuery 向量化单条查询。
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedBatch 带重试地向量化一个批次，每次调用单独受 Timeout 约束。
func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	retry := *e.config.Retry
	retry.RetryableErrors = func(err error) bool {
		var permanent *permanentError
		if ctx.Err() != nil || errors.As(err, &permanent) {
			return false
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		if e.config.Retry.RetryableErrors != nil {
			return e.config.Retry.RetryableErrors(err)
		}
		return resilience.IsRetryableError(err)
	}

	var (
		vectors  [][]float32
		attempts int
	)
	start := time.Now()
	err := resilience.RetryWithBackoff(ctx, &retry, func() error {
		attempts++
		callCtx, cancel := e.callContext(ctx)
		defer cancel()

		var err error
		vectors, err = e.provider.Embed(callCtx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(texts) {
			return &permanentError{fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts))}
		}
		return nil
	})
	if e.metrics != nil {
		e.metrics.RecordEmbeddingBatch(time.Since(start), attempts-1, err)
	}
	if err != nil {
		if ctx.Err() == nil {
			logger.Warnw("Embedding batch failed",
				"provider", e.provider.Name(),
				"size", len(texts),
				"attempts", attempts,
				"error", err.Error(),
			)
		}
		return nil, err
	}
	return vectors, nil
}

func (e *Embedder) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.Timeout > 0 {
		return context.WithTimeout(ctx, e.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// permanentError 标记无需重试的响应错误。
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

func checkDimensions(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return errors.New("provider returned an empty vector")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), dim)
		}
	}
	return nil
}
