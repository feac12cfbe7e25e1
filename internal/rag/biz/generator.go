package biz

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/learning-rag/internal/rag/metrics"
	"github.com/kart-io/learning-rag/pkg/infra/tracing"
	"github.com/kart-io/learning-rag/pkg/llm"
	"github.com/kart-io/learning-rag/pkg/llm/resilience"
	errno "github.com/kart-io/learning-rag/pkg/utils/errors"
)

// GeneratorConfig 生成器配置。
type GeneratorConfig struct {
	Prompt PromptConfig
	// Timeout 单次 LLM 调用（含整个流式输出）的超时时间。
	Timeout time.Duration
}

// ChatRequest 问答请求。
type ChatRequest struct {
	Question   string
	Topics     []string
	Limit      int
	Collection string
}

// ChatResult 非流式问答结果。Chunks 为实际放入提示词的块。
type ChatResult struct {
	Answer    string           `json:"answer"`
	Chunks    []RetrievedChunk `json:"chunks"`
	Citations []string         `json:"citations"`
}

// Generator 负责检索增强的答案生成。
type Generator struct {
	retriever *Retriever
	chat      llm.ChatProvider
	config    *GeneratorConfig
	metrics   *metrics.RAGMetrics
}

// NewGenerator 创建生成器实例。
func NewGenerator(retriever *Retriever, chat llm.ChatProvider, config *GeneratorConfig, m *metrics.RAGMetrics) *Generator {
	return &Generator{retriever: retriever, chat: chat, config: config, metrics: m}
}

// Answer 检索并生成答案。没有检索结果时仍调用 LLM，此时引用为空。
func (g *Generator) Answer(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	ctx, span := tracing.StartSpan(ctx, "rag.Answer", attribute.String("llm.provider", g.chat.Name()))
	start := time.Now()
	result, err := g.answer(ctx, req)
	if g.metrics != nil {
		g.metrics.RecordChat(time.Since(start), false, err)
	}
	tracing.End(span, err)
	return result, err
}

func (g *Generator) answer(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	prompt, err := g.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := g.callContext(ctx)
	defer cancel()

	start := time.Now()
	answer, err := g.chat.Generate(callCtx, prompt.User, prompt.System)
	err = g.llmError(ctx, err)
	g.recordLLM(start, err)
	if err != nil {
		logger.Errorw("LLM generation failed", "provider", g.chat.Name(), "error", err.Error())
		return nil, err
	}

	logger.Infow("Answer generated",
		"provider", g.chat.Name(),
		"chunks", len(prompt.Chunks),
		"length", len(answer),
	)
	return &ChatResult{
		Answer:    answer,
		Chunks:    nonNil(prompt.Chunks),
		Citations: Citations(prompt.Chunks),
	}, nil
}

// Stream 检索并以流的形式生成答案。调用方必须 Close 返回的流。
func (g *Generator) Stream(ctx context.Context, req ChatRequest) (*AnswerStream, error) {
	start := time.Now()
	prompt, err := g.prepare(ctx, req)
	if err != nil {
		g.recordChat(start, true, err)
		return nil, err
	}

	streamCtx, cancel := g.callContext(ctx)
	upstream, err := g.chat.GenerateStream(streamCtx, prompt.User, prompt.System)
	if err != nil {
		cancel()
		err = g.llmError(ctx, err)
		g.recordLLM(start, err)
		g.recordChat(start, true, err)
		return nil, err
	}

	return &AnswerStream{
		gen:      g,
		parent:   ctx,
		ctx:      streamCtx,
		cancel:   cancel,
		upstream: upstream,
		start:    start,
		completion: &Completion{
			Citations: Citations(prompt.Chunks),
			Chunks:    nonNil(prompt.Chunks),
		},
	}, nil
}

func (g *Generator) prepare(ctx context.Context, req ChatRequest) (Prompt, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Prompt{}, errno.ErrValidation.WithMessage("question must not be empty")
	}
	chunks, err := g.retriever.Search(ctx, SearchRequest{
		Query:      question,
		Topics:     req.Topics,
		Limit:      req.Limit,
		Collection: req.Collection,
	})
	if err != nil {
		return Prompt{}, err
	}
	prompt := BuildPrompt(question, chunks, g.config.Prompt)
	if dropped := len(chunks) - len(prompt.Chunks); dropped > 0 {
		logger.Debugw("Prompt budget exceeded, dropped lowest scoring chunks",
			"retrieved", len(chunks),
			"dropped", dropped,
			"budget", g.config.Prompt.Budget,
		)
	}
	return prompt, nil
}

func (g *Generator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.config.Timeout > 0 {
		return context.WithTimeout(ctx, g.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// llmError 将 LLM 错误映射为错误码。parent 已取消时原样返回取消错误。
func (g *Generator) llmError(parent context.Context, err error) error {
	if err == nil {
		return nil
	}
	if perr := parent.Err(); perr != nil {
		return perr
	}
	if resilience.IsTimeout(err) {
		return errno.ErrLLMTimeout.WithCause(err)
	}
	var e *errno.Errno
	if errors.As(err, &e) {
		return err
	}
	return errno.ErrLLMGeneration.WithCause(err)
}

func (g *Generator) recordLLM(start time.Time, err error) {
	if g.metrics != nil {
		g.metrics.RecordLLMCall(time.Since(start), errors.Is(err, errno.ErrLLMTimeout), err)
	}
}

func (g *Generator) recordChat(start time.Time, stream bool, err error) {
	if g.metrics != nil {
		g.metrics.RecordChat(time.Since(start), stream, err)
	}
}

func nonNil(chunks []RetrievedChunk) []RetrievedChunk {
	if chunks == nil {
		return []RetrievedChunk{}
	}
	return chunks
}
