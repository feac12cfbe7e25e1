package biz

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/learning-rag/pkg/llm"
)

// Completion 流结束后的附加信息。
type Completion struct {
	Citations []string         `json:"citations"`
	Chunks    []RetrievedChunk `json:"chunks"`
}

// AnswerStream 由消费方拉取的答案片段迭代器。
//
//	for s.Next() {
//		write(s.Fragment())
//	}
//	if err := s.Err(); err != nil { ... }
//	done := s.Done()
//
// 每次拉取上游前检查 ctx，客户端断开后不再读取上游。
type AnswerStream struct {
	gen      *Generator
	parent   context.Context
	ctx      context.Context
	cancel   context.CancelFunc
	upstream llm.TokenStream
	start    time.Time

	completion *Completion
	fragment   string
	finished   bool
	err        error

	closeOnce sync.Once
}

// Next 拉取下一个片段，流结束或出错时返回 false。
func (s *AnswerStream) Next() bool {
	if s.finished {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.finish(err)
		return false
	}

	fragment, err := s.upstream.Recv()
	if errors.Is(err, io.EOF) {
		s.finish(nil)
		return false
	}
	if err != nil {
		s.finish(err)
		return false
	}
	s.fragment = fragment
	return true
}

// Fragment 返回当前片段。
func (s *AnswerStream) Fragment() string { return s.fragment }

// Err 返回导致流提前结束的错误。
func (s *AnswerStream) Err() error { return s.err }

// Done 返回引用信息，流未正常结束时返回 nil。
func (s *AnswerStream) Done() *Completion {
	if !s.finished || s.err != nil {
		return nil
	}
	return s.completion
}

// Close 取消上游请求并释放连接，可重复调用。
func (s *AnswerStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if !s.finished {
			s.finish(context.Canceled)
		}
		s.cancel()
		err = s.upstream.Close()
	})
	return err
}

func (s *AnswerStream) finish(err error) {
	s.finished = true
	s.fragment = ""
	s.err = s.gen.llmError(s.parent, err)

	cancelled := errors.Is(s.err, context.Canceled)
	if cancelled {
		logger.Infow("Answer stream cancelled", "provider", s.gen.chat.Name())
		if s.gen.metrics != nil {
			s.gen.metrics.RecordStreamCancelled()
		}
	} else if s.err != nil {
		logger.Warnw("Answer stream failed", "provider", s.gen.chat.Name(), "error", s.err.Error())
	}
	s.gen.recordLLM(s.start, s.err)
	s.gen.recordChat(s.start, true, s.err)
}
