package biz

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errno "github.com/kart-io/learning-rag/pkg/utils/errors"
)

func chunk(file, text string, score float32) RetrievedChunk {
	return RetrievedChunk{SourceFile: file, Text: text, Score: score}
}

func TestBuildPrompt_Format(t *testing.T) {
	p := BuildPrompt("What is DNA?", []RetrievedChunk{
		chunk("b.md", "second", 0.5),
		chunk("a.md", "first", 0.9),
	}, PromptConfig{SystemPrompt: "sys"})

	assert.Equal(t, "sys", p.System)
	assert.Equal(t, "Context:\n[source: a.md]\nfirst\n\n[source: b.md]\nsecond\n\nQuestion: What is DNA?\nAnswer:", p.User)
	assert.Equal(t, []string{"a.md", "b.md"}, Citations(p.Chunks))
}

func TestBuildPrompt_BudgetDropsLowestScore(t *testing.T) {
	chunks := []RetrievedChunk{
		chunk("high.md", strings.Repeat("h", 100), 0.9),
		chunk("low.md", strings.Repeat("l", 100), 0.1),
		chunk("mid.md", strings.Repeat("m", 100), 0.5),
	}
	cfg := PromptConfig{SystemPrompt: "sys"}
	twoFit := BuildPrompt("q", chunks[:1], cfg).Len() + len("\n\n[source: mid.md]\n") + 100

	cfg.Budget = twoFit
	p := BuildPrompt("q", chunks, cfg)
	require.Len(t, p.Chunks, 2)
	assert.Equal(t, "high.md", p.Chunks[0].SourceFile)
	assert.Equal(t, "mid.md", p.Chunks[1].SourceFile)
	assert.LessOrEqual(t, p.Len(), cfg.Budget)
	assert.NotContains(t, p.User, "low.md")
}

func TestBuildPrompt_NoContext(t *testing.T) {
	cfg := PromptConfig{SystemPrompt: "sys", NoContextPrompt: "none"}

	p := BuildPrompt("q", nil, cfg)
	assert.Equal(t, "none", p.System)
	assert.Equal(t, "Question: q\nAnswer:", p.User)
	assert.Empty(t, p.Chunks)

	cfg.Budget = 30
	p = BuildPrompt("q", []RetrievedChunk{chunk("a.md", strings.Repeat("a", 100), 1)}, cfg)
	assert.Equal(t, "none", p.System)
	assert.Empty(t, p.Chunks)
}

func TestCitations_DistinctInOrder(t *testing.T) {
	got := Citations([]RetrievedChunk{chunk("b", "", 0), chunk("a", "", 0), chunk("b", "", 0)})
	assert.Equal(t, []string{"b", "a"}, got)
	assert.Empty(t, Citations(nil))
}

func TestGenerator_Answer(t *testing.T) {
	f := newFixture(t)
	f.index(t, "Bio", "cells.md", biologyText)
	f.index(t, "History", "rome.txt", historyText)

	res, err := f.generator.Answer(context.Background(), ChatRequest{Question: "What do mitochondria do?", Topics: []string{"Bio"}})
	require.NoError(t, err)
	assert.Equal(t, "42", res.Answer)
	assert.Equal(t, []string{"cells.md"}, res.Citations)
	assert.NotEmpty(t, res.Chunks)
	assert.Contains(t, f.chat.prompt, "[source: cells.md]")
	assert.Equal(t, DefaultSystemPrompt, f.chat.system)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().Chat.Total)
}

func TestGenerator_EmptyContext(t *testing.T) {
	f := newFixture(t)

	res, err := f.generator.Answer(context.Background(), ChatRequest{Question: "Anything?"})
	require.NoError(t, err)
	assert.Equal(t, "42", res.Answer)
	assert.Empty(t, res.Citations)
	assert.NotNil(t, res.Chunks)
	assert.Empty(t, res.Chunks)
	assert.Equal(t, DefaultNoContextPrompt, f.chat.system)
	assert.Equal(t, "Question: Anything?\nAnswer:", f.chat.prompt)
}

func TestGenerator_Errors(t *testing.T) {
	t.Run("empty question", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.generator.Answer(context.Background(), ChatRequest{Question: " "})
		assert.ErrorIs(t, err, errno.ErrValidation)
	})

	t.Run("provider failure", func(t *testing.T) {
		f := newFixture(t)
		f.chat.err = errors.New("model not found")
		_, err := f.generator.Answer(context.Background(), ChatRequest{Question: "q"})
		assert.ErrorIs(t, err, errno.ErrLLMGeneration)
		assert.Equal(t, 502, errno.FromError(err).HTTPStatus())
	})

	t.Run("timeout", func(t *testing.T) {
		f := newFixture(t, withChatTimeout(10*time.Millisecond))
		f.chat.block = true
		_, err := f.generator.Answer(context.Background(), ChatRequest{Question: "q"})
		assert.ErrorIs(t, err, errno.ErrLLMTimeout)
		assert.Equal(t, 504, errno.FromError(err).HTTPStatus())
		assert.Equal(t, uint64(1), f.metrics.Snapshot().LLM.Timeouts)
	})
}

func TestGenerator_Stream(t *testing.T) {
	f := newFixture(t)
	f.index(t, "Bio", "cells.md", biologyText)
	f.chat.fragments = []string{"Mito", "chondria ", "make energy."}

	s, err := f.generator.Stream(context.Background(), ChatRequest{Question: "mitochondria?"})
	require.NoError(t, err)
	defer s.Close()

	assert.Nil(t, s.Done())
	var answer strings.Builder
	for s.Next() {
		answer.WriteString(s.Fragment())
	}
	require.NoError(t, s.Err())
	assert.Equal(t, "Mitochondria make energy.", answer.String())

	done := s.Done()
	require.NotNil(t, done)
	assert.Equal(t, []string{"cells.md"}, done.Citations)
	assert.NotEmpty(t, done.Chunks)
	assert.False(t, s.Next())
}

func TestGenerator_StreamCancellationStopsUpstream(t *testing.T) {
	f := newFixture(t)
	f.chat.fragments = []string{"one", "two", "three", "four"}

	ctx, cancel := context.WithCancel(context.Background())
	s, err := f.generator.Stream(ctx, ChatRequest{Question: "count"})
	require.NoError(t, err)

	require.True(t, s.Next())
	require.True(t, s.Next())
	cancel()
	assert.False(t, s.Next())
	assert.False(t, s.Next())

	assert.ErrorIs(t, s.Err(), context.Canceled)
	assert.Nil(t, s.Done())
	assert.Equal(t, int32(2), f.chat.stream.recvs.Load())

	require.NoError(t, s.Close())
	assert.True(t, f.chat.stream.closed.Load())
	assert.Equal(t, uint64(1), f.metrics.Snapshot().Chat.Cancelled)
}

func TestGenerator_StreamCloseEarly(t *testing.T) {
	f := newFixture(t)
	f.chat.fragments = []string{"one", "two"}

	s, err := f.generator.Stream(context.Background(), ChatRequest{Question: "count"})
	require.NoError(t, err)
	require.True(t, s.Next())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.False(t, s.Next())
	assert.True(t, f.chat.stream.closed.Load())
	assert.Equal(t, int32(1), f.chat.stream.recvs.Load())
}

func TestGenerator_StreamMalformed(t *testing.T) {
	f := newFixture(t)
	f.chat.fragments = []string{"partial"}
	f.chat.streamErr = io.ErrUnexpectedEOF

	s, err := f.generator.Stream(context.Background(), ChatRequest{Question: "q"})
	require.NoError(t, err)
	defer s.Close()

	require.True(t, s.Next())
	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), errno.ErrLLMGeneration)
	assert.ErrorIs(t, s.Err(), io.ErrUnexpectedEOF)
	assert.Nil(t, s.Done())
}

func TestGenerator_StreamTimeout(t *testing.T) {
	f := newFixture(t, withChatTimeout(10*time.Millisecond))
	f.chat.fragments = []string{"slow"}
	f.chat.block = true

	s, err := f.generator.Stream(context.Background(), ChatRequest{Question: "q"})
	require.NoError(t, err)
	defer s.Close()

	require.True(t, s.Next())
	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), errno.ErrLLMTimeout)
}
