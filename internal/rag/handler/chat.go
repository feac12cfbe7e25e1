package handler

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/learning-rag/internal/rag/biz"
	infralogger "github.com/kart-io/learning-rag/pkg/infra/logger"
	"github.com/kart-io/learning-rag/pkg/infra/middleware/common"
	errno "github.com/kart-io/learning-rag/pkg/utils/errors"
	"github.com/kart-io/learning-rag/pkg/utils/response"
)

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query      string   `json:"query" binding:"required"`
	Topics     []string `json:"topics" binding:"omitempty,dive,topic"`
	Limit      int      `json:"limit" binding:"omitempty,min=1,max=100"`
	Collection string   `json:"collection_name" binding:"omitempty,collection"`
}

// ChunkMetadata is the chunk metadata returned to clients.
type ChunkMetadata struct {
	SourceFile string `json:"source_file"`
	Topic      string `json:"topic"`
	ChunkIndex int    `json:"chunk_index"`
}

// SearchChunk is one retrieved chunk.
type SearchChunk struct {
	Text     string        `json:"text"`
	Score    float32       `json:"score"`
	Metadata ChunkMetadata `json:"metadata"`
}

// SearchResponse is the response of POST /search.
type SearchResponse struct {
	Query        string        `json:"query"`
	Chunks       []SearchChunk `json:"chunks"`
	Count        int           `json:"count"`
	TopicsFilter []string      `json:"topics_filter"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Question   string   `json:"question" binding:"required"`
	Topics     []string `json:"topics" binding:"omitempty,dive,topic"`
	Limit      int      `json:"limit" binding:"omitempty,min=1,max=100"`
	Collection string   `json:"collection_name" binding:"omitempty,collection"`
	Stream     bool     `json:"stream"`
}

// ChatResponse is the non-streaming chat response.
type ChatResponse struct {
	Question     string        `json:"question"`
	Answer       string        `json:"answer"`
	Chunks       []SearchChunk `json:"chunks"`
	Citations    []string      `json:"citations"`
	TopicsFilter []string      `json:"topics_filter"`
}

// StreamDone is the payload of the SSE done event.
type StreamDone struct {
	Citations []string      `json:"citations"`
	Chunks    []SearchChunk `json:"chunks"`
}

func toSearchChunks(chunks []biz.RetrievedChunk) []SearchChunk {
	out := make([]SearchChunk, 0, len(chunks))
	for _, ch := range chunks {
		out = append(out, SearchChunk{
			Text:  ch.Text,
			Score: ch.Score,
			Metadata: ChunkMetadata{
				SourceFile: ch.SourceFile,
				Topic:      ch.Topic,
				ChunkIndex: ch.ChunkIndex,
			},
		})
	}
	return out
}

// Search runs a semantic search.
func (h *RAGHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, bindError(err))
		return
	}

	chunks, err := h.deps.Retriever.Search(c.Request.Context(), biz.SearchRequest{
		Query:      req.Query,
		Topics:     req.Topics,
		Limit:      req.Limit,
		Collection: req.Collection,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	out := toSearchChunks(chunks)
	response.OK(c, SearchResponse{
		Query:        req.Query,
		Chunks:       out,
		Count:        len(out),
		TopicsFilter: topicsFilter(req.Topics),
	})
}

// Chat answers a question from retrieved chunks. With stream set the answer
// is sent as server-sent events.
func (h *RAGHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, bindError(err))
		return
	}
	breq := biz.ChatRequest{
		Question:   req.Question,
		Topics:     req.Topics,
		Limit:      req.Limit,
		Collection: req.Collection,
	}

	if req.Stream {
		h.streamChat(c, breq)
		return
	}

	res, err := h.deps.Generator.Answer(c.Request.Context(), breq)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, ChatResponse{
		Question:     req.Question,
		Answer:       res.Answer,
		Chunks:       toSearchChunks(res.Chunks),
		Citations:    res.Citations,
		TopicsFilter: topicsFilter(req.Topics),
	})
}

// streamChat writes one message event per fragment, then done, or error on
// failure. Failures before the first byte is written are plain JSON errors.
func (h *RAGHandler) streamChat(c *gin.Context, req biz.ChatRequest) {
	ctx := c.Request.Context()
	stream, err := h.deps.Generator.Stream(ctx, req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	defer stream.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		if stream.Next() {
			c.SSEvent("message", gin.H{"content": stream.Fragment()})
			return true
		}

		if err := stream.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				infralogger.LogInfo(ctx, "Chat stream cancelled by client")
				return false
			}
			e := errno.FromError(err)
			infralogger.LogWarn(ctx, "Chat stream failed", "error", err.Error())
			c.SSEvent("error", response.Err(e, common.GetRequestID(ctx)))
			return false
		}

		done := stream.Done()
		c.SSEvent("done", StreamDone{
			Citations: done.Citations,
			Chunks:    toSearchChunks(done.Chunks),
		})
		return false
	})
}
