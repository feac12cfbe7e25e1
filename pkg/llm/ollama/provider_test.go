package ollama

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/learning-rag/pkg/utils/httpclient"
	"github.com/kart-io/learning-rag/pkg/utils/json"
)

func newTestProvider(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Timeout = 5 * time.Second
	return NewProviderWithConfig(cfg)
}

func TestNewProvider_ConfigMap(t *testing.T) {
	p, err := NewProvider(map[string]any{
		"base_url":    "http://ollama:11434",
		"chat_model":  "llama3",
		"temperature": 0.0,
		"top_k":       10,
	})
	require.NoError(t, err)

	op := p.(*Provider)
	assert.Equal(t, "http://ollama:11434", op.config.BaseURL)
	assert.Equal(t, "llama3", op.config.ChatModel)
	assert.Equal(t, "nomic-embed-text", op.config.EmbedModel)
	assert.Equal(t, 0.0, op.config.Temperature)
	assert.Equal(t, 10, op.config.TopK)
	assert.Equal(t, ProviderName, p.Name())
}

func TestEmbed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		resp := embedResponse{Model: req.Model}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(i), 1})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	vecs, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{2, 1}, vecs[2])

	empty, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestEmbed_CountMismatch(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[1,2]]}`))
	})

	_, err := p.Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestEmbed_StatusError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	})

	_, err := p.EmbedSingle(context.Background(), "a")
	var se *httpclient.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.False(t, se.Retryable())
}

func TestGenerate(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "be brief", req.System)
		assert.Equal(t, 40, req.Options.TopK)

		_ = json.NewEncoder(w).Encode(generateResponse{Response: "answer to " + req.Prompt, Done: true})
	})

	out, err := p.Generate(context.Background(), "q", "be brief")
	require.NoError(t, err)
	assert.Equal(t, "answer to q", out)
}

func TestGenerateStream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, tok := range []string{"Hel", "", "lo"} {
			fmt.Fprintf(w, `{"response":%q,"done":false}`+"\n", tok)
		}
		fmt.Fprintln(w, `{"response":"","done":true}`)
	})

	s, err := p.GenerateStream(context.Background(), "q", "")
	require.NoError(t, err)
	defer s.Close()

	var got []string
	for {
		tok, err := s.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, tok)
	}
	assert.Equal(t, []string{"Hel", "lo"}, got)
	assert.NoError(t, s.Close())
}

func TestGenerateStream_ErrorLine(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"response":"a","done":false}`)
		fmt.Fprintln(w, `{"error":"model crashed"}`)
	})

	s, err := p.GenerateStream(context.Background(), "q", "")
	require.NoError(t, err)
	defer s.Close()

	tok, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "a", tok)

	_, err = s.Recv()
	assert.EqualError(t, err, "model crashed")
}

func TestGenerateStream_Cancelled(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"response":"a","done":false}`)
		w.(http.Flusher).Flush()
	})

	ctx, cancel := context.WithCancel(context.Background())
	s, err := p.GenerateStream(ctx, "q", "")
	require.NoError(t, err)
	defer s.Close()

	cancel()
	_, err = s.Recv()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPingAndListModels(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3"},{"name":"nomic-embed-text"}]}`))
	})

	require.NoError(t, p.Ping(context.Background()))
	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3", "nomic-embed-text"}, models)
}

func TestPing_Unavailable(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	assert.Error(t, p.Ping(context.Background()))
}
