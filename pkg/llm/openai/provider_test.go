package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kart-io/learning-rag/pkg/llm"
	"github.com/kart-io/learning-rag/pkg/utils/json"
)

const testAPIKey = "test-key"

func newTestProvider(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = testAPIKey
	cfg.Timeout = 5 * time.Second
	return NewProviderWithConfig(cfg)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("expected BaseURL https://api.openai.com/v1, got %s", cfg.BaseURL)
	}
	if cfg.ChatModel != "gpt-4o-mini" {
		t.Errorf("expected ChatModel gpt-4o-mini, got %s", cfg.ChatModel)
	}
	if cfg.Timeout != 120*time.Second {
		t.Errorf("expected Timeout 120s, got %v", cfg.Timeout)
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name      string
		config    map[string]any
		wantError bool
	}{
		{
			name:   "valid config",
			config: map[string]any{"api_key": testAPIKey},
		},
		{
			name: "custom config",
			config: map[string]any{
				"api_key":      testAPIKey,
				"chat_model":   "gpt-4o",
				"organization": "org-123",
				"stop":         []any{"END", 1},
			},
		},
		{
			name:      "missing api_key",
			config:    map[string]any{},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.config)
			if tt.wantError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if provider.Name() != ProviderName {
				t.Errorf("expected provider name %s, got %s", ProviderName, provider.Name())
			}
		})
	}
}

func TestNewProvider_StopFromAnySlice(t *testing.T) {
	p, err := NewProvider(map[string]any{"api_key": testAPIKey, "stop": []any{"END", 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stop := p.(*Provider).config.Stop
	if len(stop) != 1 || stop[0] != "END" {
		t.Errorf("expected stop [END], got %v", stop)
	}
}

func TestProviderEmbed_ReordersByIndex(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("expected path /embeddings, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer "+testAPIKey {
			t.Errorf("expected Authorization header, got %q", r.Header.Get("Authorization"))
		}
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2,2]},{"index":0,"embedding":[1,1]}]}`))
	})

	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("expected embeddings in input order, got %v", vecs)
	}
}

func TestProviderEmbed_MissingVector(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,1]}]}`))
	})

	if _, err := p.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("expected error for missing embedding")
	}
}

func TestProviderGenerate(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("expected system + user messages, got %+v", req.Messages)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"42"}}]}`))
	})

	out, err := p.Generate(context.Background(), "question", "system")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out != "42" {
		t.Errorf("expected 42, got %q", out)
	}
}

func TestProviderGenerate_NoChoices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	if _, err := p.Generate(context.Background(), "q", ""); err == nil {
		t.Error("expected error for empty choices")
	}
}

func collect(t *testing.T, s llm.TokenStream) (string, error) {
	t.Helper()
	var sb strings.Builder
	for {
		tok, err := s.Recv()
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(tok)
	}
}

func TestProviderGenerateStream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("expected Accept text/event-stream")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		for _, tok := range []string{"Hello", "", ", world"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", tok)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	s, err := p.GenerateStream(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}
	defer s.Close()

	got, err := collect(t, s)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if got != "Hello, world" {
		t.Errorf("expected %q, got %q", "Hello, world", got)
	}
}

func TestProviderGenerateStream_Truncated(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
	})

	s, err := p.GenerateStream(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}
	defer s.Close()

	if _, err := collect(t, s); err != io.ErrUnexpectedEOF {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestProviderGenerateStream_Malformed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "data: {not json\n\n")
	})

	s, err := p.GenerateStream(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}
	defer s.Close()

	if _, err := collect(t, s); err == nil {
		t.Error("expected decode error")
	}
}

func TestProviderListModels(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("expected path /models, got %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o"},{"id":"gpt-4o-mini"}]}`))
	})

	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 2 || models[0] != "gpt-4o" {
		t.Errorf("unexpected models: %v", models)
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
