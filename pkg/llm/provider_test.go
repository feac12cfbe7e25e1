package llm

import (
	"context"
	"io"
	"testing"
)

// mockProvider 模拟供应商实现，用于测试。
type mockProvider struct {
	name string
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{0.1, 0.2, 0.3}
	}
	return result, nil
}

func (m *mockProvider) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockProvider) Generate(_ context.Context, _ string, _ string) (string, error) {
	return "mock generated text", nil
}

func (m *mockProvider) GenerateStream(_ context.Context, _ string, _ string) (TokenStream, error) {
	return &sliceStream{tokens: []string{"mock", " stream"}}, nil
}

type sliceStream struct {
	tokens []string
}

func (s *sliceStream) Recv() (string, error) {
	if len(s.tokens) == 0 {
		return "", io.EOF
	}
	t := s.tokens[0]
	s.tokens = s.tokens[1:]
	return t, nil
}

func (s *sliceStream) Close() error { return nil }

func TestRegisterAndNewProvider(t *testing.T) {
	RegisterProvider("test-provider", func(config map[string]any) (Provider, error) {
		name := "test-provider"
		if n, ok := config["name"].(string); ok {
			name = n
		}
		return &mockProvider{name: name}, nil
	})

	provider, err := NewProvider("test-provider", map[string]any{"name": "custom-name"})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if provider.Name() != "custom-name" {
		t.Errorf("expected name 'custom-name', got '%s'", provider.Name())
	}

	chat, err := NewChatProvider("test-provider", nil)
	if err != nil {
		t.Fatalf("NewChatProvider failed: %v", err)
	}
	stream, err := chat.GenerateStream(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}
	var got string
	for {
		tok, err := stream.Recv()
		if err == io.EOF {
			break
		}
		got += tok
	}
	if got != "mock stream" {
		t.Errorf("expected 'mock stream', got %q", got)
	}
}

func TestNewProviderUnknown(t *testing.T) {
	if _, err := NewProvider("unknown-provider", nil); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := NewEmbeddingProvider("unknown-provider", nil); err == nil {
		t.Error("expected error for unknown embedding provider")
	}
}

func TestListProviders(t *testing.T) {
	RegisterProvider("list-b", func(map[string]any) (Provider, error) { return &mockProvider{}, nil })
	RegisterProvider("list-a", func(map[string]any) (Provider, error) { return &mockProvider{}, nil })

	names := ListProviders()
	ia, ib := -1, -1
	for i, n := range names {
		switch n {
		case "list-a":
			ia = i
		case "list-b":
			ib = i
		}
	}
	if ia < 0 || ib < 0 || ia > ib {
		t.Errorf("expected sorted names containing list-a and list-b, got %v", names)
	}
}
