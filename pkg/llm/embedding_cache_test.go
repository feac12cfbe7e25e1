package llm

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	mockProvider
	texts []string
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.texts = append(c.texts, texts...)
	return c.mockProvider.Embed(ctx, texts)
}

func TestCachedEmbeddingProvider_NoRedis(t *testing.T) {
	inner := &countingEmbedder{mockProvider: mockProvider{name: "inner"}}
	c := NewCachedEmbeddingProvider(inner, nil, nil)

	vec, err := c.EmbedSingle(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, []string{"hello"}, inner.texts)
	assert.Equal(t, "inner", c.Name())
}

func TestCachedEmbeddingProvider_KeyIncludesModel(t *testing.T) {
	a := NewCachedEmbeddingProvider(&mockProvider{}, nil, &EmbeddingCacheConfig{KeyPrefix: "p:", Model: "m1"})
	b := NewCachedEmbeddingProvider(&mockProvider{}, nil, &EmbeddingCacheConfig{KeyPrefix: "p:", Model: "m2"})

	assert.NotEqual(t, a.cacheKey("x"), b.cacheKey("x"))
	assert.Equal(t, a.cacheKey("x"), a.cacheKey("x"))
	assert.Contains(t, a.cacheKey("x"), "p:")
}

// 需要真实 Redis，设置 REDIS_ADDR 后运行。
func TestCachedEmbeddingProvider_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())

	inner := &countingEmbedder{mockProvider: mockProvider{name: "inner"}}
	c := NewCachedEmbeddingProvider(inner, rdb, &EmbeddingCacheConfig{
		TTL:       time.Minute,
		KeyPrefix: "rag:emb:test:" + time.Now().Format("150405.000") + ":",
		Model:     "m",
	})
	t.Cleanup(func() { _, _ = c.ClearCache(ctx) })

	_, err := c.Embed(ctx, []string{"a", "b"})
	require.NoError(t, err)
	_, err = c.Embed(ctx, []string{"b", "c"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, inner.texts)
	assert.Equal(t, EmbeddingCacheStats{Hits: 1, Misses: 3}, c.Stats())
}
