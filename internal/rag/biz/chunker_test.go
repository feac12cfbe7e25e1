package biz

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunker_InvalidConfig(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -1, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.size, tt.overlap)
			assert.Error(t, err)
		})
	}
}

func TestChunker_EmptyAndShort(t *testing.T) {
	c, err := NewChunker(100, 20)
	require.NoError(t, err)

	assert.Empty(t, c.Split(""))

	chunks := c.Split("short text\n\nwith a paragraph")
	require.Len(t, chunks, 1)
	assert.Equal(t, TextChunk{Index: 0, Start: 0, End: 28, Text: "short text\n\nwith a paragraph"}, chunks[0])
}

func TestChunker_NoSeparators(t *testing.T) {
	c, err := NewChunker(200, 50)
	require.NoError(t, err)

	text := strings.Repeat("x", 300)
	chunks := c.Split(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 200, chunks[0].End)
	assert.Equal(t, 150, chunks[1].Start)
	assert.Equal(t, 300, chunks[1].End)
	assert.Equal(t, text[150:300], chunks[1].Text)
}

func TestChunker_PrefersParagraphs(t *testing.T) {
	c, err := NewChunker(5, 0)
	require.NoError(t, err)

	chunks := c.Split("aaa\n\nbbb")
	require.Len(t, chunks, 2)
	assert.Equal(t, "aaa\n\n", chunks[0].Text)
	assert.Equal(t, "bbb", chunks[1].Text)
}

func TestChunker_MultibyteOffsets(t *testing.T) {
	c, err := NewChunker(4, 1)
	require.NoError(t, err)

	text := "学习检索增强生成"
	runes := []rune(text)
	for _, ch := range c.Split(text) {
		assert.Equal(t, string(runes[ch.Start:ch.End]), ch.Text)
		assert.LessOrEqual(t, ch.End-ch.Start, 4)
	}
}

func randomDocument(r *rand.Rand, words int) string {
	vocabulary := []string{"cell", "energy", "mitochondria", "ß", "данные", "检索", "a", "synthesis", "x"}
	var sb strings.Builder
	for i := 0; i < words; i++ {
		sb.WriteString(vocabulary[r.Intn(len(vocabulary))])
		switch n := r.Intn(20); {
		case n == 0:
			sb.WriteString("\n\n")
		case n < 3:
			sb.WriteString("\n")
		case n < 4:
			sb.WriteString(strings.Repeat("z", 30))
		default:
			sb.WriteString(" ")
		}
	}
	return sb.String()
}

func TestChunker_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	configs := []struct{ size, overlap int }{{20, 5}, {50, 10}, {64, 0}, {100, 99}}

	for _, cfg := range configs {
		c, err := NewChunker(cfg.size, cfg.overlap)
		require.NoError(t, err)

		for round := 0; round < 20; round++ {
			text := randomDocument(r, 200)
			runes := []rune(text)
			chunks := c.Split(text)
			require.NotEmpty(t, chunks)

			assert.Equal(t, 0, chunks[0].Start)
			assert.Equal(t, len(runes), chunks[len(chunks)-1].End)

			var rebuilt strings.Builder
			covered := 0
			for i, ch := range chunks {
				assert.Equal(t, i, ch.Index)
				assert.Equal(t, string(runes[ch.Start:ch.End]), ch.Text)
				assert.LessOrEqual(t, ch.End-ch.Start, cfg.size)
				if i > 0 {
					assert.Greater(t, ch.Start, chunks[i-1].Start)
					assert.LessOrEqual(t, ch.Start, chunks[i-1].End)
				}
				if ch.End > covered {
					rebuilt.WriteString(string(runes[covered:ch.End]))
					covered = ch.End
				}
			}
			assert.Equal(t, text, rebuilt.String())
		}
	}
}
