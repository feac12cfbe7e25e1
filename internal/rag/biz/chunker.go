package biz

import (
	"fmt"
	"strings"
)

// DefaultSeparators 递归分块使用的分隔符，按优先级排列。空串表示按字符切分。
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// TextChunk 文本块，Start/End 为按字符（rune）计的半开区间。
type TextChunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// Chunker 递归字符分块器。
//
// 分隔符保留在前一片段的末尾，因此所有块拼接后可以还原原文，
// 且每个块的文本恰好等于原文对应区间。
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

// NewChunker 创建分块器。size 必须为正，overlap 必须在 [0, size) 内。
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap, separators: DefaultSeparators}, nil
}

// Size 返回块大小。
func (c *Chunker) Size() int { return c.size }

// Overlap 返回重叠大小。
func (c *Chunker) Overlap() int { return c.overlap }

type span struct{ start, end int }

func (s span) len() int { return s.end - s.start }

// Split 将文本切分为块。空文本返回 nil。
func (c *Chunker) Split(text string) []TextChunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	whole := span{0, len(runes)}
	spans := []span{whole}
	if whole.len() > c.size {
		spans = c.split(runes, whole, c.separators)
	}

	chunks := make([]TextChunk, len(spans))
	for i, s := range spans {
		chunks[i] = TextChunk{
			Index: i,
			Start: s.start,
			End:   s.end,
			Text:  string(runes[s.start:s.end]),
		}
	}
	return chunks
}

func (c *Chunker) split(runes []rune, s span, separators []string) []span {
	sep, rest := pickSeparator(string(runes[s.start:s.end]), separators)
	pieces := splitKeep(runes, s, sep)

	var out, good []span
	for _, p := range pieces {
		if p.len() < c.size {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
		} else {
			out = append(out, c.split(runes, p, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, c.merge(good)...)
	}
	return out
}

// merge 贪心合并连续片段，窗口满时输出一块，并保留不超过 overlap 的尾部作为下一块开头。
func (c *Chunker) merge(pieces []span) []span {
	var (
		out    []span
		window []span
		total  int
	)
	for _, p := range pieces {
		n := p.len()
		if total+n > c.size && len(window) > 0 {
			out = append(out, span{window[0].start, window[len(window)-1].end})
			for total > c.overlap || (total+n > c.size && total > 0) {
				total -= window[0].len()
				window = window[1:]
			}
		}
		window = append(window, p)
		total += n
	}
	if len(window) > 0 {
		out = append(out, span{window[0].start, window[len(window)-1].end})
	}
	return out
}

func pickSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	return "", nil
}

// splitKeep 按分隔符切分区间，分隔符附在前一片段末尾。
func splitKeep(runes []rune, s span, sep string) []span {
	if sep == "" {
		out := make([]span, 0, s.len())
		for i := s.start; i < s.end; i++ {
			out = append(out, span{i, i + 1})
		}
		return out
	}

	sepRunes := []rune(sep)
	var out []span
	start := s.start
	for i := s.start; i+len(sepRunes) <= s.end; {
		if hasPrefix(runes[i:], sepRunes) {
			i += len(sepRunes)
			out = append(out, span{start, i})
			start = i
			continue
		}
		i++
	}
	if start < s.end {
		out = append(out, span{start, s.end})
	}
	return out
}

func hasPrefix(runes, prefix []rune) bool {
	if len(runes) < len(prefix) {
		return false
	}
	for i, r := range prefix {
		if runes[i] != r {
			return false
		}
	}
	return true
}
