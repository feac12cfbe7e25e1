package biz

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultSystemPrompt 有检索上下文时的系统提示词。
	DefaultSystemPrompt = `You are a helpful study assistant. Answer the question using only the provided context.

Guidelines:
- Base your answer on the context below.
- If the context does not contain enough information, say so clearly.
- Be precise and well structured, and use Markdown where it helps readability.
- Do not invent facts or speculate.
- Answer in the language of the question.`

	// DefaultNoContextPrompt 没有检索到任何内容时的系统提示词。
	DefaultNoContextPrompt = `You are a helpful study assistant. No relevant study material was found for this question.
Tell the user that the knowledge base has no matching material, then give a short general answer if you can, clearly marked as not based on the uploaded documents.`
)

// PromptConfig 提示词配置。
type PromptConfig struct {
	SystemPrompt    string
	NoContextPrompt string
	// Budget 系统提示词与用户提示词的总字符数上限，0 表示不限制。
	Budget int
}

// Prompt 组装后的提示词。
type Prompt struct {
	System string
	User   string
	// Chunks 实际放入上下文的块，按分数降序。
	Chunks []RetrievedChunk
}

// Len 返回提示词总字符数。
func (p Prompt) Len() int {
	return utf8.RuneCountInString(p.System) + utf8.RuneCountInString(p.User)
}

// BuildPrompt 组装提示词。超出预算时从分数最低的块开始丢弃，全部丢弃后使用无上下文形式。
func BuildPrompt(question string, chunks []RetrievedChunk, cfg PromptConfig) Prompt {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.NoContextPrompt == "" {
		cfg.NoContextPrompt = DefaultNoContextPrompt
	}

	ordered := make([]RetrievedChunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })

	for n := len(ordered); n > 0; n-- {
		p := Prompt{
			System: cfg.SystemPrompt,
			User:   contextBlock(ordered[:n]) + questionBlock(question),
			Chunks: ordered[:n],
		}
		if cfg.Budget <= 0 || p.Len() <= cfg.Budget {
			return p
		}
	}
	return Prompt{System: cfg.NoContextPrompt, User: questionBlock(question)}
}

func contextBlock(chunks []RetrievedChunk) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("[source: ")
		sb.WriteString(c.SourceFile)
		sb.WriteString("]\n")
		sb.WriteString(c.Text)
	}
	sb.WriteString("\n\n")
	return sb.String()
}

func questionBlock(question string) string {
	return "Question: " + question + "\nAnswer:"
}

// Citations 返回块的来源文件，按首次出现的顺序去重。
func Citations(chunks []RetrievedChunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.SourceFile]; ok {
			continue
		}
		seen[c.SourceFile] = struct{}{}
		out = append(out, c.SourceFile)
	}
	return out
}
