// Package rag provides RAG-specific configuration options.
package rag

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/learning-rag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Store backends.
const (
	StoreMilvus = "milvus"
	StoreMemory = "memory"
)

// DefaultSystemPrompt 默认系统提示词。
const DefaultSystemPrompt = `You are a helpful learning assistant. Answer questions using only the provided learning materials.

Guidelines:
- Base your answer on the provided context
- If the context does not contain enough information, say so clearly
- Be precise, clear and well structured
- Do not invent or speculate
- Use Markdown formatting for readability
- Answer in the language of the question`

// DefaultNoContextPrompt 没有检索到任何内容时追加的指令。
const DefaultNoContextPrompt = `No relevant passages were found in the indexed documents for this question.
Tell the user that their documents do not contain information to answer it, and suggest adding more documents or selecting different topics.
Do not cite any sources and do not answer from general knowledge.`

// Options contains RAG-specific configuration.
type Options struct {
	// Store 向量库后端（milvus, memory）。
	Store string `json:"store" mapstructure:"store"`

	// Collection 默认集合名称。
	Collection string `json:"collection" mapstructure:"collection"`

	// ChunkSize 分块大小（字符数）。
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap 相邻分块重叠字符数。
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// Limit 默认检索数量。
	Limit int `json:"limit" mapstructure:"limit"`

	// PromptBudget prompt 最大字符数，超出时丢弃得分最低的分块。
	PromptBudget int `json:"prompt-budget" mapstructure:"prompt-budget"`

	// SystemPrompt 系统提示词。
	SystemPrompt string `json:"system-prompt" mapstructure:"system-prompt"`

	// NoContextPrompt 无上下文时的提示词。
	NoContextPrompt string `json:"no-context-prompt" mapstructure:"no-context-prompt"`

	// JobBatchSize rename/delete 任务每页处理的记录数。
	JobBatchSize int `json:"job-batch-size" mapstructure:"job-batch-size"`

	// MaxUploadSize 单个上传文件的最大字节数。
	MaxUploadSize int64 `json:"max-upload-size" mapstructure:"max-upload-size"`

	// TopicCache 主题索引缓存配置。
	TopicCache *TopicCacheOptions `json:"topic-cache" mapstructure:"topic-cache"`

	// EmbeddingCache 向量缓存配置（需要启用 Redis）。
	EmbeddingCache *EmbeddingCacheOptions `json:"embedding-cache" mapstructure:"embedding-cache"`
}

// TopicCacheOptions 主题索引缓存配置。
type TopicCacheOptions struct {
	Enabled bool          `json:"enabled" mapstructure:"enabled"`
	Size    int           `json:"size" mapstructure:"size"`
	TTL     time.Duration `json:"ttl" mapstructure:"ttl"`
}

// EmbeddingCacheOptions 向量缓存配置。
type EmbeddingCacheOptions struct {
	Enabled   bool          `json:"enabled" mapstructure:"enabled"`
	TTL       time.Duration `json:"ttl" mapstructure:"ttl"`
	KeyPrefix string        `json:"key-prefix" mapstructure:"key-prefix"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Store:           StoreMilvus,
		Collection:      "learning_materials",
		ChunkSize:       1000,
		ChunkOverlap:    200,
		Limit:           8,
		PromptBudget:    12000,
		SystemPrompt:    DefaultSystemPrompt,
		NoContextPrompt: DefaultNoContextPrompt,
		JobBatchSize:    256,
		MaxUploadSize:   32 << 20,
		TopicCache: &TopicCacheOptions{
			Enabled: true,
			Size:    64,
			TTL:     5 * time.Minute,
		},
		EmbeddingCache: &EmbeddingCacheOptions{
			Enabled:   false,
			TTL:       24 * time.Hour,
			KeyPrefix: "rag:emb:",
		},
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "rag."
	fs.StringVar(&o.Store, p+"store", o.Store, "Vector store backend (milvus, memory).")
	fs.StringVar(&o.Collection, p+"collection", o.Collection, "Default collection name.")
	fs.IntVar(&o.ChunkSize, p+"chunk-size", o.ChunkSize, "Size of text chunks in characters.")
	fs.IntVar(&o.ChunkOverlap, p+"chunk-overlap", o.ChunkOverlap, "Overlap between consecutive chunks.")
	fs.IntVar(&o.Limit, p+"limit", o.Limit, "Default number of chunks to retrieve.")
	fs.IntVar(&o.PromptBudget, p+"prompt-budget", o.PromptBudget, "Maximum prompt length in characters.")
	fs.StringVar(&o.SystemPrompt, p+"system-prompt", o.SystemPrompt, "System instruction for grounded answers.")
	fs.IntVar(&o.JobBatchSize, p+"job-batch-size", o.JobBatchSize, "Records per page for rename/delete jobs.")
	fs.Int64Var(&o.MaxUploadSize, p+"max-upload-size", o.MaxUploadSize, "Maximum upload size in bytes.")
	fs.BoolVar(&o.TopicCache.Enabled, p+"topic-cache.enabled", o.TopicCache.Enabled, "Cache aggregated topic listings per collection.")
	fs.IntVar(&o.TopicCache.Size, p+"topic-cache.size", o.TopicCache.Size, "Number of collections kept in the topic cache.")
	fs.DurationVar(&o.TopicCache.TTL, p+"topic-cache.ttl", o.TopicCache.TTL, "Topic cache entry lifetime.")
	fs.BoolVar(&o.EmbeddingCache.Enabled, p+"embedding-cache.enabled", o.EmbeddingCache.Enabled, "Cache embeddings in Redis.")
	fs.DurationVar(&o.EmbeddingCache.TTL, p+"embedding-cache.ttl", o.EmbeddingCache.TTL, "Embedding cache TTL.")
	fs.StringVar(&o.EmbeddingCache.KeyPrefix, p+"embedding-cache.key-prefix", o.EmbeddingCache.KeyPrefix, "Embedding cache key prefix.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Store != StoreMilvus && o.Store != StoreMemory {
		errs = append(errs, fmt.Errorf("rag.store must be %q or %q", StoreMilvus, StoreMemory))
	}
	if o.Collection == "" {
		errs = append(errs, fmt.Errorf("rag.collection is required"))
	}
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk-overlap must be in [0, chunk-size)"))
	}
	if o.Limit <= 0 {
		errs = append(errs, fmt.Errorf("rag.limit must be positive"))
	}
	if o.PromptBudget <= 0 {
		errs = append(errs, fmt.Errorf("rag.prompt-budget must be positive"))
	}
	if o.JobBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.job-batch-size must be positive"))
	}
	if o.TopicCache != nil && o.TopicCache.Enabled && o.TopicCache.Size <= 0 {
		errs = append(errs, fmt.Errorf("rag.topic-cache.size must be positive"))
	}
	return errs
}

// Complete fills in empty prompts.
func (o *Options) Complete() error {
	if o.SystemPrompt == "" {
		o.SystemPrompt = DefaultSystemPrompt
	}
	if o.NoContextPrompt == "" {
		o.NoContextPrompt = DefaultNoContextPrompt
	}
	return nil
}
