// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/learning-rag/pkg/options"
)

var (
	_ options.IOptions = (*EmbeddingOptions)(nil)
	_ options.IOptions = (*ChatOptions)(nil)
)

// ProviderOptions 定义 LLM 供应商通用配置。
type ProviderOptions struct {
	// Provider 供应商名称（ollama, openai）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey API 密钥（OpenAI 等需要）。
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model 使用的模型名称。
	Model string `json:"model" mapstructure:"model"`

	// Timeout 单次请求超时时间，embedding 与 chat 相互独立。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数（指数退避）。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Organization 组织 ID（OpenAI 可选）。
	Organization string `json:"organization" mapstructure:"organization"`
}

// EmbeddingOptions 定义 Embedding 供应商配置。
type EmbeddingOptions struct {
	ProviderOptions `mapstructure:",squash"`

	// BatchSize 每次请求携带的文本数量。
	BatchSize int `json:"batch-size" mapstructure:"batch-size"`

	// Concurrency 同时在途的批次数量。
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`
}

// ChatOptions 定义 Chat 供应商配置。
type ChatOptions struct {
	ProviderOptions `mapstructure:",squash"`

	// Temperature 采样温度。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// TopP 核采样参数。
	TopP float64 `json:"top-p" mapstructure:"top-p"`

	// TopK 候选词数量（Ollama）。
	TopK int `json:"top-k" mapstructure:"top-k"`
}

// NewEmbeddingOptions 创建默认 Embedding 供应商配置。
func NewEmbeddingOptions() *EmbeddingOptions {
	return &EmbeddingOptions{
		ProviderOptions: ProviderOptions{
			Provider:   "ollama",
			BaseURL:    "http://localhost:11434",
			Model:      "nomic-embed-text",
			Timeout:    60 * time.Second,
			MaxRetries: 3,
		},
		BatchSize:   32,
		Concurrency: 2,
	}
}

// NewChatOptions 创建默认 Chat 供应商配置。
func NewChatOptions() *ChatOptions {
	return &ChatOptions{
		ProviderOptions: ProviderOptions{
			Provider:   "ollama",
			BaseURL:    "http://localhost:11434",
			Model:      "qwen2.5:0.5b",
			Timeout:    300 * time.Second,
			MaxRetries: 1,
		},
		Temperature: 0.7,
		TopP:        0.9,
		TopK:        40,
	}
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
func (o *EmbeddingOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"timeout":      o.Timeout,
		"organization": o.Organization,
	}
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
func (o *ChatOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"chat_model":   o.Model,
		"timeout":      o.Timeout,
		"organization": o.Organization,
		"temperature":  o.Temperature,
		"top_p":        o.TopP,
		"top_k":        o.TopK,
	}
}

func (o *ProviderOptions) addFlags(fs *pflag.FlagSet, p string) {
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "Provider name (ollama, openai).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "API base URL.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "API key (openai).")
	fs.StringVar(&o.Model, p+"model", o.Model, "Model name.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Per request timeout.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Maximum number of retries.")
	fs.StringVar(&o.Organization, p+"organization", o.Organization, "Organization ID (optional).")
}

// AddFlags adds embedding flags to the specified FlagSet.
func (o *EmbeddingOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "embedding."
	o.addFlags(fs, p)
	fs.IntVar(&o.BatchSize, p+"batch-size", o.BatchSize, "Number of texts per embedding request.")
	fs.IntVar(&o.Concurrency, p+"concurrency", o.Concurrency, "Number of embedding batches in flight.")
}

// AddFlags adds chat flags to the specified FlagSet.
func (o *ChatOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "chat."
	o.addFlags(fs, p)
	fs.Float64Var(&o.Temperature, p+"temperature", o.Temperature, "Sampling temperature.")
	fs.Float64Var(&o.TopP, p+"top-p", o.TopP, "Nucleus sampling threshold.")
	fs.IntVar(&o.TopK, p+"top-k", o.TopK, "Top-k sampling (ollama).")
}

func (o *ProviderOptions) validate(prefix string) []error {
	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("%s.provider is required", prefix))
	}
	if o.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%s.base-url is required", prefix))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("%s.model is required", prefix))
	}
	// OpenAI 供应商需要 API key
	if o.Provider == "openai" && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("%s.api-key is required for openai provider", prefix))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s.timeout must be positive", prefix))
	}
	if o.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%s.max-retries must not be negative", prefix))
	}
	return errs
}

// Validate validates the embedding options.
func (o *EmbeddingOptions) Validate() []error {
	if o == nil {
		return nil
	}
	errs := o.validate("embedding")
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embedding.batch-size must be positive"))
	}
	if o.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("embedding.concurrency must be positive"))
	}
	return errs
}

// Validate validates the chat options.
func (o *ChatOptions) Validate() []error {
	if o == nil {
		return nil
	}
	return o.validate("chat")
}
