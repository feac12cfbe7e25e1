package llm

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingOptions_Defaults(t *testing.T) {
	opts := NewEmbeddingOptions()
	assert.Empty(t, opts.Validate())
	assert.Equal(t, "nomic-embed-text", opts.ToConfigMap()["embed_model"])
}

func TestChatOptions_Flags(t *testing.T) {
	opts := NewChatOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{"--chat.model=llama3", "--chat.timeout=10s", "--chat.top-k=20"}))
	assert.Equal(t, "llama3", opts.Model)
	assert.Equal(t, 20, opts.ToConfigMap()["top_k"])
	assert.Empty(t, opts.Validate())
}

func TestValidate_OpenAIRequiresKey(t *testing.T) {
	opts := NewChatOptions()
	opts.Provider = "openai"
	errs := opts.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "chat.api-key")

	emb := NewEmbeddingOptions()
	emb.BatchSize = 0
	assert.Len(t, emb.Validate(), 1)
}
