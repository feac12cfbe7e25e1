package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptions_Defaults(t *testing.T) {
	opts := NewOptions()
	assert.Empty(t, opts.Validate())
	assert.Equal(t, 1000, opts.ChunkSize)
	assert.Equal(t, 200, opts.ChunkOverlap)
	assert.Equal(t, 8, opts.Limit)
	assert.Equal(t, "learning_materials", opts.Collection)
}

func TestOptions_Validate(t *testing.T) {
	opts := NewOptions()
	opts.Store = "sqlite"
	opts.ChunkOverlap = opts.ChunkSize
	errs := opts.Validate()
	assert.Len(t, errs, 2)
}

func TestOptions_Complete(t *testing.T) {
	opts := NewOptions()
	opts.SystemPrompt = ""
	assert.NoError(t, opts.Complete())
	assert.Equal(t, DefaultSystemPrompt, opts.SystemPrompt)
}
