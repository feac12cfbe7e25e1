package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errno "github.com/kart-io/learning-rag/pkg/utils/errors"
)

func TestRetriever_OrderingAndLimit(t *testing.T) {
	f := newFixture(t)
	f.index(t, "Bio", "cells.md", biologyText)
	f.index(t, "History", "rome.txt", historyText)

	chunks, err := f.retriever.Search(context.Background(), SearchRequest{Query: "mitochondria energy", Limit: 3})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i-1].Score, chunks[i].Score)
	}

	all, err := f.retriever.Search(context.Background(), SearchRequest{Query: "anything"})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(all), DefaultLimit)
}

func TestRetriever_TopicIsolation(t *testing.T) {
	f := newFixture(t)
	f.index(t, "Bio", "cells.md", biologyText)
	f.index(t, "History", "rome.txt", historyText)
	f.index(t, "Bio-extra", "notes.txt", biologyText)

	chunks, err := f.retriever.Search(context.Background(), SearchRequest{
		Query:  "Rome",
		Topics: []string{" Bio ", "Bio", ""},
		Limit:  50,
	})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, "Bio", c.Topic)
		assert.Equal(t, "cells.md", c.SourceFile)
	}

	both, err := f.retriever.Search(context.Background(), SearchRequest{
		Query:  "Rome",
		Topics: []string{"Bio", "History"},
		Limit:  50,
	})
	require.NoError(t, err)
	topics := map[string]bool{}
	for _, c := range both {
		topics[c.Topic] = true
	}
	assert.Equal(t, map[string]bool{"Bio": true, "History": true}, topics)
}

func TestRetriever_EmptyCollection(t *testing.T) {
	f := newFixture(t)

	chunks, err := f.retriever.Search(context.Background(), SearchRequest{Query: "cells"})
	require.NoError(t, err)
	assert.Empty(t, chunks)

	f.index(t, "Bio", "cells.md", biologyText)
	chunks, err = f.retriever.Search(context.Background(), SearchRequest{Query: "cells", Topics: []string{"Chemistry"}})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestRetriever_EmptyQuery(t *testing.T) {
	f := newFixture(t)

	_, err := f.retriever.Search(context.Background(), SearchRequest{Query: "  "})
	assert.ErrorIs(t, err, errno.ErrValidation)
}

func TestNormalizeTopics(t *testing.T) {
	assert.Nil(t, normalizeTopics(nil))
	assert.Equal(t, []string{"Bio", "Chem"}, normalizeTopics([]string{" Bio", "", "Chem", "Bio ", "  "}))
	assert.Empty(t, normalizeTopics([]string{"", " "}))
}
