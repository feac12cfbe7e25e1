package biz

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/learning-rag/internal/rag/store"
	errno "github.com/kart-io/learning-rag/pkg/utils/errors"
)

func topicNames(t *testing.T, r *Registry) []string {
	t.Helper()
	topics, err := r.ListTopics(context.Background(), "")
	require.NoError(t, err)
	names := make([]string, len(topics))
	for i, tp := range topics {
		names[i] = tp.Name
	}
	return names
}

func TestRegistry_ListTopicsAndFiles(t *testing.T) {
	f := newFixture(t)
	cells := f.index(t, "Bio", "cells.md", biologyText)
	notes := f.index(t, "Bio", "a-notes.txt", "Enzymes speed up reactions.")
	rome := f.index(t, "History", "rome.txt", historyText)

	topics, err := f.registry.ListTopics(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []TopicInfo{
		{Name: "Bio", DocumentCount: 2, ChunkCount: cells.ChunksIndexed + notes.ChunksIndexed},
		{Name: "History", DocumentCount: 1, ChunkCount: rome.ChunksIndexed},
	}, topics)

	files, err := f.registry.ListFiles(context.Background(), "Bio", "")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a-notes.txt", files[0].Filename)
	assert.Equal(t, "cells.md", files[1].Filename)
	assert.Equal(t, cells.ChunksIndexed, files[1].ChunkCount)
	assert.NotEmpty(t, files[1].UploadedAt)

	missing, err := f.registry.ListFiles(context.Background(), "Chemistry", "")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestRegistry_RenameBioToBiology(t *testing.T) {
	f := newFixture(t)
	cells := f.index(t, "Bio", "cells.md", biologyText)
	f.index(t, "History", "rome.txt", historyText)
	total := f.count(t)

	updated, err := f.registry.RenameTopic(context.Background(), "Bio", "Biology", "")
	require.NoError(t, err)
	assert.Equal(t, cells.ChunksIndexed, updated)
	assert.Equal(t, []string{"Biology", "History"}, topicNames(t, f.registry))
	assert.Equal(t, total, f.count(t))

	for _, p := range scanAll(t, f.store, store.Filter{Topics: []string{"Biology"}}) {
		assert.Equal(t, ChunkID("Biology", p.Payload.SourceFile, p.Payload.ChunkIndex), p.ID)
	}

	again, err := f.registry.RenameTopic(context.Background(), "Bio", "Biology", "")
	require.NoError(t, err)
	assert.Zero(t, again)

	// 重新上传到新主题时覆盖而不是重复
	f.index(t, "Biology", "cells.md", biologyText)
	assert.Equal(t, total, f.count(t))
}

func TestRegistry_RenameEdgeCases(t *testing.T) {
	f := newFixture(t)
	f.index(t, "Bio", "cells.md", biologyText)

	n, err := f.registry.RenameTopic(context.Background(), "Bio", " Bio ", "")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.registry.RenameTopic(context.Background(), "Bio", "", "")
	assert.ErrorIs(t, err, errno.ErrValidation)
	_, err = f.registry.RenameTopic(context.Background(), "", "Biology", "")
	assert.ErrorIs(t, err, errno.ErrValidation)

	n, err = f.registry.RenameTopic(context.Background(), "Chemistry", "Chem", "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRegistry_ResumesRenameAfterCrash(t *testing.T) {
	s := &faultyStore{VectorStore: store.NewMemoryStore()}
	f := newFixture(t, withStore(s), withJobBatch(2))
	cells := f.index(t, "Bio", "cells.md", biologyText)
	require.Greater(t, cells.ChunksIndexed, 4)
	total := f.count(t)

	// 第二页删除旧记录时失败
	s.failDeleteAt = s.deletes.Load() + 2
	_, err := f.registry.RenameTopic(context.Background(), "Bio", "Biology", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errInjected)

	key := jobKey(JobRenameTopic, testCollection, "Bio", "Biology")
	cp, err := f.registry.checkpoints.Load(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Len(t, cp.Pending, 2)
	assert.Equal(t, 2, cp.Processed)
	assert.NotEmpty(t, cp.Cursor)

	updated, err := f.registry.RenameTopic(context.Background(), "Bio", "Biology", "")
	require.NoError(t, err)
	assert.Equal(t, cells.ChunksIndexed, updated)

	assert.Equal(t, []string{"Biology"}, topicNames(t, f.registry))
	assert.Equal(t, total, f.count(t))
	cp, err = f.registry.checkpoints.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Nil(t, cp)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().Jobs.Resumed)
}

func TestRegistry_ResumedRenamePicksUpChunksBehindCursor(t *testing.T) {
	s := &faultyStore{VectorStore: store.NewMemoryStore()}
	f := newFixture(t, withStore(s), withJobBatch(2))
	cells := f.index(t, "Bio", "cells.md", biologyText)
	require.Greater(t, cells.ChunksIndexed, 4)

	s.failDeleteAt = s.deletes.Load() + 2
	_, err := f.registry.RenameTopic(context.Background(), "Bio", "Biology", "")
	require.ErrorIs(t, err, errInjected)

	key := jobKey(JobRenameTopic, testCollection, "Bio", "Biology")
	cp, err := f.registry.checkpoints.Load(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, cp)

	// 中断期间写入一个 ID 排在游标之前的文件
	late := ""
	for i := 0; i < 1000 && late == ""; i++ {
		name := fmt.Sprintf("late-%d.txt", i)
		if ChunkID("Bio", name, 0) < cp.Cursor {
			late = name
		}
	}
	require.NotEmpty(t, late)
	lateRes := f.index(t, "Bio", late, "Short bio note.")
	require.Equal(t, 1, lateRes.ChunksIndexed)

	updated, err := f.registry.RenameTopic(context.Background(), "Bio", "Biology", "")
	require.NoError(t, err)
	assert.Equal(t, cells.ChunksIndexed+1, updated)
	assert.Empty(t, scanAll(t, f.store, store.Filter{Topics: []string{"Bio"}}))
	assert.Equal(t, []string{"Biology"}, topicNames(t, f.registry))

	again, err := f.registry.RenameTopic(context.Background(), "Bio", "Biology", "")
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestRegistry_RenameRejectsFilenameCollision(t *testing.T) {
	f := newFixture(t)
	f.index(t, "Bio", "notes.txt", "Short bio note about cells.")
	f.index(t, "Bio", "cells.md", biologyText)
	target := f.index(t, "Biology", "notes.txt", biologyText)
	require.Greater(t, target.ChunksIndexed, 1)
	before := f.count(t)

	_, err := f.registry.RenameTopic(context.Background(), "Bio", "Biology", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errno.ErrValidation)
	assert.Contains(t, errno.FromError(err).Detail(), "notes.txt")

	assert.Equal(t, before, f.count(t))
	assert.Equal(t, []string{"Bio", "Biology"}, topicNames(t, f.registry))
	files, err := f.registry.ListFiles(context.Background(), "Biology", "")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, target.ChunksIndexed, files[0].ChunkCount)

	key := jobKey(JobRenameTopic, testCollection, "Bio", "Biology")
	cp, err := f.registry.checkpoints.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestRegistry_DeleteFileRemovesEmptyTopic(t *testing.T) {
	f := newFixture(t)
	cells := f.index(t, "Bio", "cells.md", biologyText)
	f.index(t, "History", "rome.txt", historyText)

	deleted, err := f.registry.DeleteFile(context.Background(), "Bio", "cells.md", "")
	require.NoError(t, err)
	assert.Equal(t, cells.ChunksIndexed, deleted)
	assert.Equal(t, []string{"History"}, topicNames(t, f.registry))

	deleted, err = f.registry.DeleteFile(context.Background(), "Bio", "cells.md", "")
	require.NoError(t, err)
	assert.Zero(t, deleted)

	_, err = f.registry.DeleteFile(context.Background(), "Bio", "../etc/passwd", "")
	assert.ErrorIs(t, err, errno.ErrValidation)
}

func TestRegistry_DeleteTopic(t *testing.T) {
	f := newFixture(t, withJobBatch(3))
	a := f.index(t, "Bio", "cells.md", biologyText)
	b := f.index(t, "Bio", "more.md", historyText)
	rome := f.index(t, "History", "rome.txt", historyText)

	deleted, err := f.registry.DeleteTopic(context.Background(), "Bio", "")
	require.NoError(t, err)
	assert.Equal(t, a.ChunksIndexed+b.ChunksIndexed, deleted)
	assert.EqualValues(t, rome.ChunksIndexed, f.count(t))
	assert.Equal(t, []string{"History"}, topicNames(t, f.registry))
}

func TestRegistry_ResumesDeleteWithPendingPage(t *testing.T) {
	f := newFixture(t, withJobBatch(2))
	f.index(t, "Bio", "cells.md", biologyText)
	before := f.count(t)

	page := scanAll(t, f.store, store.Filter{Topics: []string{"Bio"}})[:2]
	key := jobKey(JobDeleteTopic, testCollection, "Bio")
	require.NoError(t, f.registry.checkpoints.Save(context.Background(), key, &Checkpoint{
		Kind:       JobDeleteTopic,
		Collection: testCollection,
		Pending:    []string{page[0].ID, page[1].ID},
	}))

	deleted, err := f.registry.DeleteTopic(context.Background(), "Bio", "")
	require.NoError(t, err)
	assert.EqualValues(t, before, deleted)
	assert.Zero(t, f.count(t))
}

func TestRegistry_TopicCacheInvalidation(t *testing.T) {
	f := newFixture(t, withTopicCache())
	f.index(t, "Bio", "cells.md", biologyText)
	assert.Equal(t, []string{"Bio"}, topicNames(t, f.registry))

	f.index(t, "History", "rome.txt", historyText)
	assert.Equal(t, []string{"Bio", "History"}, topicNames(t, f.registry))

	_, err := f.registry.RenameTopic(context.Background(), "History", "Antiquity", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Antiquity", "Bio"}, topicNames(t, f.registry))

	require.NoError(t, f.registry.DropCollection(context.Background(), testCollection))
	assert.Empty(t, topicNames(t, f.registry))
}

func TestRegistry_Collections(t *testing.T) {
	f := newFixture(t)
	f.index(t, "Bio", "cells.md", biologyText)
	_, err := f.indexer.IndexDocument(context.Background(), IndexRequest{
		Content: historyText, Filename: "rome.txt", Topic: "History", Collection: "archive",
	})
	require.NoError(t, err)

	names, err := f.registry.ListCollections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"archive", testCollection}, names)

	assert.ErrorIs(t, f.registry.DropCollection(context.Background(), "bad name"), errno.ErrValidation)
	require.NoError(t, f.registry.DropCollection(context.Background(), "archive"))
	names, err = f.registry.ListCollections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{testCollection}, names)
}
