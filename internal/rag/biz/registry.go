package biz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/learning-rag/internal/rag/metrics"
	"github.com/kart-io/learning-rag/internal/rag/store"
	errno "github.com/kart-io/learning-rag/pkg/utils/errors"
)

// RegistryConfig 主题管理配置。
type RegistryConfig struct {
	// Collection 默认集合名称。
	Collection string
	// BatchSize 批量任务每页处理的记录数。
	BatchSize int
}

// TopicInfo 主题统计。
type TopicInfo struct {
	Name          string `json:"name"`
	DocumentCount int    `json:"document_count"`
	ChunkCount    int    `json:"chunk_count"`
}

// FileInfo 主题下的文件统计，UploadedAt 为最早的上传时间。
type FileInfo struct {
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
	UploadedAt string `json:"uploaded_at"`
}

// Registry 管理主题与文件。主题由记录的 topic 字段聚合得到，最后一个块删除后主题即消失。
type Registry struct {
	store       store.VectorStore
	topics      *TopicIndex
	checkpoints CheckpointStore
	config      *RegistryConfig
	metrics     *metrics.RAGMetrics

	locks sync.Map
	now   func() time.Time
}

// NewRegistry 创建主题管理器。checkpoints 为 nil 时使用进程内存储。
func NewRegistry(
	vectorStore store.VectorStore,
	topics *TopicIndex,
	checkpoints CheckpointStore,
	config *RegistryConfig,
	m *metrics.RAGMetrics,
) *Registry {
	if topics == nil {
		topics = NewTopicIndex(vectorStore, TopicIndexConfig{})
	}
	if checkpoints == nil {
		checkpoints = NewMemoryCheckpointStore()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 256
	}
	return &Registry{
		store:       vectorStore,
		topics:      topics,
		checkpoints: checkpoints,
		config:      config,
		metrics:     m,
		now:         time.Now,
	}
}

// Topics 返回主题索引，供索引器在写入后失效缓存。
func (r *Registry) Topics() *TopicIndex { return r.topics }

// ListCollections 列出所有集合，按名称排序。
func (r *Registry) ListCollections(ctx context.Context) ([]string, error) {
	names, err := r.store.ListCollections(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	sort.Strings(names)
	return names, nil
}

// DropCollection 删除集合。
func (r *Registry) DropCollection(ctx context.Context, collection string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	defer r.topics.Invalidate(collection)
	if err := r.store.DropCollection(ctx, collection); err != nil {
		return storeError(err)
	}
	logger.Infow("Collection dropped", "collection", collection)
	return nil
}

// ListTopics 列出集合下的主题，按名称排序。
func (r *Registry) ListTopics(ctx context.Context, collection string) ([]TopicInfo, error) {
	collection, err := r.collection(collection)
	if err != nil {
		return nil, err
	}
	snap, err := r.topics.snapshot(ctx, collection)
	if err != nil {
		return nil, err
	}

	out := make([]TopicInfo, 0, len(snap))
	for name, files := range snap {
		info := TopicInfo{Name: name, DocumentCount: len(files)}
		for _, f := range files {
			info.ChunkCount += f.ChunkCount
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListFiles 列出主题下的文件，按文件名排序。主题不存在时返回空切片。
func (r *Registry) ListFiles(ctx context.Context, topic, collection string) ([]FileInfo, error) {
	topic, err := normalizeTopic(topic)
	if err != nil {
		return nil, err
	}
	collection, err = r.collection(collection)
	if err != nil {
		return nil, err
	}
	snap, err := r.topics.snapshot(ctx, collection)
	if err != nil {
		return nil, err
	}

	files := snap[topic]
	out := make([]FileInfo, 0, len(files))
	for _, f := range files {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

// RenameTopic 将 old 主题下的所有块改为 new 主题，返回更新的块数。
//
// 主题参与块 ID 的计算，因此每页先以新 ID 写入，再删除旧记录。
// 再次调用时 old 已无记录，返回 0。
// new 主题中已有同名文件时拒绝重命名，返回 ErrValidation。
func (r *Registry) RenameTopic(ctx context.Context, oldName, newName, collection string) (int, error) {
	oldName, err := normalizeTopic(oldName)
	if err != nil {
		return 0, err
	}
	newName, err = normalizeTopic(newName)
	if err != nil {
		return 0, err
	}
	collection, err = r.collection(collection)
	if err != nil {
		return 0, err
	}
	if oldName == newName {
		return 0, nil
	}

	return r.runJob(ctx, &job{
		kind:        JobRenameTopic,
		collection:  collection,
		args:        map[string]string{"old_name": oldName, "new_name": newName},
		filter:      store.Filter{Topics: []string{oldName}},
		withVectors: true,
		precheck: func(ctx context.Context) error {
			return r.checkRenameTarget(ctx, collection, oldName, newName)
		},
		apply: func(ctx context.Context, page []store.Point) (int, error) {
			moved := make([]store.Point, len(page))
			ids := make([]string, len(page))
			for i, p := range page {
				p.Payload.Topic = newName
				p.ID = ChunkID(newName, p.Payload.SourceFile, p.Payload.ChunkIndex)
				moved[i] = p
				ids[i] = page[i].ID
			}
			if err := r.store.Upsert(ctx, collection, moved); err != nil {
				return 0, err
			}
			if _, err := r.store.Delete(ctx, collection, ids); err != nil {
				return 0, err
			}
			return len(moved), nil
		},
	}, oldName, newName)
}

// checkRenameTarget 检查 oldName 与 newName 下是否存在同名文件。
func (r *Registry) checkRenameTarget(ctx context.Context, collection, oldName, newName string) error {
	snap, err := r.topics.snapshot(ctx, collection)
	if err != nil {
		return err
	}
	target := snap[newName]
	var conflicts []string
	for name := range snap[oldName] {
		if _, ok := target[name]; ok {
			conflicts = append(conflicts, name)
		}
	}
	if len(conflicts) == 0 {
		return nil
	}
	sort.Strings(conflicts)
	return errno.ErrValidation.WithMessagef("topic %q already contains %s", newName, strings.Join(conflicts, ", "))
}

// DeleteTopic 删除主题下的所有块，返回向量库报告的删除数量。
func (r *Registry) DeleteTopic(ctx context.Context, topic, collection string) (int, error) {
	topic, err := normalizeTopic(topic)
	if err != nil {
		return 0, err
	}
	collection, err = r.collection(collection)
	if err != nil {
		return 0, err
	}

	return r.runJob(ctx, r.deleteJob(JobDeleteTopic, collection,
		map[string]string{"topic": topic},
		store.Filter{Topics: []string{topic}},
	), topic)
}

// DeleteFile 删除主题下某个文件的所有块。
func (r *Registry) DeleteFile(ctx context.Context, topic, filename, collection string) (int, error) {
	topic, err := normalizeTopic(topic)
	if err != nil {
		return 0, err
	}
	if err := checkFilename(filename); err != nil {
		return 0, err
	}
	collection, err = r.collection(collection)
	if err != nil {
		return 0, err
	}

	return r.runJob(ctx, r.deleteJob(JobDeleteFile, collection,
		map[string]string{"topic": topic, "filename": filename},
		store.Filter{Topics: []string{topic}, SourceFile: filename},
	), topic, filename)
}

func (r *Registry) deleteJob(kind JobKind, collection string, args map[string]string, filter store.Filter) *job {
	del := func(ctx context.Context, ids []string) (int, error) {
		return r.store.Delete(ctx, collection, ids)
	}
	return &job{
		kind:       kind,
		collection: collection,
		args:       args,
		filter:     filter,
		apply: func(ctx context.Context, page []store.Point) (int, error) {
			ids := make([]string, len(page))
			for i, p := range page {
				ids[i] = p.ID
			}
			return del(ctx, ids)
		},
		replay: del,
	}
}

// job 一个按页处理的批量任务。
type job struct {
	kind        JobKind
	collection  string
	args        map[string]string
	filter      store.Filter
	withVectors bool
	// precheck 新任务开始前的校验，恢复中的任务跳过。
	precheck func(ctx context.Context) error
	// apply 处理一页记录，返回计入结果的数量。
	apply func(ctx context.Context, page []store.Point) (int, error)
	// replay 恢复时处理检查点中未完成的记录，为 nil 时只依赖从游标重新扫描。
	replay func(ctx context.Context, ids []string) (int, error)
}

// runJob 执行或恢复任务。任务失败时保留检查点，下次以相同参数调用时从检查点继续。
func (r *Registry) runJob(ctx context.Context, j *job, keyArgs ...string) (processed int, err error) {
	key := jobKey(j.kind, j.collection, keyArgs...)
	unlock := r.lock(key)
	defer unlock()

	cp, err := r.checkpoints.Load(ctx, key)
	if err != nil {
		return 0, errno.ErrInternal.WithCause(fmt.Errorf("load checkpoint %s: %w", key, err))
	}
	resumed := cp != nil
	if resumed {
		logger.Infow("Resuming topic job",
			"kind", string(j.kind),
			"collection", j.collection,
			"cursor", cp.Cursor,
			"pending", len(cp.Pending),
			"processed", cp.Processed,
		)
	} else {
		if j.precheck != nil {
			if err := j.precheck(ctx); err != nil {
				return 0, err
			}
		}
		cp = &Checkpoint{Kind: j.kind, Collection: j.collection, Args: j.args}
	}

	defer func() {
		r.topics.Invalidate(j.collection)
		if r.metrics != nil {
			r.metrics.RecordJob(processed, resumed, err)
		}
	}()

	if len(cp.Pending) > 0 && j.replay != nil {
		n, err := j.replay(ctx, cp.Pending)
		if err != nil {
			return cp.Processed, storeError(err)
		}
		cp.Processed += n
		cp.Pending = nil
		if err := r.save(ctx, key, cp); err != nil {
			return cp.Processed, err
		}
	}

	start := cp.Cursor
	if err := r.sweep(ctx, j, key, cp); err != nil {
		return cp.Processed, err
	}
	// 中断期间游标之前可能写入了新的匹配记录，从头再扫一遍。
	if resumed && start != "" {
		cp.Cursor = ""
		if err := r.save(ctx, key, cp); err != nil {
			return cp.Processed, err
		}
		if err := r.sweep(ctx, j, key, cp); err != nil {
			return cp.Processed, err
		}
	}

	if err := r.checkpoints.Delete(ctx, key); err != nil {
		logger.Warnw("Failed to remove job checkpoint", "key", key, "error", err.Error())
	}
	logger.Infow("Topic job completed",
		"kind", string(j.kind),
		"collection", j.collection,
		"processed", cp.Processed,
		"resumed", resumed,
	)
	return cp.Processed, nil
}

// sweep 从 cp.Cursor 开始逐页处理匹配记录，每页完成后推进游标。
func (r *Registry) sweep(ctx context.Context, j *job, key string, cp *Checkpoint) error {
	for {
		page, err := r.store.Scan(ctx, j.collection, store.ScanRequest{
			Filter:      j.filter,
			Cursor:      cp.Cursor,
			Limit:       r.config.BatchSize,
			WithVectors: j.withVectors,
		})
		if err != nil {
			return storeError(err)
		}
		if len(page.Points) == 0 {
			return nil
		}

		cp.Pending = make([]string, len(page.Points))
		for i, p := range page.Points {
			cp.Pending[i] = p.ID
		}
		if err := r.save(ctx, key, cp); err != nil {
			return err
		}

		n, err := j.apply(ctx, page.Points)
		if err != nil {
			logger.Warnw("Topic job interrupted",
				"kind", string(j.kind),
				"collection", j.collection,
				"processed", cp.Processed,
				"error", err.Error(),
			)
			return storeError(err)
		}

		cp.Processed += n
		cp.Cursor = cp.Pending[len(cp.Pending)-1]
		cp.Pending = nil
		if page.NextCursor == "" {
			return nil
		}
		if err := r.save(ctx, key, cp); err != nil {
			return err
		}
	}
}

func (r *Registry) save(ctx context.Context, key string, cp *Checkpoint) error {
	cp.UpdatedAt = r.now().UTC()
	if err := r.checkpoints.Save(ctx, key, cp); err != nil {
		return errno.ErrInternal.WithCause(fmt.Errorf("save checkpoint %s: %w", key, err))
	}
	return nil
}

func (r *Registry) lock(key string) func() {
	v, _ := r.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Collection 返回 name 解析后的集合名，空值取默认集合。
func (r *Registry) Collection(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return r.config.Collection
}

func (r *Registry) collection(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = r.config.Collection
	}
	if err := checkCollection(name); err != nil {
		return "", err
	}
	return name, nil
}
