package biz

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/kart-io/learning-rag/internal/rag/store"
)

// TopicIndexConfig 主题索引缓存配置。
type TopicIndexConfig struct {
	// Enabled 为 false 时每次都扫描向量库。
	Enabled bool
	// Size 缓存的集合数量上限。
	Size int
	// TTL 缓存过期时间，约束其他进程写入造成的陈旧。
	TTL time.Duration
	// ScanBatchSize 重建时的扫描页大小。
	ScanBatchSize int
}

// topicSnapshot 某个集合的主题 -> 文件 -> 统计。
type topicSnapshot map[string]map[string]*FileInfo

// TopicIndex 从向量库扫描聚合主题与文件信息。
// 本进程内的所有写操作都会调用 Invalidate。
type TopicIndex struct {
	store  store.VectorStore
	config TopicIndexConfig
	cache  *expirable.LRU[string, topicSnapshot]
	group  singleflight.Group

	mu  sync.Mutex
	gen map[string]uint64
}

// NewTopicIndex 创建主题索引。
func NewTopicIndex(vectorStore store.VectorStore, config TopicIndexConfig) *TopicIndex {
	if config.ScanBatchSize <= 0 {
		config.ScanBatchSize = 512
	}
	t := &TopicIndex{store: vectorStore, config: config, gen: make(map[string]uint64)}
	if config.Enabled {
		if config.Size <= 0 {
			config.Size = 64
		}
		t.cache = expirable.NewLRU[string, topicSnapshot](config.Size, nil, config.TTL)
	}
	return t
}

// Invalidate 丢弃集合的缓存，正在进行的重建结果也不会写入缓存。
func (t *TopicIndex) Invalidate(collection string) {
	t.mu.Lock()
	t.gen[collection]++
	t.mu.Unlock()
	if t.cache != nil {
		t.cache.Remove(collection)
	}
}

func (t *TopicIndex) generation(collection string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen[collection]
}

// snapshot 返回集合的聚合信息，并发重建会合并为一次扫描。
func (t *TopicIndex) snapshot(ctx context.Context, collection string) (topicSnapshot, error) {
	if t.cache != nil {
		if snap, ok := t.cache.Get(collection); ok {
			return snap, nil
		}
	}

	v, err, _ := t.group.Do(collection, func() (any, error) {
		gen := t.generation(collection)
		snap, err := t.build(ctx, collection)
		if err != nil {
			return nil, err
		}
		if t.cache != nil && t.generation(collection) == gen {
			t.cache.Add(collection, snap)
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(topicSnapshot), nil
}

func (t *TopicIndex) build(ctx context.Context, collection string) (topicSnapshot, error) {
	snap := make(topicSnapshot)
	cursor := ""
	for {
		page, err := t.store.Scan(ctx, collection, store.ScanRequest{
			Cursor: cursor,
			Limit:  t.config.ScanBatchSize,
		})
		if err != nil {
			return nil, storeError(err)
		}
		for _, p := range page.Points {
			files, ok := snap[p.Payload.Topic]
			if !ok {
				files = make(map[string]*FileInfo)
				snap[p.Payload.Topic] = files
			}
			info, ok := files[p.Payload.SourceFile]
			if !ok {
				info = &FileInfo{Filename: p.Payload.SourceFile, UploadedAt: p.Payload.UploadedAt}
				files[p.Payload.SourceFile] = info
			}
			info.ChunkCount++
			if p.Payload.UploadedAt != "" && (info.UploadedAt == "" || p.Payload.UploadedAt < info.UploadedAt) {
				info.UploadedAt = p.Payload.UploadedAt
			}
		}
		if page.NextCursor == "" {
			return snap, nil
		}
		cursor = page.NextCursor
	}
}
