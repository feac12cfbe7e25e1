package biz

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/learning-rag/pkg/utils/json"
)

// JobKind 主题批量任务类型。
type JobKind string

const (
	JobRenameTopic JobKind = "rename_topic"
	JobDeleteTopic JobKind = "delete_topic"
	JobDeleteFile  JobKind = "delete_file"
)

// Checkpoint 批量任务进度。
//
// Pending 在处理一页之前写入，Cursor 在该页处理完成后前移，
// 因此中途崩溃后恢复时会重放该页而不会跳过。
type Checkpoint struct {
	Kind       JobKind           `json:"kind"`
	Collection string            `json:"collection"`
	Args       map[string]string `json:"args"`
	Cursor     string            `json:"cursor"`
	Pending    []string          `json:"pending,omitempty"`
	Processed  int               `json:"processed"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// CheckpointStore 保存任务检查点。Load 在检查点不存在时返回 (nil, nil)。
type CheckpointStore interface {
	Load(ctx context.Context, key string) (*Checkpoint, error)
	Save(ctx context.Context, key string, cp *Checkpoint) error
	Delete(ctx context.Context, key string) error
}

// jobKey 由任务类型、集合与参数生成检查点键。
func jobKey(kind JobKind, collection string, args ...string) string {
	sum := sha1.Sum([]byte(strings.Join(args, "\x00")))
	return string(kind) + ":" + collection + ":" + hex.EncodeToString(sum[:])
}

// MemoryCheckpointStore 进程内检查点存储。
type MemoryCheckpointStore struct {
	mu  sync.Mutex
	cps map[string]*Checkpoint
}

var _ CheckpointStore = (*MemoryCheckpointStore)(nil)

// NewMemoryCheckpointStore 创建进程内检查点存储。
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{cps: make(map[string]*Checkpoint)}
}

func (m *MemoryCheckpointStore) Load(_ context.Context, key string) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.cps[key]
	if !ok {
		return nil, nil
	}
	return cp.clone(), nil
}

func (m *MemoryCheckpointStore) Save(_ context.Context, key string, cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cps[key] = cp.clone()
	return nil
}

func (m *MemoryCheckpointStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cps, key)
	return nil
}

func (cp *Checkpoint) clone() *Checkpoint {
	c := *cp
	c.Pending = append([]string(nil), cp.Pending...)
	if cp.Args != nil {
		c.Args = make(map[string]string, len(cp.Args))
		for k, v := range cp.Args {
			c.Args[k] = v
		}
	}
	return &c
}

// RedisCheckpointStore 基于 Redis 的检查点存储，多实例部署时可由任一实例恢复任务。
type RedisCheckpointStore struct {
	client goredis.Cmdable
	prefix string
	ttl    time.Duration
}

var _ CheckpointStore = (*RedisCheckpointStore)(nil)

// NewRedisCheckpointStore 创建 Redis 检查点存储。ttl 为 0 表示不过期。
func NewRedisCheckpointStore(client goredis.Cmdable, prefix string, ttl time.Duration) *RedisCheckpointStore {
	if prefix == "" {
		prefix = "rag:job:"
	}
	return &RedisCheckpointStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisCheckpointStore) Load(ctx context.Context, key string) (*Checkpoint, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (r *RedisCheckpointStore) Save(ctx context.Context, key string, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, data, r.ttl).Err()
}

func (r *RedisCheckpointStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
