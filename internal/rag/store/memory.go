package store

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
)

// MemoryStore 进程内向量存储，用于单机运行和测试。
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	dim    int
	points map[string]Point
}

var _ VectorStore = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

// Name 返回后端名称。
func (s *MemoryStore) Name() string { return "memory" }

// Ping 始终可用。
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close 无需释放资源。
func (s *MemoryStore) Close(context.Context) error { return nil }

// ListCollections 列出所有集合（已排序）。
func (s *MemoryStore) ListCollections(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// EnsureCollection 确保集合存在。
func (s *MemoryStore) EnsureCollection(_ context.Context, collection string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[collection]; ok {
		if c.dim != dim {
			return fmt.Errorf("%w: collection %s has dimension %d, got %d", ErrDimensionMismatch, collection, c.dim, dim)
		}
		return nil
	}
	s.collections[collection] = &memCollection{dim: dim, points: make(map[string]Point)}
	return nil
}

// DropCollection 删除集合。
func (s *MemoryStore) DropCollection(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collection)
	return nil
}

// Upsert 按 ID 覆盖写入。
func (s *MemoryStore) Upsert(_ context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s does not exist", collection)
	}
	for _, p := range points {
		if len(p.Vector) != c.dim {
			return fmt.Errorf("%w: point %s has dimension %d, collection has %d", ErrDimensionMismatch, p.ID, len(p.Vector), c.dim)
		}
	}
	for _, p := range points {
		p.Vector = slices.Clone(p.Vector)
		c.points[p.ID] = p
	}
	return nil
}

// Search 以余弦相似度打分，分数相同按 ID 排序。
func (s *MemoryStore) Search(_ context.Context, collection string, vector []float32, limit int, filter Filter) ([]ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok || limit <= 0 {
		return []ScoredPoint{}, nil
	}
	if len(vector) != c.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, collection has %d", ErrDimensionMismatch, len(vector), c.dim)
	}

	results := make([]ScoredPoint, 0, len(c.points))
	for _, p := range c.points {
		if !filter.match(p.Payload) {
			continue
		}
		results = append(results, ScoredPoint{Point: clonePoint(p, false), Score: cosine(vector, p.Vector)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Scan 按 ID 升序分页。
func (s *MemoryStore) Scan(_ context.Context, collection string, req ScanRequest) (*ScanResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return &ScanResult{}, nil
	}

	ids := make([]string, 0, len(c.points))
	for id, p := range c.points {
		if id > req.Cursor && req.Filter.match(p.Payload) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	result := &ScanResult{}
	if req.Limit > 0 && len(ids) > req.Limit {
		ids = ids[:req.Limit]
		result.NextCursor = ids[len(ids)-1]
	}
	result.Points = make([]Point, len(ids))
	for i, id := range ids {
		result.Points[i] = clonePoint(c.points[id], req.WithVectors)
	}
	return result, nil
}

// Delete 按 ID 删除，只统计实际存在的记录。
func (s *MemoryStore) Delete(_ context.Context, collection string, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return 0, nil
	}
	n := 0
	for _, id := range ids {
		if _, ok := c.points[id]; ok {
			delete(c.points, id)
			n++
		}
	}
	return n, nil
}

// Count 返回集合记录数。
func (s *MemoryStore) Count(_ context.Context, collection string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return 0, nil
	}
	return int64(len(c.points)), nil
}

func (f Filter) match(p Payload) bool {
	if len(f.Topics) > 0 && !slices.Contains(f.Topics, p.Topic) {
		return false
	}
	if f.SourceFile != "" && p.SourceFile != f.SourceFile {
		return false
	}
	return true
}

func clonePoint(p Point, withVector bool) Point {
	if withVector {
		p.Vector = slices.Clone(p.Vector)
	} else {
		p.Vector = nil
	}
	return p
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
