package store

import (
	"context"
	"errors"
)

var (
	// ErrDimensionMismatch 集合已存在但向量维度不同。
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrUnavailable 存储后端不可达。
	ErrUnavailable = errors.New("vector store unavailable")
)

// Payload 文档块的标量字段。
type Payload struct {
	Topic      string `json:"topic"`
	SourceFile string `json:"source_file"`
	ChunkIndex int    `json:"chunk_index"`
	CharStart  int    `json:"char_start"`
	CharEnd    int    `json:"char_end"`
	// UploadedAt RFC 3339 UTC 时间。
	UploadedAt string `json:"uploaded_at"`
	Text       string `json:"text"`
}

// Point 一条向量记录。
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// ScoredPoint 带相似度分数的检索结果。
type ScoredPoint struct {
	Point
	Score float32
}

// Filter 标量过滤条件，各字段之间为 AND 关系。
type Filter struct {
	// Topics 非空时匹配 topic in Topics。
	Topics []string
	// SourceFile 非空时匹配 source_file == SourceFile。
	SourceFile string
}

// ScanRequest 按主键顺序分页扫描。
type ScanRequest struct {
	Filter Filter
	// Cursor 上一页最后一条记录的 ID，空串表示从头开始。
	Cursor string
	Limit  int
	// WithVectors 是否返回向量。
	WithVectors bool
}

// ScanResult 单页扫描结果，Points 按 ID 升序。
type ScanResult struct {
	Points []Point
	// NextCursor 下一页游标，为空表示已扫描完毕。
	NextCursor string
}

// VectorStore 定义向量存储接口。
// 对不存在的集合，Search/Scan 返回空结果，Delete 返回 0。
type VectorStore interface {
	// Name 返回后端名称。
	Name() string

	// Ping 检查后端是否可用。
	Ping(ctx context.Context) error

	// ListCollections 列出所有集合。
	ListCollections(ctx context.Context) ([]string, error)

	// EnsureCollection 确保集合存在且维度为 dim，维度不一致返回 ErrDimensionMismatch。
	EnsureCollection(ctx context.Context, collection string, dim int) error

	// DropCollection 删除集合，集合不存在时不报错。
	DropCollection(ctx context.Context, collection string) error

	// Upsert 按 ID 覆盖写入。
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search 向量相似度搜索，结果按分数降序。
	Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]ScoredPoint, error)

	// Scan 分页扫描满足过滤条件的记录。
	Scan(ctx context.Context, collection string, req ScanRequest) (*ScanResult, error)

	// Delete 按 ID 删除，返回后端报告的删除数量。
	Delete(ctx context.Context, collection string, ids []string) (int, error)

	// Count 返回集合记录数。
	Count(ctx context.Context, collection string) (int64, error)

	// Close 关闭连接。
	Close(ctx context.Context) error
}
