package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kart-io/learning-rag/pkg/component/milvus"
)

// upsertBatch 单次写入 Milvus 的最大行数。
const upsertBatch = 512

var payloadFields = []string{
	milvus.FieldID, FieldTopic, FieldSourceFile, FieldChunkIndex,
	FieldCharStart, FieldCharEnd, FieldUploadedAt, FieldText,
}

// MilvusStore 实现基于 Milvus 的向量存储。
type MilvusStore struct {
	client *milvus.Client

	// loaded 记录本进程已加载的集合。
	loaded sync.Map
}

var _ VectorStore = (*MilvusStore)(nil)

// NewMilvusStore 创建 Milvus 存储实例。
func NewMilvusStore(client *milvus.Client) *MilvusStore {
	return &MilvusStore{client: client}
}

// Name 返回后端名称。
func (s *MilvusStore) Name() string { return "milvus" }

// Ping 检查 Milvus 连接。
func (s *MilvusStore) Ping(ctx context.Context) error {
	return classify(s.client.Ping(ctx))
}

// Close 关闭 Milvus 连接。
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// ListCollections 列出所有集合（已排序）。
func (s *MilvusStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, classify(err)
	}
	sort.Strings(names)
	return names, nil
}

func collectionSchema(name string, dim int) *milvus.CollectionSchema {
	return &milvus.CollectionSchema{
		Name:        name,
		Description: "learning-rag text chunks",
		Dimension:   dim,
		IDMaxLen:    64,
		MetaFields: []milvus.MetaField{
			{Name: FieldTopic, DataType: entity.FieldTypeVarChar, MaxLen: 1024},
			{Name: FieldSourceFile, DataType: entity.FieldTypeVarChar, MaxLen: 1024},
			{Name: FieldChunkIndex, DataType: entity.FieldTypeInt64},
			{Name: FieldCharStart, DataType: entity.FieldTypeInt64},
			{Name: FieldCharEnd, DataType: entity.FieldTypeInt64},
			{Name: FieldUploadedAt, DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: FieldText, DataType: entity.FieldTypeVarChar, MaxLen: 65535},
		},
	}
}

// EnsureCollection 创建缺失的集合，已存在时校验维度。
func (s *MilvusStore) EnsureCollection(ctx context.Context, collection string, dim int) error {
	exists, err := s.client.HasCollection(ctx, collection)
	if err != nil {
		return classify(err)
	}

	if !exists {
		if err := s.client.CreateCollection(ctx, collectionSchema(collection, dim)); err != nil {
			return classify(err)
		}
		s.loaded.Store(collection, true)
		return nil
	}

	have, err := s.client.Dimension(ctx, collection)
	if err != nil {
		return classify(err)
	}
	if have != dim {
		return fmt.Errorf("%w: collection %s has dimension %d, got %d", ErrDimensionMismatch, collection, have, dim)
	}
	return s.ensureLoaded(ctx, collection)
}

func (s *MilvusStore) ensureLoaded(ctx context.Context, collection string) error {
	if _, ok := s.loaded.Load(collection); ok {
		return nil
	}
	if err := s.client.Load(ctx, collection); err != nil {
		return classify(err)
	}
	s.loaded.Store(collection, true)
	return nil
}

// exists 检查集合存在并确保已加载。
func (s *MilvusStore) exists(ctx context.Context, collection string) (bool, error) {
	ok, err := s.client.HasCollection(ctx, collection)
	if err != nil {
		return false, classify(err)
	}
	if !ok {
		s.loaded.Delete(collection)
		return false, nil
	}
	return true, s.ensureLoaded(ctx, collection)
}

// DropCollection 删除集合。
func (s *MilvusStore) DropCollection(ctx context.Context, collection string) error {
	ok, err := s.client.HasCollection(ctx, collection)
	if err != nil {
		return classify(err)
	}
	s.loaded.Delete(collection)
	if !ok {
		return nil
	}
	return classify(s.client.DropCollection(ctx, collection))
}

// Upsert 按 ID 覆盖写入，大批量时分段提交。
func (s *MilvusStore) Upsert(ctx context.Context, collection string, points []Point) error {
	for start := 0; start < len(points); start += upsertBatch {
		end := min(start+upsertBatch, len(points))
		if _, err := s.client.Upsert(ctx, collection, toColumns(points[start:end])...); err != nil {
			return classify(err)
		}
	}
	return nil
}

func toColumns(points []Point) []column.Column {
	n := len(points)
	ids := make([]string, n)
	vectors := make([][]float32, n)
	topics := make([]string, n)
	files := make([]string, n)
	indices := make([]int64, n)
	starts := make([]int64, n)
	ends := make([]int64, n)
	uploaded := make([]string, n)
	texts := make([]string, n)

	for i, p := range points {
		ids[i] = p.ID
		vectors[i] = p.Vector
		topics[i] = p.Payload.Topic
		files[i] = p.Payload.SourceFile
		indices[i] = int64(p.Payload.ChunkIndex)
		starts[i] = int64(p.Payload.CharStart)
		ends[i] = int64(p.Payload.CharEnd)
		uploaded[i] = p.Payload.UploadedAt
		texts[i] = p.Payload.Text
	}

	dim := 0
	if n > 0 {
		dim = len(vectors[0])
	}
	return []column.Column{
		column.NewColumnVarChar(milvus.FieldID, ids),
		column.NewColumnFloatVector(milvus.FieldVector, dim, vectors),
		column.NewColumnVarChar(FieldTopic, topics),
		column.NewColumnVarChar(FieldSourceFile, files),
		column.NewColumnInt64(FieldChunkIndex, indices),
		column.NewColumnInt64(FieldCharStart, starts),
		column.NewColumnInt64(FieldCharEnd, ends),
		column.NewColumnVarChar(FieldUploadedAt, uploaded),
		column.NewColumnVarChar(FieldText, texts),
	}
}

// Search 执行带过滤的向量相似度搜索。
func (s *MilvusStore) Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]ScoredPoint, error) {
	if limit <= 0 {
		return []ScoredPoint{}, nil
	}
	ok, err := s.exists(ctx, collection)
	if err != nil || !ok {
		return []ScoredPoint{}, err
	}

	rs, err := s.client.Search(ctx, collection, vector, limit, filter.Expr(), payloadFields)
	if err != nil {
		return nil, classify(err)
	}

	points, err := decodePoints(rs, false)
	if err != nil {
		return nil, err
	}
	results := make([]ScoredPoint, len(points))
	for i, p := range points {
		results[i] = ScoredPoint{Point: p}
		if i < len(rs.Scores) {
			results[i].Score = rs.Scores[i]
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// Scan 使用主键游标分页查询，每页多取一条判断是否还有下一页。
func (s *MilvusStore) Scan(ctx context.Context, collection string, req ScanRequest) (*ScanResult, error) {
	ok, err := s.exists(ctx, collection)
	if err != nil || !ok {
		return &ScanResult{}, err
	}

	fields := payloadFields
	if req.WithVectors {
		fields = append(append([]string(nil), payloadFields...), milvus.FieldVector)
	}
	limit := req.Limit
	if limit > 0 {
		limit++
	}

	rs, err := s.client.Query(ctx, collection, scanExpr(req.Filter, milvus.FieldID, req.Cursor), fields, limit)
	if err != nil {
		return nil, classify(err)
	}
	points, err := decodePoints(rs, req.WithVectors)
	if err != nil {
		return nil, err
	}
	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })

	result := &ScanResult{Points: points}
	if req.Limit > 0 && len(points) > req.Limit {
		result.Points = points[:req.Limit]
		result.NextCursor = result.Points[req.Limit-1].ID
	}
	return result, nil
}

// Delete 按主键删除。
func (s *MilvusStore) Delete(ctx context.Context, collection string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ok, err := s.client.HasCollection(ctx, collection)
	if err != nil {
		return 0, classify(err)
	}
	if !ok {
		return 0, nil
	}

	n, err := s.client.DeleteByIDs(ctx, collection, ids)
	if err != nil {
		return 0, classify(err)
	}
	return int(n), nil
}

// Count 返回集合记录数（包含尚未压缩的删除）。
func (s *MilvusStore) Count(ctx context.Context, collection string) (int64, error) {
	ok, err := s.client.HasCollection(ctx, collection)
	if err != nil || !ok {
		return 0, classify(err)
	}
	n, err := s.client.GetCollectionStats(ctx, collection)
	return n, classify(err)
}

// decodePoints 把列式结果集还原为记录。
func decodePoints(rs milvusclient.ResultSet, withVectors bool) ([]Point, error) {
	if rs.Err != nil {
		return nil, classify(rs.Err)
	}

	n := rs.ResultCount
	var ids []string
	if col, ok := rs.IDs.(*column.ColumnVarChar); ok {
		ids = col.Data()
	}

	strs := map[string][]string{}
	ints := map[string][]int64{}
	var vecs [][]float32
	for _, field := range rs.Fields {
		switch col := field.(type) {
		case *column.ColumnVarChar:
			strs[col.Name()] = col.Data()
		case *column.ColumnInt64:
			ints[col.Name()] = col.Data()
		case *column.ColumnFloatVector:
			if col.Name() == milvus.FieldVector {
				data := col.Data()
				vecs = make([][]float32, len(data))
				for i, fv := range data {
					vecs[i] = []float32(fv)
				}
			}
		}
	}
	if ids == nil {
		ids = strs[milvus.FieldID]
	}
	if n == 0 {
		n = len(ids)
	}
	if len(ids) < n {
		return nil, fmt.Errorf("milvus result has %d ids for %d rows", len(ids), n)
	}
	if withVectors && len(vecs) < n {
		return nil, fmt.Errorf("milvus result has %d vectors for %d rows", len(vecs), n)
	}

	str := func(name string, i int) string {
		if v := strs[name]; i < len(v) {
			return v[i]
		}
		return ""
	}
	num := func(name string, i int) int {
		if v := ints[name]; i < len(v) {
			return int(v[i])
		}
		return 0
	}

	points := make([]Point, n)
	for i := range n {
		points[i] = Point{
			ID: ids[i],
			Payload: Payload{
				Topic:      str(FieldTopic, i),
				SourceFile: str(FieldSourceFile, i),
				ChunkIndex: num(FieldChunkIndex, i),
				CharStart:  num(FieldCharStart, i),
				CharEnd:    num(FieldCharEnd, i),
				UploadedAt: str(FieldUploadedAt, i),
				Text:       str(FieldText, i),
			},
		}
		if withVectors {
			points[i].Vector = vecs[i]
		}
	}
	return points, nil
}

// classify 把连接类错误标记为 ErrUnavailable。
func classify(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	return err
}
