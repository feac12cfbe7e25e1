// Package milvus wraps the Milvus SDK client with the collection layout used
// for text chunks: a VarChar primary key, one float vector field and scalar
// payload fields.
package milvus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	milvusopts "github.com/kart-io/learning-rag/pkg/options/milvus"
)

// Field names shared by every collection this client creates.
const (
	FieldID     = "id"
	FieldVector = "embedding"
)

// Client wraps the Milvus SDK client.
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
}

// New connects to Milvus.
func New(ctx context.Context, opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{client: c, opts: opts}, nil
}

// Name returns the component name.
func (c *Client) Name() string {
	return "milvus"
}

// Ping checks the connection by listing collections.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListCollections(ctx)
	return err
}

// Close closes the Milvus client connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// RawClient returns the underlying Milvus client.
func (c *Client) RawClient() *milvusclient.Client {
	return c.client
}

// CollectionSchema defines the schema for a vector collection.
type CollectionSchema struct {
	Name        string
	Description string
	Dimension   int
	IDMaxLen    int
	MetaFields  []MetaField
}

// MetaField defines a scalar payload field.
type MetaField struct {
	Name     string
	DataType entity.FieldType
	MaxLen   int // For VARCHAR type
}

// HasCollection reports whether the collection exists.
func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	ok, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return ok, nil
}

// CreateCollection creates the collection with an HNSW/COSINE index on the
// vector field and loads it. An existing collection is left untouched.
func (c *Client) CreateCollection(ctx context.Context, schema *CollectionSchema) error {
	exists, err := c.HasCollection(ctx, schema.Name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	idLen := schema.IDMaxLen
	if idLen <= 0 {
		idLen = 64
	}

	collSchema := entity.NewSchema().
		WithName(schema.Name).
		WithDescription(schema.Description).
		WithAutoID(false).
		WithField(entity.NewField().
			WithName(FieldID).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(int64(idLen)).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName(FieldVector).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(schema.Dimension)))

	for _, f := range schema.MetaFields {
		field := entity.NewField().WithName(f.Name).WithDataType(f.DataType)
		if f.DataType == entity.FieldTypeVarChar && f.MaxLen > 0 {
			field.WithMaxLength(int64(f.MaxLen))
		}
		collSchema.WithField(field)
	}

	if err := c.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(schema.Name, collSchema)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx := index.NewHNSWIndex(entity.COSINE, 16, 200)
	createIdxTask, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(schema.Name, FieldVector, idx))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := createIdxTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}

	return c.Load(ctx, schema.Name)
}

// Load loads a collection into memory.
func (c *Client) Load(ctx context.Context, name string) error {
	loadTask, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

// Dimension returns the dimension of the collection's vector field.
func (c *Client) Dimension(ctx context.Context, name string) (int, error) {
	coll, err := c.client.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(name))
	if err != nil {
		return 0, fmt.Errorf("failed to describe collection: %w", err)
	}
	if coll.Schema == nil {
		return 0, fmt.Errorf("collection %s has no schema", name)
	}
	for _, f := range coll.Schema.Fields {
		if f.Name != FieldVector {
			continue
		}
		dim, err := strconv.Atoi(f.TypeParams[entity.TypeParamDim])
		if err != nil {
			return 0, fmt.Errorf("invalid dimension on collection %s: %w", name, err)
		}
		return dim, nil
	}
	return 0, fmt.Errorf("collection %s has no %s field", name, FieldVector)
}

// ListCollections returns the collection names in the database.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	names, err := c.client.ListCollections(ctx, milvusclient.NewListCollectionOption())
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return names, nil
}

// DropCollection drops a collection.
func (c *Client) DropCollection(ctx context.Context, name string) error {
	if err := c.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(name)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Upsert writes columns keyed by the primary key and returns the upsert count.
func (c *Client) Upsert(ctx context.Context, name string, columns ...column.Column) (int64, error) {
	result, err := c.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(name, columns...))
	if err != nil {
		return 0, fmt.Errorf("failed to upsert data: %w", err)
	}
	return result.UpsertCount, nil
}

// Query returns rows matching filter with strong consistency, so writes made
// just before are visible.
func (c *Client) Query(ctx context.Context, name, filter string, outputFields []string, limit int) (milvusclient.ResultSet, error) {
	opt := milvusclient.NewQueryOption(name).
		WithFilter(filter).
		WithOutputFields(outputFields...).
		WithConsistencyLevel(entity.ClStrong)
	if limit > 0 {
		opt = opt.WithLimit(limit)
	}

	rs, err := c.client.Query(ctx, opt)
	if err != nil {
		return milvusclient.ResultSet{}, fmt.Errorf("failed to query: %w", err)
	}
	return rs, nil
}

// Search runs a filtered ANN search for one query vector.
func (c *Client) Search(ctx context.Context, name string, vector []float32, limit int, filter string, outputFields []string) (milvusclient.ResultSet, error) {
	opt := milvusclient.NewSearchOption(name, limit, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(FieldVector).
		WithSearchParam("ef", strconv.Itoa(max(64, limit))).
		WithOutputFields(outputFields...).
		WithConsistencyLevel(entity.ClStrong)
	if filter != "" {
		opt = opt.WithFilter(filter)
	}

	results, err := c.client.Search(ctx, opt)
	if err != nil {
		return milvusclient.ResultSet{}, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return milvusclient.ResultSet{}, nil
	}
	return results[0], nil
}

// DeleteByIDs deletes rows by primary key and returns the reported count.
func (c *Client) DeleteByIDs(ctx context.Context, name string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := c.client.Delete(ctx, milvusclient.NewDeleteOption(name).WithStringIDs(FieldID, ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete by ids: %w", err)
	}
	return result.DeleteCount, nil
}

// GetCollectionStats returns the number of entities in a collection.
func (c *Client) GetCollectionStats(ctx context.Context, name string) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(name))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}
	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}
