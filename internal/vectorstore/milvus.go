package vectorstore

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/xxxsen/ragchat/internal/model"
)

const (
	milvusFieldID     = "id"
	milvusFieldVector = "vector"
)

type milvusConfig struct {
	Address  string `json:"address"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
}

// MilvusBackend shares one client across operations; Milvus connections are
// multiplexed by the client so sessions are lightweight handles.
type MilvusBackend struct {
	client *milvusclient.Client
}

func init() {
	Register("milvus", createMilvusBackend)
}

func createMilvusBackend(ctx context.Context, args interface{}) (Backend, error) {
	cfg := &milvusConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, fmt.Errorf("milvus address is required")
	}
	cli, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.DBName,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}
	return &MilvusBackend{client: cli}, nil
}

func (b *MilvusBackend) Name() string {
	return "milvus"
}

func (b *MilvusBackend) Session(ctx context.Context) (Conn, error) {
	return &milvusConn{client: b.client}, nil
}

func (b *MilvusBackend) Close() error {
	return b.client.Close(context.Background())
}

type milvusConn struct {
	client *milvusclient.Client
}

func (c *milvusConn) Close() error {
	return nil
}

func milvusMetric(metric string) entity.MetricType {
	if metric == MetricCosine {
		return entity.COSINE
	}
	return entity.L2
}

func (c *milvusConn) DropCollection(ctx context.Context, name string) error {
	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return c.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(name))
}

func (c *milvusConn) CreateCollection(ctx context.Context, cfg CollectionConfig) error {
	schema := &entity.Schema{
		CollectionName: cfg.Name,
		Description:    "document chunks with externally supplied vectors",
		Fields: []*entity.Field{
			{
				Name:       milvusFieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       FieldContent,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:       FieldAppID,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "255"},
			},
			{
				Name:       FieldDocumentPath,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "1024"},
			},
			{
				Name:       milvusFieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(cfg.Dimension)},
			},
		},
	}
	if err := c.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(cfg.Name, schema)); err != nil {
		return err
	}
	idx := index.NewHNSWIndex(milvusMetric(cfg.Metric), 16, 200)
	task, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(cfg.Name, milvusFieldVector, idx))
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("await index: %w", err)
	}
	load, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(cfg.Name))
	if err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return load.Await(ctx)
}

// Insert is a single column-based write; Milvus accepts or rejects it as a
// whole.
func (c *milvusConn) Insert(ctx context.Context, cfg CollectionConfig, objs []model.StoredObject) ([]error, error) {
	ids := make([]string, len(objs))
	contents := make([]string, len(objs))
	appIDs := make([]string, len(objs))
	paths := make([]string, len(objs))
	vectors := make([][]float32, len(objs))
	for i, obj := range objs {
		ids[i] = obj.ID
		contents[i] = obj.Record.Content
		appIDs[i] = obj.Record.AppID
		paths[i] = obj.Record.DocumentPath
		vectors[i] = obj.Vector
	}
	opt := milvusclient.NewColumnBasedInsertOption(cfg.Name).
		WithVarcharColumn(milvusFieldID, ids).
		WithVarcharColumn(FieldContent, contents).
		WithVarcharColumn(FieldAppID, appIDs).
		WithVarcharColumn(FieldDocumentPath, paths).
		WithFloatVectorColumn(milvusFieldVector, cfg.Dimension, vectors)
	res, err := c.client.Insert(ctx, opt)
	if err != nil {
		return nil, err
	}
	if int(res.InsertCount) != len(objs) {
		return nil, fmt.Errorf("milvus inserted %d of %d objects", res.InsertCount, len(objs))
	}
	return make([]error, len(objs)), nil
}

// Search uses a range search. For l2 Milvus scores are squared distances and
// for cosine they are similarities; both are converted back to the gateway's
// distance before returning.
func (c *milvusConn) Search(ctx context.Context, cfg CollectionConfig, vector []float32, limit int, maxDistance float64) ([]model.SearchResult, error) {
	annParam := index.NewHNSWAnnParam(max(64, limit))
	if cfg.Metric == MetricCosine {
		annParam.WithRadius(1 - maxDistance)
	} else {
		annParam.WithRadius(maxDistance * maxDistance)
	}
	opt := milvusclient.NewSearchOption(cfg.Name, limit, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(milvusFieldVector).
		WithOutputFields(FieldContent, FieldAppID, FieldDocumentPath).
		WithAnnParam(annParam)
	sets, err := c.client.Search(ctx, opt)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return []model.SearchResult{}, nil
	}
	rs := sets[0]
	contents := rs.GetColumn(FieldContent)
	appIDs := rs.GetColumn(FieldAppID)
	paths := rs.GetColumn(FieldDocumentPath)
	out := make([]model.SearchResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		id, err := rs.IDs.GetAsString(i)
		if err != nil {
			return nil, fmt.Errorf("read id: %w", err)
		}
		out = append(out, model.SearchResult{
			UUID:         id,
			Content:      columnString(contents, i),
			AppID:        columnString(appIDs, i),
			DocumentPath: columnString(paths, i),
			Distance:     milvusDistance(cfg.Metric, rs.Scores[i]),
		})
	}
	return out, nil
}

func milvusDistance(metric string, score float32) float64 {
	if metric == MetricCosine {
		return math.Max(0, 1-float64(score))
	}
	return math.Sqrt(math.Max(0, float64(score)))
}

func columnString(col column.Column, i int) string {
	if col == nil {
		return ""
	}
	s, err := col.GetAsString(i)
	if err != nil {
		return ""
	}
	return s
}
