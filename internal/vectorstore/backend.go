package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/ragchat/internal/config"
	"github.com/xxxsen/ragchat/internal/model"
)

const (
	MetricL2     = "l2"
	MetricCosine = "cosine"

	DefaultCollection = "Documents"
	DefaultDimension  = 1024

	FieldContent      = "content"
	FieldAppID        = "app_id"
	FieldDocumentPath = "document_path"
)

type CollectionConfig struct {
	Name      string
	Dimension int
	Metric    string
}

func (c CollectionConfig) withDefaults() CollectionConfig {
	if strings.TrimSpace(c.Name) == "" {
		c.Name = DefaultCollection
	}
	if c.Dimension <= 0 {
		c.Dimension = DefaultDimension
	}
	c.Metric = strings.ToLower(strings.TrimSpace(c.Metric))
	if c.Metric != MetricCosine {
		c.Metric = MetricL2
	}
	return c
}

// Backend is a vector database reachable over a client API.
type Backend interface {
	Name() string
	Session(ctx context.Context) (Conn, error)
	Close() error
}

// Conn is scoped to a single gateway operation and must be closed by it.
type Conn interface {
	DropCollection(ctx context.Context, name string) error
	CreateCollection(ctx context.Context, cfg CollectionConfig) error
	// Insert writes objs in one call. The returned slice is aligned with objs
	// and carries per-object failures; a non-nil error means the whole call
	// failed.
	Insert(ctx context.Context, cfg CollectionConfig, objs []model.StoredObject) ([]error, error)
	// Search returns at most limit hits with distance <= maxDistance,
	// nearest first.
	Search(ctx context.Context, cfg CollectionConfig, vector []float32, limit int, maxDistance float64) ([]model.SearchResult, error)
	Close() error
}

type Factory func(ctx context.Context, args interface{}) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func NewBackend(ctx context.Context, cfg config.VectorStoreConfig) (Backend, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("vector_store.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported vector store type: %s", cfg.Type)
	}
	return factory(ctx, cfg.Data)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode vector store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode vector store config: %w", err)
	}
	return nil
}
