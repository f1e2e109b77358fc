package vectorstore

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/xxxsen/ragchat/internal/model"
)

// RejectFunc lets a MemoryBackend refuse individual objects on insert.
type RejectFunc func(obj model.StoredObject) error

type memoryCollection struct {
	cfg     CollectionConfig
	objects []model.StoredObject
}

// MemoryBackend is a brute-force store kept in process memory.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	reject      RejectFunc
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string]*memoryCollection)}
}

func init() {
	Register("memory", func(ctx context.Context, args interface{}) (Backend, error) {
		return NewMemoryBackend(), nil
	})
}

// SetReject installs fn as the per-object insert hook. Passing nil removes it.
func (m *MemoryBackend) SetReject(fn RejectFunc) {
	m.mu.Lock()
	m.reject = fn
	m.mu.Unlock()
}

func (m *MemoryBackend) Count(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return 0
	}
	return len(c.objects)
}

func (m *MemoryBackend) Name() string {
	return "memory"
}

func (m *MemoryBackend) Session(ctx context.Context) (Conn, error) {
	return memoryConn{m: m}, nil
}

func (m *MemoryBackend) Close() error {
	return nil
}

type memoryConn struct {
	m *MemoryBackend
}

func (c memoryConn) Close() error {
	return nil
}

func (c memoryConn) DropCollection(ctx context.Context, name string) error {
	c.m.mu.Lock()
	delete(c.m.collections, name)
	c.m.mu.Unlock()
	return nil
}

func (c memoryConn) CreateCollection(ctx context.Context, cfg CollectionConfig) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if _, ok := c.m.collections[cfg.Name]; ok {
		return fmt.Errorf("collection %s already exists", cfg.Name)
	}
	c.m.collections[cfg.Name] = &memoryCollection{cfg: cfg}
	return nil
}

func (c memoryConn) Insert(ctx context.Context, cfg CollectionConfig, objs []model.StoredObject) ([]error, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	coll, ok := c.m.collections[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("collection %s does not exist", cfg.Name)
	}
	errs := make([]error, len(objs))
	for i, obj := range objs {
		if len(obj.Vector) != coll.cfg.Dimension {
			errs[i] = fmt.Errorf("vector dimension %d, collection expects %d", len(obj.Vector), coll.cfg.Dimension)
			continue
		}
		if c.m.reject != nil {
			if err := c.m.reject(obj); err != nil {
				errs[i] = err
				continue
			}
		}
		stored := obj
		stored.Vector = slices.Clone(obj.Vector)
		coll.objects = append(coll.objects, stored)
	}
	return errs, nil
}

func (c memoryConn) Search(ctx context.Context, cfg CollectionConfig, vector []float32, limit int, maxDistance float64) ([]model.SearchResult, error) {
	c.m.mu.RLock()
	defer c.m.mu.RUnlock()
	coll, ok := c.m.collections[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("collection %s does not exist", cfg.Name)
	}
	if len(vector) != coll.cfg.Dimension {
		return nil, fmt.Errorf("query dimension %d, collection expects %d", len(vector), coll.cfg.Dimension)
	}
	hits := make([]model.SearchResult, 0, len(coll.objects))
	for _, obj := range coll.objects {
		d := distance(coll.cfg.Metric, obj.Vector, vector)
		if d > maxDistance {
			continue
		}
		hits = append(hits, model.SearchResult{
			UUID:         obj.ID,
			Content:      obj.Record.Content,
			AppID:        obj.Record.AppID,
			DocumentPath: obj.Record.DocumentPath,
			Distance:     d,
		})
	}
	slices.SortStableFunc(hits, func(a, b model.SearchResult) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// distance is Euclidean for l2 and 1 - cosine similarity for cosine.
func distance(metric string, a, b []float32) float64 {
	if metric == MetricCosine {
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 1
		}
		return math.Max(0, 1-dot/math.Sqrt(na*nb))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
