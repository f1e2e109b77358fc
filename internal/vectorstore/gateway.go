package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/model"
)

// Gateway owns the document collection: its schema, batched writes and
// nearest-neighbour reads.
type Gateway struct {
	backend  Backend
	embedder ai.IEmbedder
	cfg      CollectionConfig
}

func NewGateway(backend Backend, embedder ai.IEmbedder, cfg CollectionConfig) *Gateway {
	return &Gateway{
		backend:  backend,
		embedder: embedder,
		cfg:      cfg.withDefaults(),
	}
}

func (g *Gateway) Collection() CollectionConfig {
	return g.cfg
}

// EnsureSchema drops the collection if it exists and creates it again.
// Existing data is lost.
func (g *Gateway) EnsureSchema(ctx context.Context) error {
	logger := logutil.GetLogger(ctx).With(zap.String("collection", g.cfg.Name), zap.String("backend", g.backend.Name()))
	conn, err := g.backend.Session(ctx)
	if err != nil {
		return &SchemaError{Collection: g.cfg.Name, Op: "connect", Err: err}
	}
	defer closeConn(logger, conn)

	if err := conn.DropCollection(ctx, g.cfg.Name); err != nil {
		return &SchemaError{Collection: g.cfg.Name, Op: "drop", Err: err}
	}
	if err := conn.CreateCollection(ctx, g.cfg); err != nil {
		logger.Error("create collection failed after drop", zap.Error(err))
		return &SchemaError{Collection: g.cfg.Name, Op: "create", Err: err}
	}
	logger.Info("collection recreated", zap.Int("dimension", g.cfg.Dimension), zap.String("metric", g.cfg.Metric))
	return nil
}

// InsertBatch embeds every record in one call and writes them in one call.
// Objects the store rejects are reported in the result; an error is returned
// only when nothing could be written.
func (g *Gateway) InsertBatch(ctx context.Context, records []model.ChunkRecord) (*InsertReport, error) {
	start := time.Now()
	logger := logutil.GetLogger(ctx).With(zap.String("collection", g.cfg.Name))
	report := &InsertReport{Objects: make([]ObjectResult, len(records))}
	if len(records) == 0 {
		report.Elapsed = time.Since(start)
		return report, nil
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.Content
	}
	vectors, err := g.embedder.Embed(ctx, texts, ai.TaskRetrievalDocument)
	if err != nil {
		return nil, &InsertError{Collection: g.cfg.Name, Count: len(records), Err: err}
	}
	if len(vectors) != len(records) {
		return nil, &InsertError{Collection: g.cfg.Name, Count: len(records),
			Err: fmt.Errorf("%w: got %d vectors for %d records", ai.ErrEmbedding, len(vectors), len(records))}
	}

	objs := make([]model.StoredObject, 0, len(records))
	positions := make([]int, 0, len(records))
	for i, rec := range records {
		id := uuid.NewString()
		report.Objects[i] = ObjectResult{Index: i, ID: id}
		if len(vectors[i]) != g.cfg.Dimension {
			report.Objects[i].Err = fmt.Errorf("vector dimension %d does not match collection dimension %d", len(vectors[i]), g.cfg.Dimension)
			continue
		}
		objs = append(objs, model.StoredObject{ID: id, Record: rec, Vector: vectors[i]})
		positions = append(positions, i)
	}

	if len(objs) > 0 {
		conn, err := g.backend.Session(ctx)
		if err != nil {
			return nil, &InsertError{Collection: g.cfg.Name, Count: len(records), Err: err}
		}
		objErrs, err := conn.Insert(ctx, g.cfg, objs)
		closeConn(logger, conn)
		if err != nil {
			return nil, &InsertError{Collection: g.cfg.Name, Count: len(records), Err: err}
		}
		for j, pos := range positions {
			if j < len(objErrs) && objErrs[j] != nil {
				report.Objects[pos].Err = objErrs[j]
			}
		}
	}

	for _, o := range report.Objects {
		if o.Err == nil {
			continue
		}
		logger.Error("object insert failed",
			zap.Int("index", o.Index),
			zap.String("document_path", records[o.Index].DocumentPath),
			zap.Error(o.Err),
		)
	}
	report.Elapsed = time.Since(start)
	logger.Info("batch inserted",
		zap.Int("total", len(records)),
		zap.Int("failed", len(report.Failed())),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// Search is best effort: any failure is logged and yields no results.
func (g *Gateway) Search(ctx context.Context, query string, limit int, maxDistance float64) []model.SearchResult {
	return g.SearchOutcome(ctx, query, limit, maxDistance).Results()
}

// SearchOutcome runs the same query as Search but also tells the caller
// whether the store was reachable.
func (g *Gateway) SearchOutcome(ctx context.Context, query string, limit int, maxDistance float64) SearchOutcome {
	logger := logutil.GetLogger(ctx).With(zap.String("collection", g.cfg.Name))
	if limit <= 0 {
		return SearchOutcome{Available: true}
	}
	vectors, err := g.embedder.Embed(ctx, []string{query}, ai.TaskRetrievalQuery)
	if err == nil && len(vectors) != 1 {
		err = fmt.Errorf("%w: got %d vectors for query", ai.ErrEmbedding, len(vectors))
	}
	if err != nil {
		logger.Error("search embedding failed", zap.Error(err))
		return SearchOutcome{Err: err}
	}

	conn, err := g.backend.Session(ctx)
	if err != nil {
		logger.Error("search connect failed", zap.Error(err))
		return SearchOutcome{Err: err}
	}
	defer closeConn(logger, conn)
	hits, err := conn.Search(ctx, g.cfg, vectors[0], limit, maxDistance)
	if err != nil {
		logger.Error("search query failed", zap.Error(err))
		return SearchOutcome{Err: err}
	}

	results := make([]model.SearchResult, 0, min(len(hits), limit))
	for _, h := range hits {
		if h.Distance > maxDistance {
			continue
		}
		results = append(results, h)
		if len(results) == limit {
			break
		}
	}
	logger.Debug("search finished", zap.Int("hits", len(results)), zap.Int("limit", limit), zap.Float64("max_distance", maxDistance))
	return SearchOutcome{Available: true, results: results}
}

func closeConn(logger *zap.Logger, conn Conn) {
	if err := conn.Close(); err != nil {
		logger.Warn("release vector store connection failed", zap.Error(err))
	}
}
