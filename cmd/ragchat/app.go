package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/config"
	"github.com/xxxsen/ragchat/internal/db"
	"github.com/xxxsen/ragchat/internal/embedcache"
	"github.com/xxxsen/ragchat/internal/filestore"
	"github.com/xxxsen/ragchat/internal/promptstore"
	"github.com/xxxsen/ragchat/internal/repo"
	"github.com/xxxsen/ragchat/internal/service"
	"github.com/xxxsen/ragchat/internal/vectorstore"
)

// app holds every long-lived component. It is built once per command and
// passed explicitly; nothing is kept in package globals.
type app struct {
	cfg       *config.Config
	db        *sqlx.DB
	backend   vectorstore.Backend
	sharedDB  bool
	vectors   *vectorstore.Gateway
	gateway   *ai.Gateway
	prompts   *service.PromptService
	chat      *service.ChatService
	ingest    *service.IngestService
	cacheRepo *repo.EmbeddingCacheRepo
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()
	logger := logutil.GetLogger(ctx)

	if cfg.Database.Enabled() {
		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		a.db = conn
		if err := db.ApplyMigrations(ctx, conn); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		a.cacheRepo = repo.NewEmbeddingCacheRepo(conn)
	}

	embedder, err := buildEmbedder(cfg, a.cacheRepo)
	if err != nil {
		return nil, err
	}

	backend, shared, err := openBackend(ctx, cfg, a.db)
	if err != nil {
		return nil, err
	}
	a.backend, a.sharedDB = backend, shared
	a.vectors = vectorstore.NewGateway(backend, embedder, vectorstore.CollectionConfig{
		Name:      cfg.VectorStore.Collection,
		Dimension: cfg.VectorStore.Dimension,
		Metric:    cfg.VectorStore.Metric,
	})

	a.gateway = ai.NewGateway(cfg.Descriptors(),
		ai.NewGenAIChatProvider(nil),
		ai.NewOpenAIChatProvider(ai.ClassOpenAI),
		ai.NewOpenAIChatProvider(ai.ClassChimege),
		ai.NewOpenRouterChatProvider(cfg.OpenRouter.HTTPReferer, cfg.OpenRouter.XTitle),
	)

	store, err := promptstore.New(cfg.PromptStore, a.db)
	if err != nil {
		return nil, fmt.Errorf("init prompt store: %w", err)
	}
	knownModel := func(id string) bool {
		_, ok := a.gateway.Descriptor(id)
		return ok
	}
	a.prompts = service.NewPromptService(store, knownModel)
	a.chat = service.NewChatService(a.gateway, a.vectors, a.prompts, cfg.Search.Limit, cfg.Search.MaxDistance)

	files, err := filestore.New(cfg.FileStore)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}
	a.ingest = service.NewIngestService(files, a.vectors, cfg.Chunk)

	logger.Info("components ready",
		zap.String("vector_store", backend.Name()),
		zap.String("collection", a.vectors.Collection().Name),
		zap.String("embedder", embedder.ModelName()),
		zap.String("prompt_store", cfg.PromptStore.Type),
		zap.String("file_store", files.Type()),
		zap.Int("models", len(a.gateway.Models())),
	)
	ok = true
	return a, nil
}

// buildEmbedder chains the configured providers as a fallback group, then
// layers the database and in-memory caches on top.
func buildEmbedder(cfg *config.Config, cacheRepo *repo.EmbeddingCacheRepo) (ai.IEmbedder, error) {
	entries := make([]ai.EmbedderEntry, 0, len(cfg.Embedders))
	for _, e := range cfg.Embedders {
		provider, err := ai.NewEmbedProvider(e.Provider, e.ProviderArgs())
		if err != nil {
			return nil, fmt.Errorf("init embedder %s: %w", e.Name, err)
		}
		entries = append(entries, ai.EmbedderEntry{
			Name:     e.Name,
			Embedder: ai.NewEmbedder(provider, e.Model, cfg.VectorStore.Dimension),
		})
	}
	embedder := ai.NewGroupEmbedder(entries)
	if embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	if cfg.EmbedCache.UseDB && cacheRepo != nil {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, cacheRepo)
	}
	return embedcache.WrapLruCacheToEmbedder(embedder, cfg.EmbedCache.LRUSize, time.Duration(cfg.EmbedCache.LRUTTLSeconds)*time.Second), nil
}

// openBackend reuses the application database for pgvector when the vector
// store config carries no dsn of its own.
func openBackend(ctx context.Context, cfg *config.Config, conn *sqlx.DB) (vectorstore.Backend, bool, error) {
	if cfg.VectorStore.Type == "pgvector" && cfg.VectorStore.Data == nil {
		if conn == nil {
			return nil, false, fmt.Errorf("pgvector needs vector_store.data.dsn or database")
		}
		return vectorstore.NewPGVectorBackend(conn), true, nil
	}
	backend, err := vectorstore.NewBackend(ctx, cfg.VectorStore)
	if err != nil {
		return nil, false, fmt.Errorf("init vector store: %w", err)
	}
	return backend, false, nil
}

func (a *app) Close() {
	if a.backend != nil && !a.sharedDB {
		_ = a.backend.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
