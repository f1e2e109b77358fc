package embedcache

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/model"
)

// Store persists embeddings keyed by model, task type and content hash.
type Store interface {
	Get(ctx context.Context, key model.EmbeddingCacheKey) ([]float32, bool, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

func WrapDBCacheToEmbedder(e ai.IEmbedder, store Store) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store Store
}

func (d *dbEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if d == nil || d.next == nil {
		return nil, nil
	}
	logger := logutil.GetLogger(ctx)
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	keys := make([]model.EmbeddingCacheKey, len(texts))
	modelName := d.next.ModelName()
	for i, text := range texts {
		keys[i] = model.NewEmbeddingCacheKey(modelName, taskType, text)
		values, ok, err := d.store.Get(ctx, keys[i])
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = values
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if hit := len(texts) - len(missTexts); hit > 0 {
		logger.Debug("embedding cache hit (db)", zap.String("task_type", taskType), zap.Int("count", hit))
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	res, err := d.next.Embed(ctx, missTexts, taskType)
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	for j, i := range missIdx {
		out[i] = res[j]
		if err := d.store.Save(ctx, &model.EmbeddingCache{
			EmbeddingCacheKey: keys[i],
			Embedding:         res[j],
			Ctime:             now,
		}); err != nil {
			logger.Warn("failed to cache embedding", zap.Error(err))
		}
	}
	return out, nil
}

func (d *dbEmbedder) ModelName() string {
	if d == nil || d.next == nil {
		return ""
	}
	return d.next.ModelName()
}
