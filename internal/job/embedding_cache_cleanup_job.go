package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const EmbeddingCacheCleanupName = "embedding_cache_cleanup"

type cacheDeleter interface {
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}

// EmbeddingCacheCleanupJob drops cached embeddings older than the retention
// window.
type EmbeddingCacheCleanupJob struct {
	repo          cacheDeleter
	retentionDays int
	now           func() time.Time
}

func NewEmbeddingCacheCleanupJob(repo cacheDeleter, retentionDays int) *EmbeddingCacheCleanupJob {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &EmbeddingCacheCleanupJob{repo: repo, retentionDays: retentionDays, now: time.Now}
}

func (j *EmbeddingCacheCleanupJob) Name() string {
	return EmbeddingCacheCleanupName
}

func (j *EmbeddingCacheCleanupJob) Run(ctx context.Context) error {
	if j.repo == nil {
		return nil
	}
	cutoff := j.now().Add(-time.Duration(j.retentionDays) * 24 * time.Hour).Unix()
	deleted, err := j.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("embedding cache pruned",
		zap.Int64("deleted", deleted),
		zap.Int("retention_days", j.retentionDays),
	)
	return nil
}
