package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/ragchat/internal/model"
	"github.com/xxxsen/ragchat/internal/pkg/dbutil"
)

const tableEmbeddingCache = "embedding_cache"

type EmbeddingCacheRepo struct {
	db *sqlx.DB
}

func NewEmbeddingCacheRepo(db *sqlx.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

type embeddingCacheRow struct {
	model.EmbeddingCacheKey
	Embedding pgvector.Vector `db:"embedding"`
	Ctime     int64           `db:"ctime"`
}

func (r *EmbeddingCacheRepo) Get(ctx context.Context, key model.EmbeddingCacheKey) ([]float32, bool, error) {
	where := map[string]interface{}{
		"model_name":   key.ModelName,
		"task_type":    key.TaskType,
		"content_hash": key.ContentHash,
		"_limit":       []uint{0, 1},
	}
	sqlStr, args, err := dbutil.Finalize(builder.BuildSelect(tableEmbeddingCache, where, []string{"embedding"}))
	if err != nil {
		return nil, false, err
	}
	var vec pgvector.Vector
	if err := r.db.GetContext(ctx, &vec, sqlStr, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return vec.Slice(), true, nil
}

// Save upserts item. gendry only knows MySQL's ON DUPLICATE KEY, so the
// postgres ON CONFLICT form is a named statement.
func (r *EmbeddingCacheRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	const query = `
		INSERT INTO embedding_cache (model_name, task_type, content_hash, embedding, ctime)
		VALUES (:model_name, :task_type, :content_hash, :embedding, :ctime)
		ON CONFLICT (model_name, task_type, content_hash) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime`
	_, err := r.db.NamedExecContext(ctx, query, embeddingCacheRow{
		EmbeddingCacheKey: item.EmbeddingCacheKey,
		Embedding:         pgvector.NewVector(item.Embedding),
		Ctime:             item.Ctime,
	})
	return err
}

// DeleteBefore drops rows written before cutoff (unix seconds).
func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	sqlStr, args, err := dbutil.Finalize(builder.BuildDelete(tableEmbeddingCache, map[string]interface{}{
		"ctime <": cutoff,
	}))
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountByModel reports how many vectors each model has cached.
func (r *EmbeddingCacheRepo) CountByModel(ctx context.Context) (map[string]int64, error) {
	sqlStr, args, err := dbutil.Finalize(builder.BuildSelect(tableEmbeddingCache, map[string]interface{}{
		"_groupby": "model_name",
		"_orderby": "model_name asc",
	}, []string{"model_name", "COUNT(*) AS cnt"}))
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ModelName string `db:"model_name"`
		Count     int64  `db:"cnt"`
	}
	if err := r.db.SelectContext(ctx, &rows, sqlStr, args...); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.ModelName] = row.Count
	}
	return out, nil
}
