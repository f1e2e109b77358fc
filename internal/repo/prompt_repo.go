package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/ragchat/internal/model"
	"github.com/xxxsen/ragchat/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

const tablePromptTemplates = "prompt_templates"

var promptColumns = []string{"model_id", "prompt", "mtime"}

type PromptRepo struct {
	db *sqlx.DB
}

func NewPromptRepo(db *sqlx.DB) *PromptRepo {
	return &PromptRepo{db: db}
}

// Upsert updates the prompt for tpl.ModelID, inserting it when absent.
func (r *PromptRepo) Upsert(ctx context.Context, tpl *model.PromptTemplate) error {
	sqlStr, args, err := dbutil.Finalize(builder.BuildUpdate(tablePromptTemplates,
		map[string]interface{}{"model_id": tpl.ModelID},
		map[string]interface{}{"prompt": tpl.Prompt, "mtime": tpl.Mtime},
	))
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	sqlStr, args, err = dbutil.Finalize(builder.BuildInsert(tablePromptTemplates, []map[string]interface{}{{
		"model_id": tpl.ModelID,
		"prompt":   tpl.Prompt,
		"mtime":    tpl.Mtime,
	}}))
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *PromptRepo) Get(ctx context.Context, modelID string) (*model.PromptTemplate, error) {
	sqlStr, args, err := dbutil.Finalize(builder.BuildSelect(tablePromptTemplates,
		map[string]interface{}{"model_id": modelID}, promptColumns))
	if err != nil {
		return nil, err
	}
	var tpl model.PromptTemplate
	if err := r.db.GetContext(ctx, &tpl, sqlStr, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &tpl, nil
}

func (r *PromptRepo) List(ctx context.Context) ([]model.PromptTemplate, error) {
	sqlStr, args, err := dbutil.Finalize(builder.BuildSelect(tablePromptTemplates,
		map[string]interface{}{"_orderby": "model_id asc"}, promptColumns))
	if err != nil {
		return nil, err
	}
	items := make([]model.PromptTemplate, 0)
	if err := r.db.SelectContext(ctx, &items, sqlStr, args...); err != nil {
		return nil, err
	}
	return items, nil
}
