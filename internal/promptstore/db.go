package promptstore

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/ragchat/internal/model"
	"github.com/xxxsen/ragchat/internal/repo"
)

type DBStore struct {
	repo *repo.PromptRepo
}

func NewDBStore(conn *sqlx.DB) *DBStore {
	return &DBStore{repo: repo.NewPromptRepo(conn)}
}

func (s *DBStore) Get(ctx context.Context, modelID string) (*model.PromptTemplate, error) {
	return s.repo.Get(ctx, modelID)
}

func (s *DBStore) Put(ctx context.Context, tpl *model.PromptTemplate) error {
	return s.repo.Upsert(ctx, tpl)
}

func (s *DBStore) List(ctx context.Context) ([]model.PromptTemplate, error) {
	return s.repo.List(ctx)
}
