package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/ragchat/internal/model"
)

type pgvectorConfig struct {
	DSN string `json:"dsn"`
}

// PGVectorBackend keeps each collection in its own postgres table with a
// pgvector column.
type PGVectorBackend struct {
	db *sqlx.DB
}

func NewPGVectorBackend(db *sqlx.DB) *PGVectorBackend {
	return &PGVectorBackend{db: db}
}

func init() {
	Register("pgvector", createPGVectorBackend)
}

func createPGVectorBackend(ctx context.Context, args interface{}) (Backend, error) {
	cfg := &pgvectorConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("pgvector dsn is required")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect pgvector: %w", err)
	}
	return NewPGVectorBackend(db), nil
}

func (b *PGVectorBackend) Name() string {
	return "pgvector"
}

func (b *PGVectorBackend) Session(ctx context.Context) (Conn, error) {
	conn, err := b.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	return &pgConn{conn: conn}, nil
}

func (b *PGVectorBackend) Close() error {
	return b.db.Close()
}

type pgConn struct {
	conn *sqlx.Conn
}

func (c *pgConn) Close() error {
	return c.conn.Close()
}

func tableName(collection string) string {
	return pq.QuoteIdentifier(strings.ToLower(collection))
}

func distanceOperator(metric string) string {
	if metric == MetricCosine {
		return "<=>"
	}
	return "<->"
}

func opsClass(metric string) string {
	if metric == MetricCosine {
		return "vector_cosine_ops"
	}
	return "vector_l2_ops"
}

func (c *pgConn) DropCollection(ctx context.Context, name string) error {
	_, err := c.conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+tableName(name))
	return err
}

func (c *pgConn) CreateCollection(ctx context.Context, cfg CollectionConfig) error {
	table := tableName(cfg.Name)
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE %s (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			content text NOT NULL,
			app_id text NOT NULL,
			document_path text NOT NULL,
			embedding vector(%d) NOT NULL
		)`, table, cfg.Dimension),
		fmt.Sprintf(`CREATE INDEX ON %s USING hnsw (embedding %s)`, table, opsClass(cfg.Metric)),
		fmt.Sprintf(`CREATE INDEX ON %s (app_id)`, table),
	}
	for _, stmt := range stmts {
		if _, err := c.conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Insert runs the batch in one transaction with a savepoint per row, so a
// rejected row is rolled back alone and the rest commit.
func (c *pgConn) Insert(ctx context.Context, cfg CollectionConfig, objs []model.StoredObject) ([]error, error) {
	query := sqlx.Rebind(sqlx.DOLLAR, fmt.Sprintf(
		`INSERT INTO %s (id, content, app_id, document_path, embedding) VALUES (?, ?, ?, ?, ?)`,
		tableName(cfg.Name),
	))
	tx, err := c.conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	errs := make([]error, len(objs))
	for i, obj := range objs {
		if _, err := tx.ExecContext(ctx, "SAVEPOINT insert_object"); err != nil {
			return nil, err
		}
		_, err := tx.ExecContext(ctx, query,
			obj.ID,
			obj.Record.Content,
			obj.Record.AppID,
			obj.Record.DocumentPath,
			pgvector.NewVector(obj.Vector),
		)
		if err != nil {
			errs[i] = err
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT insert_object"); rbErr != nil {
				return nil, rbErr
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT insert_object"); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return errs, nil
}

type pgSearchRow struct {
	ID           string  `db:"id"`
	Content      string  `db:"content"`
	AppID        string  `db:"app_id"`
	DocumentPath string  `db:"document_path"`
	Distance     float64 `db:"distance"`
}

func (c *pgConn) Search(ctx context.Context, cfg CollectionConfig, vector []float32, limit int, maxDistance float64) ([]model.SearchResult, error) {
	op := distanceOperator(cfg.Metric)
	query := sqlx.Rebind(sqlx.DOLLAR, fmt.Sprintf(`
		SELECT id, content, app_id, document_path, embedding %[2]s ? AS distance
		FROM %[1]s
		WHERE embedding %[2]s ? <= ?
		ORDER BY embedding %[2]s ?
		LIMIT ?`, tableName(cfg.Name), op))
	vec := pgvector.NewVector(vector)
	var rows []pgSearchRow
	if err := c.conn.SelectContext(ctx, &rows, query, vec, vec, maxDistance, vec, limit); err != nil {
		return nil, err
	}
	out := make([]model.SearchResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.SearchResult{
			UUID:         r.ID,
			Content:      r.Content,
			AppID:        r.AppID,
			DocumentPath: r.DocumentPath,
			Distance:     r.Distance,
		})
	}
	return out, nil
}
