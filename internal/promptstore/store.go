package promptstore

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/ragchat/internal/config"
	"github.com/xxxsen/ragchat/internal/model"
)

// Store maps a model id to the system prompt template used for it. Get
// returns errors.ErrNotFound when no template is stored.
type Store interface {
	Get(ctx context.Context, modelID string) (*model.PromptTemplate, error)
	Put(ctx context.Context, tpl *model.PromptTemplate) error
	List(ctx context.Context) ([]model.PromptTemplate, error)
}

// New opens the store selected by cfg. The db backend needs conn.
func New(cfg config.PromptStoreConfig, conn *sqlx.DB) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "file":
		return NewFileStore(cfg.Path)
	case "db":
		if conn == nil {
			return nil, fmt.Errorf("prompt store db requires a database connection")
		}
		return NewDBStore(conn), nil
	}
	return nil, fmt.Errorf("unsupported prompt store type: %s", cfg.Type)
}

const (
	VarDocuments = "DOCUMENTS"

	NoContext = "no relevant context found"
)

var templateVarsRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_:\-]+)\s*\}\}`)

// Render substitutes {{NAME}} placeholders (case-insensitive) with values.
// Unknown placeholders are left untouched.
func Render(content string, values map[string]string) string {
	return templateVarsRegex.ReplaceAllStringFunc(content, func(token string) string {
		match := templateVarsRegex.FindStringSubmatch(token)
		if len(match) < 2 {
			return token
		}
		key := strings.ToUpper(strings.TrimSpace(match[1]))
		if value, ok := values[key]; ok {
			return value
		}
		return token
	})
}

// HasVar reports whether content references the placeholder name.
func HasVar(content, name string) bool {
	for _, m := range templateVarsRegex.FindAllStringSubmatch(content, -1) {
		if strings.EqualFold(strings.TrimSpace(m[1]), name) {
			return true
		}
	}
	return false
}
