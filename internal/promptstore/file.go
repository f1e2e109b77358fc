package promptstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

// FileStore keeps templates in a YAML mapping of `model_id: {prompt: ...}`.
// Every Put rewrites the whole file.
type FileStore struct {
	mu      sync.RWMutex
	path    string
	prompts map[string]model.PromptTemplate
}

func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("prompt file path is required")
	}
	s := &FileStore{path: path, prompts: map[string]model.PromptTemplate{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read prompt file: %w", err)
	}
	raw := map[string]*model.PromptTemplate{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode prompt file %s: %w", path, err)
	}
	for id, tpl := range raw {
		if tpl == nil {
			continue
		}
		tpl.ModelID = id
		s.prompts[id] = *tpl
	}
	return s, nil
}

func (s *FileStore) Get(ctx context.Context, modelID string) (*model.PromptTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.prompts[modelID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &tpl, nil
}

func (s *FileStore) Put(ctx context.Context, tpl *model.PromptTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.prompts[tpl.ModelID]
	s.prompts[tpl.ModelID] = *tpl
	if err := s.flushLocked(); err != nil {
		if existed {
			s.prompts[tpl.ModelID] = prev
		} else {
			delete(s.prompts, tpl.ModelID)
		}
		return err
	}
	return nil
}

func (s *FileStore) List(ctx context.Context) ([]model.PromptTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PromptTemplate, 0, len(s.prompts))
	for _, tpl := range s.prompts {
		out = append(out, tpl)
	}
	slices.SortFunc(out, func(a, b model.PromptTemplate) int {
		return strings.Compare(a.ModelID, b.ModelID)
	})
	return out, nil
}

// flushLocked writes to a temp file and renames it over the target.
func (s *FileStore) flushLocked() error {
	data, err := yaml.Marshal(s.prompts)
	if err != nil {
		return fmt.Errorf("encode prompt file: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prompt dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prompts-*.yml")
	if err != nil {
		return fmt.Errorf("create temp prompt file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write prompt file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close prompt file: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}
