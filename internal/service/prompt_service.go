package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
	"github.com/xxxsen/ragchat/internal/promptstore"
)

// DefaultPrompt is used for models without a stored template.
const DefaultPrompt = `You are a helpful assistant. Answer the user's question using the documents below when they are relevant. If they do not contain the answer, say so.

Documents:
{{DOCUMENTS}}`

type PromptService struct {
	store      promptstore.Store
	knownModel func(id string) bool
}

// NewPromptService wraps store. knownModel, when set, restricts Update to
// configured model ids.
func NewPromptService(store promptstore.Store, knownModel func(id string) bool) *PromptService {
	return &PromptService{store: store, knownModel: knownModel}
}

func (s *PromptService) Get(ctx context.Context, modelID string) (*model.PromptTemplate, error) {
	return s.store.Get(ctx, modelID)
}

func (s *PromptService) List(ctx context.Context) ([]model.PromptTemplate, error) {
	return s.store.List(ctx)
}

// Template returns the stored template for modelID or DefaultPrompt. Store
// failures are logged and never block a turn.
func (s *PromptService) Template(ctx context.Context, modelID string) string {
	tpl, err := s.store.Get(ctx, modelID)
	if err == nil && strings.TrimSpace(tpl.Prompt) != "" {
		return tpl.Prompt
	}
	if err != nil && !errors.Is(err, appErr.ErrNotFound) {
		logutil.GetLogger(ctx).Warn("read prompt template failed, using default",
			zap.String("model_id", modelID),
			zap.Error(err),
		)
	}
	return DefaultPrompt
}

func (s *PromptService) Update(ctx context.Context, modelID, prompt string) (*model.PromptTemplate, error) {
	if s.knownModel != nil && !s.knownModel(modelID) {
		return nil, fmt.Errorf("%w %s: %w", ai.ErrUnknownModel, modelID, appErr.ErrNotFound)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("prompt is empty: %w", appErr.ErrInvalid)
	}
	tpl := &model.PromptTemplate{
		ModelID: modelID,
		Prompt:  prompt,
		Mtime:   time.Now().Unix(),
	}
	if err := s.store.Put(ctx, tpl); err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("prompt template updated", zap.String("model_id", modelID))
	return tpl, nil
}

// RenderSystemPrompt fills the documents placeholder of tpl with hits. A
// template without the placeholder gets the documents appended when
// retrieval ran.
func RenderSystemPrompt(tpl string, hits []model.SearchResult, retrieval bool) string {
	if !retrieval && !promptstore.HasVar(tpl, promptstore.VarDocuments) {
		return tpl
	}
	docs := formatDocuments(hits)
	if !promptstore.HasVar(tpl, promptstore.VarDocuments) {
		return tpl + "\n\nDocuments:\n" + docs
	}
	return promptstore.Render(tpl, map[string]string{promptstore.VarDocuments: docs})
}

func formatDocuments(hits []model.SearchResult) string {
	if len(hits) == 0 {
		return promptstore.NoContext
	}
	var sb strings.Builder
	for i, h := range hits {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, h.Content)
		if h.DocumentPath != "" {
			fmt.Fprintf(&sb, " (source: %s)", h.DocumentPath)
		}
	}
	return sb.String()
}
