package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

// Searcher is the read side of the vector store gateway. It never fails;
// an unavailable store yields no results.
type Searcher interface {
	Search(ctx context.Context, query string, limit int, maxDistance float64) []model.SearchResult
}

type ChatRequest struct {
	ModelID      string
	Messages     []model.Message
	UseRetrieval bool
	Limit        int
	MaxDistance  float64
}

type ChatTurn struct {
	Stream  *ai.Stream
	Sources []model.SearchResult
}

type ChatService struct {
	gateway         *ai.Gateway
	searcher        Searcher
	prompts         *PromptService
	defaultLimit    int
	defaultDistance float64
}

func NewChatService(gateway *ai.Gateway, searcher Searcher, prompts *PromptService, defaultLimit int, defaultDistance float64) *ChatService {
	return &ChatService{
		gateway:         gateway,
		searcher:        searcher,
		prompts:         prompts,
		defaultLimit:    defaultLimit,
		defaultDistance: defaultDistance,
	}
}

func (s *ChatService) Models() []model.ModelInfo {
	descs := s.gateway.Models()
	out := make([]model.ModelInfo, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.Info())
	}
	return out
}

func (s *ChatService) KnownModel(id string) bool {
	_, ok := s.gateway.Descriptor(id)
	return ok
}

// Stream prepares one turn: retrieval for the latest user message, the
// rendered system prompt, then the generation stream. Only request validation
// fails here; retrieval and generation problems show up in the stream.
func (s *ChatService) Stream(ctx context.Context, req ChatRequest) (*ChatTurn, error) {
	if !s.KnownModel(req.ModelID) {
		return nil, fmt.Errorf("%w %s: %w", ai.ErrUnknownModel, req.ModelID, appErr.ErrNotFound)
	}
	history := make([]model.Message, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleUser, model.RoleAssistant:
			history = append(history, m)
		case model.RoleSystem:
		default:
			return nil, fmt.Errorf("unknown role %q: %w", m.Role, appErr.ErrInvalid)
		}
	}
	query, ok := model.LastUserMessage(history)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("no user message: %w", appErr.ErrInvalid)
	}

	var hits []model.SearchResult
	if req.UseRetrieval && s.searcher != nil {
		limit := req.Limit
		if limit <= 0 {
			limit = s.defaultLimit
		}
		maxDistance := req.MaxDistance
		if maxDistance <= 0 {
			maxDistance = s.defaultDistance
		}
		hits = s.searcher.Search(ctx, query, limit, maxDistance)
	}
	system := RenderSystemPrompt(s.prompts.Template(ctx, req.ModelID), hits, req.UseRetrieval)
	logutil.GetLogger(ctx).Debug("chat turn prepared",
		zap.String("model_id", req.ModelID),
		zap.Int("messages", len(history)),
		zap.Int("sources", len(hits)),
	)
	turn := append([]model.Message{{Role: model.RoleSystem, Content: system}}, history...)
	return &ChatTurn{
		Stream:  s.gateway.Stream(ctx, req.ModelID, turn),
		Sources: hits,
	}, nil
}
