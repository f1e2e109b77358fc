package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/middleware"
	"github.com/xxxsen/ragchat/internal/model"
	"github.com/xxxsen/ragchat/internal/pkg/errcode"
	"github.com/xxxsen/ragchat/internal/pkg/response"
	"github.com/xxxsen/ragchat/internal/service"
)

const (
	eventSources = "sources"
	eventDelta   = "delta"
	eventDone    = "done"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	ModelID      string          `json:"model_id"`
	Messages     []model.Message `json:"messages"`
	UseRetrieval *bool           `json:"use_retrieval"`
	Limit        int             `json:"limit"`
	MaxDistance  float64         `json:"max_distance"`
}

type deltaEvent struct {
	Content string `json:"content"`
}

type doneEvent struct {
	Error bool `json:"error"`
	Count int  `json:"deltas"`
}

func (h *ChatHandler) Models(c *gin.Context) {
	response.Success(c, gin.H{"models": h.chat.Models()})
}

// Chat answers with a server-sent event stream: one "sources" event, a "delta"
// event per text fragment and a closing "done" event. Validation failures are
// returned as a regular JSON envelope before the stream starts.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	useRetrieval := true
	if req.UseRetrieval != nil {
		useRetrieval = *req.UseRetrieval
	}
	ctx := c.Request.Context()
	turn, err := h.chat.Stream(ctx, service.ChatRequest{
		ModelID:      req.ModelID,
		Messages:     req.Messages,
		UseRetrieval: useRetrieval,
		Limit:        req.Limit,
		MaxDistance:  req.MaxDistance,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	response.StartStream(c)

	sources := turn.Sources
	if sources == nil {
		sources = []model.SearchResult{}
	}
	response.Event(c, eventSources, gin.H{"results": sources})

	done := doneEvent{}
	for delta := range turn.Stream.All() {
		if ai.IsErrorDelta(delta) {
			done.Error = true
		}
		done.Count++
		response.Event(c, eventDelta, deltaEvent{Content: delta})
	}
	if ctx.Err() != nil {
		logutil.GetLogger(ctx).Info("chat client went away",
			zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
			zap.String("model_id", req.ModelID),
			zap.Int("deltas", done.Count),
		)
		return
	}
	response.Event(c, eventDone, done)
}
