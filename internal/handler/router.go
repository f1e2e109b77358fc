package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragchat/internal/middleware"
)

const ChatPath = "/chat"

type RouterDeps struct {
	Chat          *ChatHandler
	Search        *SearchHandler
	Documents     *DocumentHandler
	Prompts       *PromptHandler
	AdminSecret   []byte
	ChatRateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/models", deps.Chat.Models)
	api.POST(ChatPath, middleware.StreamLimit(deps.ChatRateLimit), deps.Chat.Chat)
	api.GET("/search", deps.Search.Search)
	api.GET("/prompts", deps.Prompts.List)
	api.GET("/prompts/:provider/:label", deps.Prompts.Get)

	adminGroup := api.Group("")
	adminGroup.Use(middleware.AdminAuth(deps.AdminSecret))
	adminGroup.POST("/documents", deps.Documents.Upload)
	adminGroup.POST("/documents/text", deps.Documents.IngestText)
	adminGroup.POST("/collection/reset", deps.Documents.ResetCollection)
	adminGroup.PUT("/prompts/:provider/:label", deps.Prompts.Update)
}
