package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragchat/internal/pkg/errcode"
	"github.com/xxxsen/ragchat/internal/pkg/response"
	"github.com/xxxsen/ragchat/internal/service"
)

type PromptHandler struct {
	prompts *service.PromptService
}

func NewPromptHandler(prompts *service.PromptService) *PromptHandler {
	return &PromptHandler{prompts: prompts}
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

func modelIDParam(c *gin.Context) string {
	return c.Param("provider") + "/" + c.Param("label")
}

func (h *PromptHandler) List(c *gin.Context) {
	items, err := h.prompts.List(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"prompts": items})
}

func (h *PromptHandler) Get(c *gin.Context) {
	item, err := h.prompts.Get(c.Request.Context(), modelIDParam(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, item)
}

func (h *PromptHandler) Update(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	item, err := h.prompts.Update(c.Request.Context(), modelIDParam(c), req.Prompt)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, item)
}
