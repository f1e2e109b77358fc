package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragchat/internal/pkg/errcode"
	"github.com/xxxsen/ragchat/internal/pkg/response"
	"github.com/xxxsen/ragchat/internal/vectorstore"
)

type SearchHandler struct {
	vectors         *vectorstore.Gateway
	defaultLimit    int
	defaultDistance float64
}

func NewSearchHandler(vectors *vectorstore.Gateway, defaultLimit int, defaultDistance float64) *SearchHandler {
	return &SearchHandler{vectors: vectors, defaultLimit: defaultLimit, defaultDistance: defaultDistance}
}

// Search always answers with a success envelope; "available" tells an empty
// match apart from a store that could not be queried.
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		response.Error(c, errcode.ErrInvalid, "q is required")
		return
	}
	limit := h.defaultLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, errcode.ErrInvalid, "invalid limit")
			return
		}
		limit = parsed
	}
	radius := h.defaultDistance
	if raw := c.Query("radius"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			response.Error(c, errcode.ErrInvalid, "invalid radius")
			return
		}
		radius = parsed
	}
	outcome := h.vectors.SearchOutcome(c.Request.Context(), query, limit, radius)
	data := gin.H{
		"available": outcome.Available,
		"results":   outcome.Results(),
	}
	if outcome.Err != nil {
		data["error"] = outcome.Err.Error()
	}
	response.Success(c, data)
}
