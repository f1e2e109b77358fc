package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/middleware"
	"github.com/xxxsen/ragchat/internal/pkg/errcode"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
	"github.com/xxxsen/ragchat/internal/pkg/response"
	"github.com/xxxsen/ragchat/internal/vectorstore"
)

func getSubject(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextSubjectKey)
	subject, _ := value.(string)
	return subject
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("subject", getSubject(c)),
		zap.Error(err),
	)
	var (
		schemaErr *vectorstore.SchemaError
		insertErr *vectorstore.InsertError
	)
	switch {
	case errors.Is(err, ai.ErrUnknownModel):
		response.Error(c, errcode.ErrUnknownModel, err.Error())
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, err.Error())
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrTooLarge):
		response.Error(c, errcode.ErrInvalidFile, err.Error())
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.As(err, &schemaErr):
		response.Error(c, errcode.ErrSchemaFailed, err.Error())
	case errors.As(err, &insertErr):
		if errors.Is(err, ai.ErrEmbedding) {
			response.Error(c, errcode.ErrEmbeddingFailed, err.Error())
			return
		}
		response.Error(c, errcode.ErrInsertFailed, err.Error())
	case errors.Is(err, ai.ErrUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "ai provider unavailable")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
