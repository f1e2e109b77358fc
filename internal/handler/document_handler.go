package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragchat/internal/pkg/errcode"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
	"github.com/xxxsen/ragchat/internal/pkg/response"
	"github.com/xxxsen/ragchat/internal/service"
	"github.com/xxxsen/ragchat/internal/vectorstore"
)

type DocumentHandler struct {
	ingest    *service.IngestService
	vectors   *vectorstore.Gateway
	maxUpload uploadLimit
}

func NewDocumentHandler(ingest *service.IngestService, vectors *vectorstore.Gateway, maxUpload int64) *DocumentHandler {
	return &DocumentHandler{ingest: ingest, vectors: vectors, maxUpload: uploadLimit(maxUpload)}
}

type textDocumentRequest struct {
	Text     string `json:"text"`
	SourceID string `json:"source_id"`
	AppID    string `json:"app_id"`
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	h.maxUpload.guard(c)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		if tooLarge := h.maxUpload.overflow(err); tooLarge != nil {
			handleError(c, tooLarge)
			return
		}
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	defer file.Close()
	data, err := h.maxUpload.read(header.Size, file)
	if err != nil {
		if errors.Is(err, appErr.ErrTooLarge) {
			handleError(c, err)
			return
		}
		response.Error(c, errcode.ErrUploadFailed, "read upload failed")
		return
	}
	res, err := h.ingest.Ingest(c.Request.Context(), service.IngestInput{
		Name:  header.Filename,
		Data:  data,
		AppID: c.PostForm("app_id"),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *DocumentHandler) IngestText(c *gin.Context) {
	var req textDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	res, err := h.ingest.IngestText(c.Request.Context(), req.Text, req.SourceID, req.AppID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

// ResetCollection drops and recreates the collection. Every stored chunk is
// lost.
func (h *DocumentHandler) ResetCollection(c *gin.Context) {
	if err := h.vectors.EnsureSchema(c.Request.Context()); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"collection": h.vectors.Collection()})
}
