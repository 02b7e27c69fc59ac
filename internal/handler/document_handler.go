package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/pkg/errcode"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/pkg/response"
	"github.com/xxxsen/docchat/internal/service"
)

type DocumentHandler struct {
	documents *service.DocumentService
	maxSize   int64
}

func NewDocumentHandler(documents *service.DocumentService, maxSize int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, maxSize: maxSize}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if err := h.documents.ValidateUpload(file.Filename, file.Size); err != nil {
		h.uploadError(c, err)
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(io.LimitReader(opened, h.maxSize+1))
	if err != nil {
		response.Error(c, errcode.ErrUploadFailed, "failed to read file")
		return
	}
	result, err := h.documents.Upload(c.Request.Context(), getSessionID(c), file.Filename, data)
	if err != nil {
		h.uploadError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *DocumentHandler) uploadError(c *gin.Context, err error) {
	if errors.Is(err, appErr.ErrTooLarge) {
		response.Error(c, errcode.ErrFileTooLarge, "file exceeds "+formatUploadLimit(h.maxSize))
		return
	}
	handleError(c, err)
}
