package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/pkg/errcode"
	"github.com/xxxsen/docchat/internal/pkg/response"
	"github.com/xxxsen/docchat/internal/service"
)

type ExtractHandler struct {
	extract *service.ExtractService
}

func NewExtractHandler(extract *service.ExtractService) *ExtractHandler {
	return &ExtractHandler{extract: extract}
}

type extractRequest struct {
	Text      string `json:"text"`
	ModelName string `json:"model_name"`
	Model     string `json:"model"`
}

// ModelList returns the extraction schema names accepted as model_name.
func (h *ExtractHandler) ModelList(c *gin.Context) {
	response.Success(c, h.extract.Schemas())
}

func (h *ExtractHandler) Extract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.ModelName == "" {
		response.Error(c, errcode.ErrInvalid, "model_name required")
		return
	}
	result, err := h.extract.Extract(c.Request.Context(), req.ModelName, req.Model, req.Text)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}
