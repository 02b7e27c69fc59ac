package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/pkg/errcode"
	"github.com/xxxsen/docchat/internal/pkg/response"
	"github.com/xxxsen/docchat/internal/service"
)

type ExampleHandler struct {
	chat *service.ChatService
}

func NewExampleHandler(chat *service.ChatService) *ExampleHandler {
	return &ExampleHandler{chat: chat}
}

type exampleRequest struct {
	Model  string `json:"model"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

func (h *ExampleHandler) List(c *gin.Context) {
	items, err := h.chat.ListExamples(c.Request.Context(), c.Query("model"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": items})
}

func (h *ExampleHandler) Add(c *gin.Context) {
	var req exampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	item, err := h.chat.AddExample(c.Request.Context(), req.Model, req.Input, req.Output)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, item)
}

func (h *ExampleHandler) Delete(c *gin.Context) {
	if err := h.chat.DeleteExample(c.Request.Context(), c.Query("model"), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *ExampleHandler) Clear(c *gin.Context) {
	removed, err := h.chat.DeleteAllExamples(c.Request.Context(), c.Query("model"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"removed": removed})
}
