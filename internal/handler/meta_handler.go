package handler

import (
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/pkg/response"
	"github.com/xxxsen/docchat/internal/service"
)

type MetaHandler struct {
	models []string
	chat   *service.ChatService
}

func NewMetaHandler(models []string, chat *service.ChatService) *MetaHandler {
	sorted := append([]string(nil), models...)
	sort.Strings(sorted)
	return &MetaHandler{models: sorted, chat: chat}
}

func (h *MetaHandler) Models(c *gin.Context) {
	response.Success(c, gin.H{"models": h.models})
}

func (h *MetaHandler) Tasks(c *gin.Context) {
	response.Success(c, gin.H{"tasks": h.chat.Tasks()})
}
