package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/pkg/errcode"
	"github.com/xxxsen/docchat/internal/pkg/response"
	"github.com/xxxsen/docchat/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	Text  string `json:"text"`
	Task  string `json:"task"`
	Model string `json:"model"`
}

type chatDocumentRequest struct {
	Query string `json:"query"`
	Task  string `json:"task"`
	Model string `json:"model"`
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.Text == "" {
		response.Error(c, errcode.ErrInvalid, "text required")
		return
	}
	reply, err := h.chat.Respond(c.Request.Context(), req.Text, req.Task, req.Model)
	if err != nil {
		handleError(c, err)
		return
	}
	h.reply(c, reply)
}

func (h *ChatHandler) ChatDocument(c *gin.Context) {
	var req chatDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.Query == "" {
		response.Error(c, errcode.ErrInvalid, "query required")
		return
	}
	reply, err := h.chat.ChatDocument(c.Request.Context(), getSessionID(c), req.Query, req.Task, req.Model)
	if err != nil {
		handleError(c, err)
		return
	}
	h.reply(c, reply)
}

// reply renders the markdown answer as HTML when ?format=html is given.
func (h *ChatHandler) reply(c *gin.Context, reply *service.ChatReply) {
	if c.Query("format") != "html" {
		response.Success(c, reply)
		return
	}
	html, err := renderHTML(reply.Text)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"text": reply.Text, "html": html, "tokens": reply.TotalTokens})
}
