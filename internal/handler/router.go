package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/middleware"
)

type RouterDeps struct {
	Documents     *DocumentHandler
	Chat          *ChatHandler
	Examples      *ExampleHandler
	Extract       *ExtractHandler
	Meta          *MetaHandler
	SessionSecret []byte
	SessionTTL    time.Duration
	RateLimit     time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/models", deps.Meta.Models)
	api.GET("/tasks", deps.Meta.Tasks)
	api.GET("/llm/model_list", deps.Extract.ModelList)

	sessionGroup := api.Group("")
	sessionGroup.Use(middleware.Session(deps.SessionSecret, deps.SessionTTL))
	sessionGroup.POST("/documents/upload", deps.Documents.Upload)
	sessionGroup.GET("/examples", deps.Examples.List)
	sessionGroup.POST("/examples", deps.Examples.Add)
	sessionGroup.DELETE("/examples", deps.Examples.Clear)
	sessionGroup.DELETE("/examples/:id", deps.Examples.Delete)

	limited := sessionGroup.Group("")
	limited.Use(middleware.RateLimit(deps.RateLimit))
	limited.POST("/chat", deps.Chat.Chat)
	limited.POST("/chat/document", deps.Chat.ChatDocument)
	limited.POST("/llm/extraction", deps.Extract.Extract)
}
