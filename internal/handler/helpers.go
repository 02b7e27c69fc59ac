package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/middleware"
	"github.com/xxxsen/docchat/internal/pkg/errcode"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/pkg/response"
)

func getSessionID(c *gin.Context) string {
	return middleware.SessionID(c)
}

// handleError maps a service error onto an API code. Details stay in the log,
// the caller only sees a short message.
func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logger := logutil.GetLogger(c.Request.Context()).With(
		zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		zap.String("session", getSessionID(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrTooLarge):
		logger.Info("request rejected")
		response.Error(c, errcode.ErrFileTooLarge, "file too large")
	case errors.Is(err, appErr.ErrUnsupportedType):
		logger.Info("request rejected")
		response.Error(c, errcode.ErrInvalidFile, "unsupported file type")
	case errors.Is(err, appErr.ErrInvalid):
		logger.Info("request rejected")
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case appErr.IsNotReady(err):
		logger.Warn("document not ready")
		response.Error(c, errcode.ErrNotReady, "document not ready, please upload again")
	case errors.Is(err, appErr.ErrBackendUnavailable):
		logger.Warn("backend unavailable")
		response.Error(c, errcode.ErrBackendUnavailable, "model backend unavailable")
	case errors.Is(err, appErr.ErrUpstream):
		logger.Error("upstream failure")
		response.Error(c, errcode.ErrUpstream, "model service failed, please retry later")
	default:
		logger.Error("internal error")
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
