package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/pkg/errcode"
	"github.com/xxxsen/docchat/internal/pkg/jwt"
	"github.com/xxxsen/docchat/internal/pkg/response"
	"github.com/xxxsen/docchat/internal/session"
)

const (
	SessionHeader       = "X-Session-Token"
	ContextSessionIDKey = "session_id"
)

// Session resolves the caller's session from the token header. A missing,
// expired or forged token starts a new session and the fresh token is sent
// back in the same header.
func Session(secret []byte, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		sessionID := ""
		if token := strings.TrimSpace(c.GetHeader(SessionHeader)); token != "" {
			claims, err := jwt.ParseToken(token, secret)
			if err != nil {
				logutil.GetLogger(ctx).Debug("drop invalid session token", zap.Error(err))
			} else {
				sessionID = claims.SessionID
			}
		}
		if sessionID == "" {
			sessionID = session.NewID()
			token, err := jwt.GenerateToken(sessionID, secret, ttl)
			if err != nil {
				logutil.GetLogger(ctx).Error("issue session token failed", zap.Error(err))
				response.Error(c, errcode.ErrInternal, "issue session failed")
				c.Abort()
				return
			}
			c.Writer.Header().Set(SessionHeader, token)
		}
		c.Set(ContextSessionIDKey, sessionID)
		c.Request = c.Request.WithContext(session.WithID(ctx, sessionID))
		c.Next()
	}
}

func SessionID(c *gin.Context) string {
	value, _ := c.Get(ContextSessionIDKey)
	id, _ := value.(string)
	return id
}
