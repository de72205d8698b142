package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/infrastructure/auth"
	apperrors "github.com/ngoclaw/aichat/pkg/errors"
)

const (
	ctxUserID   = "auth.user_id"
	ctxUsername = "auth.username"
)

// TokenParser 校验 JWT
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// RequireAuth 校验 Authorization: Bearer <jwt>，把用户写入 gin.Context
func RequireAuth(tokens TokenParser, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			respondError(c, logger, apperrors.NewUnauthorizedError("missing bearer token"))
			return
		}
		claims, err := tokens.Parse(token)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUsername, claims.Username)
		c.Next()
	}
}

// CurrentUserID 当前认证用户，未经 RequireAuth 时为空
func CurrentUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func bearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
