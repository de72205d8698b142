package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/application/usecase"
	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

// AuthHandler 注册、登录与当前用户
type AuthHandler struct {
	auth   *usecase.AuthService
	logger *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(auth *usecase.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SessionResponse 登录/注册响应
type SessionResponse struct {
	User      usecase.UserView `json:"user"`
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

// Register POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	sess, err := h.auth.Register(c.Request.Context(), usecase.RegisterCommand{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newSessionResponse(sess))
}

// Login POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	sess, err := h.auth.Login(c.Request.Context(), usecase.LoginCommand{
		Email:     req.Email,
		Password:  req.Password,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(sess))
}

// Me GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.auth.Me(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, usecase.NewUserView(user, time.Now()))
}

// UpdatePreferences PUT /api/v1/auth/me/preferences
func (h *AuthHandler) UpdatePreferences(c *gin.Context) {
	var prefs valueobject.Preferences
	if !bindJSON(c, h.logger, &prefs) {
		return
	}
	user, err := h.auth.UpdatePreferences(c.Request.Context(), CurrentUserID(c), prefs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, usecase.NewUserView(user, time.Now()))
}

func newSessionResponse(s *usecase.Session) SessionResponse {
	return SessionResponse{
		User:      usecase.NewUserView(s.User, time.Now()),
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
	}
}
