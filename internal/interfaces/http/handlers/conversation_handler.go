package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/application/usecase"
	"github.com/ngoclaw/aichat/internal/domain/repository"
	"github.com/ngoclaw/aichat/internal/domain/valueobject"
	apperrors "github.com/ngoclaw/aichat/pkg/errors"
)

// ConversationHandler 会话 CRUD、历史与分享
type ConversationHandler struct {
	convs  *usecase.ConversationService
	logger *zap.Logger
}

// NewConversationHandler 创建会话处理器
func NewConversationHandler(convs *usecase.ConversationService, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{convs: convs, logger: logger}
}

// CreateConversationRequest 创建请求，标题可空
type CreateConversationRequest struct {
	Title string `json:"title"`
}

// UpdateConversationRequest 局部更新，未出现的字段保持不变
type UpdateConversationRequest struct {
	Title      *string                           `json:"title"`
	Settings   *valueobject.ConversationSettings `json:"settings"`
	IsArchived *bool                             `json:"isArchived"`
	IsPinned   *bool                             `json:"isPinned"`
	Tags       *[]string                         `json:"tags"`
}

// ShareRequest 分享请求
type ShareRequest struct {
	UserID     string `json:"userId" binding:"required"`
	Permission string `json:"permission" binding:"required"`
}

// List GET /api/v1/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	q := repository.ConversationQuery{}
	var err error
	if q.Limit, err = queryInt(c, "limit"); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if q.Offset, err = queryInt(c, "offset"); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if raw := c.Query("archived"); raw != "" {
		archived, perr := strconv.ParseBool(raw)
		if perr != nil {
			respondError(c, h.logger, apperrors.NewInvalidInputError("archived must be true or false"))
			return
		}
		q.Archived = &archived
	}

	convs, err := h.convs.List(c.Request.Context(), CurrentUserID(c), q)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	views := make([]usecase.ConversationView, 0, len(convs))
	for _, conv := range convs {
		views = append(views, usecase.NewConversationView(conv))
	}
	c.JSON(http.StatusOK, gin.H{"conversations": views, "count": len(views)})
}

// Create POST /api/v1/conversations
func (h *ConversationHandler) Create(c *gin.Context) {
	var req CreateConversationRequest
	// 空请求体也允许
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, h.logger, apperrors.NewInvalidInputErrorWithCause("invalid request body", err))
		return
	}
	conv, err := h.convs.Create(c.Request.Context(), CurrentUserID(c), req.Title)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, usecase.NewConversationView(conv))
}

// Get GET /api/v1/conversations/:id
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, err := h.convs.Get(c.Request.Context(), CurrentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, usecase.NewConversationView(conv))
}

// Update PATCH /api/v1/conversations/:id
func (h *ConversationHandler) Update(c *gin.Context) {
	var req UpdateConversationRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	conv, err := h.convs.Update(c.Request.Context(), CurrentUserID(c), c.Param("id"), usecase.ConversationPatch{
		Title:    req.Title,
		Settings: req.Settings,
		Archived: req.IsArchived,
		Pinned:   req.IsPinned,
		Tags:     req.Tags,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, usecase.NewConversationView(conv))
}

// Delete DELETE /api/v1/conversations/:id
func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.convs.Delete(c.Request.Context(), CurrentUserID(c), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Messages GET /api/v1/conversations/:id/messages
func (h *ConversationHandler) Messages(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			respondError(c, h.logger, apperrors.NewInvalidInputError("before must be an RFC3339 timestamp"))
			return
		}
		before = &t
	}

	msgs, err := h.convs.History(c.Request.Context(), CurrentUserID(c), c.Param("id"), limit, before)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": usecase.NewMessageViews(msgs), "count": len(msgs)})
}

// Share POST /api/v1/conversations/:id/share
func (h *ConversationHandler) Share(c *gin.Context) {
	var req ShareRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	perm, err := valueobject.ParseSharePermission(req.Permission)
	if err != nil {
		respondError(c, h.logger, apperrors.NewInvalidInputErrorWithCause("permission must be read, write or admin", err))
		return
	}
	conv, err := h.convs.Share(c.Request.Context(), CurrentUserID(c), c.Param("id"), req.UserID, perm)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, usecase.NewConversationView(conv))
}

// Unshare DELETE /api/v1/conversations/:id/share/:userId
func (h *ConversationHandler) Unshare(c *gin.Context) {
	conv, err := h.convs.Unshare(c.Request.Context(), CurrentUserID(c), c.Param("id"), c.Param("userId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, usecase.NewConversationView(conv))
}
