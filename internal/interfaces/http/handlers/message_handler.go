package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/application/usecase"
	"github.com/ngoclaw/aichat/internal/domain/entity"
)

// MessageHandler 单条消息的编辑、删除、恢复、表情与提及
type MessageHandler struct {
	msgs   *usecase.MessageService
	logger *zap.Logger
}

// NewMessageHandler 创建消息处理器
func NewMessageHandler(msgs *usecase.MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{msgs: msgs, logger: logger}
}

// EditMessageRequest 编辑请求
type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// ReactionRequest 表情请求
type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// MentionRequest 提及请求
type MentionRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// Get GET /api/v1/messages/:id
func (h *MessageHandler) Get(c *gin.Context) {
	h.respond(c)(h.msgs.Get(c.Request.Context(), CurrentUserID(c), c.Param("id")))
}

// Edit PUT /api/v1/messages/:id
func (h *MessageHandler) Edit(c *gin.Context) {
	var req EditMessageRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	h.respond(c)(h.msgs.Edit(c.Request.Context(), CurrentUserID(c), c.Param("id"), req.Content))
}

// Delete DELETE /api/v1/messages/:id
func (h *MessageHandler) Delete(c *gin.Context) {
	h.respond(c)(h.msgs.Delete(c.Request.Context(), CurrentUserID(c), c.Param("id")))
}

// Restore POST /api/v1/messages/:id/restore
func (h *MessageHandler) Restore(c *gin.Context) {
	h.respond(c)(h.msgs.Restore(c.Request.Context(), CurrentUserID(c), c.Param("id")))
}

// React POST /api/v1/messages/:id/reactions
func (h *MessageHandler) React(c *gin.Context) {
	var req ReactionRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	h.respond(c)(h.msgs.React(c.Request.Context(), CurrentUserID(c), c.Param("id"), req.Emoji))
}

// Unreact DELETE /api/v1/messages/:id/reactions
func (h *MessageHandler) Unreact(c *gin.Context) {
	h.respond(c)(h.msgs.Unreact(c.Request.Context(), CurrentUserID(c), c.Param("id")))
}

// Mention POST /api/v1/messages/:id/mentions
func (h *MessageHandler) Mention(c *gin.Context) {
	var req MentionRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	h.respond(c)(h.msgs.Mention(c.Request.Context(), CurrentUserID(c), c.Param("id"), req.UserID))
}

func (h *MessageHandler) respond(c *gin.Context) func(*entity.Message, error) {
	return func(msg *entity.Message, err error) {
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, usecase.NewMessageView(msg))
	}
}
