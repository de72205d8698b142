package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/application/usecase"
	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

// ChatHandler 通过 HTTP 发起一轮对话，与 websocket send_message 走同一流程
type ChatHandler struct {
	turns  *usecase.HandleTurnUseCase
	logger *zap.Logger
}

// NewChatHandler 创建对话处理器
func NewChatHandler(turns *usecase.HandleTurnUseCase, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{turns: turns, logger: logger}
}

// ChatRequest 对话请求
type ChatRequest struct {
	Message        string `json:"message" binding:"required"`
	ConversationID string `json:"conversationId"`
	MessageType    string `json:"messageType"`
}

// Send POST /api/v1/chat
func (h *ChatHandler) Send(c *gin.Context) {
	var req ChatRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	res, err := h.turns.Execute(c.Request.Context(), usecase.TurnCommand{
		UserID:         CurrentUserID(c),
		Text:           req.Message,
		ConversationID: req.ConversationID,
		MessageType:    valueobject.MessageType(req.MessageType),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, usecase.NewExchangeView(res))
}
