package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/application/usecase"
	"github.com/ngoclaw/aichat/internal/domain/valueobject"
	"github.com/ngoclaw/aichat/internal/infrastructure/realtime"
	apperrors "github.com/ngoclaw/aichat/pkg/errors"
	"github.com/ngoclaw/aichat/pkg/safego"
)

// 客户端发来的事件类型
const (
	EventSendMessage      = "send_message"
	EventVoiceMessage     = "voice_message"
	EventTyping           = "typing"
	EventJoinConversation = "join_conversation"
	EventPing             = "ping"
)

type sendMessagePayload struct {
	UserID         string `json:"userId"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	MessageType    string `json:"messageType"`
}

type voiceMessagePayload struct {
	UserID         string `json:"userId"`
	AudioData      string `json:"audioData"`
	MimeType       string `json:"mimeType"`
	ConversationID string `json:"conversationId"`
}

type typingPayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type joinPayload struct {
	ConversationID string `json:"conversationId"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// handleFrame 在读协程中调用；对话轮次异步执行，不阻塞读取
func (h *Handler) handleFrame(c *Client, f *Frame) {
	switch f.Type {
	case EventPing:
		c.sendFrame(realtime.EventPong, nil)

	case EventSendMessage:
		var p sendMessagePayload
		if !h.decode(c, f, &p) || !h.checkUser(c, p.UserID) {
			return
		}
		cmd := usecase.TurnCommand{
			UserID:         c.UserID,
			Text:           p.Message,
			ConversationID: p.ConversationID,
			MessageType:    valueobject.MessageType(p.MessageType),
		}
		safego.GoCtx(h.deps.Hub.Context(), h.logger, "ws.send_message", func(ctx context.Context) {
			if _, err := h.deps.Turns.Execute(ctx, cmd); err != nil {
				h.reportError(ctx, c, err)
			}
		})

	case EventVoiceMessage:
		var p voiceMessagePayload
		if !h.decode(c, f, &p) || !h.checkUser(c, p.UserID) {
			return
		}
		audio, mimeType, err := decodeAudio(p.AudioData, p.MimeType)
		if err != nil {
			h.reportError(h.deps.Hub.Context(), c, err)
			return
		}
		cmd := usecase.VoiceCommand{
			UserID:         c.UserID,
			Audio:          audio,
			MimeType:       mimeType,
			ConversationID: p.ConversationID,
		}
		safego.GoCtx(h.deps.Hub.Context(), h.logger, "ws.voice_message", func(ctx context.Context) {
			if _, err := h.deps.Turns.ExecuteVoice(ctx, cmd); err != nil {
				h.reportError(ctx, c, err)
			}
		})

	case EventTyping:
		var p typingPayload
		if !h.decode(c, f, &p) || !h.checkUser(c, p.UserID) {
			return
		}
		ctx := h.deps.Hub.Context()
		if _, err := h.deps.Conversations.Get(ctx, c.UserID, p.ConversationID); err != nil {
			h.reportError(ctx, c, err)
			return
		}
		h.publish(ctx, realtime.EventUserTyping,
			realtime.Target{ConversationID: p.ConversationID, ExceptUserID: c.UserID},
			typingPayload{UserID: c.UserID, ConversationID: p.ConversationID, IsTyping: p.IsTyping},
		)

	case EventJoinConversation:
		var p joinPayload
		if !h.decode(c, f, &p) {
			return
		}
		ctx := h.deps.Hub.Context()
		if _, err := h.deps.Conversations.Get(ctx, c.UserID, p.ConversationID); err != nil {
			h.reportError(ctx, c, err)
			return
		}
		h.deps.Hub.Join(c, p.ConversationID)

	default:
		c.sendError("unknown event type: "+f.Type, string(apperrors.CodeInvalidInput))
	}
}

func (h *Handler) decode(c *Client, f *Frame, dst any) bool {
	if len(f.Data) == 0 {
		c.sendError(f.Type+": data is required", string(apperrors.CodeInvalidInput))
		return false
	}
	if err := json.Unmarshal(f.Data, dst); err != nil {
		c.sendError(f.Type+": malformed data", string(apperrors.CodeInvalidInput))
		return false
	}
	return true
}

// checkUser 载荷里的 userId 必须与连接用户一致（可省略）
func (h *Handler) checkUser(c *Client, userID string) bool {
	if userID == "" || userID == c.UserID {
		return true
	}
	h.logger.Warn("Rejected frame for another user",
		zap.String("client_id", c.ID),
		zap.String("claimed_user_id", userID),
	)
	c.sendError("userId does not match the authenticated user", string(apperrors.CodeForbidden))
	return false
}

// reportError 经总线把错误发回发起连接
func (h *Handler) reportError(ctx context.Context, c *Client, err error) {
	if apperrors.HTTPStatus(err) >= 500 {
		h.logger.Error("Turn failed", zap.String("client_id", c.ID), zap.Error(err))
	}
	h.publish(ctx, realtime.EventError, realtime.Target{ClientID: c.ID}, errorPayload{
		Message: apperrors.MessageOf(err),
		Code:    string(apperrors.CodeOf(err)),
	})
}

// decodeAudio 解析 base64 音频，兼容 data URL 形式 "data:audio/webm;base64,...."
func decodeAudio(data, mimeType string) ([]byte, string, error) {
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", apperrors.NewInvalidInputError("malformed audio data URL")
		}
		if mt, _, _ := strings.Cut(header, ";"); mimeType == "" && mt != "" {
			mimeType = mt
		}
		data = payload
	}
	if data == "" {
		return nil, "", apperrors.NewInvalidInputError("audioData is required")
	}
	audio, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, "", apperrors.NewInvalidInputErrorWithCause("audioData must be base64", err)
	}
	return audio, mimeType, nil
}
