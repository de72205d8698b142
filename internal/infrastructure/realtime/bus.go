// Package realtime 把会话事件投递到 websocket 客户端，单机用内存总线，多实例用 Redis。
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// 事件类型
const (
	EventMessageResponse = "message_response"
	EventVoiceResponse   = "voice_response"
	EventUserTyping      = "user_typing"
	EventError           = "error"
	EventPong            = "pong"
)

// Target 投递目标，按 ClientID → UserID → ConversationID 的优先级匹配
type Target struct {
	ClientID       string `json:"clientId,omitempty"`
	UserID         string `json:"userId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	// ExceptUserID 房间广播时跳过的用户（如 typing 的发起者）
	ExceptUserID string `json:"exceptUserId,omitempty"`
}

// Envelope 总线上传递的事件
type Envelope struct {
	Type      string          `json:"type"`
	Target    Target          `json:"target"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewEnvelope 序列化 payload 生成事件
func NewEnvelope(eventType string, target Target, payload any) (Envelope, error) {
	env := Envelope{Type: eventType, Target: target, Timestamp: time.Now().UnixMilli()}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	env.Data = raw
	return env, nil
}

// Handler 事件处理函数
type Handler func(ctx context.Context, env Envelope)

// Bus 实时事件总线接口
type Bus interface {
	// Publish 发布事件
	Publish(ctx context.Context, env Envelope) error
	// Subscribe 注册处理器，ctx 结束后停止投递
	Subscribe(ctx context.Context, handler Handler) error
	// Close 关闭总线
	Close() error
}
