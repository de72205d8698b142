// Package websocket 实时通道：连接管理、会话房间与事件路由
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/infrastructure/realtime"
)

// Frame 线上消息格式
type Frame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Hub WebSocket 连接中心
type Hub struct {
	clients    map[string]*Client
	rooms      map[string]map[string]*Client
	unregister chan *Client
	done       chan struct{}
	runCtx     context.Context
	logger     *zap.Logger
	mu         sync.RWMutex
}

// NewHub 创建连接中心
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		runCtx:     context.Background(),
		logger:     logger.With(zap.String("component", "ws_hub")),
	}
}

// Run 运行连接中心，ctx 结束时断开所有客户端
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.runCtx = ctx
	h.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.unregister:
			h.remove(client)
			h.logger.Info("Client disconnected",
				zap.String("client_id", client.ID),
			)
		}
	}
}

// Context Run 的生命周期，异步处理的对话轮次挂在它下面
func (h *Hub) Context() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.runCtx
}

// add 登记客户端，hub 已停止时返回 false
func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return false
	default:
	}
	h.clients[c.ID] = c
	h.logger.Info("Client connected",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.UserID),
	)
	return true
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	for convID := range c.rooms {
		if room := h.rooms[convID]; room != nil {
			delete(room, c.ID)
			if len(room) == 0 {
				delete(h.rooms, convID)
			}
		}
	}
	close(c.send)
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	close(h.done)
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
	h.rooms = make(map[string]map[string]*Client)
}

// Join 把客户端加入会话房间
func (h *Hub) Join(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[string]*Client)
		h.rooms[conversationID] = room
	}
	room[c.ID] = c
	c.rooms[conversationID] = struct{}{}
}

// Deliver 按目标投递事件，签名与 realtime.Handler 一致
func (h *Hub) Deliver(_ context.Context, env realtime.Envelope) {
	data, err := json.Marshal(Frame{Type: env.Type, Data: env.Data, Timestamp: env.Timestamp})
	if err != nil {
		h.logger.Error("Failed to encode frame", zap.String("type", env.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.targets(env.Target) {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("Client send buffer full, dropping frame",
				zap.String("client_id", c.ID),
				zap.String("type", env.Type),
			)
		}
	}
}

// targets 优先级 ClientID → UserID → ConversationID；调用方持有读锁
func (h *Hub) targets(t realtime.Target) []*Client {
	var out []*Client
	switch {
	case t.ClientID != "":
		if c, ok := h.clients[t.ClientID]; ok {
			out = append(out, c)
		}
	case t.UserID != "":
		for _, c := range h.clients {
			if c.UserID == t.UserID {
				out = append(out, c)
			}
		}
	case t.ConversationID != "":
		for _, c := range h.rooms[t.ConversationID] {
			if t.ExceptUserID != "" && c.UserID == t.ExceptUserID {
				continue
			}
			out = append(out, c)
		}
	}
	return out
}

// ClientCount 获取客户端数量
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
