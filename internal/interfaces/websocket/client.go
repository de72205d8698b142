package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512 * 1024 // 512KB，语音消息走 base64
	sendBuffer     = 256
)

// Client WebSocket 客户端
type Client struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	// rooms 由 hub.mu 保护
	rooms  map[string]struct{}
	logger *zap.Logger
}

func newClient(id, userID string, conn *websocket.Conn, hub *Hub, logger *zap.Logger) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    hub,
		rooms:  make(map[string]struct{}),
		logger: logger.With(zap.String("client_id", id), zap.String("user_id", userID)),
	}
}

// readPump 读取消息，交给 onFrame 处理
func (c *Client) readPump(onFrame func(*Client, *Frame)) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.logger.Debug("Failed to parse frame", zap.Error(err))
			c.sendError("malformed frame", "INVALID_INPUT")
			continue
		}
		onFrame(c, &frame)
	}
}

// writePump 写入消息并定时 ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendFrame 直接写给本连接，不经过总线
func (c *Client) sendFrame(eventType string, payload any) {
	frame := Frame{Type: eventType, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			c.logger.Error("Failed to encode payload", zap.String("type", eventType), zap.Error(err))
			return
		}
		frame.Data = raw
	}
	data, _ := json.Marshal(frame)

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.ID]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("Client send buffer full, dropping frame", zap.String("type", eventType))
	}
}

func (c *Client) sendError(message, code string) {
	c.sendFrame("error", errorPayload{Message: message, Code: code})
}
