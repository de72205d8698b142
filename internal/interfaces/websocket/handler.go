package websocket

import (
	"context"
	"net/http"
	"net/url"
	"slices"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/application/usecase"
	"github.com/ngoclaw/aichat/internal/domain/entity"
	"github.com/ngoclaw/aichat/internal/infrastructure/auth"
	"github.com/ngoclaw/aichat/internal/infrastructure/realtime"
	"github.com/ngoclaw/aichat/pkg/safego"
)

// TokenParser 校验连接令牌
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// TurnRunner 执行一轮对话
type TurnRunner interface {
	Execute(ctx context.Context, cmd usecase.TurnCommand) (*usecase.ExchangeResult, error)
	ExecuteVoice(ctx context.Context, cmd usecase.VoiceCommand) (*usecase.ExchangeResult, error)
}

// ConversationReader 校验会话读权限
type ConversationReader interface {
	Get(ctx context.Context, userID, id string) (*entity.Conversation, error)
}

// ClientGauge 在线连接数
type ClientGauge interface {
	IncActiveClients()
	DecActiveClients()
}

// HandlerDeps 处理器依赖，Gauge 可为空
type HandlerDeps struct {
	Hub           *Hub
	Tokens        TokenParser
	Turns         TurnRunner
	Conversations ConversationReader
	Publisher     usecase.Publisher
	Gauge         ClientGauge
	// AllowedOrigins 为空或含 "*" 时不校验 Origin
	AllowedOrigins []string
}

// Handler WebSocket 处理器
type Handler struct {
	deps     HandlerDeps
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler 创建 WebSocket 处理器
func NewHandler(deps HandlerDeps, logger *zap.Logger) *Handler {
	h := &Handler{deps: deps, logger: logger.With(zap.String("component", "ws"))}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// ServeHTTP 处理 GET /ws?token=<jwt>
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.deps.Tokens.Parse(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, `{"error":{"code":"UNAUTHORIZED","message":"invalid or missing token"}}`, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := newClient(uuid.NewString(), claims.UserID, conn, h.deps.Hub, h.logger)
	if !h.deps.Hub.add(client) {
		conn.Close()
		return
	}
	if h.deps.Gauge != nil {
		h.deps.Gauge.IncActiveClients()
	}

	// 启动读写协程
	safego.Go(h.logger, "ws.write", client.writePump)
	safego.Go(h.logger, "ws.read", func() {
		client.readPump(h.handleFrame)
		if h.deps.Gauge != nil {
			h.deps.Gauge.DecActiveClients()
		}
	})
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.deps.AllowedOrigins) == 0 || slices.Contains(h.deps.AllowedOrigins, "*") {
		return true
	}
	if slices.Contains(h.deps.AllowedOrigins, origin) {
		return true
	}
	// 同源放行
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// publish 经总线投递，失败时记录日志
func (h *Handler) publish(ctx context.Context, eventType string, target realtime.Target, payload any) {
	env, err := realtime.NewEnvelope(eventType, target, payload)
	if err != nil {
		h.logger.Error("Failed to build envelope", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := h.deps.Publisher.Publish(ctx, env); err != nil {
		h.logger.Warn("Failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}
