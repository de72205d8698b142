package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/pkg/safego"
)

// RedisConfig Redis 连接参数
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisBus 基于 Redis Pub/Sub 的事件总线，事件广播到所有实例，
// 每个实例的 hub 只投递给本机连接的客户端
type RedisBus struct {
	rdb     *goredis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisBus 连接 Redis 并验证可用
func NewRedisBus(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*RedisBus, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr required")
	}
	if cfg.Channel == "" {
		cfg.Channel = "aichat:realtime"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBus{
		rdb:     rdb,
		channel: cfg.Channel,
		logger:  logger.With(zap.String("component", "realtime.redis")),
	}, nil
}

// Publish 发布事件到频道
func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// Subscribe 订阅频道并在后台转发
func (b *RedisBus) Subscribe(ctx context.Context, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)

	// 确认订阅已建立
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	safego.GoCtx(ctx, b.logger, "realtime.redis.forwarder", func(ctx context.Context) {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					b.logger.Warn("Bad realtime payload", zap.Error(err))
					continue
				}
				handler(ctx, env)
			}
		}
	})
	return nil
}

// Close 关闭连接
func (b *RedisBus) Close() error {
	return b.rdb.Close()
}

var _ Bus = (*RedisBus)(nil)
