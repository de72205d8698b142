package realtime

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/pkg/safego"
)

// ErrBusClosed 总线已关闭
var ErrBusClosed = errors.New("realtime bus closed")

// InMemoryBus 内存事件总线，单实例部署使用
type InMemoryBus struct {
	mu        sync.RWMutex
	handlers  map[int]Handler
	nextID    int
	eventChan chan Envelope
	closed    bool
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewInMemoryBus 创建内存事件总线
func NewInMemoryBus(logger *zap.Logger, bufferSize int) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	bus := &InMemoryBus{
		handlers:  make(map[int]Handler),
		eventChan: make(chan Envelope, bufferSize),
		logger:    logger.With(zap.String("component", "realtime.memory")),
	}

	// 启动事件分发协程
	bus.wg.Add(1)
	go bus.dispatch()

	return bus
}

// Publish 非阻塞发布，缓冲区满时丢弃
func (b *InMemoryBus) Publish(ctx context.Context, env Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	select {
	case b.eventChan <- env:
		b.logger.Debug("Event published", zap.String("type", env.Type))
	default:
		b.logger.Warn("Event buffer full, dropping event", zap.String("type", env.Type))
	}
	return nil
}

// Subscribe 注册处理器，ctx 结束时自动注销
func (b *InMemoryBus) Subscribe(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}()
	return nil
}

// Close 关闭事件总线，等待已入队事件分发完
func (b *InMemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.eventChan)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("Event bus closed")
	return nil
}

// dispatch 按发布顺序逐个分发
func (b *InMemoryBus) dispatch() {
	defer b.wg.Done()
	for env := range b.eventChan {
		b.mu.RLock()
		handlers := make([]Handler, 0, len(b.handlers))
		for _, h := range b.handlers {
			handlers = append(handlers, h)
		}
		b.mu.RUnlock()

		for _, h := range handlers {
			b.deliver(h, env)
		}
	}
}

func (b *InMemoryBus) deliver(h Handler, env Envelope) {
	defer safego.Recover(b.logger, "realtime.handler."+env.Type)
	h(context.Background(), env)
}

var _ Bus = (*InMemoryBus)(nil)
