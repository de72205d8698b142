package monitoring

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

// Metrics 指标收集器
type Metrics struct {
	// HTTP 请求
	RequestsTotal       uint64
	RequestsFailed      uint64
	RequestLatencySum   uint64 // 纳秒
	RequestLatencyCount uint64

	// 对话回合
	TurnsTotal     uint64
	TurnsFailed    uint64
	DegradedTotal  uint64
	TurnLatencySum uint64 // 纳秒

	// 模型
	TokensUsed uint64

	// WebSocket
	ActiveClients int64

	// 启动时间
	StartTime time.Time
}

// Monitor 性能监控器
type Monitor struct {
	metrics *Metrics
	logger  *zap.Logger

	mu      sync.RWMutex
	intents map[valueobject.IntentCategory]uint64
}

// NewMonitor 创建监控器
func NewMonitor(logger *zap.Logger) *Monitor {
	return &Monitor{
		metrics: &Metrics{StartTime: time.Now()},
		logger:  logger,
		intents: make(map[valueobject.IntentCategory]uint64, len(valueobject.AllIntents)),
	}
}

// 计数方法
func (m *Monitor) IncRequestTotal()  { atomic.AddUint64(&m.metrics.RequestsTotal, 1) }
func (m *Monitor) IncRequestFailed() { atomic.AddUint64(&m.metrics.RequestsFailed, 1) }
func (m *Monitor) IncActiveClients() { atomic.AddInt64(&m.metrics.ActiveClients, 1) }
func (m *Monitor) DecActiveClients() { atomic.AddInt64(&m.metrics.ActiveClients, -1) }

func (m *Monitor) RecordRequestLatency(d time.Duration) {
	atomic.AddUint64(&m.metrics.RequestLatencySum, uint64(d.Nanoseconds()))
	atomic.AddUint64(&m.metrics.RequestLatencyCount, 1)
}

// TurnFailed 回合在持久化或校验阶段失败
func (m *Monitor) TurnFailed() {
	atomic.AddUint64(&m.metrics.TurnsTotal, 1)
	atomic.AddUint64(&m.metrics.TurnsFailed, 1)
}

// TurnCompleted 记录一次完成的回合
func (m *Monitor) TurnCompleted(intent valueobject.IntentCategory, degraded bool, tokens int, d time.Duration) {
	atomic.AddUint64(&m.metrics.TurnsTotal, 1)
	atomic.AddUint64(&m.metrics.TurnLatencySum, uint64(d.Nanoseconds()))
	if degraded {
		atomic.AddUint64(&m.metrics.DegradedTotal, 1)
	}
	if tokens > 0 {
		atomic.AddUint64(&m.metrics.TokensUsed, uint64(tokens))
	}

	m.mu.Lock()
	m.intents[intent]++
	m.mu.Unlock()
}

// IntentCounts 各意图计数的副本
func (m *Monitor) IntentCounts() map[valueobject.IntentCategory]uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[valueobject.IntentCategory]uint64, len(m.intents))
	for k, v := range m.intents {
		out[k] = v
	}
	return out
}

// GetStats 获取当前统计
func (m *Monitor) GetStats() map[string]any {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	avgLatency := float64(0)
	if count := atomic.LoadUint64(&m.metrics.RequestLatencyCount); count > 0 {
		avgLatency = float64(atomic.LoadUint64(&m.metrics.RequestLatencySum)) / float64(count) / 1e6 // ms
	}
	avgTurn := float64(0)
	completed := atomic.LoadUint64(&m.metrics.TurnsTotal) - atomic.LoadUint64(&m.metrics.TurnsFailed)
	if completed > 0 {
		avgTurn = float64(atomic.LoadUint64(&m.metrics.TurnLatencySum)) / float64(completed) / 1e6
	}

	return map[string]any{
		"uptime_seconds":  time.Since(m.metrics.StartTime).Seconds(),
		"requests_total":  atomic.LoadUint64(&m.metrics.RequestsTotal),
		"requests_failed": atomic.LoadUint64(&m.metrics.RequestsFailed),
		"avg_latency_ms":  avgLatency,
		"turns_total":     atomic.LoadUint64(&m.metrics.TurnsTotal),
		"turns_failed":    atomic.LoadUint64(&m.metrics.TurnsFailed),
		"turns_degraded":  atomic.LoadUint64(&m.metrics.DegradedTotal),
		"avg_turn_ms":     avgTurn,
		"tokens_used":     atomic.LoadUint64(&m.metrics.TokensUsed),
		"active_clients":  atomic.LoadInt64(&m.metrics.ActiveClients),
		"memory_mb":       float64(memStats.Alloc) / 1024 / 1024,
		"goroutines":      runtime.NumGoroutine(),
	}
}
