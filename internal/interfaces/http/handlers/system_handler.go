package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/infrastructure/llm"
)

// SystemHandler 健康检查、运行时与 provider 状态
type SystemHandler struct {
	monitor   StatsSource
	providers ProviderLister
	logger    *zap.Logger
}

// StatsSource 监控统计
type StatsSource interface {
	GetStats() map[string]any
}

// ProviderLister 列出 provider 状态
type ProviderLister interface {
	ListProviders(ctx context.Context) []llm.ProviderStatus
}

// NewSystemHandler 创建系统处理器，monitor/providers 可为 nil
func NewSystemHandler(monitor StatsSource, providers ProviderLister, logger *zap.Logger) *SystemHandler {
	return &SystemHandler{monitor: monitor, providers: providers, logger: logger}
}

// Health GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Providers GET /api/v1/providers
func (h *SystemHandler) Providers(c *gin.Context) {
	if h.providers == nil {
		c.JSON(http.StatusOK, gin.H{"providers": []llm.ProviderStatus{}, "count": 0})
		return
	}
	list := h.providers.ListProviders(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"providers": list, "count": len(list)})
}

// Stats GET /api/v1/system/stats
func (h *SystemHandler) Stats(c *gin.Context) {
	if h.monitor == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, h.monitor.GetStats())
}

// Runtime GET /api/v1/system/runtime
func (h *SystemHandler) Runtime(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	c.JSON(http.StatusOK, gin.H{
		"go_version":    runtime.Version(),
		"num_cpu":       runtime.NumCPU(),
		"num_goroutine": runtime.NumGoroutine(),
		"memory": gin.H{
			"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
			"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
			"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
			"num_gc":         memStats.NumGC,
		},
		"timestamp": time.Now().Unix(),
	})
}
