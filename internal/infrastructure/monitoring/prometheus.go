package monitoring

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

// PrometheusHandler serves metrics in the Prometheus text exposition format.
// Mount it at "/metrics".
func (m *Monitor) PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		lines := []struct {
			name string
			help string
			typ  string
			val  any
		}{
			{"aichat_http_requests_total", "Total HTTP requests served", "counter", atomic.LoadUint64(&m.metrics.RequestsTotal)},
			{"aichat_http_requests_failed_total", "HTTP requests answered with a 5xx status", "counter", atomic.LoadUint64(&m.metrics.RequestsFailed)},

			{"aichat_turns_total", "Chat turns handled", "counter", atomic.LoadUint64(&m.metrics.TurnsTotal)},
			{"aichat_turns_failed_total", "Chat turns that returned an error", "counter", atomic.LoadUint64(&m.metrics.TurnsFailed)},
			{"aichat_turns_degraded_total", "Chat turns answered with the fallback reply", "counter", atomic.LoadUint64(&m.metrics.DegradedTotal)},
			{"aichat_model_tokens_used_total", "Total tokens consumed", "counter", atomic.LoadUint64(&m.metrics.TokensUsed)},

			{"aichat_websocket_clients", "Connected websocket clients", "gauge", atomic.LoadInt64(&m.metrics.ActiveClients)},
			{"aichat_uptime_seconds", "Process uptime in seconds", "gauge", time.Since(m.metrics.StartTime).Seconds()},

			{"aichat_memory_alloc_bytes", "Current memory allocation in bytes", "gauge", memStats.Alloc},
			{"aichat_goroutines", "Number of goroutines", "gauge", runtime.NumGoroutine()},
			{"aichat_gc_cycles_total", "Total number of completed GC cycles", "counter", memStats.NumGC},
		}

		for _, l := range lines {
			fmt.Fprintf(w, "# HELP %s %s\n", l.name, l.help)
			fmt.Fprintf(w, "# TYPE %s %s\n", l.name, l.typ)
			switch v := l.val.(type) {
			case uint64:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case int64:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case int:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case uint32:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case float64:
				fmt.Fprintf(w, "%s %f\n", l.name, v)
			}
			fmt.Fprintln(w)
		}

		counts := m.IntentCounts()
		fmt.Fprintf(w, "# HELP aichat_intents_total Classified turns by intent category\n")
		fmt.Fprintf(w, "# TYPE aichat_intents_total counter\n")
		for _, c := range valueobject.AllIntents {
			fmt.Fprintf(w, "aichat_intents_total{category=%q} %d\n", c, counts[c])
		}
		fmt.Fprintln(w)

		if reqCount := atomic.LoadUint64(&m.metrics.RequestLatencyCount); reqCount > 0 {
			avgMs := float64(atomic.LoadUint64(&m.metrics.RequestLatencySum)) / float64(reqCount) / 1e6
			fmt.Fprintf(w, "# HELP aichat_http_latency_avg_ms Average HTTP latency in milliseconds\n")
			fmt.Fprintf(w, "# TYPE aichat_http_latency_avg_ms gauge\n")
			fmt.Fprintf(w, "aichat_http_latency_avg_ms %f\n\n", avgMs)
		}
	})
}
