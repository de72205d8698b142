package monitoring

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

func TestPrometheusExposition(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	m.TurnCompleted(valueobject.IntentImageGeneration, false, 0, time.Second)
	m.TurnCompleted(valueobject.IntentTextResponse, true, 42, time.Second)
	m.TurnFailed()
	m.IncActiveClients()

	rec := httptest.NewRecorder()
	m.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		"aichat_turns_total 3",
		"aichat_turns_failed_total 1",
		"aichat_turns_degraded_total 1",
		"aichat_model_tokens_used_total 42",
		"aichat_websocket_clients 1",
		`aichat_intents_total{category="image_generation"} 1`,
		`aichat_intents_total{category="web_search"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}
}

func TestStatsAverageTurn(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	m.TurnCompleted(valueobject.IntentTextResponse, false, 0, 100*time.Millisecond)
	m.TurnCompleted(valueobject.IntentTextResponse, false, 0, 300*time.Millisecond)

	if got := m.GetStats()["avg_turn_ms"].(float64); got != 200 {
		t.Errorf("avg_turn_ms = %v", got)
	}
}
