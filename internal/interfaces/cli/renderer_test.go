package cli

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ngoclaw/aichat/internal/application/usecase"
	"github.com/ngoclaw/aichat/internal/domain/entity"
	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

func TestRenderClassification(t *testing.T) {
	r := NewRenderer(80)
	out := r.RenderClassification("draw a cat", valueobject.IntentImageGeneration, 0.9)
	for _, want := range []string{"draw a cat", "image_generation", "0.90"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderExchange(t *testing.T) {
	now := time.Now()
	meta := valueobject.TextMetadata()
	meta.Generation = &valueobject.Generation{
		Intent:         valueobject.IntentTextResponse,
		Model:          "gpt-test",
		TokensUsed:     42,
		ResponseTimeMs: 1500,
	}
	msg, err := entity.NewMessage("m1", "c1", valueobject.SenderAI, "", "plain reply", valueobject.MessageTypeText, meta, now)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	out := NewRenderer(80).RenderExchange(&usecase.ExchangeResult{AIMessage: msg})
	for _, want := range []string{"plain reply", "gpt-test", "42 tokens", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "degraded") {
		t.Errorf("healthy reply rendered as degraded:\n%s", out)
	}

	if got := NewRenderer(80).RenderExchange(nil); got != "" {
		t.Errorf("nil exchange = %q", got)
	}
}

func TestRenderRecovery(t *testing.T) {
	r := NewRenderer(80)
	if out := r.RenderRecovery(3, nil); !strings.Contains(out, "3 pending") {
		t.Errorf("success = %q", out)
	}
	if out := r.RenderRecovery(0, errors.New("db down")); !strings.Contains(out, "db down") {
		t.Errorf("failure = %q", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 20); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("ünïcödé text that is long", 10); len([]rune(got)) != 10 || !strings.HasSuffix(got, "…") {
		t.Errorf("truncate = %q", got)
	}
}

func TestRenderBanner(t *testing.T) {
	out := RenderBanner(BannerInfo{Version: "1.0.0", Addr: ":8080", Database: "sqlite", Realtime: "memory"}, 30)
	for _, want := range []string{"A I C H A T", "v1.0.0", ":8080", "none"} {
		if !strings.Contains(out, want) {
			t.Errorf("banner missing %q:\n%s", want, out)
		}
	}
}
