package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaultsDecode(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := Decode(v)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.AI.TurnTimeout != 120*time.Second {
		t.Errorf("turn_timeout = %v", cfg.AI.TurnTimeout)
	}
	if cfg.AI.HistoryLimit != 10 {
		t.Errorf("history_limit = %d", cfg.AI.HistoryLimit)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("addr = %s", cfg.Server.Addr())
	}
	if cfg.Auth.TokenTTL != 168*time.Hour {
		t.Errorf("token_ttl = %v", cfg.Auth.TokenTTL)
	}
}

func TestValidateRejectsUnknownBackends(t *testing.T) {
	tests := map[string]string{
		"database.type":      "mongo",
		"media.backend":      "s3",
		"ai.speech.provider": "whisper-local",
	}
	for key, val := range tests {
		v := viper.New()
		setDefaults(v)
		v.Set(key, val)
		if _, err := Decode(v); err == nil {
			t.Errorf("%s=%s: expected error", key, val)
		}
	}
}

func TestGCSRequiresBucket(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("media.backend", "gcs")
	if _, err := Decode(v); err == nil {
		t.Fatal("expected error without bucket")
	}
	v.Set("media.bucket", "aichat-media")
	if _, err := Decode(v); err != nil {
		t.Fatalf("Decode: %v", err)
	}
}

func TestProvidersFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
ai:
  providers:
    - name: openai
      type: openai
      api_key: sk-1
      models: [gpt-4o-mini]
      priority: 1
    - name: claude
      type: anthropic
      priority: 2
`
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}

	cfg, err := Decode(v)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(cfg.AI.Providers) != 2 || cfg.AI.Providers[1].Type != "anthropic" || cfg.AI.Providers[0].Models[0] != "gpt-4o-mini" {
		t.Errorf("providers = %+v", cfg.AI.Providers)
	}
}
