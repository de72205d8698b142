package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// AppName is the canonical application name
const AppName = "aichat"

// HomeDir returns the per-user configuration home: ~/.aichat
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+AppName)
}

// Bootstrap ensures ~/.aichat exists and holds a commented default config.yaml.
// Existing files are never overwritten.
func Bootstrap(logger *zap.Logger) error {
	root := HomeDir()
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("create dir %s: %w", root, err)
	}

	path := filepath.Join(root, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		logger.Debug("aichat home directory OK", zap.String("home", root))
		return nil
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logger.Info("aichat bootstrap complete", zap.String("config", path))
	return nil
}

const defaultConfig = `# aichat configuration
# Values here are overridden by ./config/config.yaml, ./config.yaml and AICHAT_* env vars.

server:
  host: 0.0.0.0
  port: 8080
  mode: release                # debug | release
  allowed_origins: ["http://localhost:3000"]

database:
  type: sqlite                 # sqlite | postgres
  dsn: aichat.db

redis:
  enabled: false               # enable for multi-instance websocket fan-out
  addr: localhost:6379

auth:
  jwt_secret: ""               # required in production
  token_ttl: 168h

log:
  level: info                  # debug | info | warn | error (hot reloaded)
  format: json                 # json | console

ai:
  default_model: gpt-4o-mini
  code_model: gpt-4o
  turn_timeout: 120s
  history_limit: 10
  # Lower priority = tried first.
  providers: []
  #   - name: openai
  #     type: openai
  #     base_url: https://api.openai.com/v1
  #     api_key: sk-...
  #     models: [gpt-4o-mini, gpt-4o]
  #     priority: 1
  #   - name: claude
  #     type: anthropic
  #     api_key: sk-ant-...
  #     models: [claude-3-5-haiku-latest]
  #     priority: 2
  image:
    model: dall-e-3
    size: 1024x1024
  speech:
    provider: openai           # openai | gcp | none
    language: en-US
  tts:
    provider: openai           # openai | none
    voice: alloy

media:
  backend: local               # local | gcs
  dir: media
  base_url: /media
  bucket: ""

tracing:
  enabled: false
  exporter: stdout             # stdout | otlp
  endpoint: ""

prompts:
  personalities_file: ""       # optional YAML overriding the built-in personalities
`
