package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，如 AICHAT_SERVER_PORT
const EnvPrefix = "AICHAT"

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	AI       AIConfig       `mapstructure:"ai"`
	Media    MediaConfig    `mapstructure:"media"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Prompts  PromptsConfig  `mapstructure:"prompts"`
}

// ServerConfig HTTP/WebSocket 服务配置
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"` // debug, release, test
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // sqlite, postgres
	DSN      string `mapstructure:"dsn"`
	LogLevel string `mapstructure:"log_level"` // silent, error, warn, info
}

// RedisConfig 跨实例实时推送
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// AuthConfig JWT 配置
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AIConfig 模型与 provider 配置
type AIConfig struct {
	DefaultModel       string           `mapstructure:"default_model"`
	CodeModel          string           `mapstructure:"code_model"`
	MaxTokens          int              `mapstructure:"max_tokens"`
	TurnTimeout        time.Duration    `mapstructure:"turn_timeout"`
	HistoryLimit       int              `mapstructure:"history_limit"`
	HistoryTokenBudget int              `mapstructure:"history_token_budget"`
	Providers          []ProviderConfig `mapstructure:"providers"`
	Image              ImageConfig      `mapstructure:"image"`
	Speech             SpeechConfig     `mapstructure:"speech"`
	TTS                TTSConfig        `mapstructure:"tts"`
	Breaker            BreakerConfig    `mapstructure:"breaker"`
}

// ProviderConfig 单个 LLM provider，priority 越小越优先
type ProviderConfig struct {
	Name     string   `mapstructure:"name"`
	Type     string   `mapstructure:"type"` // openai, anthropic, gemini
	BaseURL  string   `mapstructure:"base_url"`
	APIKey   string   `mapstructure:"api_key"`
	Models   []string `mapstructure:"models"`
	Priority int      `mapstructure:"priority"`
}

// ImageConfig 图像生成
type ImageConfig struct {
	Model string `mapstructure:"model"`
	Size  string `mapstructure:"size"`
}

// SpeechConfig 语音识别
type SpeechConfig struct {
	Provider        string `mapstructure:"provider"` // openai, gcp, none
	Model           string `mapstructure:"model"`
	Language        string `mapstructure:"language"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// TTSConfig 语音合成
type TTSConfig struct {
	Provider string `mapstructure:"provider"` // openai, none
	Model    string `mapstructure:"model"`
	Voice    string `mapstructure:"voice"`
}

// BreakerConfig 每个 provider 的熔断参数
type BreakerConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// MediaConfig 媒体存储
type MediaConfig struct {
	Backend         string `mapstructure:"backend"` // local, gcs
	Dir             string `mapstructure:"dir"`
	BaseURL         string `mapstructure:"base_url"`
	Bucket          string `mapstructure:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// TracingConfig OpenTelemetry
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"` // stdout, otlp
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// PromptsConfig 人格提示词
type PromptsConfig struct {
	PersonalitiesFile string `mapstructure:"personalities_file"`
}

// Load 加载配置
func Load() (*Config, error) {
	v, err := NewViper()
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// NewViper 按层构建 viper 实例
// 优先级 (低 → 高): 默认值 → 全局 ~/.aichat/ → 项目本地 → 环境变量
func NewViper() (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Layer 1: 全局配置 ~/.aichat/config.yaml
	v.AddConfigPath(HomeDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read global config: %w", err)
		}
	}

	// Layer 2: 项目本地配置 ./config/config.yaml 或 ./config.yaml
	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err != nil {
			continue
		}
		local := viper.New()
		local.SetConfigFile(localPath)
		if err := local.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", localPath, err)
		}
		_ = v.MergeConfigMap(local.AllSettings())
		if v.ConfigFileUsed() == "" {
			v.SetConfigFile(localPath)
		}
		break
	}

	// Layer 3: 环境变量
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// Decode 把 viper 内容解码为 Config 并校验
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database type: %q", c.Database.Type)
	}
	switch c.Media.Backend {
	case "local", "gcs":
	default:
		return fmt.Errorf("unsupported media backend: %q", c.Media.Backend)
	}
	if c.Media.Backend == "gcs" && c.Media.Bucket == "" {
		return fmt.Errorf("media.bucket is required for the gcs backend")
	}
	switch c.AI.Speech.Provider {
	case "openai", "gcp", "none", "":
	default:
		return fmt.Errorf("unsupported speech provider: %q", c.AI.Speech.Provider)
	}
	if c.AI.TurnTimeout <= 0 {
		return fmt.Errorf("ai.turn_timeout must be positive")
	}
	for i, p := range c.AI.Providers {
		if p.Name == "" {
			return fmt.Errorf("ai.providers[%d]: name is required", i)
		}
	}
	return nil
}

// setDefaults 设置默认配置
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "aichat.db")
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.channel", "aichat:realtime")

	v.SetDefault("auth.jwt_secret", "change-me")
	v.SetDefault("auth.token_ttl", "168h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("ai.default_model", "gpt-4o-mini")
	v.SetDefault("ai.code_model", "gpt-4o")
	v.SetDefault("ai.max_tokens", 2048)
	v.SetDefault("ai.turn_timeout", "120s")
	v.SetDefault("ai.history_limit", 10)
	v.SetDefault("ai.history_token_budget", 6000)
	v.SetDefault("ai.image.model", "dall-e-3")
	v.SetDefault("ai.image.size", "1024x1024")
	v.SetDefault("ai.speech.provider", "openai")
	v.SetDefault("ai.speech.model", "whisper-1")
	v.SetDefault("ai.speech.language", "en-US")
	v.SetDefault("ai.tts.provider", "openai")
	v.SetDefault("ai.tts.model", "tts-1")
	v.SetDefault("ai.tts.voice", "alloy")
	v.SetDefault("ai.breaker.threshold", 3)
	v.SetDefault("ai.breaker.timeout", "30s")

	v.SetDefault("media.backend", "local")
	v.SetDefault("media.dir", "media")
	v.SetDefault("media.base_url", "/media")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.service_name", "aichat")
	v.SetDefault("tracing.sample_ratio", 1.0)
}
