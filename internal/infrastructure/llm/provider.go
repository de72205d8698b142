package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/domain/service"
)

// Provider is one configured AI backend. Text completion is mandatory;
// image, transcription and speech are discovered by type assertion against
// the service capability interfaces.
type Provider interface {
	service.LLMClient

	Name() string
	Models() []string
	// DefaultModel is used when the router falls back to this provider for a
	// model it does not serve.
	DefaultModel() string
	SupportsModel(model string) bool
	IsAvailable(ctx context.Context) bool
}

// ProviderConfig holds configuration for an AI provider.
type ProviderConfig struct {
	Name     string   `mapstructure:"name" json:"name"`
	Type     string   `mapstructure:"type" json:"type"` // openai (default) | anthropic | gemini
	BaseURL  string   `mapstructure:"base_url" json:"base_url"`
	APIKey   string   `mapstructure:"api_key" json:"-"`
	Models   []string `mapstructure:"models" json:"models"`
	Priority int      `mapstructure:"priority" json:"priority"` // lower is tried first
}

// ProviderFactory creates a Provider from config.
type ProviderFactory func(cfg ProviderConfig, logger *zap.Logger) Provider

var (
	factoryMu sync.RWMutex
	factories = map[string]ProviderFactory{}
)

// RegisterFactory registers a provider type. Called from init() in each
// provider sub-package.
func RegisterFactory(typeName string, factory ProviderFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[typeName] = factory
}

// CreateProvider builds a provider with the factory registered for cfg.Type.
func CreateProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	t := cfg.Type
	if t == "" {
		t = "openai"
	}

	factoryMu.RLock()
	defer factoryMu.RUnlock()
	factory, ok := factories[t]
	if !ok {
		available := make([]string, 0, len(factories))
		for k := range factories {
			available = append(available, k)
		}
		sort.Strings(available)
		return nil, fmt.Errorf("unknown provider type %q (available: %s)", t, strings.Join(available, ", "))
	}
	return factory(cfg, logger), nil
}

// ModelList is embedded by providers for the model bookkeeping part of Provider.
type ModelList []string

func (m ModelList) Models() []string { return append([]string(nil), m...) }

// SupportsModel is true for listed models; an empty list serves any model.
func (m ModelList) SupportsModel(model string) bool {
	if len(m) == 0 {
		return true
	}
	model = StripProviderPrefix(model)
	for _, known := range m {
		if known == model {
			return true
		}
	}
	return false
}

// DefaultModel is the first listed model.
func (m ModelList) DefaultModel() string {
	if len(m) == 0 {
		return ""
	}
	return m[0]
}

// StripProviderPrefix turns "openai/gpt-4o" into "gpt-4o".
func StripProviderPrefix(model string) string {
	if idx := strings.Index(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}
