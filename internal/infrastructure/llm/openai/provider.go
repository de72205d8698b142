package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/domain/service"
	llm "github.com/ngoclaw/aichat/internal/infrastructure/llm"
)

func init() {
	llm.RegisterFactory("openai", func(cfg llm.ProviderConfig, logger *zap.Logger) llm.Provider {
		return New(cfg, logger)
	})
}

// Options are the non-chat models used by the image and audio endpoints.
type Options struct {
	ImageModel         string
	TranscriptionModel string
	SpeechModel        string
	SpeechVoice        string
}

// DefaultOptions are used by the factory.
var DefaultOptions = Options{
	ImageModel:         "dall-e-3",
	TranscriptionModel: "whisper-1",
	SpeechModel:        "tts-1",
	SpeechVoice:        "alloy",
}

// Provider is an OpenAI-compatible HTTP client covering chat completions,
// image generation, transcription and speech.
type Provider struct {
	llm.ModelList
	name    string
	baseURL string
	apiKey  string
	opts    Options
	client  *http.Client
	logger  *zap.Logger
}

// New creates the provider with DefaultOptions.
func New(cfg llm.ProviderConfig, logger *zap.Logger) *Provider {
	return NewWithOptions(cfg, DefaultOptions, logger)
}

// NewWithOptions creates the provider.
func NewWithOptions(cfg llm.ProviderConfig, opts Options, logger *zap.Logger) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &Provider{
		ModelList: llm.ModelList(cfg.Models),
		name:      cfg.Name,
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		opts:      opts,
		client:    llm.NewHTTPClient(),
		logger:    logger.With(zap.String("provider", cfg.Name), zap.String("type", "openai")),
	}
}

var (
	_ llm.Provider           = (*Provider)(nil)
	_ service.ImageGenerator = (*Provider)(nil)
	_ service.Transcriber    = (*Provider)(nil)
	_ service.Synthesizer    = (*Provider)(nil)
)

func (p *Provider) Name() string { return p.name }

func (p *Provider) IsAvailable(ctx context.Context) bool {
	return p.apiKey != ""
}

func (p *Provider) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

// Generate implements service.LLMClient.
func (p *Provider) Generate(ctx context.Context, req *service.LLMRequest) (*service.LLMResponse, error) {
	apiReq := chatRequest{
		Model:       llm.StripProviderPrefix(req.Model),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.System != "" {
		apiReq.Messages = append(apiReq.Messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	var apiResp chatResponse
	if err := llm.PostJSON(ctx, p.client, p.baseURL+"/chat/completions", p.authHeaders(), apiReq, &apiResp); err != nil {
		return nil, err
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("empty response: no choices")
	}

	p.logger.Debug("Chat completion done",
		zap.String("model", apiResp.Model),
		zap.String("finish_reason", apiResp.Choices[0].FinishReason),
		zap.Int("tokens", apiResp.Usage.Total()),
	)
	return &service.LLMResponse{
		Content:      apiResp.Choices[0].Message.Content,
		ModelUsed:    apiResp.Model,
		ProviderUsed: p.name,
		TokensUsed:   apiResp.Usage.Total(),
	}, nil
}
