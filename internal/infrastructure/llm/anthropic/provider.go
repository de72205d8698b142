package anthropic

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/domain/service"
	llm "github.com/ngoclaw/aichat/internal/infrastructure/llm"
)

const (
	anthropicVersion = "2023-06-01"
	defaultMaxTokens = 4096
)

func init() {
	llm.RegisterFactory("anthropic", func(cfg llm.ProviderConfig, logger *zap.Logger) llm.Provider {
		return New(cfg, logger)
	})
}

// Provider talks to the Anthropic Messages API. Text only.
type Provider struct {
	llm.ModelList
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func New(cfg llm.ProviderConfig, logger *zap.Logger) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &Provider{
		ModelList: llm.ModelList(cfg.Models),
		name:      cfg.Name,
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		client:    llm.NewHTTPClient(),
		logger:    logger.With(zap.String("provider", cfg.Name), zap.String("type", "anthropic")),
	}
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) Name() string { return p.name }

func (p *Provider) IsAvailable(ctx context.Context) bool {
	return p.apiKey != ""
}

func (p *Provider) Generate(ctx context.Context, req *service.LLMRequest) (*service.LLMResponse, error) {
	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}
	var apiResp response
	if err := llm.PostJSON(ctx, p.client, p.baseURL+"/v1/messages", headers, buildRequest(req), &apiResp); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	p.logger.Debug("Message done",
		zap.String("model", apiResp.Model),
		zap.String("stop_reason", apiResp.StopReason),
	)
	return &service.LLMResponse{
		Content:      text.String(),
		ModelUsed:    apiResp.Model,
		ProviderUsed: p.name,
		TokensUsed:   apiResp.Usage.Total(),
	}, nil
}

// buildRequest maps the chat history onto Anthropic's alternating turns.
// Consecutive messages with the same role are merged.
func buildRequest(req *service.LLMRequest) *request {
	out := &request{
		Model:       llm.StripProviderPrefix(req.Model),
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Temperature: req.Temperature,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = defaultMaxTokens
	}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		if n := len(out.Messages); n > 0 && out.Messages[n-1].Role == role {
			out.Messages[n-1].Content = append(out.Messages[n-1].Content, contentBlock{Type: "text", Text: m.Content})
			continue
		}
		out.Messages = append(out.Messages, message{Role: role, Content: []contentBlock{{Type: "text", Text: m.Content}}})
	}
	return out
}
