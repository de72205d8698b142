package gemini

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
	llm.RegisterFactory("gemini", func(cfg llm.ProviderConfig, logger *zap.Logger) llm.Provider {
		return New(cfg, logger)
	})
}

// Provider talks to the Gemini generateContent API. Text only.
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
		baseURL = "https://generativelanguage.googleapis.com"
	}
	return &Provider{
		ModelList: llm.ModelList(cfg.Models),
		name:      cfg.Name,
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		client:    llm.NewHTTPClient(),
		logger:    logger.With(zap.String("provider", cfg.Name), zap.String("type", "gemini")),
	}
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) Name() string { return p.name }

func (p *Provider) IsAvailable(ctx context.Context) bool {
	return p.apiKey != ""
}

func (p *Provider) Generate(ctx context.Context, req *service.LLMRequest) (*service.LLMResponse, error) {
	model := llm.StripProviderPrefix(req.Model)
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, model)

	var apiResp response
	if err := llm.PostJSON(ctx, p.client, url, map[string]string{"x-goog-api-key": p.apiKey}, buildRequest(req), &apiResp); err != nil {
		return nil, err
	}

	if apiResp.PromptFeedback != nil && apiResp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("prompt blocked by safety filter: %s", apiResp.PromptFeedback.BlockReason)
	}
	if len(apiResp.Candidates) == 0 {
		return nil, fmt.Errorf("empty Gemini response: no candidates")
	}
	candidate := apiResp.Candidates[0]
	if candidate.FinishReason == "SAFETY" {
		return nil, fmt.Errorf("response blocked by safety filter")
	}

	var text strings.Builder
	for _, pt := range candidate.Content.Parts {
		text.WriteString(pt.Text)
	}
	resp := &service.LLMResponse{
		Content:      text.String(),
		ModelUsed:    apiResp.ModelVersion,
		ProviderUsed: p.name,
	}
	if resp.ModelUsed == "" {
		resp.ModelUsed = model
	}
	if apiResp.UsageMetadata != nil {
		resp.TokensUsed = apiResp.UsageMetadata.Total()
	}
	return resp, nil
}

func buildRequest(req *service.LLMRequest) *request {
	out := &request{
		GenerationConfig: &generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.System != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		out.Contents = append(out.Contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	return out
}
