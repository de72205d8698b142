package openai

import (
	"context"
	"fmt"

	"github.com/ngoclaw/aichat/internal/domain/service"
)

// GenerateImage calls /images/generations and returns the first image.
func (p *Provider) GenerateImage(ctx context.Context, req *service.ImageRequest) (*service.ImageResult, error) {
	model := req.Model
	if model == "" {
		model = p.opts.ImageModel
	}
	apiReq := imageRequest{
		Model:  model,
		Prompt: req.Prompt,
		N:      1,
		Size:   req.Size,
	}
	// gpt-image models only return base64 and reject response_format.
	if model == "dall-e-2" || model == "dall-e-3" {
		apiReq.ResponseFormat = "url"
	}

	var apiResp imageResponse
	if err := postJSON(ctx, p, "/images/generations", apiReq, &apiResp); err != nil {
		return nil, err
	}
	if len(apiResp.Data) == 0 {
		return nil, fmt.Errorf("image generation returned no data")
	}

	img := apiResp.Data[0]
	return &service.ImageResult{
		URL:           img.URL,
		B64JSON:       img.B64JSON,
		RevisedPrompt: img.RevisedPrompt,
		Model:         model,
		Provider:      p.name,
	}, nil
}
