package service

import (
	"context"
	"errors"
)

// ErrCapabilityUnimplemented 能力未配置或提供商不支持
var ErrCapabilityUnimplemented = errors.New("capability not implemented")

// LLMClient 文本补全能力
type LLMClient interface {
	Generate(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
}

// LLMRequest 补全请求
type LLMRequest struct {
	Model       string       `json:"model"`
	System      string       `json:"system,omitempty"`
	Messages    []LLMMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
}

// LLMMessage 对话消息，Role 为 user 或 assistant
type LLMMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMResponse 补全结果
type LLMResponse struct {
	Content      string `json:"content"`
	ModelUsed    string `json:"model_used"`
	ProviderUsed string `json:"provider_used"`
	TokensUsed   int    `json:"tokens_used"`
}

// ImageRequest 图片生成请求
type ImageRequest struct {
	Prompt string
	Model  string
	Size   string
}

// ImageResult 图片生成结果，URL 与 B64 二选一
type ImageResult struct {
	URL           string
	B64JSON       string
	RevisedPrompt string
	Model         string
	Provider      string
}

// ImageGenerator 图片生成能力
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error)
}

// Transcription 语音转写结果
type Transcription struct {
	Text            string
	Language        string
	DurationSeconds float64
	Provider        string
}

// Transcriber 语音转文字能力
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (*Transcription, error)
}

// SpeechResult 语音合成结果
type SpeechResult struct {
	Audio    []byte
	MimeType string
	Provider string
}

// Synthesizer 文字转语音能力
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*SpeechResult, error)
}

// MediaStore 二进制媒体存储，返回可访问的 URL
type MediaStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
