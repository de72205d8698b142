package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/ngoclaw/aichat/internal/domain/service"
	llm "github.com/ngoclaw/aichat/internal/infrastructure/llm"
)

func postJSON(ctx context.Context, p *Provider, path string, in, out any) error {
	return llm.PostJSON(ctx, p.client, p.baseURL+path, p.authHeaders(), in, out)
}

// Transcribe uploads audio to /audio/transcriptions.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, mimeType string) (*service.Transcription, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("model", p.opts.TranscriptionModel)
	_ = w.WriteField("response_format", "verbose_json")
	part, err := w.CreateFormFile("file", "audio"+extensionFor(mimeType))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	body, err := llm.Do(p.client, req)
	if err != nil {
		return nil, err
	}
	var apiResp transcriptionResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse transcription: %w", err)
	}
	return &service.Transcription{
		Text:            strings.TrimSpace(apiResp.Text),
		Language:        apiResp.Language,
		DurationSeconds: apiResp.Duration,
		Provider:        p.name,
	}, nil
}

// Synthesize calls /audio/speech and returns mp3 audio.
func (p *Provider) Synthesize(ctx context.Context, text string) (*service.SpeechResult, error) {
	body, err := json.Marshal(speechRequest{
		Model:          p.opts.SpeechModel,
		Input:          text,
		Voice:          p.opts.SpeechVoice,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	audio, err := llm.Do(p.client, req)
	if err != nil {
		return nil, err
	}
	return &service.SpeechResult{Audio: audio, MimeType: "audio/mpeg", Provider: p.name}, nil
}

func extensionFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	case strings.Contains(mimeType, "mp4"), strings.Contains(mimeType, "m4a"):
		return ".m4a"
	default:
		return ".mp3"
	}
}
