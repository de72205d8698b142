package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ngoclaw/aichat/internal/domain/service"
)

const providerName = "gcp_speech"

// SpeechConfig configures recognition.
type SpeechConfig struct {
	LanguageCode    string
	Model           string
	CredentialsFile string
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Transcriber implements service.Transcriber on Cloud Speech-to-Text synchronous recognition.
type Transcriber struct {
	cfg        SpeechConfig
	client     *speech.Client
	recognize  recognizeFunc
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

var _ service.Transcriber = (*Transcriber)(nil)

// NewTranscriber dials the Speech API.
func NewTranscriber(ctx context.Context, cfg SpeechConfig, logger *zap.Logger) (*Transcriber, error) {
	c, err := speech.NewClient(ctx, ClientOptions(cfg.CredentialsFile)...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	t := newTranscriber(cfg, func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return c.Recognize(ctx, req)
	}, logger)
	t.client = c
	return t, nil
}

func newTranscriber(cfg SpeechConfig, fn recognizeFunc, logger *zap.Logger) *Transcriber {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	return &Transcriber{
		cfg:        cfg,
		recognize:  fn,
		logger:     logger.With(zap.String("component", "gcp.speech")),
		maxRetries: 3,
		backoff:    750 * time.Millisecond,
	}
}

// Close releases the gRPC connection.
func (t *Transcriber) Close() error {
	if t.client == nil {
		return nil
	}
	return t.client.Close()
}

// Transcribe recognizes short audio clips.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (*service.Transcription, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio")
	}
	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               t.cfg.LanguageCode,
			Model:                      t.cfg.Model,
			EnableAutomaticPunctuation: true,
			Encoding:                   inferEncoding(mimeType),
		},
		Audio: &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	}

	resp, err := t.withRetry(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("speech recognize: %w", err)
	}

	var parts []string
	language := t.cfg.LanguageCode
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if s := strings.TrimSpace(alts[0].GetTranscript()); s != "" {
			parts = append(parts, s)
		}
		if lc := r.GetLanguageCode(); lc != "" {
			language = lc
		}
	}

	out := &service.Transcription{
		Text:     strings.Join(parts, " "),
		Language: language,
		Provider: providerName,
	}
	if d := resp.GetTotalBilledTime(); d != nil {
		out.DurationSeconds = d.AsDuration().Seconds()
	}
	return out, nil
}

// withRetry retries Unavailable, ResourceExhausted and DeadlineExceeded with exponential backoff.
func (t *Transcriber) withRetry(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	backoff := t.backoff
	var last error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := t.recognize(ctx, req)
		if err == nil {
			return resp, nil
		}
		last = err

		code := status.Code(err)
		if code != codes.Unavailable && code != codes.ResourceExhausted && code != codes.DeadlineExceeded {
			return nil, err
		}
		if attempt == t.maxRetries {
			break
		}
		t.logger.Warn("Speech recognize retry", zap.Int("attempt", attempt+1), zap.String("code", code.String()))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, last
}

func inferEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3"), strings.Contains(m, "mpeg"):
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "webm"):
		return speechpb.RecognitionConfig_WEBM_OPUS
	case strings.Contains(m, "ogg"), strings.Contains(m, "opus"):
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
