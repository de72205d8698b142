package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/domain/entity"
	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

const (
	// DegradedTextReply is returned when no provider could answer.
	DegradedTextReply = "I apologize, but I'm having trouble processing your request right now. Please try again later."
	// DegradedImageReply is returned when image generation failed.
	DegradedImageReply = "I'm sorry, I couldn't generate that image right now. Please try again later."

	UnimplementedLiveSearch   = "live_search"
	UnimplementedTextToSpeech = "text_to_speech"

	codeTemperature    = 0.2
	defaultTemperature = 0.7
)

// SystemPrompter builds the system prompt for a turn.
type SystemPrompter interface {
	SystemPrompt(personality valueobject.Personality, category valueobject.IntentCategory, settings valueobject.ConversationSettings) string
}

// GatewayConfig holds model selection for the gateway.
type GatewayConfig struct {
	DefaultModel string
	CodeModel    string
	ImageModel   string
	ImageSize    string
	MaxTokens    int
	// HistoryTokenBudget caps the estimated tokens of replayed history; 0 means no cap.
	HistoryTokenBudget int
}

// GatewayDeps are the capabilities behind the gateway. Only Text is required.
type GatewayDeps struct {
	Text        LLMClient
	Images      ImageGenerator
	Transcriber Transcriber
	Speech      Synthesizer
	Media       MediaStore
	Prompts     SystemPrompter
}

// DispatchRequest is one classified user turn.
type DispatchRequest struct {
	Category   valueobject.IntentCategory
	Confidence float64
	Text       string
	History    []*entity.Message
	User       *entity.User
	Settings   valueobject.ConversationSettings
}

// GatewayResult is the AI reply to persist.
type GatewayResult struct {
	Content  string
	Type     valueobject.MessageType
	Metadata valueobject.Metadata
}

// AIGateway routes a classified turn to the matching capability.
// It holds no per-call state and never returns an error: failures become
// a degraded reply with Generation.Error set.
type AIGateway struct {
	deps   GatewayDeps
	cfg    GatewayConfig
	logger *zap.Logger
}

// NewAIGateway creates the gateway.
func NewAIGateway(deps GatewayDeps, cfg GatewayConfig, logger *zap.Logger) *AIGateway {
	return &AIGateway{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "ai_gateway")),
	}
}

// Dispatch produces the AI reply for req.
func (g *AIGateway) Dispatch(ctx context.Context, req DispatchRequest) GatewayResult {
	ctx, span := otel.Tracer("aichat/gateway").Start(ctx, "gateway.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("intent", string(req.Category)),
		attribute.Float64("confidence", req.Confidence),
	)

	start := time.Now()
	var result GatewayResult
	switch req.Category {
	case valueobject.IntentImageGeneration:
		result = g.generateImage(ctx, req)
	case valueobject.IntentCodeGeneration:
		result = g.generateCode(ctx, req)
	case valueobject.IntentVoiceCommand:
		result = g.generateVoice(ctx, req)
	case valueobject.IntentWebSearch:
		result = g.generateText(ctx, req, defaultTemperature)
		result.Metadata.Generation.Unimplemented = UnimplementedLiveSearch
	default:
		result = g.generateText(ctx, req, defaultTemperature)
	}

	gen := result.Metadata.Generation
	gen.Intent = req.Category
	gen.Confidence = req.Confidence
	gen.ResponseTimeMs = time.Since(start).Milliseconds()
	if gen.Error {
		span.SetStatus(codes.Error, gen.ErrorMessage)
	}
	span.SetAttributes(attribute.String("provider", gen.Provider), attribute.Int("tokens", gen.TokensUsed))
	return result
}

// Transcribe converts audio to text.
func (g *AIGateway) Transcribe(ctx context.Context, audio []byte, mimeType string) (*Transcription, error) {
	if g.deps.Transcriber == nil {
		return nil, ErrCapabilityUnimplemented
	}
	return g.deps.Transcriber.Transcribe(ctx, audio, mimeType)
}

// DegradedResult is the reply used when no dispatch could happen.
func DegradedResult(category valueobject.IntentCategory, confidence float64, reason string) GatewayResult {
	return GatewayResult{
		Content: DegradedTextReply,
		Type:    valueobject.MessageTypeText,
		Metadata: valueobject.Metadata{Detail: valueobject.TextDetail{}}.WithGeneration(valueobject.Generation{
			Intent:       category,
			Confidence:   confidence,
			Error:        true,
			ErrorMessage: reason,
		}),
	}
}

func (g *AIGateway) complete(ctx context.Context, req DispatchRequest, model string, temperature float64) (*LLMResponse, error) {
	personality := valueobject.PersonalityFriendly
	if req.User != nil {
		personality = req.User.Preferences().Personality
	}
	system := ""
	if g.deps.Prompts != nil {
		system = g.deps.Prompts.SystemPrompt(personality, req.Category, req.Settings)
	}

	llmReq := &LLMRequest{
		Model:       model,
		System:      system,
		Messages:    append(fitHistory(historyToLLM(req.History), g.cfg.HistoryTokenBudget), LLMMessage{Role: "user", Content: req.Text}),
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: temperature,
	}
	resp, err := g.deps.Text.Generate(ctx, llmReq)
	if err != nil {
		return nil, err
	}
	resp.Content = stripReasoning(resp.Content)
	if strings.TrimSpace(resp.Content) == "" {
		return nil, errors.New("provider returned an empty completion")
	}
	return resp, nil
}

func (g *AIGateway) modelFor(req DispatchRequest) string {
	if req.Settings.Model != "" {
		return req.Settings.Model
	}
	return g.cfg.DefaultModel
}

func (g *AIGateway) generateText(ctx context.Context, req DispatchRequest, temperature float64) GatewayResult {
	model := g.modelFor(req)
	resp, err := g.complete(ctx, req, model, temperature)
	if err != nil {
		return g.degraded(req, model, err)
	}
	return GatewayResult{
		Content:  clampContent(resp.Content),
		Type:     valueobject.MessageTypeText,
		Metadata: valueobject.Metadata{Detail: valueobject.TextDetail{}}.WithGeneration(generationFrom(resp)),
	}
}

func (g *AIGateway) generateCode(ctx context.Context, req DispatchRequest) GatewayResult {
	model := g.cfg.CodeModel
	if model == "" {
		model = g.modelFor(req)
	}
	resp, err := g.complete(ctx, req, model, codeTemperature)
	if err != nil {
		return g.degraded(req, model, err)
	}
	return GatewayResult{
		Content: clampContent(resp.Content),
		Type:    valueobject.MessageTypeCode,
		Metadata: valueobject.Metadata{
			Detail: valueobject.CodeDetail{Language: DetectLanguage(resp.Content)},
		}.WithGeneration(generationFrom(resp)),
	}
}

func (g *AIGateway) generateImage(ctx context.Context, req DispatchRequest) GatewayResult {
	fail := func(err error) GatewayResult {
		g.logFailure(req, g.cfg.ImageModel, err)
		return GatewayResult{
			Content: DegradedImageReply,
			Type:    valueobject.MessageTypeText,
			Metadata: valueobject.Metadata{Detail: valueobject.TextDetail{}}.WithGeneration(valueobject.Generation{
				Model:        g.cfg.ImageModel,
				Error:        true,
				ErrorMessage: err.Error(),
			}),
		}
	}
	if g.deps.Images == nil {
		return fail(ErrCapabilityUnimplemented)
	}

	img, err := g.deps.Images.GenerateImage(ctx, &ImageRequest{
		Prompt: req.Text,
		Model:  g.cfg.ImageModel,
		Size:   g.cfg.ImageSize,
	})
	if err != nil {
		return fail(err)
	}

	url := img.URL
	if url == "" && img.B64JSON != "" {
		url, err = g.storeB64Image(ctx, img.B64JSON)
		if err != nil {
			return fail(err)
		}
	}
	if url == "" {
		return fail(errors.New("image provider returned no data"))
	}

	content := img.RevisedPrompt
	if content == "" {
		content = req.Text
	}
	return GatewayResult{
		Content: clampContent(content),
		Type:    valueobject.MessageTypeImage,
		Metadata: valueobject.Metadata{Detail: valueobject.ImageDetail{
			URL:           url,
			Prompt:        req.Text,
			Size:          g.cfg.ImageSize,
			RevisedPrompt: img.RevisedPrompt,
		}}.WithGeneration(valueobject.Generation{Model: img.Model, Provider: img.Provider}),
	}
}

func (g *AIGateway) storeB64Image(ctx context.Context, b64 string) (string, error) {
	if g.deps.Media == nil {
		return "", fmt.Errorf("store image: %w", ErrCapabilityUnimplemented)
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	return g.deps.Media.Put(ctx, "images/"+uuid.NewString()+".png", data, "image/png")
}

func (g *AIGateway) generateVoice(ctx context.Context, req DispatchRequest) GatewayResult {
	result := g.generateText(ctx, req, defaultTemperature)
	if result.Metadata.IsError() {
		return result
	}

	if g.deps.Speech == nil {
		result.Metadata.Generation.Unimplemented = UnimplementedTextToSpeech
		return result
	}
	speech, err := g.deps.Speech.Synthesize(ctx, result.Content)
	if errors.Is(err, ErrCapabilityUnimplemented) {
		result.Metadata.Generation.Unimplemented = UnimplementedTextToSpeech
		return result
	}
	if err == nil && g.deps.Media != nil {
		var audioURL string
		audioURL, err = g.deps.Media.Put(ctx, "speech/"+uuid.NewString()+extensionFor(speech.MimeType), speech.Audio, speech.MimeType)
		if err == nil {
			result.Type = valueobject.MessageTypeVoice
			result.Metadata.Detail = valueobject.VoiceDetail{AudioURL: audioURL, Transcript: result.Content}
			return result
		}
	}
	if err == nil {
		err = fmt.Errorf("store speech: %w", ErrCapabilityUnimplemented)
	}
	g.logger.Warn("Speech synthesis failed, replying with text", zap.Error(err))
	result.Metadata.Generation.Unimplemented = UnimplementedTextToSpeech
	return result
}

func (g *AIGateway) degraded(req DispatchRequest, model string, err error) GatewayResult {
	g.logFailure(req, model, err)
	res := DegradedResult(req.Category, req.Confidence, err.Error())
	res.Metadata.Generation.Model = model
	return res
}

func (g *AIGateway) logFailure(req DispatchRequest, model string, err error) {
	classified := ClassifyLLMError(err, "", model)
	g.logger.Warn("AI dispatch failed, returning degraded reply",
		zap.String("intent", string(req.Category)),
		zap.String("model", model),
		zap.String("kind", classified.Kind.String()),
		zap.Error(err),
	)
}

func generationFrom(resp *LLMResponse) valueobject.Generation {
	return valueobject.Generation{
		Model:      resp.ModelUsed,
		Provider:   resp.ProviderUsed,
		TokensUsed: resp.TokensUsed,
	}
}

func historyToLLM(history []*entity.Message) []LLMMessage {
	out := make([]LLMMessage, 0, len(history))
	for _, m := range history {
		if m.IsDeleted() {
			continue
		}
		role := "user"
		if m.IsFromAI() {
			role = "assistant"
		}
		out = append(out, LLMMessage{Role: role, Content: m.Content()})
	}
	return out
}

func clampContent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return DegradedTextReply
	}
	if utf8.RuneCountInString(s) > entity.MaxContentRunes {
		return string([]rune(s)[:entity.MaxContentRunes])
	}
	return s
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/webm":
		return ".webm"
	default:
		return ".bin"
	}
}
