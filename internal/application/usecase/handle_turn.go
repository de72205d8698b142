package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ngoclaw/aichat/internal/domain/entity"
	"github.com/ngoclaw/aichat/internal/domain/repository"
	"github.com/ngoclaw/aichat/internal/domain/service"
	"github.com/ngoclaw/aichat/internal/domain/valueobject"
	"github.com/ngoclaw/aichat/internal/infrastructure/realtime"
	apperrors "github.com/ngoclaw/aichat/pkg/errors"
)

const (
	// VoicePlaceholder is the user message content when audio could not be transcribed.
	VoicePlaceholder = "[Voice message]"

	defaultHistoryLimit = 10
	defaultTurnTimeout  = 120 * time.Second
)

var tracer = otel.Tracer("aichat/usecase")

// Gateway is the part of service.AIGateway the orchestrator uses.
type Gateway interface {
	Dispatch(ctx context.Context, req service.DispatchRequest) service.GatewayResult
	Transcribe(ctx context.Context, audio []byte, mimeType string) (*service.Transcription, error)
}

// Classifier maps text to an intent.
type Classifier interface {
	Classify(text string) (valueobject.IntentCategory, float64)
}

// LinkExtractor finds link previews in message text.
type LinkExtractor interface {
	Extract(content string) []valueobject.LinkPreview
}

// TurnMetrics records turn outcomes.
type TurnMetrics interface {
	TurnFailed()
	TurnCompleted(intent valueobject.IntentCategory, degraded bool, tokens int, d time.Duration)
}

// Publisher delivers realtime events.
type Publisher interface {
	Publish(ctx context.Context, env realtime.Envelope) error
}

// TurnCommand is one user text turn.
type TurnCommand struct {
	UserID         string
	Text           string
	ConversationID string
	MessageType    valueobject.MessageType
}

// VoiceCommand is one user voice turn.
type VoiceCommand struct {
	UserID         string
	Audio          []byte
	MimeType       string
	ConversationID string
}

// ExchangeResult is the persisted outcome of a turn.
type ExchangeResult struct {
	UserMessage  *entity.Message
	AIMessage    *entity.Message
	Conversation *entity.Conversation
}

// TurnConfig bounds a turn.
type TurnConfig struct {
	TurnTimeout  time.Duration
	HistoryLimit int
}

// TurnDeps are the collaborators of the orchestrator. Links, Metrics,
// Publisher and Media are optional.
type TurnDeps struct {
	Users         repository.UserRepository
	Conversations repository.ConversationRepository
	Messages      repository.MessageRepository
	Tx            repository.Transactor
	Classifier    Classifier
	Gateway       Gateway
	Media         service.MediaStore
	Links         LinkExtractor
	Metrics       TurnMetrics
	Publisher     Publisher
}

// HandleTurnUseCase runs a user turn end to end: resolve, persist the user
// message, dispatch, persist the reply, publish.
type HandleTurnUseCase struct {
	deps   TurnDeps
	cfg    TurnConfig
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// NewHandleTurnUseCase creates the orchestrator.
func NewHandleTurnUseCase(deps TurnDeps, cfg TurnConfig, logger *zap.Logger) *HandleTurnUseCase {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	return &HandleTurnUseCase{
		deps:   deps,
		cfg:    cfg,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger.With(zap.String("component", "turn")),
	}
}

// turnInput is what text and voice turns have in common once audio is handled.
type turnInput struct {
	userID         string
	conversationID string
	text           string
	msgType        valueobject.MessageType
	voice          *valueobject.VoiceDetail
	attachment     *valueobject.Attachment
	// skipReason is set when there is nothing to dispatch (failed transcription).
	skipReason string
}

// Execute runs a text turn.
func (uc *HandleTurnUseCase) Execute(ctx context.Context, cmd TurnCommand) (*ExchangeResult, error) {
	msgType := cmd.MessageType
	if msgType == "" {
		msgType = valueobject.MessageTypeText
	}
	if msgType != valueobject.MessageTypeText && msgType != valueobject.MessageTypeCode {
		return nil, apperrors.NewInvalidInputError("messageType must be text or code")
	}
	return uc.run(ctx, turnInput{
		userID:         cmd.UserID,
		conversationID: cmd.ConversationID,
		text:           cmd.Text,
		msgType:        msgType,
	})
}

// ExecuteVoice stores the audio, transcribes it and runs the standard
// pipeline on the transcript. A failed transcription still persists the
// exchange, with a placeholder user message and a degraded reply.
func (uc *HandleTurnUseCase) ExecuteVoice(ctx context.Context, cmd VoiceCommand) (*ExchangeResult, error) {
	if len(cmd.Audio) == 0 {
		return nil, apperrors.NewInvalidInputError("audio data is required")
	}
	if cmd.MimeType == "" {
		cmd.MimeType = "audio/webm"
	}

	// Resolve and check the base quota first so a rejected turn costs no
	// upload and no transcription.
	user, _, err := uc.resolve(ctx, cmd.UserID, cmd.ConversationID)
	if err != nil {
		return nil, err
	}
	if !user.CanUse(valueobject.UsageMessages, uc.now()) {
		return nil, apperrors.NewQuotaExceededError("usage limit reached for " + string(valueobject.UsageMessages))
	}

	voice := &valueobject.VoiceDetail{}
	in := turnInput{
		userID:         cmd.UserID,
		conversationID: cmd.ConversationID,
		msgType:        valueobject.MessageTypeVoice,
		voice:          voice,
	}
	if uc.deps.Media != nil {
		name := uc.newID() + audioExtension(cmd.MimeType)
		url, err := uc.deps.Media.Put(ctx, "voice/"+name, cmd.Audio, cmd.MimeType)
		if err != nil {
			uc.logger.Warn("Failed to store voice upload", zap.Error(err))
		} else {
			voice.AudioURL = url
			in.attachment = &valueobject.Attachment{
				Filename: name,
				URL:      url,
				MimeType: cmd.MimeType,
				Size:     int64(len(cmd.Audio)),
			}
		}
	}

	transcript, err := uc.deps.Gateway.Transcribe(ctx, cmd.Audio, cmd.MimeType)
	switch {
	case err != nil:
		uc.logger.Warn("Transcription failed", zap.Error(err))
		in.text, in.skipReason = VoicePlaceholder, "transcription failed: "+err.Error()
	case transcript == nil || transcript.Text == "":
		in.text, in.skipReason = VoicePlaceholder, "transcription returned no text"
	default:
		in.text = transcript.Text
		voice.Transcript = transcript.Text
		voice.DurationSeconds = transcript.DurationSeconds
	}
	return uc.run(ctx, in)
}

func (uc *HandleTurnUseCase) run(ctx context.Context, in turnInput) (*ExchangeResult, error) {
	ctx, span := tracer.Start(ctx, "turn.handle", trace.WithAttributes(
		attribute.String("user_id", in.userID),
		attribute.String("message_type", string(in.msgType)),
	))
	defer span.End()

	res, err := uc.runTraced(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if uc.deps.Metrics != nil {
			uc.deps.Metrics.TurnFailed()
		}
		return nil, err
	}
	return res, nil
}

func (uc *HandleTurnUseCase) runTraced(ctx context.Context, in turnInput) (*ExchangeResult, error) {
	start := uc.now()

	// 1. Resolve user and conversation, validate, classify, check quota.
	user, conv, err := uc.resolve(ctx, in.userID, in.conversationID)
	if err != nil {
		return nil, err
	}
	if err := entity.ValidateContent(in.text); err != nil {
		return nil, err
	}
	now := uc.now()
	if conv == nil {
		if conv, err = entity.NewConversation(uc.newID(), user.ID(), in.text, now); err != nil {
			return nil, err
		}
	}
	category, confidence := uc.deps.Classifier.Classify(in.text)
	kind := valueobject.UsageKindFor(category)
	if !user.CanUse(kind, now) {
		return nil, apperrors.NewQuotaExceededError("usage limit reached for " + string(kind))
	}

	var metadata valueobject.Metadata
	if in.voice != nil {
		metadata.Detail = *in.voice
	}
	userMsg, err := entity.NewMessage(uc.newID(), conv.ID(), valueobject.SenderUser, user.ID(), in.text, in.msgType, metadata, now)
	if err != nil {
		return nil, err
	}
	if in.attachment != nil {
		userMsg.AddAttachment(*in.attachment)
	}
	uc.addLinkPreviews(userMsg)

	// 2-3. Persist the conversation and the user message, leaving a pending marker.
	conv.RecordMessage(in.text, now)
	conv.MarkPendingTurn(userMsg.ID())
	err = uc.deps.Tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Conversations.Save(ctx, conv); err != nil {
			return err
		}
		return repos.Messages.Save(ctx, userMsg)
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Debug("User message persisted",
		zap.String("conversation_id", conv.ID()),
		zap.String("message_id", userMsg.ID()),
		zap.String("intent", string(category)),
		zap.Float64("confidence", confidence),
	)

	// 4-9. Generate, persist the reply, publish.
	return uc.complete(ctx, pendingTurn{
		user:       user,
		conv:       conv,
		userMsg:    userMsg,
		category:   category,
		confidence: confidence,
		skipReason: in.skipReason,
		start:      start,
	})
}

// resolve loads the user and, when conversationID is set, the conversation,
// concurrently. A nil conversation means a new one will be created.
func (uc *HandleTurnUseCase) resolve(ctx context.Context, userID, conversationID string) (*entity.User, *entity.Conversation, error) {
	var (
		user *entity.User
		conv *entity.Conversation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := uc.deps.Users.FindByID(gctx, userID)
		user = u
		return err
	})
	if conversationID != "" {
		g.Go(func() error {
			c, err := uc.deps.Conversations.FindByID(gctx, conversationID)
			conv = c
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if !user.IsActive() {
		return nil, nil, entity.ErrUserInactive
	}
	if conv != nil {
		if err := conv.Require(userID, valueobject.PermissionWrite); err != nil {
			return nil, nil, err
		}
	}
	return user, conv, nil
}

type pendingTurn struct {
	user       *entity.User
	conv       *entity.Conversation
	userMsg    *entity.Message
	category   valueobject.IntentCategory
	confidence float64
	skipReason string
	start      time.Time
}

func (uc *HandleTurnUseCase) complete(ctx context.Context, p pendingTurn) (*ExchangeResult, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("conversation_id", p.conv.ID()),
		attribute.String("intent", string(p.category)),
		attribute.Float64("confidence", p.confidence),
	)

	// 6. Dispatch, or degrade straight away when there is nothing to send.
	var result service.GatewayResult
	if p.skipReason != "" {
		result = service.DegradedResult(p.category, p.confidence, p.skipReason)
	} else {
		// 4. History window, oldest first, without the message being answered.
		history := uc.history(ctx, p.conv.ID(), p.userMsg.ID())
		dctx, cancel := context.WithTimeout(ctx, uc.cfg.TurnTimeout)
		result = uc.deps.Gateway.Dispatch(dctx, service.DispatchRequest{
			Category:   p.category,
			Confidence: p.confidence,
			Text:       p.userMsg.Content(),
			History:    history,
			User:       p.user,
			Settings:   p.conv.Settings(),
		})
		cancel()
	}

	gen := valueobject.Generation{}
	if result.Metadata.Generation != nil {
		gen = *result.Metadata.Generation
	}
	gen.Intent, gen.Confidence = p.category, p.confidence
	metadata := result.Metadata.WithGeneration(gen)

	now := uc.now()
	aiMsg, err := entity.NewMessage(uc.newID(), p.conv.ID(), valueobject.SenderAI, "", result.Content, result.Type, metadata, now)
	if err != nil {
		uc.logger.Warn("Gateway reply rejected, storing degraded reply", zap.Error(err))
		degraded := service.DegradedResult(p.category, p.confidence, err.Error())
		aiMsg, err = entity.NewMessage(uc.newID(), p.conv.ID(), valueobject.SenderAI, "", degraded.Content, degraded.Type, degraded.Metadata, now)
		if err != nil {
			return nil, apperrors.NewInternalErrorWithCause("build AI message", err)
		}
		gen = *degraded.Metadata.Generation
	}
	uc.addLinkPreviews(aiMsg)

	// 7-8. Persist the reply, clear the marker, count usage.
	kind := valueobject.UsageKindFor(p.category)
	p.conv.RecordMessage(aiMsg.Content(), now)
	p.conv.RecordResponse(gen.TokensUsed, gen.ResponseTimeMs)
	p.conv.ClearPendingTurn()
	p.userMsg.MarkDelivered(now)
	if !gen.Error {
		p.user.RecordUsage(kind, now)
		p.user.Touch(now)
	}
	err = uc.deps.Tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Messages.Save(ctx, aiMsg); err != nil {
			return err
		}
		if err := repos.Messages.Save(ctx, p.userMsg); err != nil {
			return err
		}
		if err := repos.Conversations.Save(ctx, p.conv); err != nil {
			return err
		}
		if gen.Error {
			return nil
		}
		return repos.Users.Update(ctx, p.user)
	})
	if err != nil {
		uc.logger.Error("Failed to persist AI reply",
			zap.String("conversation_id", p.conv.ID()),
			zap.String("message_id", p.userMsg.ID()),
			zap.Error(err),
		)
		p.userMsg.MarkFailed(uc.now())
		if saveErr := uc.deps.Messages.Save(ctx, p.userMsg); saveErr != nil {
			uc.logger.Warn("Failed to mark user message failed", zap.Error(saveErr))
		}
		if apperrors.IsPersistenceFailure(err) {
			return nil, err
		}
		return nil, apperrors.NewPersistenceError("persist AI reply", err)
	}

	if uc.deps.Metrics != nil {
		uc.deps.Metrics.TurnCompleted(p.category, gen.Error, gen.TokensUsed, uc.now().Sub(p.start))
	}
	uc.logger.Info("Turn completed",
		zap.String("conversation_id", p.conv.ID()),
		zap.String("intent", string(p.category)),
		zap.String("provider", gen.Provider),
		zap.Bool("degraded", gen.Error),
		zap.Int("tokens", gen.TokensUsed),
	)

	res := &ExchangeResult{UserMessage: p.userMsg, AIMessage: aiMsg, Conversation: p.conv}
	uc.publish(ctx, p.user.ID(), res)
	return res, nil
}

func (uc *HandleTurnUseCase) history(ctx context.Context, conversationID, excludeID string) []*entity.Message {
	msgs, err := uc.deps.Messages.FindByConversationID(ctx, conversationID, repository.MessageQuery{Limit: uc.cfg.HistoryLimit + 1})
	if err != nil {
		uc.logger.Warn("Failed to load conversation history", zap.Error(err))
		return nil
	}
	out := make([]*entity.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID() != excludeID {
			out = append(out, m)
		}
	}
	if over := len(out) - uc.cfg.HistoryLimit; over > 0 {
		out = out[over:]
	}
	return out
}

func (uc *HandleTurnUseCase) addLinkPreviews(m *entity.Message) {
	if uc.deps.Links == nil {
		return
	}
	for _, p := range uc.deps.Links.Extract(m.Content()) {
		m.AddLinkPreview(p)
	}
}

// publish sends the exchange to every connection of the acting user.
// Delivery is best effort; the exchange is already persisted.
func (uc *HandleTurnUseCase) publish(ctx context.Context, userID string, res *ExchangeResult) {
	if uc.deps.Publisher == nil {
		return
	}
	event := realtime.EventMessageResponse
	if res.UserMessage.Type() == valueobject.MessageTypeVoice {
		event = realtime.EventVoiceResponse
	}
	env, err := realtime.NewEnvelope(event, realtime.Target{UserID: userID}, NewExchangeView(res))
	if err == nil {
		err = uc.deps.Publisher.Publish(ctx, env)
	}
	if err != nil {
		uc.logger.Warn("Failed to publish exchange", zap.String("event", event), zap.Error(err))
	}
}

// ResumePendingTurns finishes turns whose user message was persisted but
// whose reply never was. It returns how many turns were completed.
func (uc *HandleTurnUseCase) ResumePendingTurns(ctx context.Context) (int, error) {
	convs, err := uc.deps.Conversations.FindWithPendingTurn(ctx)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, conv := range convs {
		if err := ctx.Err(); err != nil {
			return resumed, err
		}
		err := uc.resume(ctx, conv)
		if errors.Is(err, errTurnClaimed) {
			continue
		}
		if err != nil {
			uc.logger.Warn("Failed to resume pending turn",
				zap.String("conversation_id", conv.ID()),
				zap.String("message_id", conv.PendingTurnMessageID()),
				zap.Error(err),
			)
			continue
		}
		resumed++
	}
	if resumed > 0 {
		uc.logger.Info("Resumed pending turns", zap.Int("count", resumed), zap.Int("found", len(convs)))
	}
	return resumed, nil
}

var (
	errStaleMarker = errors.New("pending message no longer exists")
	errTurnClaimed = errors.New("pending turn claimed by another worker")
)

func (uc *HandleTurnUseCase) resume(ctx context.Context, conv *entity.Conversation) error {
	ctx, span := tracer.Start(ctx, "turn.resume")
	defer span.End()

	msg, err := uc.deps.Messages.FindByID(ctx, conv.PendingTurnMessageID())
	if apperrors.IsNotFound(err) {
		conv.ClearPendingTurn()
		if saveErr := uc.deps.Conversations.Save(ctx, conv); saveErr != nil {
			return saveErr
		}
		return errStaleMarker
	}
	if err != nil {
		return err
	}
	user, err := uc.deps.Users.FindByID(ctx, msg.SenderID())
	if err != nil {
		return err
	}

	// Another instance sharing the database may be sweeping the same marker.
	claimed, err := uc.deps.Conversations.ClaimPendingTurn(ctx, conv.ID(), msg.ID())
	if err != nil {
		return err
	}
	if !claimed {
		return errTurnClaimed
	}

	category, confidence := uc.deps.Classifier.Classify(msg.Content())
	p := pendingTurn{
		user:       user,
		conv:       conv,
		userMsg:    msg,
		category:   category,
		confidence: confidence,
		start:      uc.now(),
	}
	if msg.Content() == VoicePlaceholder {
		p.skipReason = "transcription failed"
	}
	if _, err = uc.complete(ctx, p); err != nil && apperrors.IsPersistenceFailure(err) {
		// Put the marker back so the next sweep retries the turn. The
		// in-memory conversation already counts the unsaved reply.
		if restoreErr := uc.restorePendingTurn(ctx, conv.ID(), msg.ID()); restoreErr != nil {
			uc.logger.Warn("Failed to restore pending turn marker", zap.String("conversation_id", conv.ID()), zap.Error(restoreErr))
		}
	}
	return err
}

func (uc *HandleTurnUseCase) restorePendingTurn(ctx context.Context, convID, msgID string) error {
	conv, err := uc.deps.Conversations.FindByID(ctx, convID)
	if err != nil {
		return err
	}
	conv.MarkPendingTurn(msgID)
	return uc.deps.Conversations.Save(ctx, conv)
}

func audioExtension(mimeType string) string {
	switch mimeType {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	default:
		return ".webm"
	}
}
