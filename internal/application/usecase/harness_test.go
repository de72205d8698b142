package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/application/usecase"
	"github.com/ngoclaw/aichat/internal/domain/entity"
	"github.com/ngoclaw/aichat/internal/domain/repository"
	"github.com/ngoclaw/aichat/internal/domain/service"
	"github.com/ngoclaw/aichat/internal/domain/valueobject"
	"github.com/ngoclaw/aichat/internal/infrastructure/linkpreview"
	"github.com/ngoclaw/aichat/internal/infrastructure/persistence"
	"github.com/ngoclaw/aichat/internal/infrastructure/realtime"
)

type fakeLLM struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
	last  *service.LLMRequest
}

func (f *fakeLLM) Generate(_ context.Context, req *service.LLMRequest) (*service.LLMResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &service.LLMResponse{Content: f.reply, ModelUsed: "test-model", ProviderUsed: "fake", TokensUsed: 7}, nil
}

type fakeTranscriber struct {
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(context.Context, []byte, string) (*service.Transcription, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &service.Transcription{Text: f.text, DurationSeconds: 2.5, Provider: "fake"}, nil
}

type fakeMedia struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeMedia) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return "/media/" + key, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, env realtime.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, env)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type countingMetrics struct {
	mu        sync.Mutex
	completed int
	failed    int
	degraded  int
}

func (m *countingMetrics) TurnFailed() {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()
}

func (m *countingMetrics) TurnCompleted(_ valueobject.IntentCategory, degraded bool, _ int, _ time.Duration) {
	m.mu.Lock()
	m.completed++
	if degraded {
		m.degraded++
	}
	m.mu.Unlock()
}

// failingTx fails the nth WithinTx call (1-based) and delegates the rest.
type failingTx struct {
	inner  repository.Transactor
	failOn int
	calls  int
}

var errTxBroken = errors.New("database is gone")

func (t *failingTx) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	t.calls++
	if t.calls == t.failOn {
		return errTxBroken
	}
	return t.inner.WithinTx(ctx, fn)
}

// staleConversations serves a fixed pending list, as another instance would
// see it after reading before this one finished its sweep.
type staleConversations struct {
	repository.ConversationRepository
	pending []*entity.Conversation
}

func (s *staleConversations) FindWithPendingTurn(ctx context.Context) ([]*entity.Conversation, error) {
	if s.pending != nil {
		return s.pending, nil
	}
	return s.ConversationRepository.FindWithPendingTurn(ctx)
}

type harness struct {
	store     *persistence.MemoryStore
	repos     repository.Repositories
	llm       *fakeLLM
	media     *fakeMedia
	publisher *recordingPublisher
	metrics   *countingMetrics
	turns     *usecase.HandleTurnUseCase
	convs     *usecase.ConversationService
	msgs      *usecase.MessageService
}

type harnessOption func(*usecase.TurnDeps, *service.GatewayDeps)

func withTranscriber(t service.Transcriber) harnessOption {
	return func(_ *usecase.TurnDeps, g *service.GatewayDeps) { g.Transcriber = t }
}

func withTx(wrap func(repository.Transactor) repository.Transactor) harnessOption {
	return func(d *usecase.TurnDeps, _ *service.GatewayDeps) { d.Tx = wrap(d.Tx) }
}

func withConversations(wrap func(repository.ConversationRepository) repository.ConversationRepository) harnessOption {
	return func(d *usecase.TurnDeps, _ *service.GatewayDeps) { d.Conversations = wrap(d.Conversations) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	store := persistence.NewMemoryStore()
	h := &harness{
		store:     store,
		repos:     store.Repositories(),
		llm:       &fakeLLM{reply: "Hello! How can I help?"},
		media:     &fakeMedia{},
		publisher: &recordingPublisher{},
		metrics:   &countingMetrics{},
	}

	gatewayDeps := service.GatewayDeps{Text: h.llm, Media: h.media}
	deps := usecase.TurnDeps{
		Users:         h.repos.Users,
		Conversations: h.repos.Conversations,
		Messages:      h.repos.Messages,
		Tx:            store,
		Classifier:    service.NewIntentClassifier(),
		Media:         h.media,
		Links:         linkpreview.NewExtractor(),
		Metrics:       h.metrics,
		Publisher:     h.publisher,
	}
	for _, opt := range opts {
		opt(&deps, &gatewayDeps)
	}
	deps.Gateway = service.NewAIGateway(gatewayDeps, service.GatewayConfig{DefaultModel: "test-model", CodeModel: "test-code"}, zap.NewNop())

	h.turns = usecase.NewHandleTurnUseCase(deps, usecase.TurnConfig{TurnTimeout: 5 * time.Second, HistoryLimit: 10}, zap.NewNop())
	h.convs = usecase.NewConversationService(h.repos, store, zap.NewNop())
	h.msgs = usecase.NewMessageService(h.repos, store, zap.NewNop())
	return h
}

func (h *harness) addUser(t *testing.T, id, username string) *entity.User {
	t.Helper()
	u, err := entity.NewUser(id, username, username+"@example.com", "hash", time.Now())
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if err := h.repos.Users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (h *harness) turn(t *testing.T, userID, convID, text string) *usecase.ExchangeResult {
	t.Helper()
	res, err := h.turns.Execute(context.Background(), usecase.TurnCommand{UserID: userID, ConversationID: convID, Text: text})
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	return res
}

func (h *harness) messageCount(t *testing.T, convID string) int64 {
	t.Helper()
	n, err := h.repos.Messages.Count(context.Background(), convID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func turnCmd(userID, convID, text string) usecase.TurnCommand {
	return usecase.TurnCommand{UserID: userID, ConversationID: convID, Text: text}
}

func queryAll() repository.MessageQuery {
	return repository.MessageQuery{IncludeDeleted: true}
}
