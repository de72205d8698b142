package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/application/usecase"
	"github.com/ngoclaw/aichat/internal/domain/entity"
	"github.com/ngoclaw/aichat/internal/domain/service"
	"github.com/ngoclaw/aichat/internal/domain/valueobject"
	"github.com/ngoclaw/aichat/internal/infrastructure/config"
	"github.com/ngoclaw/aichat/internal/infrastructure/persistence"
	"github.com/ngoclaw/aichat/internal/infrastructure/realtime"
	httpServer "github.com/ngoclaw/aichat/internal/interfaces/http"
	"github.com/ngoclaw/aichat/internal/interfaces/websocket"
)

// orderedBus records whether a handler was subscribed when each event was published.
type orderedBus struct {
	mu         sync.Mutex
	subscribed bool
	handler    realtime.Handler
	published  chan bool
}

func (b *orderedBus) Publish(ctx context.Context, env realtime.Envelope) error {
	b.mu.Lock()
	subscribed, handler := b.subscribed, b.handler
	b.mu.Unlock()
	if handler != nil {
		handler(ctx, env)
	}
	select {
	case b.published <- subscribed:
	default:
	}
	return nil
}

func (b *orderedBus) Subscribe(_ context.Context, handler realtime.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = true
	b.handler = handler
	return nil
}

func (b *orderedBus) Close() error { return nil }

// gatedLLM blocks every reply until release is closed.
type gatedLLM struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedLLM) Generate(ctx context.Context, _ *service.LLMRequest) (*service.LLMResponse, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &service.LLMResponse{Content: "welcome back", ModelUsed: "test-model", ProviderUsed: "fake"}, nil
}

func plantPendingTurn(t *testing.T, store *persistence.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	repos := store.Repositories()
	now := time.Now()

	u, err := entity.NewUser("u1", "alice", "alice@example.com", "hash", now)
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if err := repos.Users.Create(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	conv, err := entity.NewConversation("c1", "u1", "hello", now)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	msg, err := entity.NewMessage("m1", "c1", valueobject.SenderUser, "u1", "hello", valueobject.MessageTypeText, valueobject.Metadata{}, now)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	conv.RecordMessage(msg.Content(), now)
	conv.MarkPendingTurn(msg.ID())
	if err := repos.Messages.Save(ctx, msg); err != nil {
		t.Fatalf("save message: %v", err)
	}
	if err := repos.Conversations.Save(ctx, conv); err != nil {
		t.Fatalf("save conversation: %v", err)
	}
}

func TestStartResumesTurnsAfterSubscribing(t *testing.T) {
	logger := zap.NewNop()
	store := persistence.NewMemoryStore()
	plantPendingTurn(t, store)
	repos := store.Repositories()

	llm := &gatedLLM{entered: make(chan struct{}), release: make(chan struct{})}
	bus := &orderedBus{published: make(chan bool, 1)}
	gateway := service.NewAIGateway(service.GatewayDeps{Text: llm}, service.GatewayConfig{DefaultModel: "test-model", CodeModel: "test-code"}, logger)
	turns := usecase.NewHandleTurnUseCase(usecase.TurnDeps{
		Users:         repos.Users,
		Conversations: repos.Conversations,
		Messages:      repos.Messages,
		Tx:            store,
		Classifier:    service.NewIntentClassifier(),
		Gateway:       gateway,
		Publisher:     bus,
	}, usecase.TurnConfig{TurnTimeout: 5 * time.Second, HistoryLimit: 10}, logger)

	app := &App{
		config:      &config.Config{},
		logger:      logger,
		bus:         bus,
		turnUseCase: turns,
		hub:         websocket.NewHub(logger),
		httpServer:  httpServer.NewServer(httpServer.Config{Addr: "127.0.0.1:0", Mode: gin.TestMode}, httpServer.Deps{}, logger),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- app.Start(ctx) }()

	// The resumed reply is still waiting on the model, Start is already serving.
	select {
	case <-llm.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("pending turn was never resumed")
	}
	select {
	case err := <-done:
		t.Fatalf("Start returned early: %v", err)
	default:
	}
	close(llm.release)

	select {
	case subscribed := <-bus.published:
		if !subscribed {
			t.Error("resumed reply was published before the hub subscribed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("resumed reply was never published")
	}

	conv, err := repos.Conversations.FindByID(context.Background(), "c1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if conv.HasPendingTurn() {
		t.Error("marker not cleared")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not stop")
	}
}
