package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ngoclaw/aichat/internal/application/usecase"
	"github.com/ngoclaw/aichat/internal/domain/service"
	"github.com/ngoclaw/aichat/internal/infrastructure/auth"
	"github.com/ngoclaw/aichat/internal/infrastructure/monitoring"
	"github.com/ngoclaw/aichat/internal/infrastructure/persistence"
	httpapi "github.com/ngoclaw/aichat/internal/interfaces/http"
)

type stubLLM struct{}

func (stubLLM) Generate(_ context.Context, req *service.LLMRequest) (*service.LLMResponse, error) {
	return &service.LLMResponse{Content: "pong: " + req.Messages[len(req.Messages)-1].Content, ModelUsed: "stub", TokensUsed: 3}, nil
}

type apiClient struct {
	t      *testing.T
	router *gin.Engine
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	logger := zap.NewNop()
	store := persistence.NewMemoryStore()
	repos := store.Repositories()

	tokens, err := auth.NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	gateway := service.NewAIGateway(service.GatewayDeps{Text: stubLLM{}}, service.GatewayConfig{DefaultModel: "stub"}, logger)
	monitor := monitoring.NewMonitor(logger)

	deps := httpapi.Deps{
		Auth:          usecase.NewAuthService(repos.Users, tokens, auth.NewPasswordHasher(bcrypt.MinCost), logger),
		Conversations: usecase.NewConversationService(repos, store, logger),
		Messages:      usecase.NewMessageService(repos, store, logger),
		Turns: usecase.NewHandleTurnUseCase(usecase.TurnDeps{
			Users:         repos.Users,
			Conversations: repos.Conversations,
			Messages:      repos.Messages,
			Tx:            store,
			Classifier:    service.NewIntentClassifier(),
			Gateway:       gateway,
			Metrics:       monitor,
		}, usecase.TurnConfig{}, logger),
		Tokens:  tokens,
		Monitor: monitor,
	}
	cfg := httpapi.Config{Mode: gin.TestMode, AllowedOrigins: []string{"http://localhost:3000"}}
	return &apiClient{t: t, router: httpapi.NewRouter(cfg, deps, logger)}
}

func (a *apiClient) do(method, path, token string, body any, out any) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			a.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code
}

type session struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Token string `json:"token"`
}

func (a *apiClient) register(username string) session {
	a.t.Helper()
	var s session
	code := a.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	}, &s)
	if code != http.StatusCreated || s.Token == "" {
		a.t.Fatalf("register %s: status %d", username, code)
	}
	return s
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestAuthFlow(t *testing.T) {
	api := newAPI(t)
	alice := api.register("alice")

	var login session
	if code := api.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "alice@example.com", "password": "password123"}, &login); code != http.StatusOK {
		t.Fatalf("login status = %d", code)
	}
	if login.User.ID != alice.User.ID {
		t.Errorf("login user = %q, want %q", login.User.ID, alice.User.ID)
	}

	var bad errorBody
	if code := api.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "alice@example.com", "password": "nope-nope"}, &bad); code != http.StatusUnauthorized || bad.Error.Code != "UNAUTHORIZED" {
		t.Errorf("bad login = %d %+v", code, bad)
	}

	var dup errorBody
	code := api.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{"username": "alice", "email": "a2@example.com", "password": "password123"}, &dup)
	if code != http.StatusConflict || dup.Error.Code != "ALREADY_EXISTS" {
		t.Errorf("duplicate register = %d %+v", code, dup)
	}

	var me struct {
		Username  string         `json:"username"`
		Remaining map[string]int `json:"remaining"`
	}
	if code := api.do(http.MethodGet, "/api/v1/auth/me", login.Token, nil, &me); code != http.StatusOK || me.Username != "alice" {
		t.Errorf("me = %d %+v", code, me)
	}
	if me.Remaining["messages"] <= 0 {
		t.Errorf("remaining = %+v", me.Remaining)
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	api := newAPI(t)
	for _, token := range []string{"", "not-a-jwt"} {
		var body errorBody
		code := api.do(http.MethodGet, "/api/v1/conversations", token, nil, &body)
		if code != http.StatusUnauthorized || body.Error.Code != "UNAUTHORIZED" {
			t.Errorf("token %q: %d %+v", token, code, body)
		}
	}
}

func TestChatAndConversationLifecycle(t *testing.T) {
	api := newAPI(t)
	alice := api.register("alice")

	var exchange struct {
		ConversationID string `json:"conversationId"`
		UserMessage    struct {
			ID      string `json:"id"`
			Content string `json:"content"`
		} `json:"userMessage"`
		AIMessage struct {
			Content string `json:"content"`
			Sender  string `json:"sender"`
		} `json:"aiMessage"`
	}
	if code := api.do(http.MethodPost, "/api/v1/chat", alice.Token, map[string]string{"message": "ping"}, &exchange); code != http.StatusOK {
		t.Fatalf("chat status = %d", code)
	}
	if exchange.ConversationID == "" || exchange.AIMessage.Content != "pong: ping" || exchange.AIMessage.Sender != "ai" {
		t.Fatalf("exchange = %+v", exchange)
	}
	convPath := "/api/v1/conversations/" + exchange.ConversationID

	var list struct {
		Count int `json:"count"`
	}
	if code := api.do(http.MethodGet, "/api/v1/conversations", alice.Token, nil, &list); code != http.StatusOK || list.Count != 1 {
		t.Errorf("list = %d %+v", code, list)
	}

	var history struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	if code := api.do(http.MethodGet, convPath+"/messages", alice.Token, nil, &history); code != http.StatusOK || len(history.Messages) != 2 {
		t.Fatalf("history = %d %+v", code, history)
	}
	if history.Messages[0].Content != "ping" {
		t.Errorf("history not ascending: %+v", history.Messages)
	}

	var renamed struct {
		Title string `json:"title"`
	}
	if code := api.do(http.MethodPatch, convPath, alice.Token, map[string]string{"title": "Renamed"}, &renamed); code != http.StatusOK || renamed.Title != "Renamed" {
		t.Errorf("rename = %d %+v", code, renamed)
	}

	var deleted struct {
		Content   string `json:"content"`
		IsDeleted bool   `json:"isDeleted"`
	}
	if code := api.do(http.MethodDelete, "/api/v1/messages/"+exchange.UserMessage.ID, alice.Token, nil, &deleted); code != http.StatusOK || !deleted.IsDeleted {
		t.Errorf("delete message = %d %+v", code, deleted)
	}

	if code := api.do(http.MethodDelete, convPath, alice.Token, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete status = %d", code)
	}
	var gone errorBody
	if code := api.do(http.MethodGet, convPath, alice.Token, nil, &gone); code != http.StatusNotFound || gone.Error.Code != "NOT_FOUND" {
		t.Errorf("after delete = %d %+v", code, gone)
	}
}

func TestForeignConversationIsForbidden(t *testing.T) {
	api := newAPI(t)
	alice := api.register("alice")
	bob := api.register("bob")

	var conv struct {
		ID string `json:"id"`
	}
	if code := api.do(http.MethodPost, "/api/v1/conversations", alice.Token, nil, &conv); code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}

	var body errorBody
	if code := api.do(http.MethodGet, "/api/v1/conversations/"+conv.ID, bob.Token, nil, &body); code != http.StatusForbidden || body.Error.Code != "FORBIDDEN" {
		t.Errorf("bob get = %d %+v", code, body)
	}
	if code := api.do(http.MethodPost, "/api/v1/chat", bob.Token, map[string]string{"message": "hi", "conversationId": conv.ID}, nil); code != http.StatusForbidden {
		t.Errorf("bob chat = %d", code)
	}

	if code := api.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/share", alice.Token, map[string]string{"userId": bob.User.ID, "permission": "owner"}, nil); code != http.StatusBadRequest {
		t.Errorf("share owner = %d", code)
	}
	if code := api.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/share", alice.Token, map[string]string{"userId": bob.User.ID, "permission": "read"}, nil); code != http.StatusOK {
		t.Errorf("share read = %d", code)
	}
	if code := api.do(http.MethodGet, "/api/v1/conversations/"+conv.ID, bob.Token, nil, nil); code != http.StatusOK {
		t.Errorf("bob get after share = %d", code)
	}
	if code := api.do(http.MethodDelete, "/api/v1/conversations/"+conv.ID+"/share/"+bob.User.ID, alice.Token, nil, nil); code != http.StatusOK {
		t.Errorf("unshare = %d", code)
	}
	if code := api.do(http.MethodGet, "/api/v1/conversations/"+conv.ID, bob.Token, nil, nil); code != http.StatusForbidden {
		t.Errorf("bob get after unshare = %d", code)
	}
}

func TestBadQueryParameters(t *testing.T) {
	api := newAPI(t)
	alice := api.register("alice")
	for _, path := range []string{
		"/api/v1/conversations?limit=-1",
		"/api/v1/conversations?archived=maybe",
		"/api/v1/conversations/x/messages?before=yesterday",
	} {
		if code := api.do(http.MethodGet, path, alice.Token, nil, nil); code != http.StatusBadRequest {
			t.Errorf("%s = %d", path, code)
		}
	}
}

func TestHealthMetricsAndCORS(t *testing.T) {
	api := newAPI(t)
	if code := api.do(http.MethodGet, "/health", "", nil, nil); code != http.StatusOK {
		t.Errorf("health = %d", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "aichat_http_requests_total") {
		t.Errorf("metrics = %d %q", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/conversations", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w = httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow origin = %q (status %d)", got, w.Code)
	}
}
