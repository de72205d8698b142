package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ngoclaw/aichat/internal/application/usecase"
	"github.com/ngoclaw/aichat/internal/domain/entity"
	"github.com/ngoclaw/aichat/internal/domain/repository"
	"github.com/ngoclaw/aichat/internal/domain/service"
	"github.com/ngoclaw/aichat/internal/domain/valueobject"
	"github.com/ngoclaw/aichat/internal/infrastructure/realtime"
	apperrors "github.com/ngoclaw/aichat/pkg/errors"
)

func TestFirstTurnCreatesConversation(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "u1", "alice")
	text := "Tell me everything you know about the history of the printing press in Europe"

	res := h.turn(t, "u1", "", text)

	convs, err := h.repos.Conversations.ListForUser(context.Background(), "u1", repository.ConversationQuery{})
	if err != nil || len(convs) != 1 {
		t.Fatalf("conversations = %d, err %v", len(convs), err)
	}
	conv := convs[0]
	wantTitle := string([]rune(text)[:50]) + "..."
	if conv.Title() != wantTitle {
		t.Errorf("title = %q, want %q", conv.Title(), wantTitle)
	}
	if n := h.messageCount(t, conv.ID()); n != 2 {
		t.Errorf("persisted messages = %d, want 2", n)
	}
	if conv.MessageCount() != 2 || conv.HasPendingTurn() {
		t.Errorf("conversation = count %d pending %v", conv.MessageCount(), conv.HasPendingTurn())
	}
	if conv.LastMessage() != "Hello! How can I help?" {
		t.Errorf("last message = %q", conv.LastMessage())
	}

	if res.UserMessage.Status() != valueobject.StatusDelivered {
		t.Errorf("user message status = %s", res.UserMessage.Status())
	}
	gen := res.AIMessage.Metadata().Generation
	if gen == nil || gen.Intent != valueobject.IntentTextResponse || gen.Confidence != 0.90 || gen.TokensUsed != 7 {
		t.Errorf("generation = %+v", gen)
	}

	user, _ := h.repos.Users.FindByID(context.Background(), "u1")
	if user.Usage().Messages != 1 {
		t.Errorf("usage = %+v", user.Usage())
	}
	if got := h.publisher.types(); len(got) != 1 || got[0] != realtime.EventMessageResponse {
		t.Errorf("events = %v", got)
	}
	if h.metrics.completed != 1 || h.metrics.degraded != 0 {
		t.Errorf("metrics = %+v", h.metrics)
	}
}

func TestFollowUpTurnSendsHistory(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "u1", "alice")
	first := h.turn(t, "u1", "", "hi")

	h.turn(t, "u1", first.Conversation.ID(), "and again")

	msgs := h.llm.last.Messages
	if len(msgs) != 3 {
		t.Fatalf("llm messages = %d, want 3 (two history, one current)", len(msgs))
	}
	if msgs[0].Content != "hi" || msgs[1].Role != "assistant" || msgs[2].Content != "and again" {
		t.Errorf("messages = %+v", msgs)
	}
	conv, _ := h.repos.Conversations.FindByID(context.Background(), first.Conversation.ID())
	if conv.MessageCount() != 4 {
		t.Errorf("message count = %d", conv.MessageCount())
	}
}

func TestProvidersFailingYieldsDegradedReply(t *testing.T) {
	h := newHarness(t)
	h.llm.err = errors.New("all providers failed: openai: 503; anthropic: 529")
	h.addUser(t, "u1", "alice")

	res, err := h.turns.Execute(context.Background(), usecase.TurnCommand{UserID: "u1", Text: "hello"})
	if err != nil {
		t.Fatalf("turn returned error: %v", err)
	}

	if res.AIMessage.Content() != service.DegradedTextReply || !res.AIMessage.Metadata().IsError() {
		t.Errorf("ai message = %q %+v", res.AIMessage.Content(), res.AIMessage.Metadata().Generation)
	}
	if _, err := h.repos.Messages.FindByID(context.Background(), res.UserMessage.ID()); err != nil {
		t.Errorf("user message not persisted: %v", err)
	}
	user, _ := h.repos.Users.FindByID(context.Background(), "u1")
	if user.Usage().Messages != 0 {
		t.Errorf("degraded reply counted against quota: %+v", user.Usage())
	}
	if h.metrics.degraded != 1 {
		t.Errorf("degraded = %d", h.metrics.degraded)
	}
}

func TestTurnClassifiesAndCountsPerKind(t *testing.T) {
	h := newHarness(t)
	h.llm.reply = "```go\nfmt.Println(1)\n```"
	h.addUser(t, "u1", "alice")

	res := h.turn(t, "u1", "", "Write a script to sort a list")

	if res.AIMessage.Type() != valueobject.MessageTypeCode {
		t.Errorf("type = %s", res.AIMessage.Type())
	}
	user, _ := h.repos.Users.FindByID(context.Background(), "u1")
	if user.Usage().Code != 1 || user.Usage().Messages != 0 {
		t.Errorf("usage = %+v", user.Usage())
	}
}

func TestTurnOnForeignConversationIsDenied(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "u1", "alice")
	h.addUser(t, "u2", "bob")
	first := h.turn(t, "u1", "", "private notes")
	convID := first.Conversation.ID()

	_, err := h.turns.Execute(context.Background(), usecase.TurnCommand{UserID: "u2", ConversationID: convID, Text: "let me in"})
	if !apperrors.IsForbidden(err) {
		t.Fatalf("err = %v, want forbidden", err)
	}
	if n := h.messageCount(t, convID); n != 2 {
		t.Errorf("messages = %d, nothing should be written", n)
	}
	conv, _ := h.repos.Conversations.FindByID(context.Background(), convID)
	if conv.MessageCount() != 2 {
		t.Errorf("message count = %d", conv.MessageCount())
	}
}

func TestSharedConversationTurns(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "u1", "alice")
	h.addUser(t, "u2", "bob")
	convID := h.turn(t, "u1", "", "team chat").Conversation.ID()
	ctx := context.Background()

	if _, err := h.convs.Share(ctx, "u1", convID, "u2", valueobject.PermissionRead); err != nil {
		t.Fatalf("share: %v", err)
	}
	if _, err := h.turns.Execute(ctx, usecase.TurnCommand{UserID: "u2", ConversationID: convID, Text: "hi"}); !apperrors.IsForbidden(err) {
		t.Fatalf("read-only turn err = %v", err)
	}

	if _, err := h.convs.Share(ctx, "u1", convID, "u2", valueobject.PermissionWrite); err != nil {
		t.Fatalf("share: %v", err)
	}
	res, err := h.turns.Execute(ctx, usecase.TurnCommand{UserID: "u2", ConversationID: convID, Text: "hi"})
	if err != nil {
		t.Fatalf("write turn: %v", err)
	}
	if res.UserMessage.SenderID() != "u2" {
		t.Errorf("sender = %q", res.UserMessage.SenderID())
	}
	bob, _ := h.repos.Users.FindByID(ctx, "u2")
	alice, _ := h.repos.Users.FindByID(ctx, "u1")
	if bob.Usage().Messages != 1 || alice.Usage().Messages != 1 {
		t.Errorf("usage alice=%+v bob=%+v", alice.Usage(), bob.Usage())
	}
}

func TestTurnRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addUser(t, "u1", "alice")

	t.Run("unknown user", func(t *testing.T) {
		_, err := h.turns.Execute(ctx, usecase.TurnCommand{UserID: "ghost", Text: "hi"})
		if !apperrors.IsNotFound(err) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("unknown conversation", func(t *testing.T) {
		_, err := h.turns.Execute(ctx, usecase.TurnCommand{UserID: "u1", ConversationID: "nope", Text: "hi"})
		if !apperrors.IsNotFound(err) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("empty text", func(t *testing.T) {
		_, err := h.turns.Execute(ctx, usecase.TurnCommand{UserID: "u1", Text: "   "})
		if !apperrors.IsInvalidInput(err) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("too long", func(t *testing.T) {
		_, err := h.turns.Execute(ctx, usecase.TurnCommand{UserID: "u1", Text: strings.Repeat("a", entity.MaxContentRunes+1)})
		if !apperrors.IsInvalidInput(err) {
			t.Errorf("err = %v", err)
		}
	})

	convs, _ := h.repos.Conversations.ListForUser(ctx, "u1", repository.ConversationQuery{})
	if len(convs) != 0 {
		t.Errorf("rejected turns created %d conversations", len(convs))
	}
	if h.llm.calls != 0 {
		t.Errorf("llm called %d times", h.llm.calls)
	}
}

func TestDeactivatedUserCannotTurn(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "u1", "alice")
	u.Deactivate(time.Now())
	_ = h.repos.Users.Update(context.Background(), u)

	_, err := h.turns.Execute(context.Background(), usecase.TurnCommand{UserID: "u1", Text: "hi"})
	if !apperrors.IsForbidden(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestQuotaExceeded(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "u1", "alice")
	now := time.Now()
	limit := valueobject.TierFree.Limit(valueobject.UsageImages)
	for i := 0; i < limit; i++ {
		u.RecordUsage(valueobject.UsageImages, now)
	}
	_ = h.repos.Users.Update(context.Background(), u)

	_, err := h.turns.Execute(context.Background(), usecase.TurnCommand{UserID: "u1", Text: "Generate an image of a cat"})
	if !apperrors.IsQuotaExceeded(err) {
		t.Fatalf("err = %v, want quota exceeded", err)
	}

	// Other kinds are unaffected.
	h.turn(t, "u1", "", "What's the weather")
}

func TestReplyPersistenceFailureMarksUserMessageFailed(t *testing.T) {
	h := newHarness(t, withTx(func(inner repository.Transactor) repository.Transactor {
		return &failingTx{inner: inner, failOn: 2}
	}))
	h.addUser(t, "u1", "alice")

	_, err := h.turns.Execute(context.Background(), usecase.TurnCommand{UserID: "u1", Text: "hello"})
	if !apperrors.IsPersistenceFailure(err) {
		t.Fatalf("err = %v, want persistence failure", err)
	}

	convs, _ := h.repos.Conversations.ListForUser(context.Background(), "u1", repository.ConversationQuery{})
	if len(convs) != 1 || !convs[0].HasPendingTurn() {
		t.Fatalf("expected the first step to survive with a pending marker")
	}
	msg, err := h.repos.Messages.FindByID(context.Background(), convs[0].PendingTurnMessageID())
	if err != nil {
		t.Fatalf("user message: %v", err)
	}
	if msg.Status() != valueobject.StatusFailed {
		t.Errorf("status = %s", msg.Status())
	}
	if len(h.publisher.types()) != 0 {
		t.Error("nothing should be published for a failed turn")
	}
}

func TestResumePendingTurns(t *testing.T) {
	h := newHarness(t, withTx(func(inner repository.Transactor) repository.Transactor {
		return &failingTx{inner: inner, failOn: 2}
	}))
	h.addUser(t, "u1", "alice")
	ctx := context.Background()
	if _, err := h.turns.Execute(ctx, usecase.TurnCommand{UserID: "u1", Text: "hello"}); err == nil {
		t.Fatal("expected the reply step to fail")
	}

	n, err := h.turns.ResumePendingTurns(ctx)
	if err != nil || n != 1 {
		t.Fatalf("resumed = %d, err %v", n, err)
	}

	convs, _ := h.repos.Conversations.ListForUser(ctx, "u1", repository.ConversationQuery{})
	conv := convs[0]
	if conv.HasPendingTurn() {
		t.Error("marker not cleared")
	}
	if n := h.messageCount(t, conv.ID()); n != 2 {
		t.Errorf("messages = %d", n)
	}
	if got := h.publisher.types(); len(got) != 1 || got[0] != realtime.EventMessageResponse {
		t.Errorf("events = %v", got)
	}

	again, _ := h.turns.ResumePendingTurns(ctx)
	if again != 0 {
		t.Errorf("second sweep resumed %d", again)
	}
}

func TestResumeSkipsTurnAlreadyClaimed(t *testing.T) {
	stale := &staleConversations{}
	h := newHarness(t,
		withTx(func(inner repository.Transactor) repository.Transactor {
			return &failingTx{inner: inner, failOn: 2}
		}),
		withConversations(func(inner repository.ConversationRepository) repository.ConversationRepository {
			stale.ConversationRepository = inner
			return stale
		}),
	)
	h.addUser(t, "u1", "alice")
	ctx := context.Background()
	if _, err := h.turns.Execute(ctx, usecase.TurnCommand{UserID: "u1", Text: "hello"}); err == nil {
		t.Fatal("expected the reply step to fail")
	}
	snapshot, err := h.repos.Conversations.FindWithPendingTurn(ctx)
	if err != nil || len(snapshot) != 1 {
		t.Fatalf("pending = %d, err %v", len(snapshot), err)
	}

	if n, _ := h.turns.ResumePendingTurns(ctx); n != 1 {
		t.Fatalf("first sweep resumed %d", n)
	}
	calls := h.llm.calls

	// A second sweep working from the list read before the first one ran.
	stale.pending = snapshot
	n, err := h.turns.ResumePendingTurns(ctx)
	if err != nil || n != 0 {
		t.Fatalf("stale sweep resumed %d, err %v", n, err)
	}
	if h.llm.calls != calls {
		t.Errorf("llm called %d more times", h.llm.calls-calls)
	}
	if got := h.messageCount(t, snapshot[0].ID()); got != 2 {
		t.Errorf("messages = %d", got)
	}
	if got := h.publisher.types(); len(got) != 1 {
		t.Errorf("events = %v", got)
	}
}

func TestResumeKeepsMarkerWhenReplyFails(t *testing.T) {
	ftx := &failingTx{failOn: 2}
	h := newHarness(t, withTx(func(inner repository.Transactor) repository.Transactor {
		ftx.inner = inner
		return ftx
	}))
	h.addUser(t, "u1", "alice")
	ctx := context.Background()
	if _, err := h.turns.Execute(ctx, usecase.TurnCommand{UserID: "u1", Text: "hello"}); err == nil {
		t.Fatal("expected the reply step to fail")
	}
	// Break the store again for the resumed reply.
	ftx.failOn = ftx.calls + 1

	if n, _ := h.turns.ResumePendingTurns(ctx); n != 0 {
		t.Fatalf("resumed %d with a broken store", n)
	}
	pending, _ := h.repos.Conversations.FindWithPendingTurn(ctx)
	if len(pending) != 1 {
		t.Fatalf("pending after failed resume = %d", len(pending))
	}
	if n, _ := h.turns.ResumePendingTurns(ctx); n != 1 {
		t.Errorf("retry resumed %d", n)
	}
}

func TestVoiceTurn(t *testing.T) {
	t.Run("transcribed", func(t *testing.T) {
		h := newHarness(t, withTranscriber(&fakeTranscriber{text: "what's the weather"}))
		h.addUser(t, "u1", "alice")

		res, err := h.turns.ExecuteVoice(context.Background(), usecase.VoiceCommand{UserID: "u1", Audio: []byte("OggS"), MimeType: "audio/ogg"})
		if err != nil {
			t.Fatalf("voice turn: %v", err)
		}
		if res.UserMessage.Content() != "what's the weather" || res.UserMessage.Type() != valueobject.MessageTypeVoice {
			t.Errorf("user message = %q (%s)", res.UserMessage.Content(), res.UserMessage.Type())
		}
		d := res.UserMessage.Metadata().Detail.(valueobject.VoiceDetail)
		if !strings.HasPrefix(d.AudioURL, "/media/voice/") || !strings.HasSuffix(d.AudioURL, ".ogg") || d.Transcript != "what's the weather" {
			t.Errorf("voice detail = %+v", d)
		}
		stored, err := h.repos.Messages.FindByID(context.Background(), res.UserMessage.ID())
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		att := stored.Attachments()
		if len(att) != 1 || att[0].URL != d.AudioURL || att[0].MimeType != "audio/ogg" || att[0].Size != 4 {
			t.Errorf("attachments = %+v", att)
		}
		if res.AIMessage.Metadata().IsError() {
			t.Error("reply should not be degraded")
		}
		if got := h.publisher.types(); len(got) != 1 || got[0] != realtime.EventVoiceResponse {
			t.Errorf("events = %v", got)
		}
	})

	t.Run("transcription unavailable", func(t *testing.T) {
		h := newHarness(t)
		h.addUser(t, "u1", "alice")

		res, err := h.turns.ExecuteVoice(context.Background(), usecase.VoiceCommand{UserID: "u1", Audio: []byte("OggS")})
		if err != nil {
			t.Fatalf("voice turn: %v", err)
		}
		if res.UserMessage.Content() != usecase.VoicePlaceholder {
			t.Errorf("user content = %q", res.UserMessage.Content())
		}
		if res.AIMessage.Content() != service.DegradedTextReply || !res.AIMessage.Metadata().IsError() {
			t.Errorf("ai message = %q", res.AIMessage.Content())
		}
		if h.llm.calls != 0 {
			t.Errorf("llm called %d times", h.llm.calls)
		}
	})

	t.Run("over quota stores nothing", func(t *testing.T) {
		tr := &fakeTranscriber{text: "hello"}
		h := newHarness(t, withTranscriber(tr))
		u := h.addUser(t, "u1", "alice")
		now := time.Now()
		for i := 0; i < valueobject.TierFree.Limit(valueobject.UsageMessages); i++ {
			u.RecordUsage(valueobject.UsageMessages, now)
		}
		_ = h.repos.Users.Update(context.Background(), u)

		_, err := h.turns.ExecuteVoice(context.Background(), usecase.VoiceCommand{UserID: "u1", Audio: []byte("OggS"), MimeType: "audio/ogg"})
		if !apperrors.IsQuotaExceeded(err) {
			t.Fatalf("err = %v, want quota exceeded", err)
		}
		if len(h.media.keys) != 0 || tr.calls != 0 {
			t.Errorf("media writes = %v, transcriptions = %d", h.media.keys, tr.calls)
		}
	})

	t.Run("empty audio", func(t *testing.T) {
		h := newHarness(t)
		h.addUser(t, "u1", "alice")
		if _, err := h.turns.ExecuteVoice(context.Background(), usecase.VoiceCommand{UserID: "u1"}); !apperrors.IsInvalidInput(err) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestTurnAddsLinkPreviews(t *testing.T) {
	h := newHarness(t)
	h.llm.reply = "See [the docs](https://go.dev/doc) for details"
	h.addUser(t, "u1", "alice")

	res := h.turn(t, "u1", "", "where are the docs? https://example.com/page")

	if p := res.UserMessage.LinkPreviews(); len(p) != 1 || p[0].URL != "https://example.com/page" {
		t.Errorf("user previews = %+v", p)
	}
	if p := res.AIMessage.LinkPreviews(); len(p) != 1 || p[0].Title != "the docs" {
		t.Errorf("ai previews = %+v", p)
	}
}
