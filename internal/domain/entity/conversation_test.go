package entity

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestConversation(t *testing.T, first string) *Conversation {
	t.Helper()
	conv, err := NewConversation("conv-1", "owner", first, t0)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	return conv
}

func TestTitleFromMessage(t *testing.T) {
	long := strings.Repeat("a", 60)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "Hello there", "Hello there"},
		{"exactly fifty", strings.Repeat("b", 50), strings.Repeat("b", 50)},
		{"truncated", long, strings.Repeat("a", 50) + "..."},
		{"empty", "   ", DefaultConversationTitle},
		{"multibyte", strings.Repeat("好", 51), strings.Repeat("好", 50) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TitleFromMessage(tt.in); got != tt.want {
				t.Errorf("TitleFromMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageCountTracksNonDeletedMessages(t *testing.T) {
	conv := newTestConversation(t, "hi")
	msgs := make([]*Message, 0, 4)
	for i := 0; i < 4; i++ {
		m, err := NewMessage(
			string(rune('a'+i)), conv.ID(), valueobject.SenderUser, "owner",
			"content", valueobject.MessageTypeText, valueobject.Metadata{}, t0,
		)
		if err != nil {
			t.Fatalf("NewMessage: %v", err)
		}
		msgs = append(msgs, m)
		conv.RecordMessage(m.Content(), t0)
	}

	ops := []struct {
		idx     int
		restore bool
	}{{1, false}, {2, false}, {1, true}, {3, false}, {3, true}, {0, false}}
	for _, op := range ops {
		m := msgs[op.idx]
		if op.restore {
			if err := m.Restore(t0); err != nil {
				t.Fatalf("Restore: %v", err)
			}
			conv.RestoreMessage(m.Content(), t0)
		} else {
			if err := m.SoftDelete("owner", t0); err != nil {
				t.Fatalf("SoftDelete: %v", err)
			}
			conv.ForgetMessage(m.Content(), t0)
		}

		live := 0
		for _, mm := range msgs {
			if !mm.IsDeleted() {
				live++
			}
		}
		if conv.MessageCount() != live {
			t.Fatalf("messageCount = %d, want %d", conv.MessageCount(), live)
		}
	}
}

func TestForgetMessageNeverNegative(t *testing.T) {
	conv := newTestConversation(t, "hi")
	conv.ForgetMessage("hi", t0)
	if conv.MessageCount() != 0 {
		t.Errorf("messageCount = %d, want 0", conv.MessageCount())
	}
}

func TestForgetMessageHidesCachedLastMessage(t *testing.T) {
	conv := newTestConversation(t, "hi")
	conv.RecordMessage("older", t0)
	conv.RecordMessage("my secret pin is 4711", t0)

	conv.ForgetMessage("older", t0)
	if conv.LastMessage() != "my secret pin is 4711" {
		t.Fatalf("lastMessage = %q", conv.LastMessage())
	}
	conv.ForgetMessage("my secret pin is 4711", t0)
	if conv.LastMessage() != DeletedPlaceholder {
		t.Fatalf("lastMessage = %q, want placeholder", conv.LastMessage())
	}
	conv.RestoreMessage("my secret pin is 4711", t0)
	if conv.LastMessage() != "my secret pin is 4711" {
		t.Errorf("restored lastMessage = %q", conv.LastMessage())
	}
}

func TestLastMessageTruncated(t *testing.T) {
	conv := newTestConversation(t, "hi")
	conv.RecordMessage(strings.Repeat("x", 150), t0)
	if n := len([]rune(conv.LastMessage())); n != 100 {
		t.Errorf("lastMessage length = %d, want 100", n)
	}
}

func TestShareRules(t *testing.T) {
	conv := newTestConversation(t, "hi")

	if err := conv.Share("owner", valueobject.PermissionRead, t0); !errors.Is(err, ErrShareWithOwner) {
		t.Fatalf("share with owner err = %v", err)
	}
	if err := conv.Share("bob", valueobject.PermissionRead, t0); err != nil {
		t.Fatalf("Share: %v", err)
	}
	if err := conv.Share("bob", valueobject.PermissionAdmin, t0); err != nil {
		t.Fatalf("reshare: %v", err)
	}
	if len(conv.SharedWith()) != 1 {
		t.Fatalf("sharedWith = %d entries, want 1", len(conv.SharedWith()))
	}
	if conv.AccessFor("bob") != valueobject.PermissionAdmin {
		t.Errorf("bob access = %s", conv.AccessFor("bob"))
	}
	if !conv.CanWrite("bob") || !conv.CanRead("bob") {
		t.Error("admin should read and write")
	}
	if conv.CanRead("eve") {
		t.Error("stranger must not read")
	}
	if err := conv.Require("eve", valueobject.PermissionRead); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Require err = %v", err)
	}

	conv.Unshare("bob", t0)
	if conv.CanRead("bob") {
		t.Error("unshared user still has access")
	}
}

func TestShareRejectsOwnerPermission(t *testing.T) {
	conv := newTestConversation(t, "hi")
	if err := conv.Share("bob", valueobject.PermissionOwner, t0); err == nil {
		t.Fatal("expected owner permission to be rejected")
	}
}

func TestTagsAreASet(t *testing.T) {
	conv := newTestConversation(t, "hi")
	_ = conv.AddTag(" work ", t0)
	_ = conv.AddTag("work", t0)
	_ = conv.AddTag("ideas", t0)
	if err := conv.AddTag("  ", t0); err == nil {
		t.Error("expected empty tag to fail")
	}
	if got := conv.Tags(); len(got) != 2 || got[0] != "work" || got[1] != "ideas" {
		t.Fatalf("tags = %v", got)
	}
	conv.RemoveTag("work", t0)
	if got := conv.Tags(); len(got) != 1 || got[0] != "ideas" {
		t.Fatalf("tags after remove = %v", got)
	}
}

func TestPendingTurnMarker(t *testing.T) {
	conv := newTestConversation(t, "hi")
	conv.MarkPendingTurn("m1")
	if !conv.HasPendingTurn() || conv.PendingTurnMessageID() != "m1" {
		t.Fatal("pending marker not set")
	}
	restored := ReconstructConversation(conv.Snapshot())
	if restored.PendingTurnMessageID() != "m1" {
		t.Error("marker lost across snapshot")
	}
	conv.ClearPendingTurn()
	if conv.HasPendingTurn() {
		t.Error("marker not cleared")
	}
}
