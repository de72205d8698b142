package websocket

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/infrastructure/realtime"
)

func testClient(h *Hub, id, userID string) *Client {
	c := newClient(id, userID, nil, h, zap.NewNop())
	h.add(c)
	return c
}

func drain(c *Client) []Frame {
	var out []Frame
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return out
			}
			var f Frame
			_ = json.Unmarshal(data, &f)
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestDeliverRouting(t *testing.T) {
	h := NewHub(zap.NewNop())
	alice1 := testClient(h, "c1", "alice")
	alice2 := testClient(h, "c2", "alice")
	bob := testClient(h, "c3", "bob")
	carol := testClient(h, "c4", "carol")
	h.Join(alice1, "conv")
	h.Join(bob, "conv")

	tests := []struct {
		name   string
		target realtime.Target
		want   map[*Client]int
	}{
		{"client wins over user", realtime.Target{ClientID: "c2", UserID: "bob"}, map[*Client]int{alice2: 1}},
		{"all sockets of a user", realtime.Target{UserID: "alice"}, map[*Client]int{alice1: 1, alice2: 1}},
		{"room except sender", realtime.Target{ConversationID: "conv", ExceptUserID: "alice"}, map[*Client]int{bob: 1}},
		{"whole room", realtime.Target{ConversationID: "conv"}, map[*Client]int{alice1: 1, bob: 1}},
		{"unknown client", realtime.Target{ClientID: "nope"}, map[*Client]int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := realtime.NewEnvelope(realtime.EventUserTyping, tt.target, map[string]bool{"isTyping": true})
			if err != nil {
				t.Fatal(err)
			}
			h.Deliver(context.Background(), env)
			for _, c := range []*Client{alice1, alice2, bob, carol} {
				frames := drain(c)
				if len(frames) != tt.want[c] {
					t.Errorf("%s got %d frames, want %d", c.ID, len(frames), tt.want[c])
				}
				for _, f := range frames {
					if f.Type != realtime.EventUserTyping || string(f.Data) != `{"isTyping":true}` {
						t.Errorf("frame = %+v", f)
					}
				}
			}
		})
	}
}

func TestRemoveLeavesRooms(t *testing.T) {
	h := NewHub(zap.NewNop())
	a := testClient(h, "c1", "alice")
	b := testClient(h, "c2", "bob")
	h.Join(a, "conv")
	h.Join(b, "conv")

	h.remove(a)
	h.remove(a)
	if _, ok := <-a.send; ok {
		t.Error("send channel should be closed")
	}
	if h.ClientCount() != 1 {
		t.Errorf("clients = %d", h.ClientCount())
	}
	if len(h.rooms["conv"]) != 1 {
		t.Errorf("room = %v", h.rooms["conv"])
	}

	h.remove(b)
	if _, ok := h.rooms["conv"]; ok {
		t.Error("empty room should be dropped")
	}

	// Joining after removal is a no-op.
	h.Join(a, "other")
	if _, ok := h.rooms["other"]; ok {
		t.Error("removed client joined a room")
	}
}

func TestRunShutdownRejectsNewClients(t *testing.T) {
	h := NewHub(zap.NewNop())
	a := testClient(h, "c1", "alice")
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	if _, ok := <-a.send; ok {
		t.Error("client should be closed on shutdown")
	}
	if h.add(newClient("c2", "bob", nil, h, zap.NewNop())) {
		t.Error("add after shutdown should fail")
	}
}

func TestDecodeAudio(t *testing.T) {
	audio, mime, err := decodeAudio("data:audio/ogg;base64,aGVsbG8=", "")
	if err != nil || string(audio) != "hello" || mime != "audio/ogg" {
		t.Errorf("data url = %q %q %v", audio, mime, err)
	}
	audio, mime, err = decodeAudio("aGVsbG8=", "audio/wav")
	if err != nil || string(audio) != "hello" || mime != "audio/wav" {
		t.Errorf("plain = %q %q %v", audio, mime, err)
	}
	for _, bad := range []string{"", "!!!", "data:audio/webm;base64"} {
		if _, _, err := decodeAudio(bad, ""); err == nil {
			t.Errorf("%q should fail", bad)
		}
	}
}
