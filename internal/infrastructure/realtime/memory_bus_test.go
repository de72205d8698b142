package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
)

func recv(t *testing.T, ch <-chan Envelope) Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Envelope{}
}

func TestInMemoryBusDeliversInOrder(t *testing.T) {
	bus := NewInMemoryBus(zap.NewNop(), 16)
	defer bus.Close()

	got := make(chan Envelope, 4)
	if err := bus.Subscribe(context.Background(), func(_ context.Context, env Envelope) { got <- env }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for _, typ := range []string{EventMessageResponse, EventUserTyping} {
		env, _ := NewEnvelope(typ, Target{UserID: "u1"}, map[string]string{"k": typ})
		if err := bus.Publish(context.Background(), env); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	first, second := recv(t, got), recv(t, got)
	if first.Type != EventMessageResponse || second.Type != EventUserTyping {
		t.Fatalf("order = %s, %s", first.Type, second.Type)
	}
	var data map[string]string
	if err := json.Unmarshal(first.Data, &data); err != nil || data["k"] != EventMessageResponse {
		t.Errorf("data = %s", first.Data)
	}
	if first.Target.UserID != "u1" || first.Timestamp == 0 {
		t.Errorf("envelope = %+v", first)
	}
}

func TestInMemoryBusSurvivesPanickingHandler(t *testing.T) {
	bus := NewInMemoryBus(zap.NewNop(), 16)
	defer bus.Close()

	got := make(chan Envelope, 2)
	_ = bus.Subscribe(context.Background(), func(context.Context, Envelope) { panic("boom") })
	_ = bus.Subscribe(context.Background(), func(_ context.Context, env Envelope) { got <- env })

	env, _ := NewEnvelope(EventError, Target{ClientID: "c1"}, nil)
	_ = bus.Publish(context.Background(), env)
	_ = bus.Publish(context.Background(), env)

	recv(t, got)
	recv(t, got)
}

func TestInMemoryBusPublishAfterClose(t *testing.T) {
	bus := NewInMemoryBus(zap.NewNop(), 1)
	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := bus.Publish(context.Background(), Envelope{Type: EventPong}); err != ErrBusClosed {
		t.Errorf("err = %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
