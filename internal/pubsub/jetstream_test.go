package pubsub

import (
	"testing"
	"time"
)

func newEmbedded(t *testing.T) *JetStreamPubSub {
	t.Helper()
	ps, err := NewEmbeddedNATSPubSub(DefaultEmbeddedNATSOptions())
	if err != nil {
		t.Fatalf("Failed to create embedded NATS: %v", err)
	}
	t.Cleanup(ps.Close)
	return ps
}

func TestEmbeddedNATSStarts(t *testing.T) {
	ps := newEmbedded(t)

	if ps.server == nil {
		t.Error("server should not be nil")
	}
	if ps.ServerURL() == "" {
		t.Error("server URL should not be empty")
	}
	if err := ps.Ping(); err != nil {
		t.Errorf("Ping() failed: %v", err)
	}
}

func TestEmbeddedNATSPublishAndReceive(t *testing.T) {
	ps := newEmbedded(t)
	ch1 := ps.Subscribe()
	ch2 := ps.Subscribe()

	ps.Publish(NewEvent(EventBetPlaced, "qm5", map[string]any{"amount": 25.0}))

	for _, ch := range []chan Event{ch1, ch2} {
		ev := receive(t, ch)
		if ev.Type != EventBetPlaced || ev.MatchID != "qm5" {
			t.Errorf("unexpected event: %+v", ev)
		}
		if ev.Payload["amount"] != 25.0 {
			t.Errorf("payload lost in transit: %v", ev.Payload)
		}
	}
}

func TestEmbeddedNATSUnsubscribe(t *testing.T) {
	ps := newEmbedded(t)

	ch := ps.Subscribe()
	ps.Unsubscribe(ch)

	if ps.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", ps.SubscriberCount())
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
}

func TestTwoInstancesShareEvents(t *testing.T) {
	ps := newEmbedded(t)

	// a second instance on the same server sees events from the first
	other, err := NewNATSPubSub(ps.ServerURL(), DefaultEmbeddedNATSOptions().Subject)
	if err != nil {
		t.Fatalf("NewNATSPubSub() failed: %v", err)
	}
	defer other.Close()

	ch := other.Subscribe()
	ps.Publish(Event{Type: EventMatchPredicted, MatchID: "qm8", Timestamp: time.Now()})

	if ev := receive(t, ch); ev.MatchID != "qm8" {
		t.Errorf("expected qm8, got %s", ev.MatchID)
	}
}

func TestEmbeddedNATSBridge(t *testing.T) {
	js := newEmbedded(t)
	ps := NewWithUpstream(js)
	ch := ps.Subscribe()

	ps.Publish(Event{Type: EventSimulationComplete})

	if ev := receive(t, ch); ev.Type != EventSimulationComplete {
		t.Errorf("unexpected event %s", ev.Type)
	}
}
