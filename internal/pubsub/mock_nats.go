package pubsub

import (
	"sync"

	"github.com/Billy-Davies-2/frc-line-service/internal/logger"
)

// MockNATSPubSub stands in for JetStream in development. It keeps the
// most recent events so late subscribers can replay them, the way a
// JetStream consumer with a start sequence would.
type MockNATSPubSub struct {
	subject string
	local   *fanout

	mu          sync.RWMutex
	messages    []Event
	maxMessages int
}

// NewMockNATSPubSub creates a mock JetStream bus retaining up to maxMessages events
func NewMockNATSPubSub(subject string, maxMessages int) *MockNATSPubSub {
	if maxMessages <= 0 {
		maxMessages = 1000
	}
	logger.Info("Using mock NATS pub/sub", "subject", subject)

	return &MockNATSPubSub{
		subject:     subject,
		local:       newFanout("Mock NATS", 100),
		messages:    []Event{},
		maxMessages: maxMessages,
	}
}

// Publish stores the event and delivers it to subscribers
func (p *MockNATSPubSub) Publish(event Event) {
	p.mu.Lock()
	p.messages = append(p.messages, event)
	if len(p.messages) > p.maxMessages {
		p.messages = p.messages[len(p.messages)-p.maxMessages:]
	}
	p.mu.Unlock()

	p.local.broadcast(event)
	logger.Debug("Mock NATS: Published event", "type", event.Type, "subject", p.subject)
}

// Subscribe creates a subscription channel for events
func (p *MockNATSPubSub) Subscribe() chan Event {
	return p.local.add()
}

// Unsubscribe removes a subscription channel
func (p *MockNATSPubSub) Unsubscribe(ch chan Event) {
	p.local.remove(ch)
}

// Replay sends up to count of the most recent events to ch, oldest
// first. Events that do not fit in ch are dropped.
func (p *MockNATSPubSub) Replay(ch chan Event, count int) int {
	recent := p.Recent(count)

	sent := 0
	for _, event := range recent {
		select {
		case ch <- event:
			sent++
		default:
			logger.Warn("Mock NATS: Channel full during replay", "type", event.Type)
		}
	}
	return sent
}

// Recent returns up to count of the most recent events, oldest first
func (p *MockNATSPubSub) Recent(count int) []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()

	start := len(p.messages) - count
	if start < 0 || count <= 0 {
		start = 0
	}

	out := make([]Event, len(p.messages)-start)
	copy(out, p.messages[start:])
	return out
}

var _ Replayer = (*MockNATSPubSub)(nil)

// SubscriberCount returns the number of active subscribers
func (p *MockNATSPubSub) SubscriberCount() int {
	return p.local.count()
}

// Close closes all subscriptions
func (p *MockNATSPubSub) Close() {
	p.local.closeAll()
}
