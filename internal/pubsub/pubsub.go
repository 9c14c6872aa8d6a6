package pubsub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Billy-Davies-2/frc-line-service/internal/logger"
)

// Event types published by the market service
const (
	EventMatchPredicted     = "match:predicted"
	EventBetPlaced          = "bet:placed"
	EventSimulationComplete = "simulation:complete"
)

// Event represents a pubsub event
type Event struct {
	Type      string                 `json:"type"`
	MatchID   string                 `json:"matchId,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent builds an event whose payload is the JSON object form of v.
// A v that does not encode to a JSON object leaves the payload empty.
func NewEvent(eventType, matchID string, v any) Event {
	ev := Event{Type: eventType, MatchID: matchID, Timestamp: time.Now().UTC()}
	if v == nil {
		return ev
	}

	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("PubSub: payload not encodable", "type", eventType, "error", err)
		return ev
	}
	if err := json.Unmarshal(data, &ev.Payload); err != nil {
		logger.Warn("PubSub: payload is not an object", "type", eventType, "error", err)
	}
	return ev
}

// Publisher is what the market service needs from an event bus
type Publisher interface {
	Publish(Event)
}

// Replayer is implemented by upstreams that retain recent events
type Replayer interface {
	Replay(ch chan Event, count int) int
}

// Upstream is an interface for upstream publishers (e.g., NATS)
type Upstream interface {
	Publish(Event)
	Subscribe() chan Event
	Unsubscribe(chan Event)
}

// fanout is a set of buffered subscriber channels. Delivery never blocks:
// a full channel misses the event.
type fanout struct {
	mu          sync.RWMutex
	subscribers []chan Event
	buffer      int
	name        string
}

func newFanout(name string, buffer int) *fanout {
	return &fanout{subscribers: []chan Event{}, buffer: buffer, name: name}
}

func (f *fanout) add() chan Event {
	ch := make(chan Event, f.buffer)

	f.mu.Lock()
	f.subscribers = append(f.subscribers, ch)
	count := len(f.subscribers)
	f.mu.Unlock()

	logger.Debug(f.name+": New subscriber added", "totalSubscribers", count)
	return ch
}

// addReplayed registers a channel preloaded by fill. The write lock keeps
// live broadcasts behind the preloaded events.
func (f *fanout) addReplayed(fill func(ch chan Event) int) chan Event {
	ch := make(chan Event, f.buffer)

	f.mu.Lock()
	replayed := fill(ch)
	f.subscribers = append(f.subscribers, ch)
	count := len(f.subscribers)
	f.mu.Unlock()

	logger.Debug(f.name+": New subscriber added", "totalSubscribers", count, "replayed", replayed)
	return ch
}

func (f *fanout) remove(ch chan Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, sub := range f.subscribers {
		if sub == ch {
			close(ch)
			f.subscribers = append(f.subscribers[:i], f.subscribers[i+1:]...)
			logger.Debug(f.name+": Subscriber removed", "remainingSubscribers", len(f.subscribers))
			return
		}
	}
}

func (f *fanout) broadcast(event Event) {
	// sends never block, so holding the read lock keeps remove from
	// closing a channel mid-send
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, ch := range f.subscribers {
		select {
		case ch <- event:
		default:
			logger.Warn(f.name+": Skipping slow subscriber", "type", event.Type)
		}
	}
}

func (f *fanout) count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subscribers {
		close(ch)
	}
	f.subscribers = nil
}

// PubSub is the in-process event bus used by the HTTP SSE and gRPC
// stream endpoints.
type PubSub struct {
	local    *fanout
	upstream Upstream
}

// New creates a new PubSub instance
func New() *PubSub {
	return &PubSub{local: newFanout("PubSub", 10)}
}

// NewWithUpstream creates a PubSub that bridges to an upstream publisher.
// Publish goes to the upstream, which broadcasts back to every instance;
// events arriving from the upstream are forwarded to local subscribers.
func NewWithUpstream(upstream Upstream) *PubSub {
	ps := &PubSub{local: newFanout("PubSub", 10), upstream: upstream}

	ch := upstream.Subscribe()
	go func() {
		for event := range ch {
			ps.local.broadcast(event)
		}
		logger.Debug("PubSub: Upstream channel closed")
	}()

	return ps
}

// Subscribe adds a new subscriber and returns a channel for receiving events
func (ps *PubSub) Subscribe() chan Event {
	return ps.local.add()
}

// SubscribeReplay subscribes like Subscribe, first filling the channel with
// up to count recent events when the upstream retains them. count is capped
// by the subscriber buffer.
func (ps *PubSub) SubscribeReplay(count int) chan Event {
	replayer, ok := ps.upstream.(Replayer)
	if !ok || count <= 0 {
		return ps.local.add()
	}
	if count > ps.local.buffer {
		count = ps.local.buffer
	}

	return ps.local.addReplayed(func(ch chan Event) int {
		return replayer.Replay(ch, count)
	})
}

// Unsubscribe removes a subscriber and closes its channel
func (ps *PubSub) Unsubscribe(ch chan Event) {
	ps.local.remove(ch)
}

// SubscriberCount returns the number of local subscribers
func (ps *PubSub) SubscriberCount() int {
	return ps.local.count()
}

// Publish sends an event to all subscribers, through the upstream when one is set
func (ps *PubSub) Publish(event Event) {
	if ps.upstream != nil {
		ps.upstream.Publish(event)
		return
	}
	ps.local.broadcast(event)
}
