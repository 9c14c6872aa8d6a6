package pubsub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/Billy-Davies-2/frc-line-service/internal/logger"
)

// DefaultStreamName is the JetStream stream holding line events
const DefaultStreamName = "LINE_EVENTS"

// JetStreamPubSub publishes events to a NATS JetStream subject and
// forwards every message on that subject to local subscribers. It backs
// both an external NATS deployment and the embedded development server.
type JetStreamPubSub struct {
	server  *server.Server // nil when connected to an external server
	nc      *nats.Conn
	js      nats.JetStreamContext
	sub     *nats.Subscription
	subject string
	local   *fanout
}

// EmbeddedNATSOptions configures the embedded NATS server
type EmbeddedNATSOptions struct {
	Port       int    // 0 or -1 picks a random port
	Subject    string
	StreamName string
	StoreDir   string // empty keeps the stream in memory
}

// DefaultEmbeddedNATSOptions returns development defaults
func DefaultEmbeddedNATSOptions() EmbeddedNATSOptions {
	return EmbeddedNATSOptions{
		Port:       -1,
		Subject:    "line.events",
		StreamName: DefaultStreamName,
	}
}

// NewNATSPubSub connects to an external NATS server. The stream is created
// with file storage if it does not exist yet.
func NewNATSPubSub(natsURL, subject string) (*JetStreamPubSub, error) {
	nc, err := nats.Connect(natsURL, nats.Name("frc-line-service"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	ps, err := attach(nc, &nats.StreamConfig{
		Name:     DefaultStreamName,
		Subjects: []string{subject},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("Connected to NATS", "url", natsURL, "subject", subject)
	return ps, nil
}

// NewEmbeddedNATSPubSub starts an in-process NATS server with JetStream
// enabled and connects to it.
func NewEmbeddedNATSPubSub(opts EmbeddedNATSOptions) (*JetStreamPubSub, error) {
	port := opts.Port
	if port == 0 {
		port = -1
	}

	ns, err := server.NewServer(&server.Options{
		Port:      port,
		JetStream: true,
		StoreDir:  opts.StoreDir,
		NoSigs:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}
	ns.SetLogger(&natsLogger{}, false, false)

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start within timeout")
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	streamName := opts.StreamName
	if streamName == "" {
		streamName = DefaultStreamName
	}

	ps, err := attach(nc, &nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{opts.Subject},
		Storage:  nats.MemoryStorage,
		MaxAge:   time.Hour,
	})
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, err
	}
	ps.server = ns

	logger.Info("Embedded NATS server started", "url", ns.ClientURL(), "stream", streamName)
	return ps, nil
}

// attach ensures the stream exists and starts delivering new messages to
// local subscribers.
func attach(nc *nats.Conn, cfg *nats.StreamConfig) (*JetStreamPubSub, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(cfg.Name); err != nil {
		if _, err := js.AddStream(cfg); err != nil {
			return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
		}
	}

	p := &JetStreamPubSub{
		nc:      nc,
		js:      js,
		subject: cfg.Subjects[0],
		local:   newFanout("JetStream", 100),
	}

	p.sub, err = js.Subscribe(p.subject, p.handle, nats.ManualAck(), nats.DeliverNew())
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", p.subject, err)
	}

	return p, nil
}

func (p *JetStreamPubSub) handle(msg *nats.Msg) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logger.Error("Failed to unmarshal event from JetStream", "error", err)
		msg.Term()
		return
	}

	p.local.broadcast(event)
	msg.Ack()
}

// Publish publishes an event to the JetStream subject
func (p *JetStreamPubSub) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal event", "error", err, "type", event.Type)
		return
	}

	if _, err := p.js.Publish(p.subject, data); err != nil {
		logger.Error("Failed to publish to NATS", "error", err, "subject", p.subject, "type", event.Type)
		return
	}

	logger.Debug("Published event to NATS", "type", event.Type, "subject", p.subject)
}

// Subscribe creates a subscription channel for events
func (p *JetStreamPubSub) Subscribe() chan Event {
	return p.local.add()
}

// Unsubscribe removes a subscription channel
func (p *JetStreamPubSub) Unsubscribe(ch chan Event) {
	p.local.remove(ch)
}

// SubscriberCount returns the number of active local subscribers
func (p *JetStreamPubSub) SubscriberCount() int {
	return p.local.count()
}

// ServerURL returns the client URL of the embedded server, or the
// connected URL for an external one.
func (p *JetStreamPubSub) ServerURL() string {
	if p.server != nil {
		return p.server.ClientURL()
	}
	return p.nc.ConnectedUrl()
}

// Ping reports whether the NATS connection is usable
func (p *JetStreamPubSub) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats connection status %s", p.nc.Status())
	}
	return nil
}

// Close drains the subscription and shuts down the embedded server if any
func (p *JetStreamPubSub) Close() {
	if p.sub != nil {
		_ = p.sub.Unsubscribe()
	}
	p.local.closeAll()
	p.nc.Close()

	if p.server != nil {
		p.server.Shutdown()
		p.server.WaitForShutdown()
		logger.Info("Embedded NATS server shut down")
	}
}

// natsLogger routes embedded server logs through the service logger
type natsLogger struct{}

func (l *natsLogger) Noticef(format string, v ...interface{}) {
	logger.Debug(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Warnf(format string, v ...interface{}) {
	logger.Warn(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Fatalf(format string, v ...interface{}) {
	logger.Error(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Errorf(format string, v ...interface{}) {
	logger.Error(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Debugf(format string, v ...interface{}) {
	logger.Debug(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Tracef(format string, v ...interface{}) {
	logger.Debug(fmt.Sprintf("[NATS TRACE] "+format, v...))
}
