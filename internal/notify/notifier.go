// Package notify fans operational messages out to chat and log sinks. Sending
// never blocks the caller and never fails it.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Message is one operational notification.
type Message struct {
	Identity string    `json:"identity"` // Display name the message is sent as
	Text     string    `json:"text"`
	TraceID  string    `json:"trace_id,omitempty"`
	Time     time.Time `json:"time"`
}

// Sink delivers messages to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Notifier queues messages and delivers them from a single worker goroutine.
// A nil *Notifier accepts and discards everything.
type Notifier struct {
	sinks       []Sink
	queue       chan Message
	sendTimeout time.Duration
	done        chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// Options configures a Notifier.
type Options struct {
	QueueSize   int
	SendTimeout time.Duration
}

// New starts a notifier delivering to sinks.
func New(sinks []Sink, opts Options) *Notifier {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	n := &Notifier{
		sinks:       sinks,
		queue:       make(chan Message, opts.QueueSize),
		sendTimeout: opts.SendTimeout,
		done:        make(chan struct{}),
	}
	go n.run()
	return n
}

// Send queues text under identity.
func (n *Notifier) Send(identity, text string) {
	n.Notify(Message{Identity: identity, Text: text})
}

// Notify queues msg. When the queue is full the message is dropped.
func (n *Notifier) Notify(msg Message) {
	if n == nil {
		return
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now().UTC()
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- msg:
	default:
		n.dropped.Add(1)
		slog.Warn("Notification queue full, dropping message", "trace_id", msg.TraceID)
	}
}

// Dropped returns how many messages were discarded because the queue was full.
func (n *Notifier) Dropped() int64 {
	if n == nil {
		return 0
	}
	return n.dropped.Load()
}

// Close stops accepting messages and waits until queued ones are delivered
// or ctx ends.
func (n *Notifier) Close(ctx context.Context) error {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	for msg := range n.queue {
		for _, sink := range n.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), n.sendTimeout)
			if err := sink.Send(ctx, msg); err != nil {
				slog.Warn("Notification failed", "sink", sink.Name(), "trace_id", msg.TraceID, "error", err)
			}
			cancel()
		}
	}
}

// LogSink writes notifications to the structured log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Send(ctx context.Context, msg Message) error {
	slog.Info("Notification", "identity", msg.Identity, "text", msg.Text, "trace_id", msg.TraceID)
	return nil
}
