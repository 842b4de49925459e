package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"stockroom/backend/internal/domain"
	"stockroom/backend/internal/xid"
)

// Notifier emits user-facing notifications. Implementations must not block
// the caller or report failures back to it.
type Notifier interface {
	Notify(ctx context.Context, message string, severity domain.Severity, audience domain.Audience)
}

// AuditLogger records who did what. Same fire-and-forget contract as Notifier.
type AuditLogger interface {
	Log(ctx context.Context, action string, module string, description string, actor domain.Actor)
}

type Kind string

const (
	KindAudit        Kind = "audit"
	KindNotification Kind = "notification"
)

type Event struct {
	Kind         Kind                 `json:"kind"`
	Audit        *domain.AuditLog     `json:"audit,omitempty"`
	Notification *domain.Notification `json:"notification,omitempty"`
}

// Sink consumes events on the gateway's worker goroutine.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// Gateway queues audit and notification events and hands them to sinks on a
// single background worker. Publishing never blocks: when the queue is full
// or the gateway is closed the event is dropped with a warning.
type Gateway struct {
	queue   chan Event
	sinks   []Sink
	log     *logrus.Entry
	timeout time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	closed  bool
	started sync.Once
	done    chan struct{}
}

func NewGateway(logger *logrus.Logger, bufferSize int, sinks ...Sink) *Gateway {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if bufferSize < 1 {
		bufferSize = 256
	}
	return &Gateway{
		queue:   make(chan Event, bufferSize),
		sinks:   sinks,
		log:     logger.WithField("component", "events"),
		timeout: 5 * time.Second,
		now:     func() time.Time { return time.Now().UTC() },
		done:    make(chan struct{}),
	}
}

// Start launches the worker. Calling it more than once is a no-op.
func (g *Gateway) Start() {
	g.started.Do(func() {
		go g.run()
	})
}

// Close stops accepting events and waits for queued ones to be delivered.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		<-g.done
		return
	}
	g.closed = true
	close(g.queue)
	g.mu.Unlock()

	g.Start()
	<-g.done
}

func (g *Gateway) Notify(_ context.Context, message string, severity domain.Severity, audience domain.Audience) {
	if severity == "" {
		severity = domain.SeverityInfo
	}
	g.publish(Event{
		Kind: KindNotification,
		Notification: &domain.Notification{
			ID:        xid.New("ntf"),
			Message:   message,
			Severity:  severity,
			Audience:  audience,
			CreatedAt: g.now(),
		},
	})
}

func (g *Gateway) Log(_ context.Context, action string, module string, description string, actor domain.Actor) {
	if actor.Username == "" {
		actor = domain.Actor{ID: "system", Username: "system", Role: "system"}
	}
	g.publish(Event{
		Kind: KindAudit,
		Audit: &domain.AuditLog{
			ID:            xid.New("audit"),
			Action:        action,
			Module:        module,
			Description:   description,
			ActorID:       actor.ID,
			ActorUsername: actor.Username,
			CreatedAt:     g.now(),
		},
	})
}

func (g *Gateway) publish(event Event) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		g.log.WithField("kind", event.Kind).Warn("gateway closed, event dropped")
		return
	}
	select {
	case g.queue <- event:
	default:
		g.log.WithField("kind", event.Kind).Warn("event queue full, event dropped")
	}
}

func (g *Gateway) run() {
	defer close(g.done)
	for event := range g.queue {
		for _, sink := range g.sinks {
			g.deliver(sink, event)
		}
	}
}

func (g *Gateway) deliver(sink Sink, event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			g.log.WithFields(logrus.Fields{"sink": sink.Name(), "kind": event.Kind}).Warn(fmt.Sprintf("sink panicked: %v", r))
		}
	}()
	if err := sink.Deliver(ctx, event); err != nil {
		g.log.WithFields(logrus.Fields{
			"sink": sink.Name(),
			"kind": event.Kind,
		}).WithError(err).Warn("event delivery failed")
	}
}
