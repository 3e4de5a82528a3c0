// Package trace carries observability events to an optional backend. The
// backend itself is an excluded collaborator; only the hook contract lives
// here. A nil or disabled Bus is a safe no-op everywhere.
package trace

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// EventKind identifies the hook an event targets.
type EventKind string

const (
	// KindTrace marks the start or end of a facade operation.
	KindTrace EventKind = "trace"
	// KindGeneration marks one provider completion attempt.
	KindGeneration EventKind = "generation"
	// KindScore carries a quality judgement about a completion.
	KindScore EventKind = "score"
)

// Event is one observability record.
type Event struct {
	Kind      EventKind      `json:"kind"`
	RequestID string         `json:"request_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Model     string         `json:"model,omitempty"`
	Name      string         `json:"name"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Error     string         `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Handler consumes events on the dispatcher goroutine.
type Handler func(Event)

// Bus distributes events to handlers asynchronously through a buffered
// queue. Emitting never blocks a request path: when the queue is full the
// event is dropped and counted.
type Bus struct {
	handlers []Handler
	queue    chan Event
	ctx      context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	dropped int64
	closed  bool
	done    chan struct{}
}

// NewBus starts the dispatcher. With no handlers the bus stays inert and
// Emit is a cheap no-op.
func NewBus(handlers ...Handler) *Bus {
	b := &Bus{handlers: handlers}
	if len(handlers) == 0 {
		return b
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.queue = make(chan Event, 1000)
	b.done = make(chan struct{})
	go b.process()
	return b
}

// Emit queues an event. Safe on a nil or inert bus.
func (b *Bus) Emit(ev Event) {
	if b == nil || b.queue == nil {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case b.queue <- ev:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
	}
}

// Dropped reports how many events were discarded on a full queue.
func (b *Bus) Dropped() int64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close stops the dispatcher after draining queued events.
func (b *Bus) Close() {
	if b == nil || b.queue == nil {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.queue)
	<-b.done
	b.cancel()
}

func (b *Bus) process() {
	defer close(b.done)
	for ev := range b.queue {
		for _, h := range b.handlers {
			b.dispatch(h, ev)
		}
	}
}

func (b *Bus) dispatch(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("trace handler panic on %s event: %v", ev.Kind, r)
		}
	}()
	h(ev)
}
