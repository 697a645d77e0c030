package events

import (
	"context"
	"sync"
	"time"

	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
)

type Type string

const (
	TypeRegistered Type = "registered"
	TypeEvicted    Type = "evicted"
)

// Event is one session lifecycle transition.
type Event struct {
	ID        int64     `json:"id,omitempty"`
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Platform  string    `json:"platform,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Sink persists or forwards events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Recorder accepts events without blocking the caller.
type Recorder interface {
	Record(ev Event)
}

// Bus fans events out to every sink from a single goroutine. Record never
// blocks; when the queue is full the event is dropped and logged.
type Bus struct {
	sinks  []Sink
	queue  chan Event
	logger *Logger.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewBus(buffer int, logger *Logger.Logger, sinks ...Sink) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	b := &Bus{
		sinks:  sinks,
		queue:  make(chan Event, buffer),
		logger: logger,
		now:    time.Now,
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bus) Record(ev Event) {
	if b == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = b.now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- ev:
	default:
		b.logger.Warnf("event queue full, dropping %s for session %s", ev.Type, ev.SessionID)
	}
}

func (b *Bus) run() {
	defer close(b.done)
	for ev := range b.queue {
		for _, s := range b.sinks {
			if err := s.Publish(context.Background(), ev); err != nil {
				b.logger.Warnf("event sink failed for %s/%s: %v", ev.Type, ev.SessionID, err)
			}
		}
	}
}

// Close stops accepting events and waits until queued ones are delivered.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()
	<-b.done
}
