// Package events holds per-session queues of pipeline progress events.
//
// Producers publish without ever blocking; a consumer drains the queue,
// which hands over ownership of the events and resets it. Consumers that do
// not want to poll wait on Ready, which is closed once the queue has
// something to drain.
package events

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"ai-datalab/internal/logging"
)

type Kind string

const (
	KindStatus   Kind = "status"
	KindPreview  Kind = "preview"
	KindError    Kind = "error"
	KindComplete Kind = "complete"
)

// Event is a single progress notification for one session.
type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Kind      Kind           `json:"type"`
	Payload   map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

type queue struct {
	events  []Event
	ready   chan struct{}
	touched time.Time
}

// Bus is safe for concurrent use.
type Bus struct {
	mu      sync.Mutex
	queues  map[string]*queue
	depth   int
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
	log     *zap.Logger
}

// NewBus creates a bus keeping at most depth events per session; older
// events are dropped first. A depth of zero disables the bound.
func NewBus(depth int, logger *zap.Logger) *Bus {
	return &Bus{
		queues:  make(map[string]*queue),
		depth:   depth,
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
		log:     logging.OrNop(logger).Named("events"),
	}
}

// Publish appends an event to the session's queue.
func (b *Bus) Publish(sessionID string, kind Kind, payload map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	q := b.queueLocked(sessionID, now)
	q.events = append(q.events, Event{
		ID:        ulid.MustNew(ulid.Timestamp(now), b.entropy).String(),
		SessionID: sessionID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: now,
	})
	if b.depth > 0 && len(q.events) > b.depth {
		dropped := len(q.events) - b.depth
		q.events = append([]Event(nil), q.events[dropped:]...)
		b.log.Debug("event queue full, dropped oldest",
			zap.String("session_id", sessionID), zap.Int("dropped", dropped))
	}
	if q.ready != nil {
		close(q.ready)
		q.ready = nil
	}
}

// Drain returns every queued event for the session in publish order and
// empties the queue. Unknown sessions yield an empty slice.
func (b *Bus) Drain(sessionID string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[sessionID]
	if !ok || len(q.events) == 0 {
		return []Event{}
	}
	out := q.events
	q.events = nil
	q.touched = b.now()
	return out
}

// Ready returns a channel that is closed once the session has events to
// drain. If events are already queued the channel is closed on return.
func (b *Bus) Ready(sessionID string) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queueLocked(sessionID, b.now())
	if len(q.events) > 0 {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	if q.ready == nil {
		q.ready = make(chan struct{})
	}
	return q.ready
}

// Len reports how many events are waiting for the session.
func (b *Bus) Len(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[sessionID]; ok {
		return len(q.events)
	}
	return 0
}

// Sweep forgets queues that saw no publish, drain or subscription for
// longer than idle and returns how many were removed. Waiters on a swept
// queue are released so they can re-subscribe.
func (b *Bus) Sweep(idle time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-idle)
	removed := 0
	for id, q := range b.queues {
		if q.touched.After(cutoff) {
			continue
		}
		if q.ready != nil {
			close(q.ready)
		}
		delete(b.queues, id)
		removed++
	}
	return removed
}

func (b *Bus) queueLocked(sessionID string, now time.Time) *queue {
	q, ok := b.queues[sessionID]
	if !ok {
		q = &queue{}
		b.queues[sessionID] = q
	}
	q.touched = now
	return q
}
