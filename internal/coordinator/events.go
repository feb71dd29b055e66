package coordinator

import (
	"sync"
	"time"

	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

// DefaultEventCapacity bounds the status history kept for pollers
const DefaultEventCapacity = 500

// Event is one sequenced status line
type Event = pipeline.StatusEvent

// EventBus stores recent status lines and provides incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = DefaultEventCapacity
	}
	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one line and assigns its sequence number.
func (b *EventBus) Publish(at time.Time, message string) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event := Event{Seq: b.nextSeq, Timestamp: at.UTC(), Message: message}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}
	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// LastSeq returns the sequence of the newest event, or 0
func (b *EventBus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}
