package notifications

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a domain event broadcast to dashboard clients
type EventType string

const (
	EventProjectCreated       EventType = "project.created"
	EventProjectStatusChanged EventType = "project.status_changed"
	EventMeasurementSynced    EventType = "measurement.synced"
	EventVerificationOpened   EventType = "verification.opened"
	EventVerificationClosed   EventType = "verification.closed"
	EventCreditsMinted        EventType = "credits.minted"
	EventCreditsTransferred   EventType = "credits.transferred"
	EventCreditsRetired       EventType = "credits.retired"
)

// Event is a serializable domain event
type Event struct {
	Type       EventType              `json:"type"`
	ProjectID  uuid.UUID              `json:"project_id"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Publisher fans domain events out to interested consumers. Services hold a
// Publisher and never know who listens.
type Publisher interface {
	Publish(event Event)
}

// Bus is an in-process publisher with buffered subscriber channels. A slow
// subscriber drops events rather than blocking a domain service.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Event
}

// NewBus creates an event bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel receiving every subsequent event
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 64)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish delivers the event to every subscriber without blocking
func (b *Bus) Publish(event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// NopPublisher discards events; used by tests that don't assert on them
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
