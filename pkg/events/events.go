package events

import (
	"sync"
	"time"

	"pairdb/pkg/logger"
)

// Event types published by the service layer.
const (
	ConversationCreated   = "conversation_created"
	MessageSent           = "message_sent"
	MessageDeleted        = "message_deleted"
	ReactionToggled       = "reaction_toggled"
	ReadWatermarkAdvanced = "read_watermark_advanced"
	PresenceUpdated       = "presence_updated"
	TypingChanged         = "typing_changed"
)

// Event is a best-effort notification emitted after a mutation commits.
type Event struct {
	Type         string `json:"type"`
	Conversation string `json:"conversation,omitempty"`
	User         string `json:"user,omitempty"`
	Message      string `json:"message,omitempty"`
	TS           int64  `json:"ts"`
}

// Bus broadcasts domain events to in-process subscribers.
//
// Delivery is best effort with no ordering, durability or retry
// guarantees; a subscriber that falls behind loses events. It exists for
// observability and side effects, not for core domain logic.
//
// Bus is safe for concurrent use by multiple goroutines.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewBus() *Bus { return &Bus{} }

// Subscribe registers a new subscriber and returns its channel plus a
// cancel func that removes the subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		for i, s := range b.subs {
			if s == ch {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				close(ch)
				break
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish fans the event out to every subscriber. A full subscriber
// channel drops the event rather than blocking the mutation path.
func (b *Bus) Publish(ev Event) {
	if ev.TS == 0 {
		ev.TS = time.Now().UTC().UnixNano()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			logger.Debug("event_dropped", "type", ev.Type)
		}
	}
}

// Default is the process-wide bus used by the service layer.
var Default = NewBus()

// Publish emits an event on the default bus.
func Publish(ev Event) { Default.Publish(ev) }

// Subscribe subscribes to the default bus.
func Subscribe(buffer int) (<-chan Event, func()) { return Default.Subscribe(buffer) }
