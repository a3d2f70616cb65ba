package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types published on the hub.
const (
	EventConnection         = "connection"
	EventKeyboardConnection = "keyboard_connection"
	EventSync               = "sync"
)

// Event is one notification delivered to console subscribers.
type Event struct {
	Type      string    `json:"type"`
	Connected *bool     `json:"connected,omitempty"`
	Op        string    `json:"op,omitempty"`
	OK        *bool     `json:"ok,omitempty"`
	Message   string    `json:"message,omitempty"`
	Time      time.Time `json:"time"`
}

// EventHub fans events out to subscribers. Slow subscribers lose events
// instead of blocking the publisher.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	buffer      int
	logger      *zap.Logger
}

// NewEventHub creates a hub with the given per-subscriber buffer.
func NewEventHub(buffer int, logger *zap.Logger) *EventHub {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHub{
		subscribers: make(map[string]chan Event),
		buffer:      buffer,
		logger:      logger.Named("events"),
	}
}

// Subscribe registers a new subscriber.
func (h *EventHub) Subscribe() (string, <-chan Event) {
	id := uuid.New().String()
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *EventHub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

// Subscribers returns the number of active subscribers.
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish delivers e to every subscriber.
func (h *EventHub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subscribers {
		select {
		case ch <- e:
		default:
			h.logger.Debug("dropping event for slow subscriber", zap.String("subscriber", id), zap.String("type", e.Type))
		}
	}
}

// Attach publishes monitor transitions and coordinator outcomes.
func (h *EventHub) Attach(monitor *ConnectionMonitor, coordinator *SyncCoordinator) {
	if monitor != nil {
		monitor.OnConnectionChanged(func(connected bool) {
			h.Publish(Event{Type: EventConnection, Connected: &connected})
		})
		monitor.OnSecondaryChanged(func(connected bool) {
			h.Publish(Event{Type: EventKeyboardConnection, Connected: &connected})
		})
	}
	if coordinator != nil {
		coordinator.OnOutcome(func(op string, out Outcome) {
			ok := out.OK
			h.Publish(Event{Type: EventSync, Op: op, OK: &ok, Message: out.Message})
		})
	}
}
