// Package events is the in-process bus for booking domain events and its
// external sinks.
package events

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"studiotblack/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	BookingCreated       = "booking.created"
	BookingCancelled     = "booking.cancelled"
	BookingStatusChanged = "booking.status_changed"
)

// BookingTypes lists every booking event type.
var BookingTypes = []string{BookingCreated, BookingCancelled, BookingStatusChanged}

// Event is a booking change as it travels over the bus. Key orders
// events of the same booking on partitioned sinks.
type Event struct {
	ID      string
	Type    string
	Key     string
	Payload []byte
	At      time.Time
}

// NewBookingEvent builds an event carrying b as JSON, keyed by booking id.
func NewBookingEvent(eventType string, b model.Booking) (Event, error) {
	payload, err := json.Marshal(b)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Key:     b.ID,
		Payload: payload,
		At:      time.Now(),
	}, nil
}

// Booking decodes the booking carried by e.
func (e Event) Booking() (model.Booking, error) {
	var b model.Booking
	err := json.Unmarshal(e.Payload, &b)
	return b, err
}

type Handler func(ctx context.Context, event Event) error

// Bus fans events out to the handlers subscribed to their type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *zerolog.Logger
}

func NewBus(logger *zerolog.Logger) *Bus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "events").Logger()
	return &Bus{handlers: map[string][]Handler{}, log: &l}
}

// Subscribe registers h for each of types.
func (b *Bus) Subscribe(h Handler, types ...string) {
	b.mu.Lock()
	for _, t := range types {
		b.handlers[t] = append(b.handlers[t], h)
	}
	b.mu.Unlock()
}

// Publish runs the handlers of event.Type in subscription order on the
// caller's goroutine. A failing handler is logged and does not stop the rest.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mu.RLock()
	subs := slices.Clone(b.handlers[event.Type])
	b.mu.RUnlock()

	for _, h := range subs {
		if err := h(ctx, event); err != nil {
			b.log.Error().Err(err).
				Str("event_type", event.Type).
				Str("event_id", event.ID).
				Msg("event handler failed")
		}
	}
}
