// Package trace publishes bus primitives to subscribers for logging and
// debugging.
package trace

import (
	"fmt"
	"sync"
	"time"

	"github.com/micro-nova/tinyi2c/internal/twi"
)

const subBufferSize = 64

// Kind is the bus primitive an Event describes.
type Kind uint8

const (
	KindStart Kind = iota
	KindWrite
	KindRead
	KindStop
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindWrite:
		return "write"
	case KindRead:
		return "read"
	case KindStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Event is one primitive as seen by the master.
type Event struct {
	Kind Kind
	Addr uint8
	Dir  twi.Direction
	Byte byte
	// Ack is the acknowledge outcome: the peripheral's for Start and Write,
	// the master's for Read.
	Ack  bool
	Time time.Time
}

func (e Event) String() string {
	ack := "NACK"
	if e.Ack {
		ack = "ACK"
	}
	switch e.Kind {
	case KindStart:
		return fmt.Sprintf("START 0x%02x %v %s", e.Addr, e.Dir, ack)
	case KindWrite:
		return fmt.Sprintf("WRITE 0x%02x %s", e.Byte, ack)
	case KindRead:
		return fmt.Sprintf("READ 0x%02x %s", e.Byte, ack)
	case KindStop:
		return "STOP"
	}
	return "unknown event"
}

// Hub is a non-blocking publish-subscribe hub for bus events.
// Subscribers that are slow to consume events will have events dropped rather
// than blocking the bus.
type Hub struct {
	mu   sync.Mutex
	subs map[string]chan Event
}

// NewHub creates a new event hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]chan Event),
	}
}

// Subscribe creates a new subscription with the given ID.
// Call Unsubscribe when done to clean up.
func (h *Hub) Subscribe(id string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Event, subBufferSize)
	h.subs[id] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish sends an event to all subscribers, dropping it for full ones.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// SubscriberCount returns the current number of subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
