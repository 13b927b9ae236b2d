// Package events is the append-only notification stream the core publishes
// to. State correctness never depends on an event being observed.
package events

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Event is a broadcastable notification with flat string attributes.
type Event struct {
	Type       string
	Source     common.Address
	Timestamp  uint64
	Attributes map[string]string
}

// Payload is implemented by typed event structs.
type Payload interface {
	EventType() string
	Attributes() map[string]string
}

// Emitter receives events.
type Emitter interface {
	Emit(Event)
}

// New converts a payload into an Event.
func New(source common.Address, timestamp uint64, p Payload) Event {
	return Event{
		Type:       p.EventType(),
		Source:     source,
		Timestamp:  timestamp,
		Attributes: p.Attributes(),
	}
}

// Publish emits p through e; a nil emitter drops it.
func Publish(e Emitter, source common.Address, timestamp uint64, p Payload) {
	if e == nil {
		return
	}
	e.Emit(New(source, timestamp, p))
}

// Log is an in-memory append-only Emitter.
type Log struct {
	mu     sync.RWMutex
	events []Event
}

func NewLog() *Log { return &Log{} }

func (l *Log) Emit(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

// Len returns the number of events emitted so far.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Since returns a copy of the events at positions >= cursor.
func (l *Log) Since(cursor int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(l.events) {
		return nil
	}
	out := make([]Event, len(l.events)-cursor)
	copy(out, l.events[cursor:])
	return out
}

// Filter returns every event of the given type.
func (l *Log) Filter(eventType string) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
