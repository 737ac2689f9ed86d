// Package events defines the progress notifications produced while a
// streaming analysis runs and the sinks that deliver them.
//
// An event is a (type, data, timestamp) triple. Sinks are append-only: the
// producer hands every event over as soon as it exists and keeps no history.
package events

import (
	"sync"
	"time"
)

// Kind identifies an event.
type Kind string

const (
	KindThinkingStart  Kind = "thinking_start"
	KindThinkingDelta  Kind = "thinking_delta"
	KindSearchStart    Kind = "search_start"
	KindSearchComplete Kind = "search_complete"
	KindSearchQuery    Kind = "search_query"
	KindAnswerStart    Kind = "answer_start"
	KindAnswerDelta    Kind = "answer_delta"
	KindComplete       Kind = "complete"
	KindError          Kind = "error"
)

// Known reports whether k is one of the kinds this package defines.
func (k Kind) Known() bool {
	switch k {
	case KindThinkingStart, KindThinkingDelta,
		KindSearchStart, KindSearchComplete, KindSearchQuery,
		KindAnswerStart, KindAnswerDelta,
		KindComplete, KindError:
		return true
	}
	return false
}

// Terminal reports whether k ends an operation's event sequence.
func (k Kind) Terminal() bool {
	return k == KindComplete || k == KindError
}

// TimestampLayout is ISO-8601 with microseconds and zone offset.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Event is one serialized notification.
type Event struct {
	Type      Kind   `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// New stamps an event with the given time.
func New(kind Kind, data any, at time.Time) Event {
	return Event{
		Type:      kind,
		Data:      data,
		Timestamp: Timestamp(at),
	}
}

// Timestamp formats t the way event timestamps are written.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Emitter is an append-only event sink.
type Emitter interface {
	// Emit delivers one event. Implementations must not buffer it.
	Emit(kind Kind, data any) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(kind Kind, data any) error

// Emit calls f(kind, data).
func (f EmitterFunc) Emit(kind Kind, data any) error {
	return f(kind, data)
}

type discard struct{}

func (discard) Emit(Kind, any) error { return nil }

// Discard drops every event.
var Discard Emitter = discard{}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	now    func() time.Time
}

// NewRecorder returns an empty recorder stamping events with time.Now.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Emit records the event.
func (r *Recorder) Emit(kind Kind, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now
	if now == nil {
		now = time.Now
	}
	r.events = append(r.events, New(kind, data, now()))
	return nil
}

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the recorded event kinds in emission order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == kind {
			n++
		}
	}
	return n
}
