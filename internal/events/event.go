// Package events defines the engine's events and routes them to listeners.
package events

import "time"

// Kind identifies an event type for subscription and routing.
type Kind string

// Engine-owned kinds. Calendar kinds (market_open, ...) are defined by the
// schedule and all route through KindTimeEvent as well.
const (
	KindAll        Kind = "all"
	KindEmptyQueue Kind = "empty_queue"
	KindEndTrading Kind = "end_trading"
	KindTimeEvent  Kind = "time_event"
)

// Event is a timestamped occurrence. Chain lists the kinds the event is
// dispatched to, most specific first. Every event additionally reaches the
// catch-all notifier.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
	Chain() []Kind
}

// EmptyQueueEvent signals that no event was pending when the manager looked.
type EmptyQueueEvent struct {
	At time.Time
}

func (e EmptyQueueEvent) Kind() Kind           { return KindEmptyQueue }
func (e EmptyQueueEvent) Timestamp() time.Time { return e.At }
func (e EmptyQueueEvent) Chain() []Kind        { return []Kind{KindEmptyQueue} }

// EndTradingEvent stops the run loop once dispatched.
type EndTradingEvent struct {
	At time.Time
}

func (e EndTradingEvent) Kind() Kind           { return KindEndTrading }
func (e EndTradingEvent) Timestamp() time.Time { return e.At }
func (e EndTradingEvent) Chain() []Kind        { return []Kind{KindEndTrading} }

// TimeEvent is a calendar-triggered event of a schedule-defined type.
// Payload is set for single-shot occurrences that carry data.
type TimeEvent struct {
	Type    Kind
	At      time.Time
	Payload any
}

func (e TimeEvent) Kind() Kind           { return e.Type }
func (e TimeEvent) Timestamp() time.Time { return e.At }

// Chain routes a time event to its own kind, then to the general time kind.
func (e TimeEvent) Chain() []Kind {
	if e.Type == KindTimeEvent {
		return []Kind{KindTimeEvent}
	}
	return []Kind{e.Type, KindTimeEvent}
}

// IsEngineKind reports whether k is reserved by the engine.
func IsEngineKind(k Kind) bool {
	switch k {
	case KindAll, KindEmptyQueue, KindEndTrading, KindTimeEvent:
		return true
	}
	return false
}
