// Package scheduler tracks calendar rules and their listeners and computes
// which time events fire next.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backtestCore/internal/calendar"
	"backtestCore/internal/clock"
	"backtestCore/internal/events"
	"backtestCore/internal/metrics"
	"backtestCore/internal/ports"
)

// Scheduler maps calendar kinds to rules and listeners. Kinds are evaluated
// in registration order.
type Scheduler struct {
	clock     clock.Clock
	logger    ports.Logger
	kinds     []events.Kind
	rules     map[events.Kind]calendar.Rule
	listeners map[events.Kind]*events.Notifier[events.TimeEvent]
}

// Config holds the scheduler's dependencies.
type Config struct {
	Clock  clock.Clock
	Logger ports.Logger
}

// New creates a scheduler with no rules.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Scheduler{
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		rules:     make(map[events.Kind]calendar.Rule),
		listeners: make(map[events.Kind]*events.Notifier[events.TimeEvent]),
	}, nil
}

// RegisterRule binds kind to rule. Engine kinds cannot be bound.
func (s *Scheduler) RegisterRule(kind events.Kind, rule calendar.Rule) error {
	if events.IsEngineKind(kind) {
		return fmt.Errorf("%w: %s is reserved", ports.ErrInvalidRule, kind)
	}
	if rule == nil {
		return fmt.Errorf("%w: nil rule for %s", ports.ErrInvalidRule, kind)
	}
	if _, exists := s.rules[kind]; exists {
		return fmt.Errorf("%w: %s", ports.ErrDuplicateKind, kind)
	}
	s.kinds = append(s.kinds, kind)
	s.rules[kind] = rule
	s.listeners[kind] = events.NewNotifier[events.TimeEvent]()
	return nil
}

// Rule returns the rule bound to kind.
func (s *Scheduler) Rule(kind events.Kind) (calendar.Rule, bool) {
	r, ok := s.rules[kind]
	return r, ok
}

// Kinds returns the registered kinds in registration order.
func (s *Scheduler) Kinds() []events.Kind {
	return append([]events.Kind(nil), s.kinds...)
}

// Subscribe registers l for events of kind.
func (s *Scheduler) Subscribe(kind events.Kind, l events.Listener[events.TimeEvent]) error {
	n, ok := s.listeners[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ports.ErrUnknownKind, kind)
	}
	n.Subscribe(l)
	return nil
}

// Unsubscribe removes l from kind.
func (s *Scheduler) Unsubscribe(kind events.Kind, l events.Listener[events.TimeEvent]) bool {
	n, ok := s.listeners[kind]
	return ok && n.Unsubscribe(l)
}

// NextTimeEvents returns every subscribed kind tied at the earliest next
// trigger time after the clock, stamped with that time. ok is false when no
// subscribed rule will fire again. It does not change any state.
func (s *Scheduler) NextTimeEvents() ([]events.TimeEvent, time.Time, bool) {
	now := s.clock.Now()

	var (
		next  time.Time
		kinds []events.Kind
		found bool
	)
	for _, kind := range s.kinds {
		if s.listeners[kind].Len() == 0 {
			continue
		}
		at, ok := s.rules[kind].NextTriggerTime(now)
		if !ok {
			continue
		}
		switch {
		case !found || at.Before(next):
			next, kinds, found = at, []events.Kind{kind}, true
		case at.Equal(next):
			kinds = append(kinds, kind)
		}
	}
	if !found {
		return nil, time.Time{}, false
	}

	batch := make([]events.TimeEvent, 0, len(kinds))
	for _, kind := range kinds {
		ev := events.TimeEvent{Type: kind, At: next}
		if pr, ok := s.rules[kind].(calendar.PayloadRule); ok {
			ev.Payload, _ = pr.Payload(next)
		}
		batch = append(batch, ev)
	}
	return batch, next, true
}

// NotifyAll delivers ev to the listeners of its kind. A kind with no
// listener is logged and skipped. Single-shot occurrences are consumed.
func (s *Scheduler) NotifyAll(ctx context.Context, ev events.TimeEvent) error {
	if c, ok := s.rules[ev.Type].(calendar.Consumer); ok {
		c.Consume(ev.At)
	}

	n, ok := s.listeners[ev.Type]
	if !ok || n.Len() == 0 {
		metrics.TimeEventsWithoutListener.WithLabelValues(string(ev.Type)).Inc()
		s.logger.Warn(ctx, "Time event has no listener", map[string]interface{}{
			"kind":      ev.Type,
			"timestamp": ev.At,
		})
		return nil
	}
	return n.Notify(ctx, ev)
}

// Handle lets the scheduler listen to the manager's general time event
// notifier.
func (s *Scheduler) Handle(ctx context.Context, ev events.TimeEvent) error {
	return s.NotifyAll(ctx, ev)
}
