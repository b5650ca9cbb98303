package events

import (
	"context"
	"errors"
	"fmt"

	"backtestCore/internal/clock"
	"backtestCore/internal/metrics"
	"backtestCore/internal/ports"
)

// Manager owns the pending-event queue and the kind→notifier routing table.
// It is driven by a single goroutine and does no locking.
type Manager struct {
	clock           clock.Clock
	logger          ports.Logger
	queue           []Event
	continueTrading bool
	notifiers       map[Kind]Dispatcher
	all             *Notifier[Event]
}

// Config holds the manager's dependencies.
type Config struct {
	Clock  clock.Clock
	Logger ports.Logger
}

// NewManager creates a manager with notifiers for the engine kinds:
// empty queue, end trading and the general time event.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Manager{
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		continueTrading: true,
		notifiers: map[Kind]Dispatcher{
			KindEmptyQueue: NewNotifier[EmptyQueueEvent](),
			KindEndTrading: NewNotifier[EndTradingEvent](),
			KindTimeEvent:  NewNotifier[TimeEvent](),
		},
		all: NewNotifier[Event](),
	}, nil
}

// RegisterNotifier routes events of kind to n.
func (m *Manager) RegisterNotifier(kind Kind, n Dispatcher) error {
	if kind == KindAll {
		return fmt.Errorf("%w: %s is served by SubscribeAll", ports.ErrDuplicateNotifier, kind)
	}
	if _, exists := m.notifiers[kind]; exists {
		return fmt.Errorf("%w: %s", ports.ErrDuplicateNotifier, kind)
	}
	m.notifiers[kind] = n
	return nil
}

// HasNotifier reports whether events of kind can be routed.
func (m *Manager) HasNotifier(kind Kind) bool {
	_, ok := m.notifiers[kind]
	return ok
}

// Subscribe attaches a typed listener to kind, creating the kind's notifier
// on first use. The listener's event type must match the notifier's.
func Subscribe[E Event](m *Manager, kind Kind, l Listener[E]) error {
	if kind == KindAll {
		return fmt.Errorf("%w: use SubscribeAll for %s", ports.ErrListenerMismatch, kind)
	}
	d, ok := m.notifiers[kind]
	if !ok {
		n := NewNotifier[E]()
		n.Subscribe(l)
		m.notifiers[kind] = n
		return nil
	}
	n, ok := d.(*Notifier[E])
	if !ok {
		return fmt.Errorf("%w: kind %s is served by %T", ports.ErrListenerMismatch, kind, d)
	}
	n.Subscribe(l)
	return nil
}

// SubscribeAll attaches l to the catch-all notifier.
func (m *Manager) SubscribeAll(l Listener[Event]) {
	m.all.Subscribe(l)
}

// Publish enqueues events in order.
func (m *Manager) Publish(events ...Event) {
	m.queue = append(m.queue, events...)
}

// Pending returns the number of queued events.
func (m *Manager) Pending() int {
	return len(m.queue)
}

// ContinueTrading reports whether EndTrading has not yet been dispatched.
func (m *Manager) ContinueTrading() bool {
	return m.continueTrading
}

// DispatchNextEvent delivers the oldest pending event, or a fresh
// EmptyQueueEvent stamped with the clock when nothing is pending.
func (m *Manager) DispatchNextEvent(ctx context.Context) error {
	var event Event
	if len(m.queue) > 0 {
		event = m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
	} else {
		event = EmptyQueueEvent{At: m.clock.Now()}
	}

	if event.Kind() == KindEndTrading {
		m.continueTrading = false
	}

	var targets []Dispatcher
	for _, kind := range event.Chain() {
		if d, ok := m.notifiers[kind]; ok {
			targets = append(targets, d)
		}
	}
	if len(targets) == 0 {
		return fmt.Errorf("%w: %s", ports.ErrNoNotifier, event.Kind())
	}

	metrics.EventsDispatched.WithLabelValues(string(event.Kind())).Inc()
	m.logger.Debug(ctx, "Dispatching event", map[string]interface{}{
		"kind":      event.Kind(),
		"timestamp": event.Timestamp(),
	})

	for _, d := range targets {
		if err := d.Dispatch(ctx, event); err != nil {
			return err
		}
	}
	return m.all.Notify(ctx, event)
}

// Run dispatches events until EndTrading is observed, an error occurs or
// ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info(ctx, "Event loop started")
	dispatched := 0
	for m.continueTrading {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("event loop stopped after %d events: %w", dispatched, err)
		}
		if err := m.DispatchNextEvent(ctx); err != nil {
			m.logger.Error(ctx, err, "Event dispatch failed", map[string]interface{}{"dispatched": dispatched})
			return err
		}
		dispatched++
	}
	m.logger.Info(ctx, "Event loop finished", map[string]interface{}{"dispatched": dispatched})
	return nil
}
