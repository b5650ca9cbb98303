package events

import (
	"context"
	"fmt"
	"reflect"

	"backtestCore/internal/ports"
)

// Listener handles events of type E.
type Listener[E Event] interface {
	Handle(ctx context.Context, event E) error
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc[E Event] func(ctx context.Context, event E) error

// Handle calls f.
func (f ListenerFunc[E]) Handle(ctx context.Context, event E) error {
	return f(ctx, event)
}

// Dispatcher delivers an untyped event to typed listeners.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
	Len() int
}

// Notifier fans an event out to its subscribed listeners in subscription
// order. Subscribing the same comparable listener twice has no effect.
type Notifier[E Event] struct {
	listeners []Listener[E]
}

// NewNotifier creates an empty notifier.
func NewNotifier[E Event]() *Notifier[E] {
	return &Notifier[E]{}
}

// Subscribe adds l unless it is already subscribed.
func (n *Notifier[E]) Subscribe(l Listener[E]) {
	for _, existing := range n.listeners {
		if sameListener(existing, l) {
			return
		}
	}
	n.listeners = append(n.listeners, l)
}

// Unsubscribe removes l. It reports whether l was subscribed.
func (n *Notifier[E]) Unsubscribe(l Listener[E]) bool {
	for i, existing := range n.listeners {
		if sameListener(existing, l) {
			n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Notify calls every listener with event and stops at the first error.
func (n *Notifier[E]) Notify(ctx context.Context, event E) error {
	listeners := append([]Listener[E](nil), n.listeners...)
	for _, l := range listeners {
		if err := l.Handle(ctx, event); err != nil {
			return fmt.Errorf("listener for %s at %s: %w", event.Kind(), event.Timestamp().Format("2006-01-02T15:04:05.999999"), err)
		}
	}
	return nil
}

// Dispatch asserts event to E and notifies.
func (n *Notifier[E]) Dispatch(ctx context.Context, event Event) error {
	typed, ok := event.(E)
	if !ok {
		return fmt.Errorf("%w: %T cannot receive %T", ports.ErrListenerMismatch, n, event)
	}
	return n.Notify(ctx, typed)
}

// Len returns the number of subscribed listeners.
func (n *Notifier[E]) Len() int {
	return len(n.listeners)
}

func sameListener(a, b any) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	if !reflect.ValueOf(a).Comparable() {
		return false
	}
	return a == b
}
