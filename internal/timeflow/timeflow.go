// Package timeflow advances time for a session. Controllers listen for the
// empty-queue signal and publish the next batch of calendar events, or the
// end-of-trading event once nothing remains.
package timeflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backtestCore/internal/clock"
	"backtestCore/internal/events"
	"backtestCore/internal/ports"
)

// Planner reports the next batch of time events.
type Planner interface {
	NextTimeEvents() ([]events.TimeEvent, time.Time, bool)
}

// Publisher enqueues events for dispatch.
type Publisher interface {
	Publish(events ...events.Event)
}

// BacktestConfig configures a simulated-time controller.
type BacktestConfig struct {
	Clock     clock.Settable
	Planner   Planner
	Publisher Publisher
	Logger    ports.Logger
	// End is the last instant events may fire at.
	End time.Time
}

// Backtest jumps the simulated clock straight to the next trigger time.
type Backtest struct {
	clock     clock.Settable
	planner   Planner
	publisher Publisher
	logger    ports.Logger
	end       time.Time
}

// NewBacktest creates a backtest controller.
func NewBacktest(cfg BacktestConfig) (*Backtest, error) {
	if err := validate(cfg.Clock, cfg.Planner, cfg.Publisher, cfg.Logger); err != nil {
		return nil, err
	}
	if cfg.End.IsZero() {
		return nil, errors.New("end time is required")
	}
	return &Backtest{
		clock:     cfg.Clock,
		planner:   cfg.Planner,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		end:       cfg.End,
	}, nil
}

// Handle advances the clock and publishes the next batch.
func (b *Backtest) Handle(ctx context.Context, _ events.EmptyQueueEvent) error {
	batch, at, ok := b.planner.NextTimeEvents()
	if !ok || at.After(b.end) {
		endTrading(ctx, b.logger, b.publisher, b.clock.Now(), at, ok)
		return nil
	}
	if err := b.clock.Set(at); err != nil {
		return err
	}
	publishBatch(b.publisher, batch)
	return nil
}

// End returns the configured end boundary.
func (b *Backtest) End() time.Time {
	return b.end
}

// LiveConfig configures a wall-clock controller.
type LiveConfig struct {
	Clock     clock.Clock
	Planner   Planner
	Publisher Publisher
	Logger    ports.Logger
	// End is optional; the zero value runs until the context is canceled.
	End time.Time
}

// Live waits in real time for the next trigger time.
type Live struct {
	clock     clock.Clock
	planner   Planner
	publisher Publisher
	logger    ports.Logger
	end       time.Time
}

// NewLive creates a live controller.
func NewLive(cfg LiveConfig) (*Live, error) {
	if err := validate(cfg.Clock, cfg.Planner, cfg.Publisher, cfg.Logger); err != nil {
		return nil, err
	}
	return &Live{
		clock:     cfg.Clock,
		planner:   cfg.Planner,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		end:       cfg.End,
	}, nil
}

// Handle blocks until the next trigger time, or until ctx is done.
func (l *Live) Handle(ctx context.Context, _ events.EmptyQueueEvent) error {
	batch, at, ok := l.planner.NextTimeEvents()
	if !ok || (!l.end.IsZero() && at.After(l.end)) {
		endTrading(ctx, l.logger, l.publisher, l.clock.Now(), at, ok)
		return nil
	}

	l.logger.Debug(ctx, "Waiting for next time event", map[string]interface{}{
		"next": at,
		"wait": at.Sub(l.clock.Now()).String(),
	})
	// Timers can fire marginally early relative to the wall clock.
	for wait := at.Sub(l.clock.Now()); wait > 0; wait = at.Sub(l.clock.Now()) {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("waiting for %s: %w", at.Format(time.RFC3339), ctx.Err())
		case <-timer.C:
		}
	}
	publishBatch(l.publisher, batch)
	return nil
}

func validate(c clock.Clock, p Planner, pub Publisher, logger ports.Logger) error {
	switch {
	case c == nil:
		return errors.New("clock is required")
	case p == nil:
		return errors.New("planner is required")
	case pub == nil:
		return errors.New("publisher is required")
	case logger == nil:
		return errors.New("logger is required")
	}
	return nil
}

func endTrading(ctx context.Context, logger ports.Logger, pub Publisher, now, next time.Time, scheduled bool) {
	fields := map[string]interface{}{"timestamp": now}
	if scheduled {
		fields["next_event"] = next
	}
	logger.Info(ctx, "No more time events in range, ending trading", fields)
	pub.Publish(events.EndTradingEvent{At: now})
}

func publishBatch(pub Publisher, batch []events.TimeEvent) {
	evs := make([]events.Event, len(batch))
	for i, ev := range batch {
		evs[i] = ev
	}
	pub.Publish(evs...)
}
