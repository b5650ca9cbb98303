// Package app wires the engine components into a runnable session.
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"backtestCore/config"
	"backtestCore/internal/analytics"
	"backtestCore/internal/calendar"
	"backtestCore/internal/clock"
	"backtestCore/internal/domain"
	"backtestCore/internal/events"
	"backtestCore/internal/portfolio"
	"backtestCore/internal/ports"
	"backtestCore/internal/scheduler"
	"backtestCore/internal/timeflow"
	"backtestCore/internal/trades"
	"backtestCore/internal/utils"
)

// KindTransaction fires when recorded transactions are due. Its payload is
// the []domain.Transaction sharing that timestamp.
const KindTransaction events.Kind = "transaction"

// Config holds everything a session needs. Clock must be a clock.Settable
// in backtest mode; the price source is expected to read the same clock.
type Config struct {
	Mode         config.Mode
	InitialCash  float64
	End          time.Time // Required in backtest mode
	Schedule     *config.Schedule
	Transactions []domain.Transaction
	Prices       ports.PriceSource
	Clock        clock.Clock
	Logger       ports.Logger

	// Optional exports, written after the event loop stops.
	Blotter   ports.BlotterRepository
	TradesCSV string
}

// Session is one backtest or live run.
type Session struct {
	cfg       Config
	clock     clock.Clock
	logger    ports.Logger
	scheduler *scheduler.Scheduler
	manager   *events.Manager
	portfolio *portfolio.Portfolio
	feed      *calendar.SingleShotRule
	snapshot  events.Kind
	skipped   int
}

// Result summarizes a finished session.
type Result struct {
	Trades         []*domain.Trade
	Transactions   []domain.Transaction
	NavSeries      []portfolio.SeriesPoint
	LeverageSeries []portfolio.SeriesPoint
	Performance    *analytics.PerformanceMetrics
	FinalNAV       float64
	Cash           float64
	OpenPositions  int
	Elapsed        time.Duration
}

// NewSession builds and connects the scheduler, event manager, time-flow
// controller and portfolio.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Logger == nil || cfg.Clock == nil || cfg.Prices == nil || cfg.Schedule == nil {
		return nil, fmt.Errorf("missing required dependencies for Session")
	}

	s := &Session{
		cfg:      cfg,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		snapshot: cfg.Schedule.Snapshot,
	}

	var err error
	if s.scheduler, err = scheduler.New(scheduler.Config{Clock: cfg.Clock, Logger: cfg.Logger}); err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	// Transactions go first so that fills sharing an instant with a
	// scheduled kind are booked before that kind is dispatched.
	if err = s.registerTransactions(cfg.Transactions); err != nil {
		return nil, err
	}
	if err = cfg.Schedule.Register(s.scheduler); err != nil {
		return nil, err
	}

	if s.manager, err = events.NewManager(events.Config{Clock: cfg.Clock, Logger: cfg.Logger}); err != nil {
		return nil, fmt.Errorf("failed to create event manager: %w", err)
	}
	if err = events.Subscribe[events.TimeEvent](s.manager, events.KindTimeEvent, s.scheduler); err != nil {
		return nil, err
	}
	if err = s.attachController(); err != nil {
		return nil, err
	}

	if s.portfolio, err = portfolio.New(portfolio.Config{
		InitialCash: cfg.InitialCash,
		Prices:      cfg.Prices,
		Clock:       cfg.Clock,
		Logger:      cfg.Logger,
	}); err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	if s.feed != nil {
		if err = s.scheduler.Subscribe(KindTransaction, events.ListenerFunc[events.TimeEvent](s.bookTransactions)); err != nil {
			return nil, err
		}
	}
	// The updater is subscribed after bookTransactions so a transaction event
	// marks the portfolio with its own fills.
	updater := events.ListenerFunc[events.TimeEvent](s.updatePortfolio)
	for _, kind := range s.scheduler.Kinds() {
		if err = s.scheduler.Subscribe(kind, updater); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Session) registerTransactions(txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	byTime := make(map[time.Time][]domain.Transaction)
	var times []time.Time
	now := s.clock.Now()
	for _, tx := range txs {
		if !tx.Time.After(now) {
			s.skipped++
			s.logger.Warn(context.Background(), "Transaction not after session start, skipping", map[string]interface{}{
				"id":         tx.ID,
				"instrument": tx.Instrument.ID,
				"timestamp":  tx.Time,
				"start":      now,
			})
			continue
		}
		key := tx.Time.UTC()
		if _, ok := byTime[key]; !ok {
			times = append(times, key)
		}
		byTime[key] = append(byTime[key], tx)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	feed := calendar.NewSingleShotRule()
	for _, at := range times {
		due := byTime[at]
		if err := feed.Schedule(due[0].Time, due); err != nil {
			return fmt.Errorf("schedule transactions at %s: %w", at.Format(time.RFC3339Nano), err)
		}
	}
	if err := s.scheduler.RegisterRule(KindTransaction, feed); err != nil {
		return err
	}
	s.feed = feed
	s.logger.Info(context.Background(), "Transactions scheduled", map[string]interface{}{
		"count":    len(txs) - s.skipped,
		"instants": len(times),
		"skipped":  s.skipped,
	})
	return nil
}

func (s *Session) attachController() error {
	var controller events.Listener[events.EmptyQueueEvent]
	switch s.cfg.Mode {
	case config.ModeBacktest, "":
		settable, ok := s.clock.(clock.Settable)
		if !ok {
			return fmt.Errorf("%w: backtest mode needs a settable clock", ports.ErrConfiguration)
		}
		bt, err := timeflow.NewBacktest(timeflow.BacktestConfig{
			Clock:     settable,
			Planner:   s.scheduler,
			Publisher: s.manager,
			Logger:    s.logger,
			End:       s.cfg.End,
		})
		if err != nil {
			return fmt.Errorf("failed to create backtest controller: %w", err)
		}
		controller = bt
	case config.ModeLive:
		live, err := timeflow.NewLive(timeflow.LiveConfig{
			Clock:     s.clock,
			Planner:   s.scheduler,
			Publisher: s.manager,
			Logger:    s.logger,
			End:       s.cfg.End,
		})
		if err != nil {
			return fmt.Errorf("failed to create live controller: %w", err)
		}
		controller = live
	default:
		return fmt.Errorf("%w: unknown mode %q", ports.ErrConfiguration, s.cfg.Mode)
	}
	return events.Subscribe(s.manager, events.KindEmptyQueue, controller)
}

func (s *Session) bookTransactions(ctx context.Context, ev events.TimeEvent) error {
	due, ok := ev.Payload.([]domain.Transaction)
	if !ok {
		return fmt.Errorf("%w: transaction event at %s carries %T", ports.ErrInvariant, ev.At.Format(time.RFC3339), ev.Payload)
	}
	for _, tx := range due {
		if err := s.portfolio.TransactTransaction(ctx, tx); err != nil {
			return fmt.Errorf("book transaction %s: %w", tx.ID, err)
		}
	}
	return nil
}

func (s *Session) updatePortfolio(ctx context.Context, ev events.TimeEvent) error {
	record := s.snapshot == "" || ev.Type == s.snapshot
	return s.portfolio.Update(ctx, record)
}

// Run drives the event loop until trading ends and then builds the result.
// When ctx is canceled the result so far is still returned together with
// the cancellation error.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	s.logger.Info(ctx, "Session starting", map[string]interface{}{
		"mode":  s.cfg.Mode,
		"start": s.clock.Now(),
		"end":   s.cfg.End,
		"kinds": len(s.scheduler.Kinds()),
	})

	runErr := s.manager.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return nil, runErr
	}

	result, err := s.buildResult()
	if err != nil {
		return nil, err
	}
	result.Elapsed = time.Since(started)

	// Exports run on a fresh context so an interrupted session still persists.
	if err := s.export(context.WithoutCancel(ctx), result); err != nil {
		return result, err
	}

	s.logger.Info(ctx, "Session finished", map[string]interface{}{
		"trades":   len(result.Trades),
		"finalNAV": result.FinalNAV,
		"cash":     result.Cash,
		"elapsed":  result.Elapsed.String(),
	})
	return result, runErr
}

func (s *Session) buildResult() (*Result, error) {
	navs := s.portfolio.NavSeries()
	txs := s.portfolio.Transactions()
	tradeList, err := trades.NewGenerator().FromTransactions(txs, navs)
	if err != nil {
		return nil, fmt.Errorf("failed to generate trades: %w", err)
	}
	return &Result{
		Trades:         tradeList,
		Transactions:   txs,
		NavSeries:      navs,
		LeverageSeries: s.portfolio.LeverageSeries(),
		Performance:    analytics.AnalyzePerformance(tradeList, navs, s.portfolio.InitialCash()),
		FinalNAV:       s.portfolio.NetAssetValue(),
		Cash:           s.portfolio.Cash(),
		OpenPositions:  len(s.portfolio.OpenPositions()),
	}, nil
}

func (s *Session) export(ctx context.Context, result *Result) error {
	if s.cfg.Blotter != nil {
		for _, tx := range result.Transactions {
			if err := s.cfg.Blotter.SaveTransaction(ctx, tx); err != nil {
				if errors.Is(err, ports.ErrDuplicateEntry) {
					s.logger.Warn(ctx, "Transaction already in blotter", map[string]interface{}{"id": tx.ID})
					continue
				}
				return fmt.Errorf("failed to export transactions: %w", err)
			}
		}
		for _, t := range result.Trades {
			if _, err := s.cfg.Blotter.SaveTrade(ctx, t); err != nil {
				return fmt.Errorf("failed to export trades: %w", err)
			}
		}
		s.logger.Info(ctx, "Blotter exported", map[string]interface{}{
			"transactions": len(result.Transactions),
			"trades":       len(result.Trades),
		})
	}
	if s.cfg.TradesCSV != "" {
		if err := utils.WriteTradesToCSV(result.Trades, s.cfg.TradesCSV); err != nil {
			return fmt.Errorf("failed to write trades csv %s: %w", s.cfg.TradesCSV, err)
		}
		s.logger.Info(ctx, "Trades written", map[string]interface{}{"path": s.cfg.TradesCSV, "count": len(result.Trades)})
	}
	return nil
}

// Portfolio returns the session's portfolio.
func (s *Session) Portfolio() *portfolio.Portfolio { return s.portfolio }

// Scheduler returns the session's scheduler, for registering extra rules
// and listeners before Run.
func (s *Session) Scheduler() *scheduler.Scheduler { return s.scheduler }

// Manager returns the session's event manager.
func (s *Session) Manager() *events.Manager { return s.manager }

// Skipped returns how many transactions were dropped for not being after
// the session start.
func (s *Session) Skipped() int { return s.skipped }
