// Package portfolio keeps the accounting ledger: cash, positions and the
// recorded value series of a session.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"backtestCore/internal/clock"
	"backtestCore/internal/domain"
	"backtestCore/internal/metrics"
	"backtestCore/internal/ports"
	"backtestCore/internal/utils"
)

// SeriesPoint is one recorded value.
type SeriesPoint struct {
	Time  time.Time
	Value float64
}

// Config holds the portfolio's dependencies.
type Config struct {
	InitialCash float64
	Prices      ports.PriceSource
	Clock       clock.Clock
	Logger      ports.Logger
}

// Portfolio applies transactions to positions and tracks cash.
type Portfolio struct {
	prices ports.PriceSource
	quotes ports.QuoteSource // nil unless prices also quotes both sides
	clock  clock.Clock
	logger ports.Logger

	initialCash  float64
	cash         float64
	open         map[string]*Position
	closed       []*Position
	transactions []domain.Transaction

	nav      float64
	exposure float64
	navs     []SeriesPoint
	leverage []SeriesPoint
}

// New creates a portfolio holding only cash.
func New(cfg Config) (*Portfolio, error) {
	if cfg.Prices == nil {
		return nil, errors.New("price source is required")
	}
	if cfg.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.InitialCash < 0 || math.IsNaN(cfg.InitialCash) || math.IsInf(cfg.InitialCash, 0) {
		return nil, fmt.Errorf("invalid initial cash %g", cfg.InitialCash)
	}
	quotes, _ := cfg.Prices.(ports.QuoteSource)
	return &Portfolio{
		prices:      cfg.Prices,
		quotes:      quotes,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		initialCash: cfg.InitialCash,
		cash:        cfg.InitialCash,
		open:        make(map[string]*Position),
		nav:         cfg.InitialCash,
	}, nil
}

// TransactTransaction books tx. A transaction that would take a position
// through zero is split into a closing leg and a leg opening the new
// position. If the first leg fails nothing changes.
func (p *Portfolio) TransactTransaction(ctx context.Context, tx domain.Transaction) error {
	if err := validateFill(tx); err != nil {
		return err
	}
	held := 0.0
	if pos, ok := p.open[tx.Instrument.ID]; ok {
		held = pos.Quantity()
	}
	legs := Legs(held, tx)

	for i, leg := range legs {
		pos, ok := p.open[leg.Instrument.ID]
		if !ok {
			pos = NewPosition(leg.Instrument)
		}
		delta, err := pos.Transact(leg)
		if err != nil {
			if i == 0 {
				return err
			}
			return fmt.Errorf("remaining leg of %s after close: %w", tx.ID, err)
		}
		if i == 0 {
			p.transactions = append(p.transactions, tx)
			metrics.TransactionsTotal.WithLabelValues(tx.Instrument.ID).Inc()
		}
		p.cash += delta

		if pos.Closed() {
			delete(p.open, leg.Instrument.ID)
			p.closed = append(p.closed, pos)
			metrics.TradesClosed.WithLabelValues(pos.Direction().String()).Inc()
			p.logger.Info(ctx, "Position closed", map[string]interface{}{
				"instrument": leg.Instrument.ID,
				"realized":   pos.RealizedPnL(),
				"commission": pos.Commission(),
			})
		} else {
			p.open[leg.Instrument.ID] = pos
		}
	}

	p.logger.Debug(ctx, "Transaction booked", map[string]interface{}{
		"id":         tx.ID,
		"instrument": tx.Instrument.ID,
		"quantity":   tx.Quantity,
		"price":      tx.Price,
		"cash":       p.cash,
	})
	return nil
}

// Legs splits tx into a leg that exactly closes a holding of held and a
// leg for the rest when tx would take the holding through zero. Otherwise
// tx is returned unchanged.
func Legs(held float64, tx domain.Transaction) []domain.Transaction {
	if held == 0 || utils.Sign(held) == utils.Sign(tx.Quantity) ||
		math.Abs(tx.Quantity) <= math.Abs(held) || utils.IsClose(held, -tx.Quantity) {
		return []domain.Transaction{tx}
	}
	closing, remaining := tx.Split(-held)
	return []domain.Transaction{closing, remaining}
}

// Update marks every open position at the latest price and recomputes net
// asset value and gross exposure. With record set, the values are appended
// to the NAV and leverage series at the clock's time. Instruments without a
// price keep their previous mark.
func (p *Portfolio) Update(ctx context.Context, record bool) error {
	for _, id := range p.openIDs() {
		pos := p.open[id]
		quote, ok, err := p.lastQuote(ctx, id)
		if err != nil {
			return fmt.Errorf("price for %s: %w", id, err)
		}
		if !ok {
			metrics.MissingPrices.WithLabelValues(id).Inc()
			p.logger.Warn(ctx, "No price available, keeping previous mark", map[string]interface{}{
				"instrument": id,
				"mark":       pos.MarkPrice(),
			})
			continue
		}
		if err := pos.UpdatePrice(quote.Bid, quote.Ask); err != nil {
			return err
		}
	}

	nav := p.cash
	gross := 0.0
	for _, id := range p.openIDs() {
		pos := p.open[id]
		nav += pos.MarketValue()
		gross += math.Abs(pos.Exposure())
	}
	p.nav, p.exposure = nav, gross

	metrics.NetAssetValue.Set(nav)
	metrics.GrossExposure.Set(gross)
	metrics.OpenPositions.Set(float64(len(p.open)))

	if record {
		now := p.clock.Now()
		lev := 0.0
		if nav != 0 {
			lev = gross / nav
		}
		p.navs = append(p.navs, SeriesPoint{Time: now, Value: nav})
		p.leverage = append(p.leverage, SeriesPoint{Time: now, Value: lev})
	}
	return nil
}

// lastQuote asks the quote source when there is one. A single price is
// used for both sides otherwise.
func (p *Portfolio) lastQuote(ctx context.Context, id string) (domain.Quote, bool, error) {
	if p.quotes != nil {
		return p.quotes.LastQuote(ctx, id)
	}
	price, ok, err := p.prices.LastPrice(ctx, id)
	return domain.Quote{Bid: price, Ask: price}, ok, err
}

func (p *Portfolio) openIDs() []string {
	ids := make([]string, 0, len(p.open))
	for id := range p.open {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NetAssetValue returns the value computed by the last Update.
func (p *Portfolio) NetAssetValue() float64 { return p.nav }

// GrossExposure returns the exposure computed by the last Update.
func (p *Portfolio) GrossExposure() float64 { return p.exposure }

func (p *Portfolio) Cash() float64        { return p.cash }
func (p *Portfolio) InitialCash() float64 { return p.initialCash }

// Position returns the open position in instrumentID.
func (p *Portfolio) Position(instrumentID string) (*Position, bool) {
	pos, ok := p.open[instrumentID]
	return pos, ok
}

// OpenPositions returns open positions ordered by instrument id.
func (p *Portfolio) OpenPositions() []*Position {
	ids := p.openIDs()
	out := make([]*Position, len(ids))
	for i, id := range ids {
		out[i] = p.open[id]
	}
	return out
}

// ClosedPositions returns closed positions in the order they closed.
func (p *Portfolio) ClosedPositions() []*Position {
	return append([]*Position(nil), p.closed...)
}

// Transactions returns every booked transaction in booking order.
func (p *Portfolio) Transactions() []domain.Transaction {
	return append([]domain.Transaction(nil), p.transactions...)
}

// TradeList returns one trade per closed position.
func (p *Portfolio) TradeList() []*domain.Trade {
	out := make([]*domain.Trade, 0, len(p.closed))
	for _, pos := range p.closed {
		t, err := pos.Trade()
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

// NavSeries returns the recorded net asset values.
func (p *Portfolio) NavSeries() []SeriesPoint {
	return append([]SeriesPoint(nil), p.navs...)
}

// LeverageSeries returns the recorded gross exposure to NAV ratios.
func (p *Portfolio) LeverageSeries() []SeriesPoint {
	return append([]SeriesPoint(nil), p.leverage...)
}
