package binanceclient

import (
	"context"
	"errors"
	"fmt"

	"backtestCore/internal/domain"
	"backtestCore/internal/metrics"
	"backtestCore/internal/ports"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// PriceSource serves live quotes and mark prices to the portfolio,
// throttled to stay under the exchange's request weight limits.
type PriceSource struct {
	exchange ports.ExchangeClient
	limiter  *rate.Limiter
	symbols  map[string]string
	logger   ports.Logger
}

var _ ports.QuoteSource = (*PriceSource)(nil)

// PriceSourceConfig holds configuration for the live price source.
type PriceSourceConfig struct {
	Exchange      ports.ExchangeClient
	RatePerSecond float64           // Max requests per second; 0 means 10
	Symbols       map[string]string // Instrument id to exchange symbol; unmapped ids are used as-is
	Logger        ports.Logger
}

// NewPriceSource creates a rate-limited price source over an exchange client.
func NewPriceSource(cfg PriceSourceConfig) (*PriceSource, error) {
	if cfg.Exchange == nil {
		return nil, fmt.Errorf("exchange client is required for price source")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for price source")
	}
	if cfg.RatePerSecond < 0 {
		return nil, fmt.Errorf("price rate limit cannot be negative: %g", cfg.RatePerSecond)
	}
	perSecond := cfg.RatePerSecond
	if perSecond == 0 {
		perSecond = 10
	}
	symbols := make(map[string]string, len(cfg.Symbols))
	for id, sym := range cfg.Symbols {
		symbols[id] = sym
	}
	return &PriceSource{
		exchange: cfg.Exchange,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
		symbols:  symbols,
		logger:   cfg.Logger,
	}, nil
}

// LastQuote returns the top of book for instrumentID. Unknown symbols and
// crossed or empty books report no quote.
func (s *PriceSource) LastQuote(ctx context.Context, instrumentID string) (domain.Quote, bool, error) {
	q, ok, err := query(ctx, s, instrumentID, s.exchange.BookTicker)
	if err != nil || !ok {
		return domain.Quote{}, false, err
	}
	if !q.Valid() {
		s.logger.Warn(ctx, "Ignoring unusable quote", map[string]interface{}{"instrument": instrumentID, "bid": q.Bid, "ask": q.Ask})
		return domain.Quote{}, false, nil
	}
	return q, true, nil
}

// LastPrice returns the exchange mark price for instrumentID. An unknown
// symbol reports no price rather than an error.
func (s *PriceSource) LastPrice(ctx context.Context, instrumentID string) (float64, bool, error) {
	price, ok, err := query(ctx, s, instrumentID, s.exchange.MarkPrice)
	if err != nil || !ok || price <= 0 {
		return 0, false, err
	}
	return price, true, nil
}

// query waits for a request slot, maps the instrument to its symbol and
// times the call. ErrNotFound becomes ok=false.
func query[T any](ctx context.Context, s *PriceSource, instrumentID string, call func(context.Context, string) (T, error)) (T, bool, error) {
	var zero T
	if err := s.limiter.Wait(ctx); err != nil {
		return zero, false, fmt.Errorf("rate limiter wait for %s: %w", instrumentID, err)
	}
	symbol := instrumentID
	if sym, ok := s.symbols[instrumentID]; ok {
		symbol = sym
	}

	timer := prometheus.NewTimer(metrics.PriceQueryDuration)
	v, err := call(ctx, symbol)
	timer.ObserveDuration()

	switch {
	case errors.Is(err, ports.ErrNotFound):
		s.logger.Debug(ctx, "Exchange has no price for symbol", map[string]interface{}{
			"instrument": instrumentID,
			"symbol":     symbol,
		})
		return zero, false, nil
	case err != nil:
		return zero, false, err
	}
	return v, true, nil
}
