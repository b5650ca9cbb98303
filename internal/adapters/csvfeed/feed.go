// Package csvfeed serves historical bar closes as backtest prices.
package csvfeed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"backtestCore/internal/clock"
	"backtestCore/internal/domain"
	"backtestCore/internal/ports"
	"backtestCore/internal/utils"
)

// Feed is a ports.PriceSource over in-memory bars. A bar's close becomes
// visible once the clock reaches its CloseTime, so no price is read ahead
// of simulated time.
type Feed struct {
	clock  clock.Clock
	bars   map[string][]*domain.Kline
	logger ports.Logger
}

var _ ports.PriceSource = (*Feed)(nil)

// Config holds the feed's dependencies.
type Config struct {
	Clock  clock.Clock
	Klines []*domain.Kline
	Logger ports.Logger
}

// New indexes klines by symbol in close-time order.
func New(cfg Config) (*Feed, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("clock is required for csv feed")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for csv feed")
	}
	bars := make(map[string][]*domain.Kline)
	for _, k := range cfg.Klines {
		if k == nil {
			continue
		}
		if k.Close <= 0 {
			return nil, fmt.Errorf("%w: bar %s at %s has close %g", ports.ErrMalformedRecord, k.Symbol, k.CloseTime.Format(time.RFC3339), k.Close)
		}
		bars[k.Symbol] = append(bars[k.Symbol], k)
	}
	for _, series := range bars {
		sort.SliceStable(series, func(i, j int) bool { return series[i].CloseTime.Before(series[j].CloseTime) })
	}
	return &Feed{clock: cfg.Clock, bars: bars, logger: cfg.Logger}, nil
}

// Load reads bars from a CSV file written by utils.WriteKlinesToCSV.
func Load(path string, clk clock.Clock, logger ports.Logger) (*Feed, error) {
	klines, err := utils.ReadKlinesFromCSV(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bars from %s: %w", path, err)
	}
	feed, err := New(Config{Clock: clk, Klines: klines, Logger: logger})
	if err != nil {
		return nil, err
	}
	logger.Info(context.Background(), "Loaded bar prices", map[string]interface{}{
		"path":    path,
		"bars":    len(klines),
		"symbols": len(feed.bars),
	})
	return feed, nil
}

// LastPrice returns the close of the latest bar for instrumentID that closed
// at or before the clock's time.
func (f *Feed) LastPrice(ctx context.Context, instrumentID string) (float64, bool, error) {
	series := f.bars[instrumentID]
	now := f.clock.Now()
	i := sort.Search(len(series), func(i int) bool { return series[i].CloseTime.After(now) })
	if i == 0 {
		return 0, false, nil
	}
	return series[i-1].Close, true, nil
}

// Symbols returns the symbols with bars, sorted.
func (f *Feed) Symbols() []string {
	out := make([]string, 0, len(f.bars))
	for s := range f.bars {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Span returns the earliest and latest bar close times across all symbols.
func (f *Feed) Span() (first, last time.Time, ok bool) {
	for _, series := range f.bars {
		if len(series) == 0 {
			continue
		}
		a, b := series[0].CloseTime, series[len(series)-1].CloseTime
		if !ok || a.Before(first) {
			first = a
		}
		if !ok || b.After(last) {
			last = b
		}
		ok = true
	}
	return first, last, ok
}
