package ports

import (
	"context"
	"time"

	"backtestCore/internal/domain"
)

// PriceSource supplies mark prices to the portfolio.
// ok is false when no price is available for the instrument at the current time.
type PriceSource interface {
	LastPrice(ctx context.Context, instrumentID string) (price float64, ok bool, err error)
}

// QuoteSource is a PriceSource that can also report both sides of the book.
// The portfolio marks longs at the bid and shorts at the ask when its price
// source implements it.
type QuoteSource interface {
	PriceSource
	LastQuote(ctx context.Context, instrumentID string) (quote domain.Quote, ok bool, err error)
}

// ExchangeClient is the subset of an exchange API the live adapters and
// the history download need.
type ExchangeClient interface {
	Ping(ctx context.Context) error
	ServerTime(ctx context.Context) (time.Time, error)

	// BookTicker returns the best bid and ask for symbol.
	BookTicker(ctx context.Context, symbol string) (domain.Quote, error)
	// MarkPrice returns the exchange's mark price for symbol.
	MarkPrice(ctx context.Context, symbol string) (float64, error)

	// Klines fetches every bar of symbol/interval opening in [start, end].
	Klines(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error)
}
