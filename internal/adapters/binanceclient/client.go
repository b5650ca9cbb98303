// Package binanceclient reads quotes, mark prices and bar history from
// Binance USDⓈ-M futures. Only public market-data endpoints are used.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// Bars per klines request accepted by the futures API.
	klinesPageSize = 1500
)

// Client is a market-data client over the futures REST API.
type Client struct {
	futures *futures.Client
	logger  ports.Logger
}

var _ ports.ExchangeClient = (*Client)(nil)

// Config holds the client settings. Keys are optional since the endpoints
// used are public; they only raise the request weight limits.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a client for production or testnet.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	fc := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	fc.BaseURL = baseURLProduction
	if cfg.UseTestnet {
		fc.BaseURL = baseURLTestnet
	}
	cfg.Logger.Info(context.Background(), "Binance market data client configured", map[string]interface{}{
		"baseURL":       fc.BaseURL,
		"authenticated": cfg.APIKey != "" && cfg.SecretKey != "",
	})
	return &Client{futures: fc, logger: cfg.Logger}, nil
}

// apiErrors maps futures API error codes onto the adapter errors.
// Codes -1100 to -1199 not listed here are request errors.
var apiErrors = map[int64]error{
	-1001: ports.ErrExchangeUnavailable, // internal error
	-1003: ports.ErrRateLimited,
	-1007: ports.ErrExchangeUnavailable, // backend timeout
	-1021: ports.ErrTimeout,             // timestamp outside recvWindow
	-1022: ports.ErrAuthenticationFailed,
	-1121: ports.ErrNotFound, // invalid symbol
	-2014: ports.ErrAuthenticationFailed,
	-2015: ports.ErrAuthenticationFailed,
}

// classify returns the adapter error that err belongs to.
func classify(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if mapped, ok := apiErrors[apiErr.Code]; ok {
			return mapped
		}
		if apiErr.Code <= -1100 && apiErr.Code > -1200 {
			return ports.ErrInvalidRequest
		}
		return ports.ErrUnknown
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return ports.ErrContextCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ports.ErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ports.ErrTimeout
	case errors.As(err, &netErr):
		return ports.ErrConnectionFailed
	case errors.Is(err, ports.ErrNotFound), errors.Is(err, ports.ErrMalformedRecord):
		return nil
	}
	return ports.ErrUnknown
}

// fail wraps err with its class and logs it. Not-found results are only
// logged at debug level since callers treat them as missing data.
func (c *Client) fail(ctx context.Context, op, symbol string, err error) error {
	class := classify(err)
	wrapped := err
	if class != nil {
		wrapped = fmt.Errorf("%w: %w", class, err)
	}
	wrapped = fmt.Errorf("%s %s: %w", op, symbol, wrapped)

	fields := map[string]interface{}{"operation": op, "symbol": symbol}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
	}
	if errors.Is(wrapped, ports.ErrNotFound) {
		c.logger.Debug(ctx, "Binance has no data for symbol", fields)
	} else {
		c.logger.Error(ctx, err, "Binance request failed", fields)
	}
	return wrapped
}

// Ping checks that the API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.futures.NewPingService().Do(ctx); err != nil {
		return c.fail(ctx, "ping", "", err)
	}
	return nil
}

// ServerTime returns the exchange clock.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	ms, err := c.futures.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, c.fail(ctx, "server time", "", err)
	}
	return time.UnixMilli(ms), nil
}

// BookTicker returns the best bid and ask for symbol.
func (c *Client) BookTicker(ctx context.Context, symbol string) (domain.Quote, error) {
	tickers, err := c.futures.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return domain.Quote{}, c.fail(ctx, "book ticker", symbol, err)
	}
	if len(tickers) == 0 {
		return domain.Quote{}, c.fail(ctx, "book ticker", symbol, ports.ErrNotFound)
	}
	quote, err := parseQuote(tickers[0])
	if err != nil {
		return domain.Quote{}, c.fail(ctx, "book ticker", symbol, err)
	}
	return quote, nil
}

// MarkPrice returns the premium-index mark price for symbol.
func (c *Client) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	indexes, err := c.futures.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.fail(ctx, "mark price", symbol, err)
	}
	if len(indexes) == 0 {
		return 0, c.fail(ctx, "mark price", symbol, ports.ErrNotFound)
	}
	price, err := parseField("markPrice", indexes[0].MarkPrice)
	if err != nil {
		return 0, c.fail(ctx, "mark price", symbol, err)
	}
	return price, nil
}

// Klines pages through the bars of symbol/interval that open in [start, end].
func (c *Client) Klines(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error) {
	var bars []*domain.Kline
	for from := start; !from.After(end); {
		page, err := c.futures.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(klinesPageSize).
			Do(ctx)
		if err != nil {
			return nil, c.fail(ctx, "klines", symbol, err)
		}
		for _, bk := range page {
			bar, err := parseKline(bk, symbol, interval)
			if err != nil {
				return nil, c.fail(ctx, "klines", symbol, err)
			}
			bars = append(bars, bar)
		}
		if len(page) < klinesPageSize {
			break
		}
		// Bars close 1ms before the next one opens.
		from = time.UnixMilli(page[len(page)-1].CloseTime + 1)
		c.logger.Debug(ctx, "Fetched klines page", map[string]interface{}{"symbol": symbol, "bars": len(bars), "next": from})
	}
	return bars, nil
}

func parseQuote(t *futures.BookTicker) (domain.Quote, error) {
	if t == nil {
		return domain.Quote{}, fmt.Errorf("%w: empty book ticker", ports.ErrMalformedRecord)
	}
	var q domain.Quote
	var err error
	if q.Bid, err = parseField("bidPrice", t.BidPrice); err != nil {
		return domain.Quote{}, err
	}
	if q.Ask, err = parseField("askPrice", t.AskPrice); err != nil {
		return domain.Quote{}, err
	}
	return q, nil
}

func parseKline(bk *futures.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, fmt.Errorf("%w: empty kline", ports.ErrMalformedRecord)
	}
	bar := &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime).UTC(),
		CloseTime: time.UnixMilli(bk.CloseTime).UTC(),
		Symbol:    symbol,
		Interval:  interval,
	}
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", bk.Open, &bar.Open},
		{"high", bk.High, &bar.High},
		{"low", bk.Low, &bar.Low},
		{"close", bk.Close, &bar.Close},
		{"volume", bk.Volume, &bar.Volume},
	}
	for _, f := range fields {
		v, err := parseField(f.name, f.raw)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	return bar, nil
}

func parseField(name, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", ports.ErrMalformedRecord, name, raw, err)
	}
	return v, nil
}
