// Package metrics provides Prometheus instrumentation for the backtest engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsDispatched counts events routed by the event manager, by kind.
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_events_dispatched_total",
		Help: "Total number of events dispatched",
	}, []string{"kind"})

	// TimeEventsWithoutListener counts calendar events that fired with no subscriber.
	TimeEventsWithoutListener = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_time_events_unhandled_total",
		Help: "Time events notified with no registered listener",
	}, []string{"kind"})

	// TransactionsTotal counts transactions applied to the portfolio.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_transactions_total",
		Help: "Total number of transactions applied",
	}, []string{"instrument"})

	// TradesClosed counts completed round-trip trades, by direction.
	TradesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_trades_closed_total",
		Help: "Completed round-trip trades",
	}, []string{"direction"})

	// NetAssetValue tracks the last computed portfolio value.
	NetAssetValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backtest_net_asset_value",
		Help: "Portfolio net asset value at the last update",
	})

	// GrossExposure tracks the sum of absolute position exposures.
	GrossExposure = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backtest_gross_exposure",
		Help: "Sum of absolute position exposures at the last update",
	})

	// OpenPositions tracks the number of open positions.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backtest_open_positions",
		Help: "Number of currently open positions",
	})

	// MissingPrices counts portfolio updates that found no price for an instrument.
	MissingPrices = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_missing_prices_total",
		Help: "Price lookups that returned no price",
	}, []string{"instrument"})

	// PriceQueryDuration tracks live price query latency.
	PriceQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backtest_price_query_duration_seconds",
		Help:    "Live price query latency in seconds",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
