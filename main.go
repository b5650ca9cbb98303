package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backtestCore/config"
	"backtestCore/internal/adapters/binanceclient"
	"backtestCore/internal/adapters/csvfeed"
	"backtestCore/internal/adapters/logger"
	"backtestCore/internal/adapters/sqlite"
	"backtestCore/internal/app"
	"backtestCore/internal/clock"
	"backtestCore/internal/domain"
	"backtestCore/internal/metrics"
	"backtestCore/internal/ports"
	"backtestCore/internal/utils"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, syncLogger := newLogger(cfg)
	defer syncLogger()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// Cancel the run on SIGINT/SIGTERM; the session still exports what it has.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Load the calendar and recorded transactions
	schedule, err := config.LoadSchedule(cfg.SchedulePath)
	if err != nil {
		fatal(appLogger, err, "Failed to load schedule")
	}
	var txs []domain.Transaction
	if cfg.TransactionsCSV != "" {
		if txs, err = utils.ReadTransactionsFromCSV(cfg.TransactionsCSV); err != nil {
			fatal(appLogger, err, "Failed to read transactions")
		}
		appLogger.Info(ctx, "Transactions loaded", map[string]interface{}{"path": cfg.TransactionsCSV, "count": len(txs)})
	}

	// 4. Clock and prices for the mode
	var (
		clk    clock.Clock
		prices ports.PriceSource
	)
	switch cfg.Mode {
	case config.ModeLive:
		clk = clock.Real{}
		prices = newLivePrices(ctx, cfg, appLogger)
		if cfg.MetricsAddr != "" {
			srv := startMetricsServer(cfg.MetricsAddr, appLogger)
			defer shutdownMetricsServer(srv, appLogger)
		}
	default:
		sim := clock.NewSimulated(cfg.Start)
		feed, err := csvfeed.Load(cfg.PricesCSV, sim, appLogger)
		if err != nil {
			fatal(appLogger, err, "Failed to load bar prices")
		}
		clk, prices = sim, feed
	}

	// 5. Initialize Repository (Database Adapter)
	var blotter ports.BlotterRepository
	if cfg.DBPath != "" {
		repo, err := sqlite.NewRepository(sqlite.Config{
			DBPath: cfg.DBPath,
			Logger: appLogger,
		})
		if err != nil {
			fatal(appLogger, err, "Failed to initialize blotter repository")
		}
		defer func() {
			if err := repo.Close(); err != nil {
				appLogger.Error(context.Background(), err, "Error closing blotter repository")
			}
		}()
		blotter = repo
	}

	// 6. Wire and run the session
	session, err := app.NewSession(app.Config{
		Mode:         cfg.Mode,
		InitialCash:  cfg.InitialCash,
		End:          cfg.End,
		Schedule:     schedule,
		Transactions: txs,
		Prices:       prices,
		Clock:        clk,
		Logger:       appLogger,
		Blotter:      blotter,
		TradesCSV:    cfg.TradesCSV,
	})
	if err != nil {
		fatal(appLogger, err, "Failed to initialize session")
	}

	result, err := session.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fatal(appLogger, err, "Session exited with error")
	}

	perf := result.Performance
	appLogger.Info(ctx, "Session summary", map[string]interface{}{
		"trades":        perf.TotalTrades,
		"winRate":       perf.WinRate,
		"totalPnL":      perf.TotalProfit,
		"maxDrawdown":   perf.MaxDrawdown,
		"roi":           perf.ReturnOnInvestment,
		"finalNAV":      result.FinalNAV,
		"openPositions": result.OpenPositions,
	})
	appLogger.Info(context.Background(), "Application finished gracefully.")
}

func newLogger(cfg *config.Config) (ports.Logger, func()) {
	if cfg.LogFormat == "json" {
		zl, err := logger.NewZapLogger(cfg.LogLevel, false)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize logger: %v", err)
		}
		return zl, func() { _ = zl.Sync() }
	}
	return logger.NewStdLogger(cfg.LogLevel), func() {}
}

func newLivePrices(ctx context.Context, cfg *config.Config, appLogger ports.Logger) ports.PriceSource {
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		fatal(appLogger, err, "Failed to initialize Binance client")
	}
	if err := binanceClient.Ping(ctx); err != nil {
		fatal(appLogger, err, "Binance API unreachable")
	}
	if serverTime, err := binanceClient.ServerTime(ctx); err == nil {
		appLogger.Info(ctx, "Binance client initialized", map[string]interface{}{"clockSkew": time.Since(serverTime).String()})
	}

	prices, err := binanceclient.NewPriceSource(binanceclient.PriceSourceConfig{
		Exchange:      binanceClient,
		RatePerSecond: cfg.PriceRateLimit,
		Logger:        appLogger,
	})
	if err != nil {
		fatal(appLogger, err, "Failed to initialize live price source")
	}
	return prices
}

func startMetricsServer(addr string, appLogger ports.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error(context.Background(), err, "Metrics server failed", map[string]interface{}{"addr": addr})
		}
	}()
	appLogger.Info(context.Background(), "Metrics server listening", map[string]interface{}{"addr": addr})
	return srv
}

func shutdownMetricsServer(srv *http.Server, appLogger ports.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error(ctx, err, "Error shutting down metrics server")
	}
}

func fatal(appLogger ports.Logger, err error, msg string) {
	appLogger.Error(context.Background(), err, "FATAL: "+msg)
	log.Printf("FATAL: %s: %v", msg, err) // Also log to stderr
	os.Exit(1)
}
