package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"backtestCore/internal/adapters/logger"
	"backtestCore/internal/adapters/sqlite"
	"backtestCore/internal/analytics"
)

func main() {
	dbPath := flag.String("db", "./data/blotter.db", "Path to the blotter database")
	initial := flag.Float64("initial", 100000, "Starting capital used for return and drawdown figures")
	limit := flag.Int("limit", 10000, "Max trades read per instrument")
	flag.Parse()

	ctx := context.Background()
	appLogger := logger.NewStdLogger(logger.LevelWarn)

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("Error opening blotter: %v", err)
	}
	defer repo.Close()

	txs, err := repo.FindTransactions(ctx, "")
	if err != nil {
		log.Fatalf("Error reading transactions: %v", err)
	}
	seen := make(map[string]bool)
	var instruments []string
	for _, tx := range txs {
		if !seen[tx.Instrument.ID] {
			seen[tx.Instrument.ID] = true
			instruments = append(instruments, tx.Instrument.ID)
		}
	}
	sort.Strings(instruments)

	if len(instruments) == 0 {
		log.Println("Blotter is empty. Run a session with DB_PATH set first.")
		return
	}

	// Create a tabwriter for formatted output
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Instrument\tTrades\tWinRate\tAvgWin\tAvgLoss\tPF\tTotalPnL\tMaxDD\t")

	for _, id := range instruments {
		trades, err := repo.FindTrades(ctx, id, *limit)
		if err != nil {
			log.Printf("Error reading trades for %s: %v", id, err)
			continue
		}
		perf := analytics.AnalyzePerformance(trades, nil, *initial)
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			id,
			perf.TotalTrades,
			perf.WinRate*100,
			perf.AverageWin,
			perf.AverageLoss,
			perf.ProfitFactor,
			perf.TotalProfit,
			perf.MaxDrawdown*100,
		)
	}
	w.Flush()

	total, err := repo.TotalPnL(ctx)
	if err != nil {
		log.Fatalf("Error reading total P&L: %v", err)
	}
	fmt.Printf("\nTotal P&L across instruments: %.2f\n", total)
}
