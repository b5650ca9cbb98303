package ports

import (
	"context"

	"backtestCore/internal/domain"
)

// BlotterRepository stores the transactions and trades a session produced.
// The engine never reads it back; it is an export target.
type BlotterRepository interface {
	// SaveTransaction appends a transaction. Saving the same transaction ID twice fails with ErrDuplicateEntry.
	SaveTransaction(ctx context.Context, tx domain.Transaction) error
	// SaveTrade appends a closed trade and returns its assigned ID.
	SaveTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindTransactions returns every stored transaction for an instrument in chronological order.
	FindTransactions(ctx context.Context, instrumentID string) ([]domain.Transaction, error)
	// FindTrades returns the most recent trades for an instrument, up to limit.
	FindTrades(ctx context.Context, instrumentID string, limit int) ([]*domain.Trade, error)
	// TotalPnL sums the net P&L of all stored trades.
	TotalPnL(ctx context.Context) (float64, error)
}
