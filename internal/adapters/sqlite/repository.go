package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"

	"github.com/mattn/go-sqlite3"
)

// Repository implements ports.BlotterRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

var _ ports.BlotterRepository = (*Repository)(nil)

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (or creates) the blotter database and its schema.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/blotter.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %v", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %v", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// One writer; the driver serialises access per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		instrument TEXT NOT NULL,
		asset_kind TEXT NOT NULL,
		multiplier REAL NOT NULL DEFAULT 0,
		quantity REAL NOT NULL,
		price REAL NOT NULL,
		commission REAL NOT NULL,
		net_amount REAL NOT NULL,
		order_id TEXT NOT NULL DEFAULT '',
		strategy TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS trade_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument TEXT NOT NULL,
		open_time TIMESTAMP NOT NULL,
		close_time TIMESTAMP NOT NULL,
		quantity REAL NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		commission REAL NOT NULL,
		direction INTEGER NOT NULL,
		pnl REAL NOT NULL,
		pnl_pct REAL NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_instrument_time ON transactions (instrument, timestamp);
	CREATE INDEX IF NOT EXISTS idx_trade_history_instrument_open ON trade_history (instrument, open_time);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// SaveTransaction stores tx. Saving the same transaction id twice fails
// with ports.ErrDuplicateEntry.
func (r *Repository) SaveTransaction(ctx context.Context, tx domain.Transaction) error {
	const query = `
	INSERT INTO transactions (id, timestamp, instrument, asset_kind, multiplier, quantity, price,
	                          commission, net_amount, order_id, strategy)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.Time, tx.Instrument.ID, string(tx.Instrument.Kind), tx.Instrument.Multiplier,
		tx.Quantity, tx.Price, tx.Commission, tx.NetAmount(), tx.OrderID, tx.Strategy)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("transaction %s: %w", tx.ID, ports.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert transaction %s: %w: %v", tx.ID, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Transaction saved", map[string]interface{}{"id": tx.ID, "instrument": tx.Instrument.ID})
	return nil
}

// FindTransactions returns the stored transactions in time order. An empty
// instrumentID selects all instruments.
func (r *Repository) FindTransactions(ctx context.Context, instrumentID string) ([]domain.Transaction, error) {
	const query = `
	SELECT id, timestamp, instrument, asset_kind, multiplier, quantity, price, commission, order_id, strategy
	FROM transactions
	WHERE ? = '' OR instrument = ?
	ORDER BY timestamp, rowid`

	rows, err := r.db.QueryContext(ctx, query, instrumentID, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for %q: %w: %v", instrumentID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return txs, nil
}

// SaveTrade stores trade and sets its ID.
func (r *Repository) SaveTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trade_history (instrument, open_time, close_time, quantity, entry_price, exit_price,
	                           commission, direction, pnl, pnl_pct)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var pct sql.NullFloat64
	if trade.PnLPct != nil {
		pct = sql.NullFloat64{Float64: *trade.PnLPct, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		trade.Instrument, trade.OpenTime, trade.CloseTime, trade.Quantity, trade.EntryPrice, trade.ExitPrice,
		trade.Commission, int(trade.Direction), trade.PnL, pct)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for %s: %w: %v", trade.Instrument, ports.ErrQueryFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.Instrument, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade saved", map[string]interface{}{"tradeID": id, "instrument": trade.Instrument, "pnl": trade.PnL})
	return id, nil
}

// FindTrades returns the most recently opened trades for instrumentID, up to limit.
func (r *Repository) FindTrades(ctx context.Context, instrumentID string, limit int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, instrument, open_time, close_time, quantity, entry_price, exit_price,
	       commission, direction, pnl, pnl_pct
	FROM trade_history
	WHERE instrument = ? ORDER BY open_time DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, instrumentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for %s: %w: %v", instrumentID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// TotalPnL sums the net P&L of every stored trade.
func (r *Repository) TotalPnL(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(SUM(pnl), 0) FROM trade_history`
	var total float64
	if err := r.db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to calculate total pnl: %w: %v", ports.ErrQueryFailed, err)
	}
	return total, nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(s scanner) (domain.Transaction, error) {
	var (
		tx   domain.Transaction
		kind string
	)
	err := s.Scan(&tx.ID, &tx.Time, &tx.Instrument.ID, &kind, &tx.Instrument.Multiplier,
		&tx.Quantity, &tx.Price, &tx.Commission, &tx.OrderID, &tx.Strategy)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx.Instrument.Kind = domain.AssetKind(kind)
	return tx, nil
}

func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var (
		direction int
		pct       sql.NullFloat64
	)
	err := s.Scan(&t.ID, &t.Instrument, &t.OpenTime, &t.CloseTime, &t.Quantity, &t.EntryPrice,
		&t.ExitPrice, &t.Commission, &direction, &t.PnL, &pct)
	if err != nil {
		return nil, err
	}
	t.Direction = domain.Direction(direction)
	if pct.Valid {
		v := pct.Float64
		t.PnLPct = &v
	}
	return t, nil
}
