package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "blotter-test-*")
	require.NoError(t, err)

	repo, err := NewRepository(Config{
		DBPath: filepath.Join(tmpDir, "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}
	return repo, cleanup
}

var base = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

func TestNewRepository_RequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

func TestRepository_SaveAndFindTransactions(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	aapl := domain.Instrument{ID: "AAPL", Kind: domain.AssetEquity}
	es := domain.Instrument{ID: "ESZ5", Kind: domain.AssetFuture, Multiplier: 50}

	second := domain.NewTransaction(base.Add(time.Hour), aapl, -5, 11, 1)
	first := domain.NewTransaction(base, aapl, 5, 10, 1)
	first.OrderID = "o-1"
	first.Strategy = "demo"
	future := domain.NewTransaction(base.Add(time.Minute), es, 1, 4000, 2.5)

	for _, tx := range []domain.Transaction{second, first, future} {
		require.NoError(t, repo.SaveTransaction(ctx, tx))
	}

	got, err := repo.FindTransactions(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.True(t, first.Time.Equal(got[0].Time))
	assert.Equal(t, aapl, got[0].Instrument)
	assert.Equal(t, 5.0, got[0].Quantity)
	assert.Equal(t, "o-1", got[0].OrderID)
	assert.Equal(t, "demo", got[0].Strategy)
	assert.Equal(t, second.ID, got[1].ID)

	all, err := repo.FindTransactions(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, es, all[1].Instrument)
	assert.Equal(t, 2.5, all[1].Commission)
}

func TestRepository_SaveTransactionDuplicate(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	tx := domain.NewTransaction(base, domain.Instrument{ID: "AAPL", Kind: domain.AssetEquity}, 1, 10, 0)
	require.NoError(t, repo.SaveTransaction(ctx, tx))
	err := repo.SaveTransaction(ctx, tx)
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)
}

func TestRepository_Trades(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	pct := 0.015
	trades := []*domain.Trade{
		{OpenTime: base, CloseTime: base.Add(time.Hour), Instrument: "AAPL", Quantity: 11, EntryPrice: 10.85, ExitPrice: 15.36, Commission: 20, Direction: domain.Long, PnL: 30, PnLPct: &pct},
		{OpenTime: base.Add(2 * time.Hour), CloseTime: base.Add(3 * time.Hour), Instrument: "AAPL", Quantity: -5, EntryPrice: 110, ExitPrice: 100, Commission: 10, Direction: domain.Short, PnL: 40},
		{OpenTime: base, CloseTime: base.Add(time.Hour), Instrument: "MSFT", Quantity: 2, EntryPrice: 200, ExitPrice: 190, Commission: 1, Direction: domain.Long, PnL: -21},
	}
	for _, tr := range trades {
		id, err := repo.SaveTrade(ctx, tr)
		require.NoError(t, err)
		assert.Greater(t, id, int64(0))
		assert.Equal(t, id, tr.ID)
	}

	got, err := repo.FindTrades(ctx, "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, trades[1].ID, got[0].ID, "most recently opened first")
	assert.Equal(t, domain.Short, got[0].Direction)
	assert.Nil(t, got[0].PnLPct)
	require.NotNil(t, got[1].PnLPct)
	assert.Equal(t, pct, *got[1].PnLPct)
	assert.True(t, trades[0].CloseTime.Equal(got[1].CloseTime))

	limited, err := repo.FindTrades(ctx, "AAPL", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	total, err := repo.TotalPnL(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 49.0, total, 1e-9)
}

func TestRepository_TotalPnLEmpty(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	total, err := repo.TotalPnL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, total)
}
