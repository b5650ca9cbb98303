package csvfeed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"backtestCore/internal/clock"
	"backtestCore/internal/domain"
	"backtestCore/internal/ports"
	"backtestCore/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct {
	infoMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var t0 = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

func bar(symbol string, minute int, close float64) *domain.Kline {
	open := t0.Add(time.Duration(minute) * time.Minute)
	return &domain.Kline{
		OpenTime:  open,
		CloseTime: open.Add(time.Minute),
		Symbol:    symbol,
		Interval:  "1m",
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    1,
	}
}

func TestFeed_LastPriceNoLookAhead(t *testing.T) {
	clk := clock.NewSimulated(t0)
	feed, err := New(Config{
		Clock:  clk,
		Klines: []*domain.Kline{bar("AAPL", 2, 12), bar("AAPL", 0, 10), bar("AAPL", 1, 11), bar("MSFT", 0, 200)},
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name       string
		at         time.Time
		instrument string
		want       float64
		wantOK     bool
	}{
		{name: "before first close", at: t0.Add(30 * time.Second), instrument: "AAPL", wantOK: false},
		{name: "at first close", at: t0.Add(time.Minute), instrument: "AAPL", want: 10, wantOK: true},
		{name: "between closes", at: t0.Add(150 * time.Second), instrument: "AAPL", want: 11, wantOK: true},
		{name: "after last close", at: t0.Add(time.Hour), instrument: "AAPL", want: 12, wantOK: true},
		{name: "other symbol", at: t0.Add(time.Hour), instrument: "MSFT", want: 200, wantOK: true},
		{name: "unknown symbol", at: t0.Add(time.Hour), instrument: "TSLA", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, clk.Set(tt.at))
			got, ok, err := feed.LastPrice(ctx, tt.instrument)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, []string{"AAPL", "MSFT"}, feed.Symbols())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Logger: &mockLogger{}})
	assert.Error(t, err)
	_, err = New(Config{Clock: clock.NewSimulated(t0)})
	assert.Error(t, err)
	_, err = New(Config{Clock: clock.NewSimulated(t0), Logger: &mockLogger{}, Klines: []*domain.Kline{bar("AAPL", 0, 0)}})
	assert.ErrorIs(t, err, ports.ErrMalformedRecord)
}

func TestFeed_Span(t *testing.T) {
	feed, err := New(Config{Clock: clock.NewSimulated(t0), Logger: &mockLogger{}})
	require.NoError(t, err)
	_, _, ok := feed.Span()
	assert.False(t, ok)

	feed, err = New(Config{
		Clock:  clock.NewSimulated(t0),
		Klines: []*domain.Kline{bar("AAPL", 3, 1), bar("MSFT", 1, 1), bar("MSFT", 5, 1)},
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	first, last, ok := feed.Span()
	require.True(t, ok)
	assert.Equal(t, t0.Add(2*time.Minute), first)
	assert.Equal(t, t0.Add(6*time.Minute), last)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bars.csv")
	require.NoError(t, utils.WriteKlinesToCSV([]*domain.Kline{bar("ETHUSDT", 0, 2281.5), bar("ETHUSDT", 1, 2290)}, path))

	log := &mockLogger{}
	clk := clock.NewSimulated(t0.Add(90 * time.Second))
	feed, err := Load(path, clk, log)
	require.NoError(t, err)
	price, ok, err := feed.LastPrice(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2281.5, price)
	assert.Contains(t, log.infoMsgs, "Loaded bar prices")

	require.NoError(t, os.WriteFile(path, []byte("bad,header\n"), 0o644))
	_, err = Load(path, clk, log)
	assert.ErrorIs(t, err, ports.ErrMalformedRecord)

	_, err = Load(filepath.Join(dir, "missing.csv"), clk, log)
	assert.Error(t, err)
}
