package domain

import "time"

// TradeColumns is the stable column order of Trade.Record.
var TradeColumns = []string{
	"open_time", "close_time", "instrument", "quantity", "entry_price", "exit_price",
	"commission", "direction", "pnl", "pnl_pct",
}

// Trade represents a completed round trip: a position opened and closed.
type Trade struct {
	ID         int64     // Unique identifier for the trade (assigned by the blotter)
	OpenTime   time.Time // Time of the first transaction of the round trip
	CloseTime  time.Time // Time of the transaction that closed it
	Instrument string    // Instrument id
	Quantity   float64   // Signed volume of the round trip
	EntryPrice float64   // Weighted average entry price
	ExitPrice  float64   // Weighted average exit price
	Commission float64   // Total commission paid
	Direction  Direction // Long or Short
	PnL        float64   // Realized P&L net of commission

	// PnLPct is PnL as a fraction of the portfolio value at OpenTime.
	// Nil when no portfolio value series was supplied.
	PnLPct *float64
}

// Duration returns how long the position was held.
func (t *Trade) Duration() time.Duration {
	return t.CloseTime.Sub(t.OpenTime)
}

// Record renders the trade in TradeColumns order.
func (t *Trade) Record() []string {
	pct := ""
	if t.PnLPct != nil {
		pct = formatFloat(*t.PnLPct)
	}
	return []string{
		t.OpenTime.Format(time.RFC3339Nano),
		t.CloseTime.Format(time.RFC3339Nano),
		t.Instrument,
		formatFloat(t.Quantity),
		formatFloat(t.EntryPrice),
		formatFloat(t.ExitPrice),
		formatFloat(t.Commission),
		t.Direction.String(),
		formatFloat(t.PnL),
		pct,
	}
}
