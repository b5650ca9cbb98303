// Package trades rebuilds round-trip trades from a transaction stream.
package trades

import (
	"fmt"
	"sort"

	"backtestCore/internal/domain"
	"backtestCore/internal/portfolio"
)

// Generator turns transactions or closed positions into trades.
type Generator struct{}

// NewGenerator creates a trade generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// FromTransactions replays txs per instrument in chronological order
// (stable for equal times) through a fresh position, splitting any fill
// that crosses zero. Every time the position closes a trade is emitted.
// Open remainders produce no trade. When navs is non-empty each trade's
// PnLPct is its PnL over the latest NAV at or before its open time.
func (g *Generator) FromTransactions(txs []domain.Transaction, navs []portfolio.SeriesPoint) ([]*domain.Trade, error) {
	var order []string
	byInstrument := make(map[string][]domain.Transaction)
	for _, tx := range txs {
		id := tx.Instrument.ID
		if _, seen := byInstrument[id]; !seen {
			order = append(order, id)
		}
		byInstrument[id] = append(byInstrument[id], tx)
	}

	var out []*domain.Trade
	for _, id := range order {
		run := byInstrument[id]
		sort.SliceStable(run, func(i, j int) bool { return run[i].Time.Before(run[j].Time) })

		var pos *portfolio.Position
		for _, tx := range run {
			held := 0.0
			if pos != nil {
				held = pos.Quantity()
			}
			for _, leg := range portfolio.Legs(held, tx) {
				if pos == nil {
					pos = portfolio.NewPosition(leg.Instrument)
				}
				if _, err := pos.Transact(leg); err != nil {
					return nil, fmt.Errorf("replay %s transaction %s: %w", id, tx.ID, err)
				}
				if pos.Closed() {
					trade, err := pos.Trade()
					if err != nil {
						return nil, err
					}
					out = append(out, trade)
					pos = nil
				}
			}
		}
	}

	sortByClose(out)
	attachPnLPct(out, navs)
	return out, nil
}

// FromPositions builds one trade per closed position, ordered by close time.
func (g *Generator) FromPositions(closed []*portfolio.Position, navs []portfolio.SeriesPoint) ([]*domain.Trade, error) {
	out := make([]*domain.Trade, 0, len(closed))
	for _, pos := range closed {
		trade, err := pos.Trade()
		if err != nil {
			return nil, err
		}
		out = append(out, trade)
	}
	sortByClose(out)
	attachPnLPct(out, navs)
	return out, nil
}

func sortByClose(trades []*domain.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].CloseTime.Before(trades[j].CloseTime)
	})
}

func attachPnLPct(trades []*domain.Trade, navs []portfolio.SeriesPoint) {
	if len(navs) == 0 {
		return
	}
	for _, t := range trades {
		// navs is recorded in clock order; find the last point not after OpenTime.
		i := sort.Search(len(navs), func(i int) bool { return navs[i].Time.After(t.OpenTime) })
		if i == 0 || navs[i-1].Value == 0 {
			continue
		}
		pct := t.PnL / navs[i-1].Value
		t.PnLPct = &pct
	}
}
