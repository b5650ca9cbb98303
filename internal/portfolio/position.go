package portfolio

import (
	"fmt"
	"math"
	"time"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"
	"backtestCore/internal/utils"
)

// Position is the running holding of one instrument, from the first fill
// until it returns to zero. Its direction is fixed by the first fill and
// never flips; a closed position accepts no further changes.
type Position struct {
	instrument domain.Instrument
	quantity   float64
	direction  domain.Direction
	avgPrice   float64
	commission float64
	realized   float64
	markPrice  float64
	startTime  time.Time
	endTime    time.Time
	closed     bool

	// Volume and notional of the reducing fills, for the exit price.
	closedVolume   float64
	closedNotional float64
}

// NewPosition creates a flat position in instrument.
func NewPosition(instrument domain.Instrument) *Position {
	return &Position{instrument: instrument}
}

// Transact applies tx and returns the resulting change in cash.
// Equity and crypto positions pay or receive the full notional; future
// positions settle only realized P&L. Commission is always paid in cash.
func (p *Position) Transact(tx domain.Transaction) (float64, error) {
	if err := p.check(tx); err != nil {
		return 0, err
	}

	size := p.instrument.ContractSize()
	leg := 0.0
	switch {
	case p.direction == domain.Flat:
		p.direction = domain.DirectionOf(tx.Quantity)
		p.startTime = tx.Time
		p.avgPrice = tx.Price
		p.quantity = tx.Quantity

	case domain.DirectionOf(tx.Quantity) == p.direction:
		held := math.Abs(p.quantity)
		added := math.Abs(tx.Quantity)
		p.avgPrice = (p.avgPrice*held + tx.Price*added) / (held + added)
		p.quantity += tx.Quantity

	default:
		closes := utils.IsClose(p.quantity, -tx.Quantity)
		if !closes && math.Abs(tx.Quantity) > math.Abs(p.quantity) {
			return 0, fmt.Errorf("%w: %s holds %g, transaction %s trades %g",
				ports.ErrDirectionFlip, p.instrument.ID, p.quantity, tx.ID, tx.Quantity)
		}
		reduced := math.Abs(tx.Quantity)
		leg = (tx.Price - p.avgPrice) * reduced * float64(p.direction) * size
		p.realized += leg
		p.closedVolume += reduced
		p.closedNotional += tx.Price * reduced
		if closes {
			p.quantity = 0
			p.closed = true
			p.endTime = tx.Time
		} else {
			p.quantity += tx.Quantity
		}
	}

	p.commission += tx.Commission
	p.markPrice = tx.Price

	if p.instrument.Kind.Margined() {
		return leg - tx.Commission, nil
	}
	return -tx.Quantity*tx.Price*size - tx.Commission, nil
}

func (p *Position) check(tx domain.Transaction) error {
	switch {
	case p.closed:
		return fmt.Errorf("%w: %s closed at %s", ports.ErrPositionClosed, p.instrument.ID, p.endTime.Format(time.RFC3339))
	case tx.Instrument.ID != p.instrument.ID:
		return fmt.Errorf("%w: position %s, transaction %s", ports.ErrInstrumentMismatch, p.instrument.ID, tx.Instrument.ID)
	}
	return validateFill(tx)
}

// validateFill checks the numbers of tx on their own.
func validateFill(tx domain.Transaction) error {
	switch {
	case math.IsNaN(tx.Quantity) || math.IsInf(tx.Quantity, 0):
		return fmt.Errorf("%w: transaction %s quantity %g", ports.ErrInvalidQuantity, tx.ID, tx.Quantity)
	case tx.Quantity == 0:
		return fmt.Errorf("%w: transaction %s", ports.ErrZeroQuantity, tx.ID)
	case !(tx.Price > 0) || math.IsInf(tx.Price, 1):
		return fmt.Errorf("%w: transaction %s price %g", ports.ErrInvalidPrice, tx.ID, tx.Price)
	case !(tx.Commission >= 0) || math.IsInf(tx.Commission, 1):
		return fmt.Errorf("%w: transaction %s commission %g", ports.ErrInvalidCommission, tx.ID, tx.Commission)
	}
	return nil
}

// UpdatePrice marks the position at the side it would exit on: the bid
// when long (or flat), the ask when short.
func (p *Position) UpdatePrice(bid, ask float64) error {
	if p.closed {
		return fmt.Errorf("%w: %s", ports.ErrPositionClosed, p.instrument.ID)
	}
	price := bid
	if p.direction == domain.Short {
		price = ask
	}
	if !(price > 0) || math.IsInf(price, 1) {
		return fmt.Errorf("%w: %s mark %g", ports.ErrInvalidPrice, p.instrument.ID, price)
	}
	p.markPrice = price
	return nil
}

// UnrealizedPnL is the P&L of the open quantity at the mark price.
func (p *Position) UnrealizedPnL() float64 {
	return (p.markPrice - p.avgPrice) * p.quantity * p.instrument.ContractSize()
}

// MarketValue is what the position contributes to net asset value.
// Margined positions only contribute their unrealized P&L.
func (p *Position) MarketValue() float64 {
	if p.instrument.Kind.Margined() {
		return p.UnrealizedPnL()
	}
	return p.quantity * p.markPrice * p.instrument.ContractSize()
}

// Exposure is the signed notional of the open quantity at the mark price.
func (p *Position) Exposure() float64 {
	return p.quantity * p.markPrice * p.instrument.ContractSize()
}

// Trade summarises a closed position as a round trip.
func (p *Position) Trade() (*domain.Trade, error) {
	if !p.closed {
		return nil, fmt.Errorf("%w: %s", ports.ErrPositionOpen, p.instrument.ID)
	}
	return &domain.Trade{
		OpenTime:   p.startTime,
		CloseTime:  p.endTime,
		Instrument: p.instrument.ID,
		Quantity:   float64(p.direction) * p.closedVolume,
		EntryPrice: p.avgPrice,
		ExitPrice:  p.closedNotional / p.closedVolume,
		Commission: p.commission,
		Direction:  p.direction,
		PnL:        p.realized - p.commission,
	}, nil
}

func (p *Position) Instrument() domain.Instrument { return p.instrument }
func (p *Position) Quantity() float64             { return p.quantity }
func (p *Position) Direction() domain.Direction   { return p.direction }
func (p *Position) AveragePrice() float64         { return p.avgPrice }
func (p *Position) Commission() float64           { return p.commission }
func (p *Position) RealizedPnL() float64          { return p.realized }
func (p *Position) MarkPrice() float64            { return p.markPrice }
func (p *Position) StartTime() time.Time          { return p.startTime }
func (p *Position) EndTime() time.Time            { return p.endTime }
func (p *Position) Closed() bool                  { return p.closed }
