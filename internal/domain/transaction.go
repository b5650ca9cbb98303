package domain

import (
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// TransactionColumns is the stable column order of Transaction.Record.
var TransactionColumns = []string{
	"timestamp", "instrument", "quantity", "price", "commission", "net_amount",
	"order_id", "strategy", "transaction_id",
}

// Transaction is an immutable fill: a signed quantity of an instrument bought
// (+) or sold (-) at a price, with the commission paid for it.
type Transaction struct {
	ID         string     // Unique identifier, assigned by NewTransaction
	Time       time.Time  // Fill time
	Instrument Instrument // What was traded
	Quantity   float64    // Signed quantity (+buy / -sell)
	Price      float64    // Fill price, > 0
	Commission float64    // Fees paid, >= 0

	// Routing metadata, carried through untouched for the blotter.
	OrderID  string
	Strategy string
}

// NewTransaction creates a transaction with a fresh ID.
func NewTransaction(at time.Time, instrument Instrument, quantity, price, commission float64) Transaction {
	return Transaction{
		ID:         uuid.NewString(),
		Time:       at,
		Instrument: instrument,
		Quantity:   quantity,
		Price:      price,
		Commission: commission,
	}
}

// NetAmount returns quantity × price × contract size − commission.
func (t Transaction) NetAmount() float64 {
	return t.Quantity*t.Price*t.Instrument.ContractSize() - t.Commission
}

// Split divides the transaction into a closing leg of closingQty and a
// remaining leg holding the rest. Commission is prorated by quantity share.
// closingQty must have the same sign as the transaction and a smaller magnitude.
func (t Transaction) Split(closingQty float64) (closing, remaining Transaction) {
	share := math.Abs(closingQty) / math.Abs(t.Quantity)

	closing = t
	closing.Quantity = closingQty
	closing.Commission = t.Commission * share

	remaining = t
	remaining.Quantity = t.Quantity - closingQty
	remaining.Commission = t.Commission - closing.Commission
	return closing, remaining
}

// Record renders the transaction in TransactionColumns order.
func (t Transaction) Record() []string {
	return []string{
		t.Time.Format(time.RFC3339Nano),
		t.Instrument.ID,
		formatFloat(t.Quantity),
		formatFloat(t.Price),
		formatFloat(t.Commission),
		formatFloat(t.NetAmount()),
		t.OrderID,
		t.Strategy,
		t.ID,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
