package domain

// AssetKind selects how a position in an instrument is valued and settled.
type AssetKind string

const (
	// AssetEquity is a cash instrument: buying pays the full notional.
	AssetEquity AssetKind = "equity"
	// AssetFuture is a margined instrument: only realized P&L and commissions move cash.
	AssetFuture AssetKind = "future"
	// AssetCrypto is a cash instrument with fractional quantities.
	AssetCrypto AssetKind = "crypto"
)

// Valid reports whether k is one of the supported asset kinds.
func (k AssetKind) Valid() bool {
	switch k {
	case AssetEquity, AssetFuture, AssetCrypto:
		return true
	default:
		return false
	}
}

// Margined reports whether positions in this kind of asset are carried on margin.
func (k AssetKind) Margined() bool {
	return k == AssetFuture
}

// Direction is the sign of a position: +1 long, -1 short, 0 flat.
type Direction int

const (
	Short Direction = -1
	Flat  Direction = 0
	Long  Direction = 1
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// DirectionOf returns the direction a signed quantity points in.
func DirectionOf(quantity float64) Direction {
	switch {
	case quantity > 0:
		return Long
	case quantity < 0:
		return Short
	default:
		return Flat
	}
}
