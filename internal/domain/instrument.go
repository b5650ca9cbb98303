package domain

import "fmt"

// Instrument identifies a tradable contract.
type Instrument struct {
	ID         string    // Ticker or symbol (e.g., "AAPL", "ESZ5", "ETHUSDT")
	Kind       AssetKind // Valuation model
	Multiplier float64   // Contract size; 0 means 1
}

// NewInstrument creates an instrument, validating its kind and multiplier.
func NewInstrument(id string, kind AssetKind, multiplier float64) (Instrument, error) {
	if id == "" {
		return Instrument{}, fmt.Errorf("instrument id must be set")
	}
	if !kind.Valid() {
		return Instrument{}, fmt.Errorf("unsupported asset kind %q for instrument %s", kind, id)
	}
	if multiplier < 0 {
		return Instrument{}, fmt.Errorf("multiplier for instrument %s cannot be negative", id)
	}
	return Instrument{ID: id, Kind: kind, Multiplier: multiplier}, nil
}

// ContractSize returns the multiplier applied to quantity × price.
func (i Instrument) ContractSize() float64 {
	if i.Multiplier == 0 {
		return 1
	}
	return i.Multiplier
}

// String returns the instrument id.
func (i Instrument) String() string {
	return i.ID
}
