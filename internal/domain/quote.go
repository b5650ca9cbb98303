package domain

import "math"

// Quote is the best bid and ask for one instrument.
type Quote struct {
	Bid float64
	Ask float64
}

// Valid reports whether both sides are positive, finite and not crossed.
func (q Quote) Valid() bool {
	return q.Bid > 0 && q.Ask >= q.Bid && !math.IsInf(q.Ask, 1)
}

// Mid returns the midpoint of bid and ask.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}
