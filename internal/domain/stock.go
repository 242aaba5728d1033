package domain

import (
	"math"
	"math/rand"
)

// Stock tracks the exchange's view of a single symbol: the price it was
// first observed at, the current price, the percentage change between the
// two, and the quantity currently held. Prices are int64 cents. Instances
// are owned by a ledger and must only be touched under its concurrency
// discipline.
type Stock struct {
	Code          string
	StartingPrice int64 // immutable after creation
	Price         int64 // always > 0
	Change        float64
	Holding       int64 // never negative
}

// NewStock creates a stock at its first observed price. The starting
// price is fixed here and the change is therefore zero.
func NewStock(code string, price int64) *Stock {
	return &Stock{
		Code:          code,
		StartingPrice: price,
		Price:         price,
	}
}

// SetPrice updates the current price and recomputes the change
// percentage against the starting price.
func (s *Stock) SetPrice(price int64) {
	s.Change = ChangePercentage(s.StartingPrice, price)
	s.Price = price
}

// Snapshot is an immutable copy of a stock, safe to hand to callers
// without exposing the ledger's mutable state.
type Snapshot struct {
	Code          string
	StartingPrice int64
	Price         int64
	Change        float64
	Holding       int64
}

// Snapshot returns a copy of the stock's current state.
func (s *Stock) Snapshot() Snapshot {
	return Snapshot{
		Code:          s.Code,
		StartingPrice: s.StartingPrice,
		Price:         s.Price,
		Change:        s.Change,
		Holding:       s.Holding,
	}
}

// ChangePercentage returns the signed relative change of current against
// starting. The result is negative exactly when current < starting.
func ChangePercentage(starting, current int64) float64 {
	if starting > current {
		return -1.0 * (float64(starting)/float64(current) - 1.0)
	}
	return float64(current)/float64(starting) - 1.0
}

// NextPrice advances a price by a random step of at most 1% in either
// direction. The result never drops below one cent.
func NextPrice(current int64, rnd *rand.Rand) int64 {
	factor := rnd.Float64() * 0.01
	if rnd.Intn(2) == 0 {
		factor = -factor
	}
	next := current + int64(math.Round(float64(current)*factor))
	if next < 1 {
		next = 1
	}
	return next
}
