package domain

import (
	"math"
	"math/rand"
	"testing"

	"pgregory.net/rapid"
)

// TestProperty_ChangePercentageSign verifies the sign rule: the change is
// negative exactly when the current price is below the starting price,
// zero when equal, and positive otherwise.
func TestProperty_ChangePercentageSign(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		starting := rapid.Int64Range(1, 10_000_000).Draw(t, "starting")
		current := rapid.Int64Range(1, 10_000_000).Draw(t, "current")

		change := ChangePercentage(starting, current)

		switch {
		case current < starting && change >= 0:
			t.Fatalf("change = %f, want negative for %d -> %d", change, starting, current)
		case current > starting && change <= 0:
			t.Fatalf("change = %f, want positive for %d -> %d", change, starting, current)
		case current == starting && change != 0:
			t.Fatalf("change = %f, want 0 for unchanged price", change)
		}
	})
}

// TestProperty_ChangePercentageUpBranch verifies the exact formula
// price/startingPrice - 1 when the price has not decreased.
func TestProperty_ChangePercentageUpBranch(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		starting := rapid.Int64Range(1, 1_000_000).Draw(t, "starting")
		current := rapid.Int64Range(starting, 2_000_000).Draw(t, "current")

		got := ChangePercentage(starting, current)
		want := float64(current)/float64(starting) - 1.0
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("ChangePercentage(%d, %d) = %f, want %f", starting, current, got, want)
		}
	})
}

// TestProperty_NextPriceBoundedStep verifies that a single step moves the
// price by at most 1% (plus the rounding cent) and keeps it positive.
func TestProperty_NextPriceBoundedStep(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		price := rapid.Int64Range(1, 100_000_000).Draw(t, "price")
		seed := rapid.Int64().Draw(t, "seed")
		rnd := rand.New(rand.NewSource(seed))

		next := NextPrice(price, rnd)

		if next < 1 {
			t.Fatalf("next price %d is not positive", next)
		}
		maxStep := int64(math.Ceil(float64(price)*0.01)) + 1
		if diff := next - price; diff > maxStep || diff < -maxStep {
			t.Fatalf("step %d exceeds 1%% of %d", diff, price)
		}
	})
}
