package approval

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Gate decides whether a large buy order may proceed. Implementations may
// be slow or fail; callers are expected to bound the call with a context
// deadline.
type Gate interface {
	Approve(ctx context.Context, code string, size int64) (bool, error)
}

// RandomGate simulates an external approval dependency. It sleeps a
// random duration within [minDelay, maxDelay] and then approves either
// always (override) or by coin flip.
type RandomGate struct {
	minDelay      time.Duration
	maxDelay      time.Duration
	approveAlways bool

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomGate creates a RandomGate. A maxDelay of zero (or maxDelay <
// minDelay) disables the artificial latency.
func NewRandomGate(minDelay, maxDelay time.Duration, approveAlways bool, rnd *rand.Rand) *RandomGate {
	return &RandomGate{
		minDelay:      minDelay,
		maxDelay:      maxDelay,
		approveAlways: approveAlways,
		rnd:           rnd,
	}
}

// Approve implements Gate. It honors context cancellation during the
// artificial delay.
func (g *RandomGate) Approve(ctx context.Context, code string, size int64) (bool, error) {
	if d := g.delay(); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	if g.approveAlways {
		return true, nil
	}
	g.mu.Lock()
	verdict := g.rnd.Intn(2) == 0
	g.mu.Unlock()
	return verdict, nil
}

func (g *RandomGate) delay() time.Duration {
	if g.maxDelay <= 0 || g.minDelay > g.maxDelay {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.maxDelay == g.minDelay {
		return g.minDelay
	}
	return g.minDelay + time.Duration(g.rnd.Int63n(int64(g.maxDelay-g.minDelay)))
}
