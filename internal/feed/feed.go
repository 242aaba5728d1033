// Package feed generates the periodic price ticks that drive the ledger.
package feed

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/apm287/stockledger/internal/domain"
)

// Sink receives price ticks. Satisfied by every ledger strategy.
type Sink interface {
	ApplyPriceTick(code string, price int64)
}

// Feed walks each tracked symbol's price by at most 1% per round and
// pushes the round into the sink, fully asynchronous from callers. The
// first round fires immediately at the starting price so holdings exist
// before the first trade arrives.
type Feed struct {
	sink     Sink
	symbols  []string
	prices   []int64
	interval time.Duration
	rnd      *rand.Rand
	logger   *slog.Logger
}

// New creates a feed over the given symbols, all starting at
// startingPrice cents.
func New(sink Sink, symbols []string, startingPrice int64, interval time.Duration, rnd *rand.Rand, logger *slog.Logger) *Feed {
	prices := make([]int64, len(symbols))
	for i := range prices {
		prices[i] = startingPrice
	}
	return &Feed{
		sink:     sink,
		symbols:  symbols,
		prices:   prices,
		interval: interval,
		rnd:      rnd,
		logger:   logger,
	}
}

// Start publishes the initial round, then one round per interval until
// the context is cancelled. Blocks; run it on its own goroutine.
func (f *Feed) Start(ctx context.Context) {
	f.logger.Info("price feed started",
		slog.Int("symbols", len(f.symbols)),
		slog.Duration("interval", f.interval),
	)

	f.publish()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("price feed stopped")
			return
		case <-ticker.C:
			for i := range f.prices {
				f.prices[i] = domain.NextPrice(f.prices[i], f.rnd)
			}
			f.publish()
		}
	}
}

func (f *Feed) publish() {
	for i, code := range f.symbols {
		f.sink.ApplyPriceTick(code, f.prices[i])
	}
}
