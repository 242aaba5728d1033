package ledger

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apm287/stockledger/internal/approval"
	"github.com/apm287/stockledger/internal/domain"
)

// AtomicLedger keeps the balance in a lock-free atomic scalar and guards
// each stock with its own mutex, so trades on different symbols never
// contend. The balance debit on a buy is a compare-and-swap retry loop
// that re-checks the sufficient-funds precondition on every attempt,
// making check-then-debit one logical step without a balance lock. The
// stock's lock is held from the price read through the balance update so
// two trades on the same symbol cannot interleave.
type AtomicLedger struct {
	gate      approval.Gate
	threshold int64

	balance atomic.Int64

	mu     sync.RWMutex // guards the stocks map, not the entries
	stocks map[string]*stockEntry
}

type stockEntry struct {
	mu    sync.Mutex
	stock domain.Stock
}

// NewAtomicLedger creates a fine-grained ledger with the given starting
// balance in cents.
func NewAtomicLedger(startingBalance, approveThreshold int64, gate approval.Gate) *AtomicLedger {
	l := &AtomicLedger{
		gate:      gate,
		threshold: approveThreshold,
		stocks:    make(map[string]*stockEntry),
	}
	l.balance.Store(startingBalance)
	return l
}

// Balance implements Ledger.
func (l *AtomicLedger) Balance() BalanceInfo {
	l.mu.RLock()
	entries := make([]*stockEntry, 0, len(l.stocks))
	for _, e := range l.stocks {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	var exposure int64
	for _, e := range entries {
		e.mu.Lock()
		exposure += e.stock.Price * e.stock.Holding
		e.mu.Unlock()
	}
	return BalanceInfo{Balance: l.balance.Load(), Exposure: exposure, Timestamp: time.Now()}
}

// Overview implements Ledger.
func (l *AtomicLedger) Overview() []domain.Snapshot {
	l.mu.RLock()
	entries := make([]*stockEntry, 0, len(l.stocks))
	for _, e := range l.stocks {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	snapshots := make([]domain.Snapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		snapshots = append(snapshots, e.stock.Snapshot())
		e.mu.Unlock()
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Code < snapshots[j].Code })
	return snapshots
}

// ApplyPriceTick implements Ledger.
func (l *AtomicLedger) ApplyPriceTick(code string, price int64) {
	if e := l.lookup(code); e != nil {
		e.mu.Lock()
		e.stock.SetPrice(price)
		e.mu.Unlock()
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.stocks[code]; ok {
		// Lost the race with another creator; update instead.
		e.mu.Lock()
		e.stock.SetPrice(price)
		e.mu.Unlock()
		return
	}
	l.stocks[code] = &stockEntry{stock: *domain.NewStock(code, price)}
}

// Buy implements Ledger.
func (l *AtomicLedger) Buy(ctx context.Context, code string, size int64) (TradeResult, error) {
	e := l.lookup(code)
	if e == nil {
		return rejected(domain.ErrUnknownSymbol), nil
	}
	if size <= 0 {
		return rejected(domain.ErrInvalidSize), nil
	}
	if err := approveBuy(ctx, l.gate, code, size, l.threshold); err != nil {
		return rejected(err), nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cost := e.stock.Price * size
	if !l.debit(cost) {
		return rejected(domain.ErrInsufficientBalance), nil
	}
	e.stock.Holding += size
	return executed(e.stock.Snapshot()), nil
}

// Sell implements Ledger.
func (l *AtomicLedger) Sell(ctx context.Context, code string, size int64) (TradeResult, error) {
	e := l.lookup(code)
	if e == nil {
		return rejected(domain.ErrUnknownSymbol), nil
	}
	if size <= 0 {
		return rejected(domain.ErrInvalidSize), nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if size > e.stock.Holding {
		return rejected(domain.ErrInsufficientHolding), nil
	}
	l.balance.Add(e.stock.Price * size)
	e.stock.Holding -= size
	return executed(e.stock.Snapshot()), nil
}

// debit atomically subtracts cost from the balance unless that would make
// it negative. The CAS loop retries when a concurrent trade moved the
// balance between the check and the swap.
func (l *AtomicLedger) debit(cost int64) bool {
	for {
		bal := l.balance.Load()
		if cost > bal {
			return false
		}
		if l.balance.CompareAndSwap(bal, bal-cost) {
			return true
		}
	}
}

func (l *AtomicLedger) lookup(code string) *stockEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stocks[code]
}
