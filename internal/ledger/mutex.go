package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/apm287/stockledger/internal/approval"
	"github.com/apm287/stockledger/internal/domain"
)

// MutexLedger serializes every operation through a single RWMutex over
// the whole state (balance plus all stocks). Reads take the read lock,
// trades and price ticks the write lock. Approval calls happen before the
// lock is taken so a slow gate never stalls other operations.
type MutexLedger struct {
	gate      approval.Gate
	threshold int64

	mu      sync.RWMutex
	balance int64
	stocks  map[string]*domain.Stock
}

// NewMutexLedger creates a coarse-lock ledger with the given starting
// balance in cents.
func NewMutexLedger(startingBalance, approveThreshold int64, gate approval.Gate) *MutexLedger {
	return &MutexLedger{
		gate:      gate,
		threshold: approveThreshold,
		balance:   startingBalance,
		stocks:    make(map[string]*domain.Stock),
	}
}

// Balance implements Ledger.
func (l *MutexLedger) Balance() BalanceInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var exposure int64
	for _, s := range l.stocks {
		exposure += s.Price * s.Holding
	}
	return BalanceInfo{Balance: l.balance, Exposure: exposure, Timestamp: time.Now()}
}

// Overview implements Ledger.
func (l *MutexLedger) Overview() []domain.Snapshot {
	l.mu.RLock()
	snapshots := make([]domain.Snapshot, 0, len(l.stocks))
	for _, s := range l.stocks {
		snapshots = append(snapshots, s.Snapshot())
	}
	l.mu.RUnlock()

	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Code < snapshots[j].Code })
	return snapshots
}

// ApplyPriceTick implements Ledger.
func (l *MutexLedger) ApplyPriceTick(code string, price int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.stocks[code]; ok {
		s.SetPrice(price)
		return
	}
	l.stocks[code] = domain.NewStock(code, price)
}

// Buy implements Ledger.
func (l *MutexLedger) Buy(ctx context.Context, code string, size int64) (TradeResult, error) {
	if !l.tracked(code) {
		return rejected(domain.ErrUnknownSymbol), nil
	}
	if size <= 0 {
		return rejected(domain.ErrInvalidSize), nil
	}
	if err := approveBuy(ctx, l.gate, code, size, l.threshold); err != nil {
		return rejected(err), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.stocks[code]
	if !ok {
		return rejected(domain.ErrUnknownSymbol), nil
	}
	cost := s.Price * size
	if cost > l.balance {
		return rejected(domain.ErrInsufficientBalance), nil
	}
	l.balance -= cost
	s.Holding += size
	return executed(s.Snapshot()), nil
}

// Sell implements Ledger.
func (l *MutexLedger) Sell(ctx context.Context, code string, size int64) (TradeResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.stocks[code]
	if !ok {
		return rejected(domain.ErrUnknownSymbol), nil
	}
	if size <= 0 {
		return rejected(domain.ErrInvalidSize), nil
	}
	if size > s.Holding {
		return rejected(domain.ErrInsufficientHolding), nil
	}
	l.balance += s.Price * size
	s.Holding -= size
	return executed(s.Snapshot()), nil
}

func (l *MutexLedger) tracked(code string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.stocks[code]
	return ok
}
