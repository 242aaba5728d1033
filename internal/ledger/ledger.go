// Package ledger holds the authoritative trading state (cash balance plus
// per-symbol price and holding) and implements the buy/sell/query contract
// under three interchangeable concurrency disciplines: a coarse single
// lock (MutexLedger), a lock-free balance with per-stock locks
// (AtomicLedger), and a single-writer command mailbox with durable
// balance recovery (MailboxLedger).
package ledger

import (
	"context"
	"time"

	"github.com/apm287/stockledger/internal/approval"
	"github.com/apm287/stockledger/internal/domain"
)

// BalanceInfo is the result of a balance query. Exposure is the
// mark-to-market value of all holdings (price * holding, summed). Both
// values are int64 cents.
type BalanceInfo struct {
	Balance   int64
	Exposure  int64
	Timestamp time.Time
}

// TradeResult is the outcome of a buy or sell. On success Stock carries a
// snapshot of the traded symbol taken at the moment of the trade; on
// rejection Reason carries one of the domain sentinel errors (or a
// *domain.ApprovalError). Rejections are in-band: the error return of
// Buy/Sell is reserved for non-domain failures such as a journal append
// error.
type TradeResult struct {
	Success bool
	Stock   domain.Snapshot
	Reason  error
}

// Ledger is the contract shared by all three strategies. Buy and Sell
// enforce the financial invariants (balance >= 0, holding >= 0)
// atomically with respect to concurrent trades and price ticks;
// ApplyPriceTick is fire-and-forget and lazily creates unknown symbols.
type Ledger interface {
	Balance() BalanceInfo
	Overview() []domain.Snapshot
	Buy(ctx context.Context, code string, size int64) (TradeResult, error)
	Sell(ctx context.Context, code string, size int64) (TradeResult, error)
	ApplyPriceTick(code string, price int64)
}

func rejected(reason error) TradeResult {
	return TradeResult{Reason: reason}
}

func executed(s domain.Snapshot) TradeResult {
	return TradeResult{Success: true, Stock: s}
}

// approveBuy consults the gate for orders above the threshold. A nil
// return means the trade may proceed; otherwise the returned error is the
// rejection reason (ErrNotApproved, ErrCircuitOpen, ErrApprovalTimeout or
// *ApprovalError, depending on what the gate reports).
func approveBuy(ctx context.Context, gate approval.Gate, code string, size, threshold int64) error {
	if size <= threshold {
		return nil
	}
	ok, err := gate.Approve(ctx, code, size)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotApproved
	}
	return nil
}
