package ledger

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/apm287/stockledger/internal/approval"
	"github.com/apm287/stockledger/internal/domain"
	"github.com/apm287/stockledger/internal/journal"
)

// MailboxLedger funnels every operation through a single goroutine that
// drains an ordered command channel, so the state is never touched
// concurrently and no locking is needed. A large buy must not block the
// loop while the approval gate deliberates: the gate call runs on its own
// goroutine and its verdict re-enters the mailbox as a continuation
// command, letting price ticks, reads and small trades proceed in the
// meantime.
//
// This is also the durable strategy: every balance-changing trade is
// appended to the journal before the in-memory balance moves, and a
// supervised restart rebuilds the balance by replaying the journal over
// the starting balance. Holdings are not journaled; after a restart they
// rebuild from subsequent price ticks and trades.
type MailboxLedger struct {
	gate      approval.Gate
	threshold int64
	starting  int64
	jrnl      *journal.Journal
	logger    *slog.Logger

	cmds      chan command
	done      chan struct{}
	closeOnce sync.Once
}

type command interface{}

type tickCmd struct {
	code  string
	price int64
}

type balanceCmd struct {
	reply chan BalanceInfo
}

type overviewCmd struct {
	reply chan []domain.Snapshot
}

type tradeReply struct {
	res TradeResult
	err error
}

type buyCmd struct {
	ctx   context.Context
	code  string
	size  int64
	reply chan tradeReply
}

type sellCmd struct {
	code  string
	size  int64
	reply chan tradeReply
}

// approvedCmd is the deferred continuation of a large buy: the gate's
// verdict re-injected into the mailbox.
type approvedCmd struct {
	code  string
	size  int64
	err   error // nil means approved
	reply chan tradeReply
}

type restartReply struct {
	balance int64
	err     error
}

// crashCmd deliberately stops the processing loop so the supervisor
// replays the journal and restarts it. Recovery drill hook.
type crashCmd struct {
	reply chan restartReply
}

type mailboxState struct {
	balance int64
	stocks  map[string]*domain.Stock
}

// NewMailboxLedger creates a mailbox ledger, replays the journal to
// recover the balance, and starts the processing loop. A nil journal
// disables durability (trades apply in memory only).
func NewMailboxLedger(startingBalance, approveThreshold int64, gate approval.Gate, jrnl *journal.Journal, logger *slog.Logger) (*MailboxLedger, error) {
	l := &MailboxLedger{
		gate:      gate,
		threshold: approveThreshold,
		starting:  startingBalance,
		jrnl:      jrnl,
		logger:    logger,
		cmds:      make(chan command, 128),
		done:      make(chan struct{}),
	}
	balance, err := l.recoverBalance()
	if err != nil {
		return nil, err
	}
	logger.Info("mailbox ledger started",
		slog.Float64("balance", domain.CentsToDollars(balance)),
	)
	go l.run(&mailboxState{balance: balance, stocks: make(map[string]*domain.Stock)})
	return l, nil
}

// recoverBalance folds the journal over the starting balance.
func (l *MailboxLedger) recoverBalance() (int64, error) {
	if l.jrnl == nil {
		return l.starting, nil
	}
	delta, err := l.jrnl.Replay()
	if err != nil {
		return 0, err
	}
	return l.starting + delta, nil
}

// run supervises the processing loop. Each crash command stops serve; the
// journal is replayed, the state rebuilt (holdings empty), and the same
// command channel continues to be served.
func (l *MailboxLedger) run(st *mailboxState) {
	for {
		crash, ok := l.serve(st)
		if !ok {
			return
		}
		balance, err := l.recoverBalance()
		if err != nil {
			l.logger.Error("journal replay failed, using starting balance",
				slog.String("error", err.Error()),
			)
			crash.reply <- restartReply{err: err}
			balance = l.starting
		} else {
			l.logger.Info("ledger restarted from journal",
				slog.Float64("balance", domain.CentsToDollars(balance)),
			)
			crash.reply <- restartReply{balance: balance}
		}
		st = &mailboxState{balance: balance, stocks: make(map[string]*domain.Stock)}
	}
}

// serve processes commands one at a time until a crash command arrives
// (returned to the supervisor) or the ledger is closed.
func (l *MailboxLedger) serve(st *mailboxState) (crashCmd, bool) {
	for {
		select {
		case <-l.done:
			return crashCmd{}, false
		case cmd := <-l.cmds:
			switch c := cmd.(type) {
			case tickCmd:
				if s, ok := st.stocks[c.code]; ok {
					s.SetPrice(c.price)
				} else {
					st.stocks[c.code] = domain.NewStock(c.code, c.price)
				}
			case balanceCmd:
				var exposure int64
				for _, s := range st.stocks {
					exposure += s.Price * s.Holding
				}
				c.reply <- BalanceInfo{Balance: st.balance, Exposure: exposure, Timestamp: time.Now()}
			case overviewCmd:
				snapshots := make([]domain.Snapshot, 0, len(st.stocks))
				for _, s := range st.stocks {
					snapshots = append(snapshots, s.Snapshot())
				}
				sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Code < snapshots[j].Code })
				c.reply <- snapshots
			case buyCmd:
				l.handleBuy(st, c)
			case sellCmd:
				c.reply <- l.executeSell(st, c.code, c.size)
			case approvedCmd:
				if c.err != nil {
					c.reply <- tradeReply{res: rejected(c.err)}
				} else {
					c.reply <- l.executeBuy(st, c.code, c.size)
				}
			case crashCmd:
				return c, true
			}
		}
	}
}

func (l *MailboxLedger) handleBuy(st *mailboxState, c buyCmd) {
	if _, ok := st.stocks[c.code]; !ok {
		c.reply <- tradeReply{res: rejected(domain.ErrUnknownSymbol)}
		return
	}
	if c.size <= 0 {
		c.reply <- tradeReply{res: rejected(domain.ErrInvalidSize)}
		return
	}
	if c.size <= l.threshold {
		c.reply <- l.executeBuy(st, c.code, c.size)
		return
	}

	// Approval must not block the mailbox. The verdict re-enters as a
	// continuation carrying the caller's reply channel.
	go func() {
		err := approveBuy(c.ctx, l.gate, c.code, c.size, l.threshold)
		select {
		case l.cmds <- approvedCmd{code: c.code, size: c.size, err: err, reply: c.reply}:
		case <-l.done:
		}
	}()
}

func (l *MailboxLedger) executeBuy(st *mailboxState, code string, size int64) tradeReply {
	s, ok := st.stocks[code]
	if !ok {
		// The symbol can vanish between approval dispatch and the
		// continuation when a restart cleared holdings.
		return tradeReply{res: rejected(domain.ErrUnknownSymbol)}
	}
	cost := s.Price * size
	if cost > st.balance {
		return tradeReply{res: rejected(domain.ErrInsufficientBalance)}
	}
	// Durable append comes first; if it fails the trade is aborted with
	// no in-memory change.
	if l.jrnl != nil {
		if err := l.jrnl.Append(-cost); err != nil {
			return tradeReply{err: err}
		}
	}
	st.balance -= cost
	s.Holding += size
	return tradeReply{res: executed(s.Snapshot())}
}

func (l *MailboxLedger) executeSell(st *mailboxState, code string, size int64) tradeReply {
	s, ok := st.stocks[code]
	if !ok {
		return tradeReply{res: rejected(domain.ErrUnknownSymbol)}
	}
	if size <= 0 {
		return tradeReply{res: rejected(domain.ErrInvalidSize)}
	}
	if size > s.Holding {
		return tradeReply{res: rejected(domain.ErrInsufficientHolding)}
	}
	credit := s.Price * size
	if l.jrnl != nil {
		if err := l.jrnl.Append(credit); err != nil {
			return tradeReply{err: err}
		}
	}
	st.balance += credit
	s.Holding -= size
	return tradeReply{res: executed(s.Snapshot())}
}

// Balance implements Ledger.
func (l *MailboxLedger) Balance() BalanceInfo {
	reply := make(chan BalanceInfo, 1)
	select {
	case l.cmds <- balanceCmd{reply: reply}:
	case <-l.done:
		return BalanceInfo{Timestamp: time.Now()}
	}
	select {
	case info := <-reply:
		return info
	case <-l.done:
		return BalanceInfo{Timestamp: time.Now()}
	}
}

// Overview implements Ledger.
func (l *MailboxLedger) Overview() []domain.Snapshot {
	reply := make(chan []domain.Snapshot, 1)
	select {
	case l.cmds <- overviewCmd{reply: reply}:
	case <-l.done:
		return nil
	}
	select {
	case snapshots := <-reply:
		return snapshots
	case <-l.done:
		return nil
	}
}

// ApplyPriceTick implements Ledger. Fire-and-forget: the tick is dropped
// if the ledger is already closed.
func (l *MailboxLedger) ApplyPriceTick(code string, price int64) {
	select {
	case l.cmds <- tickCmd{code: code, price: price}:
	case <-l.done:
	}
}

// Buy implements Ledger.
func (l *MailboxLedger) Buy(ctx context.Context, code string, size int64) (TradeResult, error) {
	reply := make(chan tradeReply, 1)
	return l.await(ctx, reply, buyCmd{ctx: ctx, code: code, size: size, reply: reply})
}

// Sell implements Ledger.
func (l *MailboxLedger) Sell(ctx context.Context, code string, size int64) (TradeResult, error) {
	reply := make(chan tradeReply, 1)
	return l.await(ctx, reply, sellCmd{code: code, size: size, reply: reply})
}

func (l *MailboxLedger) await(ctx context.Context, reply chan tradeReply, cmd command) (TradeResult, error) {
	select {
	case l.cmds <- cmd:
	case <-ctx.Done():
		return TradeResult{}, ctx.Err()
	case <-l.done:
		return TradeResult{}, context.Canceled
	}
	select {
	case r := <-reply:
		return r.res, r.err
	case <-ctx.Done():
		return TradeResult{}, ctx.Err()
	case <-l.done:
		return TradeResult{}, context.Canceled
	}
}

// Restart triggers the supervised crash/replay cycle and returns the
// recovered balance in cents. Holdings are reset; only the balance is
// reconstructed from the journal.
func (l *MailboxLedger) Restart(ctx context.Context) (int64, error) {
	reply := make(chan restartReply, 1)
	select {
	case l.cmds <- crashCmd{reply: reply}:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-l.done:
		return 0, context.Canceled
	}
	select {
	case r := <-reply:
		return r.balance, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-l.done:
		return 0, context.Canceled
	}
}

// Close stops the processing loop. Pending commands are dropped.
func (l *MailboxLedger) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}
