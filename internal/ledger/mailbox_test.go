package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/apm287/stockledger/internal/journal"
)

func openTestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "balance.log"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func newMailbox(t *testing.T, balance int64, gate *stubGate, j *journal.Journal) *MailboxLedger {
	t.Helper()
	l, err := NewMailboxLedger(balance, 5, gate, j, testLogger())
	if err != nil {
		t.Fatalf("NewMailboxLedger: %v", err)
	}
	t.Cleanup(l.Close)
	return l
}

// TestMailboxLedger_RestartRecoversBalance runs the recovery drill: after
// trades, a deliberate crash/restart must reconstruct the balance purely
// from the journal while holdings revert to empty.
func TestMailboxLedger_RestartRecoversBalance(t *testing.T) {
	j := openTestJournal(t)
	l := newMailbox(t, 1_000_000, &stubGate{verdict: true}, j)

	l.ApplyPriceTick("XYZ", 10_000)
	if res := mustBuy(t, l, "XYZ", 3); !res.Success {
		t.Fatalf("buy rejected: %v", res.Reason)
	}
	wantBalance := int64(1_000_000 - 3*10_000)
	if info := l.Balance(); info.Balance != wantBalance {
		t.Fatalf("balance = %d, want %d", info.Balance, wantBalance)
	}

	recovered, err := l.Restart(context.Background())
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if recovered != wantBalance {
		t.Fatalf("recovered balance = %d, want %d", recovered, wantBalance)
	}

	// Only the balance is durable; holdings rebuild from later ticks.
	if overview := l.Overview(); len(overview) != 0 {
		t.Fatalf("overview has %d stocks after restart, want 0", len(overview))
	}
	if info := l.Balance(); info.Balance != wantBalance {
		t.Fatalf("balance after restart = %d, want %d", info.Balance, wantBalance)
	}

	// The ledger keeps serving after the drill.
	l.ApplyPriceTick("XYZ", 10_000)
	if res := mustBuy(t, l, "XYZ", 1); !res.Success {
		t.Fatalf("post-restart buy rejected: %v", res.Reason)
	}
}

// TestMailboxLedger_FreshProcessReplaysJournal simulates a process
// restart: a second ledger over the same journal must see the first
// ledger's trades.
func TestMailboxLedger_FreshProcessReplaysJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balance.log")
	j, err := journal.Open(path)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}

	l := newMailbox(t, 1_000_000, &stubGate{verdict: true}, j)
	l.ApplyPriceTick("XYZ", 10_000)
	mustBuy(t, l, "XYZ", 3)
	mustSell(t, l, "XYZ", 1)
	want := l.Balance().Balance
	l.Close()
	if err := j.Close(); err != nil {
		t.Fatalf("journal close: %v", err)
	}

	j2, err := journal.Open(path)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	t.Cleanup(func() { j2.Close() })
	l2 := newMailbox(t, 1_000_000, &stubGate{verdict: true}, j2)

	if info := l2.Balance(); info.Balance != want {
		t.Fatalf("recovered balance = %d, want %d", info.Balance, want)
	}
	if overview := l2.Overview(); len(overview) != 0 {
		t.Fatalf("holdings survived restart: %v", overview)
	}
}

// TestMailboxLedger_ApprovalDoesNotBlockMailbox issues a large buy through
// a slow gate and verifies reads and small trades complete while the
// approval is still outstanding.
func TestMailboxLedger_ApprovalDoesNotBlockMailbox(t *testing.T) {
	gate := &stubGate{verdict: true, delay: 300 * time.Millisecond}
	l := newMailbox(t, 100_000_000, gate, nil)
	l.ApplyPriceTick("XYZ", 10_000)

	bigDone := make(chan TradeResult, 1)
	go func() {
		res, err := l.Buy(context.Background(), "XYZ", 6)
		if err != nil {
			t.Errorf("big buy: %v", err)
		}
		bigDone <- res
	}()

	// Give the big buy time to enter the mailbox and dispatch approval.
	time.Sleep(50 * time.Millisecond)

	interleaved := make(chan struct{})
	go func() {
		defer close(interleaved)
		l.Balance()
		if res := mustBuy(t, l, "XYZ", 1); !res.Success {
			t.Errorf("small buy rejected: %v", res.Reason)
		}
	}()

	select {
	case <-interleaved:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("mailbox blocked while approval was outstanding")
	}

	select {
	case res := <-bigDone:
		if !res.Success {
			t.Fatalf("big buy rejected: %v", res.Reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("big buy never completed")
	}
}

// TestMailboxLedger_JournalAppendFailureAbortsTrade closes the journal
// underneath the ledger; the next trade must fail without any in-memory
// mutation.
func TestMailboxLedger_JournalAppendFailureAbortsTrade(t *testing.T) {
	j := openTestJournal(t)
	l := newMailbox(t, 1_000_000, &stubGate{verdict: true}, j)

	l.ApplyPriceTick("XYZ", 10_000)
	mustBuy(t, l, "XYZ", 1)
	before := l.Balance().Balance

	if err := j.Close(); err != nil {
		t.Fatalf("journal close: %v", err)
	}

	_, err := l.Buy(context.Background(), "XYZ", 1)
	if err == nil {
		t.Fatal("buy succeeded with a dead journal")
	}
	if info := l.Balance(); info.Balance != before {
		t.Fatalf("failed append moved balance from %d to %d", before, info.Balance)
	}
	if l.Overview()[0].Holding != 1 {
		t.Fatalf("failed append moved holding to %d", l.Overview()[0].Holding)
	}
}

// TestMailboxLedger_ContextCancelledBuy verifies a caller abandoning a
// trade gets the context error.
func TestMailboxLedger_ContextCancelledBuy(t *testing.T) {
	gate := &stubGate{verdict: true, delay: time.Second}
	l := newMailbox(t, 100_000_000, gate, nil)
	l.ApplyPriceTick("XYZ", 10_000)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := l.Buy(ctx, "XYZ", 6)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

// TestMailboxLedger_CloseUnblocksCallers verifies closed-ledger calls do
// not hang.
func TestMailboxLedger_CloseUnblocksCallers(t *testing.T) {
	l := newMailbox(t, 1_000_000, &stubGate{verdict: true}, nil)
	l.ApplyPriceTick("XYZ", 10_000)
	l.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Balance()
		l.Overview()
		l.ApplyPriceTick("XYZ", 9_000)
		if _, err := l.Buy(context.Background(), "XYZ", 1); err == nil {
			t.Error("buy on closed ledger succeeded")
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("closed ledger blocked a caller")
	}
}
