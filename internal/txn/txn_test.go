package txn

import (
	"errors"
	"testing"

	"github.com/introt/kernel/internal/pmem"
)

func newTestTx() *Transaction {
	return New(pmem.NewJournal(8), NewCache())
}

func TestRunCachesResultAcrossReplay(t *testing.T) {
	tx := newTestTx()
	calls := 0

	body := func() (int, error) {
		calls++
		return 42, nil
	}

	v, err := Run(tx, body)
	if err != nil || v != 42 {
		t.Fatalf("unexpected result %d, %v", v, err)
	}

	// Simulate a replay of the very same call site by resetting the
	// transaction's nesting and re-invoking against the same tx id: since
	// commitRaw advanced the id, a genuinely identical replay would be
	// driven by the caller re-running with the same pre-increment id. We
	// exercise that path directly via TryRun against the id the cache
	// already holds.
	tx.mu.Lock()
	tx.txID--
	tx.mu.Unlock()

	v2, err := TryRun(tx, body)
	if err != nil || v2 != 42 {
		t.Fatalf("expected cached replay, got %d, %v", v2, err)
	}
	if calls != 1 {
		t.Errorf("expected body to run exactly once, ran %d times", calls)
	}
}

func TestTryRunRetryDoesNotCache(t *testing.T) {
	tx := newTestTx()
	attempts := 0

	body := func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, ErrRetry
		}
		return 7, nil
	}

	v, err := Run(tx, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 7 {
		t.Errorf("expected 7, got %d", v)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRollBackIfUncommittedRestoresJournal(t *testing.T) {
	tx := newTestTx()
	val := pmem.NewVar(int64(1))

	tx.begin()
	*val.BorrowMut(tx.Journal()) = 99
	// crash before commit: nesting stays at 1, journal has one entry.
	tx.RollBackIfUncommitted()

	if got := *val.Borrow(); got != 1 {
		t.Errorf("expected rollback to restore 1, got %d", got)
	}
	if tx.NestingLevel() != 0 {
		t.Errorf("expected nesting reset to 0, got %d", tx.NestingLevel())
	}
}

func TestExitErrorPropagatesWithoutCaching(t *testing.T) {
	tx := newTestTx()
	body := func() (int, error) {
		return 0, ErrExit
	}

	_, err := TryRun(tx, body)
	if !errors.Is(err, ErrExit) {
		t.Fatalf("expected ErrExit, got %v", err)
	}
}
