package txn

import "testing"

func TestEnterExitIdempotentLoopRewindsTxID(t *testing.T) {
	tx := newTestTx()
	u := NewUserTxInfo()

	// Run two calls outside the loop to advance the tx id past 0.
	Run(tx, func() (int, error) { return 1, nil })
	Run(tx, func() (int, error) { return 2, nil })
	before := tx.NextTxID()

	u.EnterIdempotentLoop(tx)
	for i := 0; i < 3; i++ {
		Run(tx, func() (int, error) { return i, nil })
	}
	if tx.NextTxID() == before {
		t.Fatal("expected the tx id to have advanced during the loop body")
	}

	u.ExitIdempotentLoop(tx)
	if got := tx.NextTxID(); got != before {
		t.Fatalf("expected ExitIdempotentLoop to rewind to %d, got %d", before, got)
	}
	if u.Depth() != 0 {
		t.Fatalf("expected the loop stack to be empty after exit, depth=%d", u.Depth())
	}
}

func TestExitIdempotentLoopDiscardsCacheEntriesFromCheckpoint(t *testing.T) {
	tx := newTestTx()
	u := NewUserTxInfo()

	u.EnterIdempotentLoop(tx)
	checkpoint := tx.NextTxID()

	calls := 0
	body := func() (int, error) { calls++; return 9, nil }
	Run(tx, body)
	if !tx.Cache().Peek(checkpoint) {
		t.Fatal("expected the loop body's result to be cached before exit")
	}

	u.ExitIdempotentLoop(tx)
	if tx.Cache().Peek(checkpoint) {
		t.Fatal("expected ExitIdempotentLoop to discard the loop body's cached result")
	}

	// Replaying at the rewound id must re-run the body rather than find a
	// stale cached result from the discarded iteration.
	Run(tx, body)
	if calls != 2 {
		t.Fatalf("expected the body to run again after the cache entry was discarded, ran %d times", calls)
	}
}

func TestLogLoopCounterAppliesCoalescedUpdateOnExit(t *testing.T) {
	tx := newTestTx()
	u := NewUserTxInfo()

	var counter uint64 = 10
	u.EnterIdempotentLoop(tx)
	u.LogLoopCounter(&counter, counter, 5)
	// Loop body runs without touching counter on every iteration; only the
	// logged checkpoint and step matter.
	u.ExitIdempotentLoop(tx)

	if counter != 15 {
		t.Fatalf("expected coalesced loop counter update to land 10+5=15, got %d", counter)
	}
}

func TestNestedIdempotentLoopsUnwindInOrder(t *testing.T) {
	tx := newTestTx()
	u := NewUserTxInfo()

	u.EnterIdempotentLoop(tx)
	outer := tx.NextTxID()
	Run(tx, func() (int, error) { return 1, nil })

	u.EnterIdempotentLoop(tx)
	Run(tx, func() (int, error) { return 2, nil })
	u.ExitIdempotentLoop(tx) // inner exits first

	if u.Depth() != 1 {
		t.Fatalf("expected one loop remaining on the stack, depth=%d", u.Depth())
	}

	u.ExitIdempotentLoop(tx)
	if got := tx.NextTxID(); got != outer {
		t.Fatalf("expected the outer loop's exit to rewind to %d, got %d", outer, got)
	}
	if u.Depth() != 0 {
		t.Fatal("expected the loop stack to be empty after both exits")
	}
}
