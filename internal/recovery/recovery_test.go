package recovery

import (
	"testing"

	"github.com/introt/kernel/internal/crashtest"
	"github.com/introt/kernel/internal/pmem"
	"github.com/introt/kernel/internal/sched"
	"github.com/introt/kernel/internal/timer"
	"github.com/introt/kernel/internal/txn"
)

func TestFirstBootRollsBackUncommittedBootJournal(t *testing.T) {
	j := pmem.NewJournal(64)
	tx := txn.New(j, nil)
	v := pmem.NewVar(1)

	*v.BorrowMut(j) = 2 // simulate a write started but never committed
	o := New(tx, nil, nil, nil, nil)

	if o.FirstBootDone() {
		t.Fatal("expected a fresh orchestrator to not have completed a boot yet")
	}

	o.Recover()

	if *v.Borrow() != 1 {
		t.Fatalf("expected the uncommitted write to be rolled back, got %d", *v.Borrow())
	}
	if !j.IsEmpty() {
		t.Fatal("expected the boot journal to be empty after rollback")
	}
	if o.FirstBootDone() {
		t.Fatal("Recover alone must not mark first boot done; only IdempotentBoot does")
	}
}

func TestIdempotentBootRunsExactlyOnce(t *testing.T) {
	j := pmem.NewJournal(64)
	tx := txn.New(j, nil)
	o := New(tx, nil, nil, nil, nil)

	runs := 0
	o.IdempotentBoot(func() { runs++ })
	o.IdempotentBoot(func() { runs++ })

	if runs != 1 {
		t.Fatalf("expected IdempotentBoot's body to run exactly once, ran %d times", runs)
	}
	if !o.FirstBootDone() {
		t.Fatal("expected FirstBootDone to be true after IdempotentBoot")
	}
}

func TestGenerationIncrementsOnEachSubsequentRecover(t *testing.T) {
	j := pmem.NewJournal(64)
	tx := txn.New(j, nil)
	o := New(tx, nil, nil, nil, nil)
	o.IdempotentBoot(func() {})

	if o.Generation() != 0 {
		t.Fatalf("expected generation 0 before any subsequent-boot recovery, got %d", o.Generation())
	}

	o.Recover()
	if o.Generation() != 1 {
		t.Fatalf("expected generation 1 after one subsequent-boot recovery, got %d", o.Generation())
	}

	o.Recover()
	if o.Generation() != 2 {
		t.Fatalf("expected generation 2 after a second subsequent-boot recovery, got %d", o.Generation())
	}
}

func TestRecoverIsSafeWithNoSchedulerOrTimer(t *testing.T) {
	j := pmem.NewJournal(64)
	tx := txn.New(j, nil)
	o := New(tx, nil, nil, nil, nil)
	o.IdempotentBoot(func() {})

	o.Recover() // must not panic despite sched/timer being nil
}

func TestRecoverWithSchedulerAndTimerDoesNotDisruptSubsequentRun(t *testing.T) {
	j := pmem.NewJournal(256)
	s := sched.New(4, j, nil)

	bootJ := pmem.NewJournal(64)
	bootTx := txn.New(bootJ, nil)
	td := timer.New(4, 4, j, txn.New(pmem.NewJournal(64), nil), nil)

	o := New(bootTx, s, td, nil, nil)
	o.IdempotentBoot(func() {})
	o.Recover()

	if o.Generation() != 1 {
		t.Fatalf("expected one recovery generation, got %d", o.Generation())
	}

	var ran bool
	s.RegisterTask("worker", 0, func(any) { ran = true }, nil)
	s.Start()

	if !ran {
		t.Fatal("expected the scheduler to keep working normally after a recovery pass")
	}
}

// TestRecoverRollsBackEachCrashedTasksOwnJournal simulates a task killed
// mid-syscall (crashtest.Crash) and checks that Recover's per-task sweep
// rolls back that task's own transaction via TaskTxLookup, not just
// bootTx, and bumps the task's stored Generation to match.
func TestRecoverRollsBackEachCrashedTasksOwnJournal(t *testing.T) {
	schedJ := pmem.NewJournal(256)
	s := sched.New(4, schedJ, nil)

	bootTx := txn.New(pmem.NewJournal(64), nil)

	taskJ := pmem.NewJournal(64)
	taskTx := txn.New(taskJ, nil)
	v := pmem.NewVar(1)

	ref, err := s.RegisterTask("crasher", 0, func(any) {
		*v.BorrowMut(taskTx.Journal()) = 2 // left uncommitted by the crash below
		defer func() { recover() }()
		crashtest.Crash()
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error registering task: %v", err)
	}
	s.Start()

	if *v.Borrow() != 2 {
		t.Fatalf("expected the write to be visible before recovery, got %d", *v.Borrow())
	}

	lookup := func(r pmem.Ref[sched.TCB]) *txn.Transaction {
		if r == ref {
			return taskTx
		}
		return nil
	}

	o := New(bootTx, s, nil, nil, lookup)
	o.IdempotentBoot(func() {})
	o.Recover()

	if *v.Borrow() != 1 {
		t.Fatalf("expected the crashed task's uncommitted write to be rolled back, got %d", *v.Borrow())
	}
	if got, want := s.Task(ref).Generation, o.Generation(); got != want {
		t.Fatalf("expected task Generation bumped to %d, got %d", want, got)
	}
}
