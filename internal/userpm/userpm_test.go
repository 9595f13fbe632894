package userpm

import (
	"testing"

	"github.com/introt/kernel/internal/pmem"
	"github.com/introt/kernel/internal/sched"
	"github.com/introt/kernel/internal/txn"
)

func TestBoxGetSetRoundTrip(t *testing.T) {
	b := NewBox(10)
	if b.Get() != 10 {
		t.Fatalf("expected 10, got %d", b.Get())
	}

	j := pmem.NewJournal(64)
	b.Set(j, 20)
	if b.Get() != 20 {
		t.Fatalf("expected 20, got %d", b.Get())
	}
}

func TestBoxWithMutatesInPlace(t *testing.T) {
	type counter struct{ n int }
	b := NewBox(counter{n: 1})
	j := pmem.NewJournal(64)

	b.With(j, func(c *counter) { c.n++ })
	if b.Get().n != 2 {
		t.Fatalf("expected n=2, got %d", b.Get().n)
	}
}

func TestBoxSetRollsBackOnJournalRecover(t *testing.T) {
	b := NewBox(1)
	j := pmem.NewJournal(64)

	b.Set(j, 2)
	if j.IsEmpty() {
		t.Fatal("expected Set to log a pre-image before the journal is cleared")
	}
	j.Recover()
	if b.Get() != 1 {
		t.Fatalf("expected recovery to restore 1, got %d", b.Get())
	}
}

// TestMutexWithSerializesTwoTasks has two tasks each increment a
// mutex-guarded counter several times; With's take/give bracket must
// keep the increments from racing even though both tasks share one
// underlying int.
func TestMutexWithSerializesTwoTasks(t *testing.T) {
	j := pmem.NewJournal(256)
	s := sched.New(4, j, nil)

	m := NewMutex(0, 4, j, s, nil)

	const iterations = 5

	var aRef, bRef pmem.Ref[sched.TCB]
	aRef, _ = s.RegisterTask("a", 0, func(any) {
		tx := txn.New(pmem.NewJournal(64), nil)
		for i := 0; i < iterations; i++ {
			m.With(tx, aRef, func(n *int) { *n = *n + 1 })
		}
	}, nil)
	bRef, _ = s.RegisterTask("b", 0, func(any) {
		tx := txn.New(pmem.NewJournal(64), nil)
		for i := 0; i < iterations; i++ {
			m.With(tx, bRef, func(n *int) { *n = *n + 1 })
		}
	}, nil)

	s.Start()

	if m.Get() != 2*iterations {
		t.Fatalf("expected %d, got %d", 2*iterations, m.Get())
	}
}
