package kernel

import (
	"testing"

	"github.com/introt/kernel/internal/pheap"
	"github.com/introt/kernel/internal/pmem"
	"github.com/introt/kernel/internal/sched"
	"github.com/introt/kernel/internal/syncobj"
)

func TestRegisterAppRunsEntryWithItsParam(t *testing.T) {
	k := New(DefaultConfig())

	var got int
	_, err := k.RegisterApp("worker", 0, func(p any) {
		got = p.(int)
	}, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	k.Start()

	if got != 42 {
		t.Fatalf("expected the entry to observe its param 42, got %d", got)
	}
}

func TestRegisterAppAfterStartIsRejected(t *testing.T) {
	k := New(DefaultConfig())
	k.RegisterApp("a", 0, func(any) {}, nil)
	k.Start()

	_, err := k.RegisterApp("late", 0, func(any) {}, nil)
	if !IsCode(err, ErrCodeInvalidParam) {
		t.Fatalf("expected ErrCodeInvalidParam, got %v", err)
	}
}

func TestSelfReturnsTheRunningTasksOwnContext(t *testing.T) {
	k := New(DefaultConfig())

	var aSelf, bSelf *AppContext
	k.RegisterApp("a", 0, func(any) { aSelf = k.Self() }, nil)
	k.RegisterApp("b", 0, func(any) { bSelf = k.Self() }, nil)

	k.Start()

	if aSelf == nil || bSelf == nil {
		t.Fatal("expected both tasks to observe a non-nil AppContext")
	}
	if aSelf == bSelf {
		t.Fatal("expected distinct tasks to see distinct AppContexts")
	}
	if aSelf.Tx == bSelf.Tx {
		t.Fatal("expected distinct tasks to own distinct transactions")
	}
}

// TestPingPongOverSharedQueue realizes spec.md §8 scenario (a): two
// tasks sharing a 1-slot queue, one sending a fixed sequence and the
// other receiving it, asserting the values arrive in order.
func TestPingPongOverSharedQueue(t *testing.T) {
	k := New(DefaultConfig())
	s := k.Scheduler()

	q := syncobj.NewQueue[int](1, 2, k.NewJournal(), s, k.Observer(), k.Observer())

	var received []int
	want := []int{0, 1, 2, 3, 4}

	k.RegisterApp("ping", 1, func(any) {
		ctx := k.Self()
		for _, v := range want {
			s.Delay(ctx.Task, 5)
			if err := q.SendBack(ctx.Tx, ctx.Task, v); err != nil {
				t.Errorf("ping: send %d: %v", v, err)
			}
		}
	}, nil)

	k.RegisterApp("pong", 1, func(any) {
		ctx := k.Self()
		for range want {
			v, err := q.Receive(ctx.Tx, ctx.Task)
			if err != nil {
				t.Errorf("pong: receive: %v", err)
				return
			}
			received = append(received, v)
		}
	}, nil)

	k.Start()

	if len(received) != len(want) {
		t.Fatalf("expected %d values, got %d: %v", len(want), len(received), received)
	}
	for i, v := range want {
		if received[i] != v {
			t.Fatalf("expected %v in order, got %v", want, received)
		}
	}
}

// TestAppContextHeapIsAPerTaskBumpArena exercises spec.md §3/§4.D's
// per-task persistent bump allocator: each task's AppContext.Heap must be
// its own arena, not shared, and an allocation made inside a task's own
// transaction must roll back with it on abort.
func TestAppContextHeapIsAPerTaskBumpArena(t *testing.T) {
	k := New(DefaultConfig())

	var aUsed, bUsed int
	k.RegisterApp("a", 0, func(any) {
		ctx := k.Self()
		mem, mark, err := pheap.AllocTx(ctx.Heap, ctx.Tx, 64)
		if err != nil {
			t.Errorf("a: unexpected alloc error: %v", err)
			return
		}
		mem[0] = 0xAA
		ctx.Heap.Rollback(mark) // simulate the transaction aborting
		aUsed = ctx.Heap.Used()
	}, nil)

	k.RegisterApp("b", 0, func(any) {
		ctx := k.Self()
		if _, _, err := pheap.AllocTx(ctx.Heap, ctx.Tx, 128); err != nil {
			t.Errorf("b: unexpected alloc error: %v", err)
			return
		}
		bUsed = ctx.Heap.Used()
	}, nil)

	k.Start()

	if aUsed != 0 {
		t.Fatalf("expected a's rolled-back allocation to leave Used at 0, got %d", aUsed)
	}
	if bUsed != 128 {
		t.Fatalf("expected b's heap to hold its own 128-byte allocation, got %d", bUsed)
	}
}

func TestAppContextIsolationAcrossManyTasks(t *testing.T) {
	k := New(DefaultConfig())

	refs := make([]pmem.Ref[sched.TCB], 0, 4)
	for i := 0; i < 4; i++ {
		ref, err := k.RegisterApp("t", 0, func(any) {}, nil)
		if err != nil {
			t.Fatalf("unexpected error registering task %d: %v", i, err)
		}
		refs = append(refs, ref)
	}

	seen := make(map[pmem.Ref[sched.TCB]]bool)
	for _, r := range refs {
		if seen[r] {
			t.Fatal("expected distinct task refs")
		}
		seen[r] = true
	}
}
