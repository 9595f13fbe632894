package plist

import (
	"testing"

	"github.com/introt/kernel/internal/pmem"
)

func newIntList(capacity int) (*pmem.Arena[Node[int]], *List[int]) {
	arena := pmem.NewArena[Node[int]](capacity)
	return arena, New[int](arena)
}

func TestPushBackOrderAndLength(t *testing.T) {
	_, l := newIntList(8)
	j := pmem.NewJournal(32)

	l.PushBack(j, 1)
	l.PushBack(j, 2)
	l.PushBack(j, 3)

	if l.Len() != 3 {
		t.Fatalf("expected length 3, got %d", l.Len())
	}

	var got []int
	l.Iterate(func(_ pmem.Ref[Node[int]], v *int) bool {
		got = append(got, *v)
		return true
	})
	want := []int{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestPushFrontOrder(t *testing.T) {
	_, l := newIntList(8)
	j := pmem.NewJournal(32)

	l.PushFront(j, 1)
	l.PushFront(j, 2)
	l.PushFront(j, 3)

	var got []int
	l.Iterate(func(_ pmem.Ref[Node[int]], v *int) bool {
		got = append(got, *v)
		return true
	})
	want := []int{3, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestRemoveMiddle(t *testing.T) {
	_, l := newIntList(8)
	j := pmem.NewJournal(32)

	l.PushBack(j, 1)
	r2, _ := l.PushBack(j, 2)
	l.PushBack(j, 3)

	l.Remove(j, r2)

	if l.Len() != 2 {
		t.Fatalf("expected length 2 after remove, got %d", l.Len())
	}
	var got []int
	l.Iterate(func(_ pmem.Ref[Node[int]], v *int) bool {
		got = append(got, *v)
		return true
	})
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("expected [1 3] after removing middle, got %v", got)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	_, l := newIntList(8)
	j := pmem.NewJournal(32)

	r, _ := l.PushBack(j, 1)
	l.Remove(j, r)
	l.Remove(j, r) // should be a no-op, not corrupt the list

	if l.Len() != 0 {
		t.Fatalf("expected length 0, got %d", l.Len())
	}
}

func TestPopFront(t *testing.T) {
	_, l := newIntList(8)
	j := pmem.NewJournal(32)

	l.PushBack(j, 1)
	l.PushBack(j, 2)

	v, _, ok := l.PopFront(j)
	if !ok || v != 1 {
		t.Fatalf("expected to pop 1, got %d, %v", v, ok)
	}
	if l.Len() != 1 {
		t.Fatalf("expected length 1, got %d", l.Len())
	}

	_, _, ok = l.PopFront(j)
	if !ok {
		t.Fatal("expected second pop to succeed")
	}
	_, _, ok = l.PopFront(j)
	if ok {
		t.Fatal("expected pop on empty list to report not-ok")
	}
}

func TestInsertSortedMaintainsOrder(t *testing.T) {
	_, l := newIntList(8)
	j := pmem.NewJournal(32)
	less := func(a, b int) bool { return a < b }

	l.InsertSorted(j, 5, less)
	l.InsertSorted(j, 1, less)
	l.InsertSorted(j, 3, less)

	var got []int
	l.Iterate(func(_ pmem.Ref[Node[int]], v *int) bool {
		got = append(got, *v)
		return true
	})
	want := []int{1, 3, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected sorted order %v, got %v", want, got)
		}
	}
}

func TestJournalRecoverUndoesPartialRemove(t *testing.T) {
	_, l := newIntList(8)
	j := pmem.NewJournal(32)

	l.PushBack(j, 1)
	r2, _ := l.PushBack(j, 2)
	l.PushBack(j, 3)
	j.Clear() // commit the three pushes

	l.Remove(j, r2) // crash simulated before this op's journal is cleared
	j.Recover()

	if l.Len() != 3 {
		t.Fatalf("expected length restored to 3, got %d", l.Len())
	}
	var got []int
	l.Iterate(func(_ pmem.Ref[Node[int]], v *int) bool {
		got = append(got, *v)
		return true
	})
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("expected [1 2 3] restored, got %v", got)
	}
}

func TestOpLogRollsForwardRemove(t *testing.T) {
	_, l := newIntList(8)
	j := pmem.NewJournal(32)

	l.PushBack(j, 1)
	r2, _ := l.PushBack(j, 2)
	l.PushBack(j, 3)
	j.Clear()

	log := NewOpLog[int]()
	log.BeginRemove(l, r2)
	// crash happens here, before the mutation runs at all
	if !log.Pending() {
		t.Fatal("expected op log to report a pending operation")
	}

	log.RollForward(j)

	if l.Len() != 2 {
		t.Fatalf("expected length 2 after roll-forward remove, got %d", l.Len())
	}
	if log.Pending() {
		t.Error("expected op log to be cleared after roll-forward")
	}
}

func TestOpLogRollsForwardRemoveReinsert(t *testing.T) {
	arena := pmem.NewArena[Node[int]](8)
	src := New[int](arena)
	dst := New[int](arena)
	j := pmem.NewJournal(32)
	less := func(a, b int) bool { return a < b }

	r, _ := src.PushBack(j, 42)
	dst.InsertSorted(j, 10, less)
	dst.InsertSorted(j, 50, less)
	j.Clear()

	log := NewOpLog[int]()
	log.BeginRemoveReinsert(src, dst, r, 42, less)
	log.RollForward(j)

	if src.Len() != 0 {
		t.Fatalf("expected source list empty, got length %d", src.Len())
	}
	if dst.Len() != 3 {
		t.Fatalf("expected dest list length 3, got %d", dst.Len())
	}

	var got []int
	dst.Iterate(func(_ pmem.Ref[Node[int]], v *int) bool {
		got = append(got, *v)
		return true
	})
	want := []int{10, 42, 50}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected sorted dest %v, got %v", want, got)
		}
	}
}
