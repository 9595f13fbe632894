// Package plist implements the kernel's persistent doubly-linked list
// algebra: the circular ready lists, sorted wait/delay lists and
// unsorted wait lists every scheduling and synchronization primitive is
// built from. Nodes live in a pmem.Arena and are addressed by
// pmem.Ref, not raw pointers, so the list is fully relocatable
// (SPEC_FULL.md §9). Every mutation logs through the owning
// transaction's journal via pmem.LogValue, giving list operations the
// same roll-back recovery as any other logged write; OpLog (in
// oplog.go) additionally records just enough about the in-flight
// operation to roll it *forward* instead, the cheaper recovery path the
// reference kernel's "Optimized" list variant uses.
//
// Grounded on original_source/src/list.rs's Node/PList/CircularPList/
// SortedPList/UnsortedPList family.
package plist

import "github.com/introt/kernel/internal/pmem"

// Node is one element of a persistent list: a value plus arena-relative
// links to its neighbors.
type Node[T any] struct {
	Value T
	Prev  pmem.Ref[Node[T]]
	Next  pmem.Ref[Node[T]]
	inUse bool
}

// List is a persistent doubly-linked list over an Arena of Node[T]. The
// zero value is not usable; use New.
type List[T any] struct {
	arena  *pmem.Arena[Node[T]]
	head   pmem.Ref[Node[T]]
	tail   pmem.Ref[Node[T]]
	length int
}

// New creates an empty list backed by arena. Multiple lists may share one
// arena (e.g. a task's wait-list membership and the global delay list
// both reference the same task nodes in the reference kernel). Relink
// moves a node between lists, so both lists must share one arena; the
// scheduler's ready and delay lists do.
func New[T any](arena *pmem.Arena[Node[T]]) *List[T] {
	return &List[T]{arena: arena, head: pmem.NilRef[Node[T]](), tail: pmem.NilRef[Node[T]]()}
}

// Len returns the number of elements currently in the list.
func (l *List[T]) Len() int { return l.length }

// Head returns the first element's Ref, or a nil Ref if the list is empty.
func (l *List[T]) Head() pmem.Ref[Node[T]] { return l.head }

// Get returns a pointer to the node r refers to.
func (l *List[T]) Get(r pmem.Ref[Node[T]]) *Node[T] { return l.arena.Get(r) }

// PushFront allocates a node for v and inserts it at the front of the
// list, logging every mutated field to j so a crash mid-insert rolls
// back cleanly.
func (l *List[T]) PushFront(j *pmem.Journal, v T) (pmem.Ref[Node[T]], error) {
	r, err := l.arena.Alloc(Node[T]{Value: v, Prev: pmem.NilRef[Node[T]](), Next: pmem.NilRef[Node[T]](), inUse: true})
	if err != nil {
		return r, err
	}
	l.insertBefore(j, l.head, r)
	return r, nil
}

// PushBack allocates a node for v and appends it to the end of the list.
func (l *List[T]) PushBack(j *pmem.Journal, v T) (pmem.Ref[Node[T]], error) {
	r, err := l.arena.Alloc(Node[T]{Value: v, Prev: pmem.NilRef[Node[T]](), Next: pmem.NilRef[Node[T]](), inUse: true})
	if err != nil {
		return r, err
	}
	l.insertBefore(j, pmem.NilRef[Node[T]](), r)
	return r, nil
}

// insertBefore splices node r in immediately before cursor (a nil cursor
// means "at the end"). r must already be allocated and unlinked.
func (l *List[T]) insertBefore(j *pmem.Journal, cursor, r pmem.Ref[Node[T]]) {
	node := l.arena.Get(r)

	if cursor.IsNil() {
		// inserting at the tail
		pmem.LogValue(j, node)
		node.Prev = l.tail
		node.Next = pmem.NilRef[Node[T]]()
		if !l.tail.IsNil() {
			prevNode := l.arena.Get(l.tail)
			pmem.LogValue(j, prevNode)
			prevNode.Next = r
		}
		pmem.LogValue(j, &l.tail)
		l.tail = r
		if l.head.IsNil() {
			pmem.LogValue(j, &l.head)
			l.head = r
		}
	} else {
		cursorNode := l.arena.Get(cursor)
		prev := cursorNode.Prev

		pmem.LogValue(j, node)
		node.Prev = prev
		node.Next = cursor

		pmem.LogValue(j, cursorNode)
		cursorNode.Prev = r

		if prev.IsNil() {
			pmem.LogValue(j, &l.head)
			l.head = r
		} else {
			prevNode := l.arena.Get(prev)
			pmem.LogValue(j, prevNode)
			prevNode.Next = r
		}
	}

	pmem.LogValue(j, &l.length)
	l.length++
}

// Remove unlinks r from the list. It is a no-op (idempotent) if r is
// already unlinked, the property the roll-forward recovery path in
// oplog.go relies on: re-running Remove against a half-completed removal
// is always safe.
func (l *List[T]) Remove(j *pmem.Journal, r pmem.Ref[Node[T]]) {
	node := l.arena.Get(r)
	if !node.inUse {
		return
	}

	prev, next := node.Prev, node.Next

	if !prev.IsNil() {
		prevNode := l.arena.Get(prev)
		pmem.LogValue(j, prevNode)
		prevNode.Next = next
	} else {
		pmem.LogValue(j, &l.head)
		l.head = next
	}

	if !next.IsNil() {
		nextNode := l.arena.Get(next)
		pmem.LogValue(j, nextNode)
		nextNode.Prev = prev
	} else {
		pmem.LogValue(j, &l.tail)
		l.tail = prev
	}

	pmem.LogValue(j, node)
	node.Prev = pmem.NilRef[Node[T]]()
	node.Next = pmem.NilRef[Node[T]]()
	node.inUse = false

	pmem.LogValue(j, &l.length)
	l.length--
}

// PopFront removes and returns the first element, or ok=false if empty.
func (l *List[T]) PopFront(j *pmem.Journal) (T, pmem.Ref[Node[T]], bool) {
	var zero T
	if l.head.IsNil() {
		return zero, pmem.NilRef[Node[T]](), false
	}
	r := l.head
	v := l.arena.Get(r).Value
	l.Remove(j, r)
	return v, r, true
}

// Iterate calls f for every element from head to tail, stopping early if
// f returns false.
func (l *List[T]) Iterate(f func(pmem.Ref[Node[T]], *T) bool) {
	cur := l.head
	for !cur.IsNil() {
		node := l.arena.Get(cur)
		next := node.Next
		if !f(cur, &node.Value) {
			return
		}
		cur = next
	}
}

// Relink splices an already-allocated, currently-unlinked node r into l
// immediately before cursor. Unlike PushFront/PushBack it does not
// allocate: it is used to move a node from one list to another (the
// list-op log's remove+reinsert recipes), which must reuse the same Ref
// since callers elsewhere may still be holding it. Relink is idempotent:
// calling it again on a node that is already linked into l is a no-op.
func (l *List[T]) Relink(j *pmem.Journal, r pmem.Ref[Node[T]], cursor pmem.Ref[Node[T]]) {
	node := l.arena.Get(r)
	if node.inUse {
		return
	}
	pmem.LogValue(j, node)
	node.inUse = true
	l.insertBefore(j, cursor, r)
}

// RelinkSorted relinks the already-allocated node r, setting its value
// to v, at the position less(v, existing) dictates. Idempotent under the
// same rule as Relink.
func (l *List[T]) RelinkSorted(j *pmem.Journal, r pmem.Ref[Node[T]], v T, less func(a, b T) bool) {
	node := l.arena.Get(r)
	if node.inUse {
		return
	}
	pmem.LogValue(j, node)
	node.Value = v
	node.inUse = true

	cursor := pmem.NilRef[Node[T]]()
	l.Iterate(func(ref pmem.Ref[Node[T]], existing *T) bool {
		if less(v, *existing) {
			cursor = ref
			return false
		}
		return true
	})
	l.insertBefore(j, cursor, r)
}

// InsertSorted inserts v immediately before the first existing element
// for which less(v, existing) is true, preserving ascending order, or at
// the tail if v is not less than anything (ties keep FIFO order among
// equal keys, matching original_source's SortedPList behavior for the
// delay and wait lists).
func (l *List[T]) InsertSorted(j *pmem.Journal, v T, less func(a, b T) bool) (pmem.Ref[Node[T]], error) {
	r, err := l.arena.Alloc(Node[T]{Prev: pmem.NilRef[Node[T]](), Next: pmem.NilRef[Node[T]](), inUse: true})
	if err != nil {
		return r, err
	}
	node := l.arena.Get(r)
	pmem.LogValue(j, node)
	node.Value = v

	cursor := pmem.NilRef[Node[T]]()
	l.Iterate(func(ref pmem.Ref[Node[T]], existing *T) bool {
		if less(v, *existing) {
			cursor = ref
			return false
		}
		return true
	})

	l.insertBefore(j, cursor, r)
	return r, nil
}
