package plist

import (
	"sync"

	"github.com/introt/kernel/internal/pmem"
)

// OpCode identifies which list-algebra recipe an OpLog entry describes,
// the Go analogue of original_source/src/list.rs's ListTxOpCode. Only
// the subset spec.md calls out by name is modeled: removal, pop, and the
// combined remove-then-reinsert / pop-then-reinsert recipes the timer
// daemon uses to move a timer between its active list and a new sorted
// position without a full journal round-trip.
type OpCode int

const (
	OpInvalid OpCode = iota
	OpRemove
	OpPopFront
	OpRemoveReinsert
	OpPopReinsert
)

// OpLog is the "tiny list-op log" the optimized list variant writes
// before starting a mutation, so that if a crash interrupts the
// mutation, recovery can finish it (roll forward) instead of undoing it.
// It is deliberately smaller and cheaper to write than a full
// pmem.Journal entry: a handful of fields rather than a node's full
// pre-image. One OpLog exists per list-op domain — scheduler ready/wait
// lists share one, the timer daemon's active list owns a second,
// matching original_source's two static op logs
// (LIST_TX_OP_LOG / TIMER_LIST_TX_OP_LOG).
type OpLog[T any] struct {
	mu     sync.Mutex
	op     OpCode
	list   *List[T]
	dest   *List[T]
	node   pmem.Ref[Node[T]]
	value  T
	less   func(a, b T) bool
}

// NewOpLog creates an empty, invalidated op log.
func NewOpLog[T any]() *OpLog[T] {
	return &OpLog[T]{}
}

// BeginRemove records that node is about to be removed from list.
func (o *OpLog[T]) BeginRemove(list *List[T], node pmem.Ref[Node[T]]) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.op, o.list, o.node = OpRemove, list, node
}

// BeginPopFront records that list is about to have its front element
// popped, capturing that element so RollForward removes the same node
// whether or not the pop already ran.
func (o *OpLog[T]) BeginPopFront(list *List[T]) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.op, o.list, o.node = OpPopFront, list, list.Head()
}

// BeginRemoveReinsert records that node is about to move from list to
// dest at a position determined by less, keeping the same value. less
// may be nil, meaning dest is unsorted and node is reinserted at its
// tail (the scheduler's delay-list-to-ready-list wake transition and the
// synchronization objects' wake-a-waiter path both reinsert into an
// unsorted ready list this way).
func (o *OpLog[T]) BeginRemoveReinsert(list, dest *List[T], node pmem.Ref[Node[T]], value T, less func(a, b T) bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.op, o.list, o.dest, o.node, o.value, o.less = OpRemoveReinsert, list, dest, node, value, less
}

// BeginPopReinsert records that list's front element (node, captured by
// the caller before popping) is about to move to dest at a position
// determined by less. Capturing node up front rather than re-reading
// list.Head() during RollForward is what makes the recipe safe to
// replay whether the crash happened before or after the real pop: either
// way node is the element to remove-and-reinsert.
func (o *OpLog[T]) BeginPopReinsert(list, dest *List[T], node pmem.Ref[Node[T]], value T, less func(a, b T) bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.op, o.list, o.dest, o.node, o.value, o.less = OpPopReinsert, list, dest, node, value, less
}

// Commit invalidates the op log: the operation finished normally and
// needs no roll-forward.
func (o *OpLog[T]) Commit() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.op = OpInvalid
	var zero T
	o.value = zero
}

// Pending reports whether the op log describes an operation that did not
// reach Commit, i.e. one recovery must roll forward.
func (o *OpLog[T]) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.op != OpInvalid
}

// RollForward completes whatever operation the log describes. Every
// underlying List method it calls (Remove, Relink, RelinkSorted) is
// idempotent against a half-completed prior attempt, so RollForward is
// safe to call exactly once during recovery even if the original
// mutation had already partially applied its pointer writes before the
// crash (spec.md invariant 1).
func (o *OpLog[T]) RollForward(j *pmem.Journal) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.op {
	case OpInvalid:
		return
	case OpRemove:
		o.list.Remove(j, o.node)
	case OpPopFront:
		if !o.node.IsNil() {
			o.list.Remove(j, o.node)
		}
	case OpRemoveReinsert, OpPopReinsert:
		// Remove is idempotent whether the real mutation's removal half
		// already ran before the crash or not, and node was captured at
		// Begin time in both cases, so both recipes roll forward the
		// same way.
		o.list.Remove(j, o.node)
		if o.less == nil {
			o.dest.Relink(j, o.node, pmem.NilRef[Node[T]]())
		} else {
			o.dest.RelinkSorted(j, o.node, o.value, o.less)
		}
	}
	o.op = OpInvalid
}
