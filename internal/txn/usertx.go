package txn

import "sync"

// UserTxInfo tracks idempotent loops nested inside a user transaction's
// body, the Go realization of original_source/src/transaction.rs's
// UserTxInfo: a loop whose per-iteration writes are crash-safe on their
// own right is still wasteful to journal and cache one iteration at a
// time, so EnterIdempotentLoop/ExitIdempotentLoop bracket it with a
// single checkpoint instead, and LogLoopCounter coalesces the loop
// counter's own persisted update into one write at the end
// (original_source's opt_loop_end feature).
type UserTxInfo struct {
	mu    sync.Mutex
	stack []uint64

	loopPtr  *uint64
	loopOld  uint64
	loopStep uint64
}

// NewUserTxInfo creates an empty idempotent-loop stack.
func NewUserTxInfo() *UserTxInfo {
	return &UserTxInfo{}
}

// Depth returns how many idempotent loops are currently nested.
func (u *UserTxInfo) Depth() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.stack)
}

// EnterIdempotentLoop records tx's current next-tx-id as a checkpoint:
// a crash during the loop that follows rolls forward to this point
// rather than to wherever inside the loop body it happened.
func (u *UserTxInfo) EnterIdempotentLoop(tx *Transaction) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stack = append(u.stack, tx.NextTxID())
}

// LogLoopCounter records ptr's value before this iteration (oldValue)
// and the per-iteration increment (step), so ExitIdempotentLoop can
// apply the coalesced update in one write instead of journaling ptr on
// every iteration.
func (u *UserTxInfo) LogLoopCounter(ptr *uint64, oldValue, step uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.loopPtr, u.loopOld, u.loopStep = ptr, oldValue, step
}

// ExitIdempotentLoop pops the most recent checkpoint, rewinds tx to it
// (discarding every cached result the loop body produced past that
// point, so a replay re-executes the whole loop rather than resuming
// mid-iteration), and applies any coalesced loop-counter update logged
// via LogLoopCounter.
func (u *UserTxInfo) ExitIdempotentLoop(tx *Transaction) {
	u.mu.Lock()
	top := len(u.stack) - 1
	checkpoint := u.stack[top]
	u.stack = u.stack[:top]
	ptr, old, step := u.loopPtr, u.loopOld, u.loopStep
	u.loopPtr = nil
	u.mu.Unlock()

	tx.rewindTxID(checkpoint)
	if tx.cache != nil {
		tx.cache.discardFrom(checkpoint)
	}
	if ptr != nil {
		*ptr = old + step
	}
}
