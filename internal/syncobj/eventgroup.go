package syncobj

import (
	"sync"

	"github.com/introt/kernel/internal/kcall"
	"github.com/introt/kernel/internal/pmem"
	"github.com/introt/kernel/internal/plist"
	"github.com/introt/kernel/internal/sched"
	"github.com/introt/kernel/internal/txn"
)

// eventWaiter is one pending EventGroup.Wait call: ref is the blocked
// task, mask the bits it cares about, waitForAll selects AND vs OR
// semantics, and clearOnExit mirrors xEventGroupWaitBits's
// bClearOnExit, the Go analogue of
// original_source/src/event_group.rs's WaitBitsRequest.
type eventWaiter struct {
	ref         pmem.Ref[sched.TCB]
	mask        uint32
	waitForAll  bool
	clearOnExit bool
}

// EventGroup is a set of 32 packed condition bits with waiters that can
// block for any-of or all-of a mask, each optionally clearing its mask
// from the group on a successful wait.
type EventGroup struct {
	mu   sync.Mutex
	bits uint32

	journal  *pmem.Journal
	sched    *sched.Scheduler
	waitList *plist.List[eventWaiter]
	hooks    kcall.Hooks
}

// NewEventGroup creates an EventGroup with all bits initially clear,
// able to track up to waiters pending Wait calls at once. hooks is
// reported to on every wait/set/clear/sync syscall (nil falls back to
// kcall.NoOpHooks).
func NewEventGroup(waiters int, journal *pmem.Journal, s *sched.Scheduler, hooks kcall.Hooks) *EventGroup {
	arena := pmem.NewArena[plist.Node[eventWaiter]](waiters)
	return &EventGroup{
		journal:  journal,
		sched:    s,
		waitList: plist.New[eventWaiter](arena),
		hooks:    hooks,
	}
}

func satisfies(bits uint32, w eventWaiter) bool {
	if w.waitForAll {
		return bits&w.mask == w.mask
	}
	return bits&w.mask != 0
}

// Wait blocks the calling task until mask is satisfied (all bits, if
// waitForAll, else any bit), returning the group's bits at the moment of
// release. If clearOnExit, the satisfied bits are cleared from the group
// before Wait returns.
func (g *EventGroup) Wait(tx *txn.Transaction, ref pmem.Ref[sched.TCB], mask uint32, waitForAll, clearOnExit bool) (uint32, error) {
	return kcall.Syscall(tx, g.hooks, "event_group_wait", func() (uint32, error) {
		w := eventWaiter{ref: ref, mask: mask, waitForAll: waitForAll, clearOnExit: clearOnExit}

		g.mu.Lock()
		if satisfies(g.bits, w) {
			result := g.bits
			if clearOnExit {
				g.bits &^= mask
			}
			g.mu.Unlock()
			return result, nil
		}
		g.waitList.PushBack(g.journal, w)
		g.mu.Unlock()
		g.sched.Block(ref)
		return 0, txn.ErrRetry
	})
}

// Set ORs setBits into the group and wakes every waiter whose condition
// is now satisfied.
func (g *EventGroup) Set(tx *txn.Transaction, setBits uint32) error {
	return kcall.Invoke(tx, g.hooks, "event_group_set", func() error {
		g.mu.Lock()
		g.bits |= setBits
		woken := g.wakeSatisfied()
		g.mu.Unlock()
		for _, ref := range woken {
			g.sched.Wake(ref)
		}
		return nil
	})
}

// Clear clears clearBits from the group unconditionally, returning the
// bits as they were immediately before clearing.
func (g *EventGroup) Clear(tx *txn.Transaction, clearBits uint32) (uint32, error) {
	return kcall.Syscall(tx, g.hooks, "event_group_clear", func() (uint32, error) {
		g.mu.Lock()
		defer g.mu.Unlock()
		prev := g.bits
		g.bits &^= clearBits
		return prev, nil
	})
}

// Sync is xEventGroupSync: set setBits, then wait for mask (AND
// semantics, always), clearing mask on exit — the rendezvous primitive
// original_source/src/event_group.rs's EventGroup::sync implements.
func (g *EventGroup) Sync(tx *txn.Transaction, ref pmem.Ref[sched.TCB], setBits, mask uint32) (uint32, error) {
	return kcall.Syscall(tx, g.hooks, "event_group_sync", func() (uint32, error) {
		w := eventWaiter{ref: ref, mask: mask, waitForAll: true, clearOnExit: true}

		g.mu.Lock()
		g.bits |= setBits
		if satisfies(g.bits, w) {
			result := g.bits
			g.bits &^= mask
			woken := g.wakeSatisfied()
			g.mu.Unlock()
			for _, r := range woken {
				g.sched.Wake(r)
			}
			return result, nil
		}
		g.waitList.PushBack(g.journal, w)
		g.mu.Unlock()
		g.sched.Block(ref)
		return 0, txn.ErrRetry
	})
}

// wakeSatisfied must be called with g.mu held. It identifies every
// waiter whose condition the current bits now satisfy and returns their
// task refs to wake outside the lock. It deliberately does not clear any
// bits or compute a result itself: each woken waiter's retried Wait/Sync
// call re-checks satisfies() against the bits in effect when it actually
// runs and performs its own clearOnExit clear, so a waiter that loses a
// race to consume a clear-on-exit bit correctly re-blocks instead of
// returning a stale snapshot.
func (g *EventGroup) wakeSatisfied() []pmem.Ref[sched.TCB] {
	var woken []pmem.Ref[sched.TCB]
	var remaining []eventWaiter

	for {
		v, _, ok := g.waitList.PopFront(g.journal)
		if !ok {
			break
		}
		remaining = append(remaining, v)
	}

	for _, w := range remaining {
		if satisfies(g.bits, w) {
			woken = append(woken, w.ref)
		} else {
			g.waitList.PushBack(g.journal, w)
		}
	}
	return woken
}
