package syncobj

import (
	"sync"

	"github.com/introt/kernel/internal/kcall"
	"github.com/introt/kernel/internal/pmem"
	"github.com/introt/kernel/internal/plist"
	"github.com/introt/kernel/internal/sched"
	"github.com/introt/kernel/internal/txn"
)

// Semaphore is a counting semaphore with an optional mutex mode: when
// created with NewMutex, Take is re-entrant for whichever task currently
// holds it, the Go analogue of original_source/src/semaphore.rs's
// binary-semaphore-as-mutex holder-slot trick.
type Semaphore struct {
	mu    sync.Mutex
	count int
	max   int

	isMutex  bool
	holder   pmem.Ref[sched.TCB]
	holding  bool
	recurses int

	journal  *pmem.Journal
	sched    *sched.Scheduler
	waitList *plist.List[pmem.Ref[sched.TCB]]
	hooks    kcall.Hooks
}

func newSemaphore(initial, max int, isMutex bool, journal *pmem.Journal, s *sched.Scheduler, waiters int, hooks kcall.Hooks) *Semaphore {
	arena := pmem.NewArena[plist.Node[pmem.Ref[sched.TCB]]](waiters)
	return &Semaphore{
		count:    initial,
		max:      max,
		isMutex:  isMutex,
		journal:  journal,
		sched:    s,
		waitList: plist.New[pmem.Ref[sched.TCB]](arena),
		hooks:    hooks,
	}
}

// NewCounting creates a counting semaphore starting at initial, bounded
// at max. hooks is reported to on every take/give syscall (nil falls
// back to kcall.NoOpHooks).
func NewCounting(initial, max, waiters int, journal *pmem.Journal, s *sched.Scheduler, hooks kcall.Hooks) *Semaphore {
	return newSemaphore(initial, max, false, journal, s, waiters, hooks)
}

// NewBinary creates a binary semaphore (0 or 1).
func NewBinary(waiters int, journal *pmem.Journal, s *sched.Scheduler, hooks kcall.Hooks) *Semaphore {
	return newSemaphore(1, 1, false, journal, s, waiters, hooks)
}

// NewMutex creates a binary semaphore used as a re-entrant mutex: Take
// called again by the same task that already holds it succeeds
// immediately instead of deadlocking.
func NewMutex(waiters int, journal *pmem.Journal, s *sched.Scheduler, hooks kcall.Hooks) *Semaphore {
	return newSemaphore(1, 1, true, journal, s, waiters, hooks)
}

// Take blocks the calling task (ref) until the semaphore can be
// acquired.
func (sem *Semaphore) Take(tx *txn.Transaction, ref pmem.Ref[sched.TCB]) error {
	return kcall.Invoke(tx, sem.hooks, "semaphore_take", func() error {
		sem.mu.Lock()
		if sem.isMutex && sem.holding && sem.holder == ref {
			sem.recurses++
			sem.mu.Unlock()
			return nil
		}
		if sem.count > 0 {
			sem.count--
			if sem.isMutex {
				sem.holder = ref
				sem.holding = true
			}
			sem.mu.Unlock()
			return nil
		}
		node, _ := sem.waitList.PushBack(sem.journal, ref)
		sem.mu.Unlock()
		sem.sched.SetEventNode(ref, node)
		sem.sched.Block(ref)
		return txn.ErrRetry
	})
}

// Give releases the semaphore, waking one blocked waiter if any.
func (sem *Semaphore) Give(tx *txn.Transaction, ref pmem.Ref[sched.TCB]) error {
	return kcall.Invoke(tx, sem.hooks, "semaphore_give", func() error {
		sem.mu.Lock()
		if sem.isMutex && sem.holding && sem.holder == ref && sem.recurses > 0 {
			sem.recurses--
			sem.mu.Unlock()
			return nil
		}
		if sem.isMutex {
			sem.holding = false
		}
		if sem.count < sem.max {
			sem.count++
		}
		next, _, ok := sem.waitList.PopFront(sem.journal)
		sem.mu.Unlock()
		if ok {
			sem.sched.Wake(next)
		}
		return nil
	})
}
