// Package recovery implements the kernel's boot-time recovery
// orchestrator: the two-branch protocol (first boot vs. a subsequent
// boot after a crash) that brings every journal and list-op-log domain
// back to a consistent state before any task resumes. Grounded on
// original_source/src/recover.rs's recover/idempotent_boot pair.
package recovery

import (
	"sync"
	"time"

	"github.com/introt/kernel/internal/pmem"
	"github.com/introt/kernel/internal/sched"
	"github.com/introt/kernel/internal/timer"
	"github.com/introt/kernel/internal/txn"
)

// Observer reports recovery timings, mirroring sched.CtxSwitchObserver's
// locally-defined-interface pattern so this package never imports the
// root kernel package.
type Observer interface {
	ObserveKernelRecovery(d time.Duration)
	ObserveTaskRecovery(d time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveKernelRecovery(time.Duration) {}
func (noopObserver) ObserveTaskRecovery(time.Duration)   {}

// Orchestrator owns the boot transaction and generation counter and
// drives recovery against a scheduler and, optionally, a timer daemon.
// One Orchestrator exists per kernel instance, the Go analogue of
// original_source's BOOT_JOURNAL/BOOT_TX/FIRST_BOOT_DONE/
// CURRENT_GENERATION statics, collected into a value instead of package
// globals so tests can run several independent instances concurrently.
// TaskTxLookup resolves a registered task's own transaction, letting the
// orchestrator roll back whatever syscall that task's journal left
// uncommitted. It is looked up per task rather than read off
// sched.Current, since the task that crashed is not necessarily the one
// sched.Current names by the time Recover runs post-hoc: the dispatch
// loop clears Current the instant a task's goroutine yields control
// back, long before a reboot and Recover call happen.
type TaskTxLookup func(pmem.Ref[sched.TCB]) *txn.Transaction

type Orchestrator struct {
	mu sync.Mutex

	bootTx        *txn.Transaction
	firstBootDone bool
	generation    uint64

	sched    *sched.Scheduler
	timer    *timer.Daemon // nil if the kernel instance has no timer service
	observer Observer
	taskTx   TaskTxLookup
}

// New creates an orchestrator backed by bootTx (the transaction context
// recovery itself, and any idempotent boot code, runs inside), recovering
// list-op state against s and, if non-nil, td. taskTx resolves each
// registered task's own transaction for per-task rollback during Recover;
// it may be nil, in which case only bootTx/td's transactions are rolled
// back; the per-task sweep still runs and updates each task's
// Generation, without a per-task rollback.
func New(bootTx *txn.Transaction, s *sched.Scheduler, td *timer.Daemon, observer Observer, taskTx TaskTxLookup) *Orchestrator {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Orchestrator{bootTx: bootTx, sched: s, timer: td, observer: observer, taskTx: taskTx}
}

// BootTransaction returns the orchestrator's boot transaction, the
// context idempotent first-boot initialization code should run inside.
func (o *Orchestrator) BootTransaction() *txn.Transaction { return o.bootTx }

// FirstBootDone reports whether the kernel has ever completed a boot
// before (i.e. this is not the very first power-on).
func (o *Orchestrator) FirstBootDone() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.firstBootDone
}

// Generation returns how many times Recover has run the subsequent-boot
// branch, i.e. how many crashes this kernel instance has recovered from.
func (o *Orchestrator) Generation() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

// IdempotentBoot runs f exactly once across the kernel's lifetime,
// skipping it on every boot after the first: f typically registers the
// kernel's fixed set of applications, which must not be registered
// twice after a crash mid-registration. Grounded on
// original_source/src/recover.rs's idempotent_boot.
func (o *Orchestrator) IdempotentBoot(f func()) {
	o.mu.Lock()
	if o.firstBootDone {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	f()

	o.mu.Lock()
	o.firstBootDone = true
	o.mu.Unlock()
}

// Recover runs the boot-time recovery protocol (spec.md §4.J): on a
// kernel's very first boot it rolls back the boot transaction's own
// journal, in case the previous attempt at IdempotentBoot itself
// crashed, and rolls the scheduler's list-op log forward; nothing else
// runs. On every subsequent boot, it
// rolls every list-op-log domain forward, rolls back the boot
// transaction's journal if a syscall was interrupted mid-commit, and
// bumps the generation counter.
func (o *Orchestrator) Recover() {
	o.mu.Lock()
	firstBoot := !o.firstBootDone
	o.mu.Unlock()

	if firstBoot {
		o.bootTx.RollBackIfUncommitted()
		if o.sched != nil {
			o.sched.RollForwardPending()
		}
		return
	}

	start := time.Now()

	if o.sched != nil {
		o.sched.RollForwardPending()
	}
	if o.timer != nil {
		o.timer.RollForwardPending()
		o.timer.Transaction().RollBackIfUncommitted()
	}
	o.bootTx.RollBackIfUncommitted()

	o.mu.Lock()
	o.generation++
	o.mu.Unlock()

	o.observer.ObserveKernelRecovery(time.Since(start))

	if o.sched != nil {
		for _, ref := range o.sched.AllTasks() {
			o.justInTime(ref)
		}
	}
}

// justInTime performs a task's just-in-time recovery: every registered
// task is swept (not just whichever one sched.Current names), and a task
// whose stored Generation already matches or exceeds the orchestrator's
// own is skipped since an earlier sweep already brought it up to date.
// For everything else, the task's own
// transaction is rolled back the same way bootTx/the timer's transaction
// are, so a task killed mid-syscall does not resume holding a half
// applied write. The reference kernel resumes a crashed task's native
// stack directly and recomputes nothing beyond what RollBackIfUncommitted
// undoes; this kernel's goroutine-per-task model is the same, since a
// retried call always restarts from the top of its entry function rather
// than from a snapshotted machine state.
func (o *Orchestrator) justInTime(ref pmem.Ref[sched.TCB]) {
	if ref.IsNil() {
		return
	}
	tcb := o.sched.Task(ref)
	if tcb.Generation >= o.generation {
		return
	}

	start := time.Now()
	tcb.InRecovery = true

	if o.taskTx != nil {
		if tx := o.taskTx(ref); tx != nil {
			tx.RollBackIfUncommitted()
		}
	}

	tcb.Generation = o.generation
	tcb.InRecovery = false
	o.observer.ObserveTaskRecovery(time.Since(start))
}
