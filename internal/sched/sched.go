// Package sched implements the kernel's preemptive priority scheduler:
// eight fixed ready-task priority levels, a sorted delay list, and the
// tick-driven wake/switch protocol every task runs under. Grounded on
// original_source/src/task.rs's TCB/process_tick/task_switch family,
// translated from a bare-metal ISR-driven design to a goroutine-per-task
// runtime since Go has no user-mode stack-switch primitive: each
// registered task owns a goroutine parked on a channel, and the
// dispatcher hands control to exactly one task's goroutine at a time,
// modeling "only the running task touches the CPU".
package sched

import (
	"sync"

	"github.com/introt/kernel/internal/critical"
	"github.com/introt/kernel/internal/pheap"
	"github.com/introt/kernel/internal/pmem"
	"github.com/introt/kernel/internal/plist"
	"github.com/introt/kernel/internal/txn"
)

// NumPriorities is the number of fixed ready-list priority levels.
// Priority 0 is highest (Open Question (ii), decided in SPEC_FULL.md §9).
const NumPriorities = 8

// State is a task's scheduling state.
type State int

const (
	StateReady State = iota
	StateRunning
	StateBlocked
	StateDelayed
	StateDead
)

// TCB is a task control block: one per registered task, the Go analogue
// of original_source/src/task.rs's TCB (spec.md §3). Stack-top/bottom
// pointers are not modeled: Go gives every task goroutine its own real
// stack, managed by the runtime rather than by this kernel.
type TCB struct {
	ID       uint64
	Name     string
	Priority int
	Entry    func(param any)
	Param    any
	State    State
	WakeTick uint64

	// StatusPM mirrors State in NVM: a task's recovery-time status
	// survives the volatile State field being rebuilt from scratch on a
	// simulated reboot. It is deliberately unlogged (BorrowMutNoLogging):
	// scheduling state is re-derived from the ready/delay lists'
	// roll-forward recovery, not undone by the undo log.
	StatusPM *pmem.Var[State]

	// SyscallCache is the task's own per-task replay cache (spec.md §3's
	// "syscall replay cache"), distinct from the transaction-result cache
	// a *txn.Transaction already owns: it exists for a kernel that wants
	// to replay individual syscalls inside one still-open user
	// transaction, independent of whether the transaction itself commits.
	SyscallCache *txn.Cache

	// ListTxDone tracks whether this task's own pending scheduler list
	// move (wake-on-delay-expiry) has been driven to completion; the
	// dispatcher's shared delayLog records that some move is in
	// progress. ProcessTick clears it before the move and sets it after;
	// recovery does not read it and rolls the delayLog forward as is.
	ListTxDone bool

	// Generation is the boot generation this TCB was last brought up to
	// date with. A task whose Generation trails the orchestrator's
	// current generation has crashed mid-transaction and must run
	// just-in-time recovery before it is next scheduled (spec.md §3).
	Generation uint64

	// InRecovery is set for the duration of this task's just-in-time
	// recovery pass, so a nested recovery attempt (or a scheduler
	// operation racing the pass) can detect it is already underway.
	InRecovery bool

	// Heap is this task's own persistent bump arena (spec.md §4.D),
	// populated at registration so tasks never share allocation space.
	Heap *pheap.Bump

	// SchedNode records which ready/delay-list node currently represents
	// this task, so code outside the list package can tell a task is
	// linked somewhere without walking every list to find it.
	SchedNode pmem.Ref[plist.Node[pmem.Ref[TCB]]]

	// EventNode records which wait-list node currently represents this
	// task while it is blocked on a synchronization object, for the same
	// reason SchedNode exists for the ready/delay lists.
	EventNode pmem.Ref[plist.Node[pmem.Ref[TCB]]]

	resume  chan struct{}
	yielded chan struct{}
}

// CtxSwitchObserver receives a notification on every context switch. A
// root-level kernel.Metrics wraps itself to satisfy this so sched never
// imports the root package (which imports sched), avoiding a cycle.
type CtxSwitchObserver interface {
	ObserveCtxSwitch()
}

type noopObserver struct{}

func (noopObserver) ObserveCtxSwitch() {}

// Scheduler owns the ready lists, the delay list, and the current-task
// pointer. The zero value is not usable; use New.
type Scheduler struct {
	mu sync.Mutex

	tasks    *pmem.Arena[TCB]
	listMem  *pmem.Arena[plist.Node[pmem.Ref[TCB]]]
	ready    [NumPriorities]*plist.List[pmem.Ref[TCB]]
	delay    *plist.List[pmem.Ref[TCB]]
	delayLog *plist.OpLog[pmem.Ref[TCB]]

	journal  *pmem.Journal
	current  pmem.Ref[TCB]
	tick     uint64
	started  bool
	nextID   uint64
	allTasks []pmem.Ref[TCB]

	observer CtxSwitchObserver
}

// New creates a scheduler able to hold up to taskLimit tasks, journaling
// list mutations through journal. observer may be nil, in which case
// context switches are simply not reported.
func New(taskLimit int, journal *pmem.Journal, observer CtxSwitchObserver) *Scheduler {
	if observer == nil {
		observer = noopObserver{}
	}
	listMem := pmem.NewArena[plist.Node[pmem.Ref[TCB]]](taskLimit * (NumPriorities + 1))
	s := &Scheduler{
		tasks:    pmem.NewArena[TCB](taskLimit),
		listMem:  listMem,
		delay:    plist.New[pmem.Ref[TCB]](listMem),
		delayLog: plist.NewOpLog[pmem.Ref[TCB]](),
		journal:  journal,
		current:  pmem.NilRef[TCB](),
		observer: observer,
	}
	for i := range s.ready {
		s.ready[i] = plist.New[pmem.Ref[TCB]](listMem)
	}
	return s
}

// Tick returns the current tick count.
func (s *Scheduler) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Current returns a reference to the currently running task, or a nil
// ref if nothing is running (e.g. before Start).
func (s *Scheduler) Current() pmem.Ref[TCB] {
	critical.Lock()
	defer critical.Unlock()
	return s.current
}

// Task returns the TCB the reference points to.
func (s *Scheduler) Task(r pmem.Ref[TCB]) *TCB {
	return s.tasks.Get(r)
}

// AllTasks returns every task ever registered, in registration order.
// internal/recovery sweeps this on every boot to find tasks whose
// Generation trails the current one, since a crashed task is not
// necessarily the one sched.Current names by the time recovery runs
// post-hoc (spec.md §4.J).
func (s *Scheduler) AllTasks() []pmem.Ref[TCB] {
	critical.Lock()
	defer critical.Unlock()
	out := make([]pmem.Ref[TCB], len(s.allTasks))
	copy(out, s.allTasks)
	return out
}

func (s *Scheduler) highestReadyLevel() (int, bool) {
	for level := 0; level < NumPriorities; level++ {
		if s.ready[level].Len() > 0 {
			return level, true
		}
	}
	return 0, false
}
