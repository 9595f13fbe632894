package sched

import (
	"errors"

	"github.com/introt/kernel/internal/board"
	"github.com/introt/kernel/internal/critical"
	"github.com/introt/kernel/internal/pheap"
	"github.com/introt/kernel/internal/plist"
	"github.com/introt/kernel/internal/pmem"
	"github.com/introt/kernel/internal/txn"
)

// ErrInvalidPriority is returned by RegisterTask when priority is
// outside [0, NumPriorities).
var ErrInvalidPriority = errors.New("sched: invalid priority")

// ErrTaskLimitReached is returned by RegisterTask when the task arena is full.
var ErrTaskLimitReached = errors.New("sched: task limit reached")

// RegisterTask creates a task control block for entry and queues it
// ready to run at priority. The task's goroutine is started immediately
// but blocks until the dispatcher schedules it. A returning entry is
// treated as task death: taskExited marks the task StateDead and no
// error is raised.
func (s *Scheduler) RegisterTask(name string, priority int, entry func(param any), param any) (pmem.Ref[TCB], error) {
	if priority < 0 || priority >= NumPriorities {
		return pmem.NilRef[TCB](), ErrInvalidPriority
	}

	critical.Lock()
	defer critical.Unlock()

	id := s.nextID
	s.nextID++

	ref, err := s.tasks.Alloc(TCB{
		ID:           id,
		Name:         name,
		Priority:     priority,
		Entry:        entry,
		Param:        param,
		State:        StateReady,
		StatusPM:     pmem.NewVar(StateReady),
		SyscallCache: txn.NewCache(),
		Heap:         pheap.NewBump(board.PMHeapSize),
		resume:       make(chan struct{}),
		yielded:      make(chan struct{}),
	})
	if err != nil {
		return ref, ErrTaskLimitReached
	}
	s.allTasks = append(s.allTasks, ref)

	node, err := s.ready[priority].PushBack(s.journal, ref)
	if err != nil {
		return ref, err
	}

	tcb := s.tasks.Get(ref)
	tcb.SchedNode = node
	go func() {
		<-tcb.resume
		tcb.Entry(tcb.Param)
		s.taskExited(ref)
	}()

	return ref, nil
}

// taskExited marks ref dead and releases the dispatcher once its
// goroutine's entry function returns.
func (s *Scheduler) taskExited(ref pmem.Ref[TCB]) {
	critical.Lock()
	tcb := s.tasks.Get(ref)
	tcb.State = StateDead
	*tcb.StatusPM.BorrowMutNoLogging() = StateDead
	tcb.SchedNode = pmem.NilRef[plist.Node[pmem.Ref[TCB]]]()
	critical.Unlock()
	tcb.yielded <- struct{}{}
}

// Start runs the dispatch loop on the calling goroutine until no task is
// ready, delayed, or running: every registered task has either exited or
// is blocked on a wait list with no task left to wake it. This
// stands in for original_source's idle-loop-forever main(), shortened to
// a terminating loop so tests can observe completion.
func (s *Scheduler) Start() {
	for {
		level, ok := s.pickReady()
		if !ok {
			if s.delay.Len() == 0 {
				return
			}
			s.ProcessTick()
			continue
		}
		s.switchTo(level)
	}
}

func (s *Scheduler) pickReady() (int, bool) {
	critical.Lock()
	defer critical.Unlock()
	return s.highestReadyLevel()
}

// switchTo pops the head task of ready list level and runs it until it
// yields, blocks, delays, or exits. This is TaskSwitch: the one place
// control actually passes from the dispatcher to a task goroutine.
func (s *Scheduler) switchTo(level int) {
	critical.Lock()
	v, _, ok := s.ready[level].PopFront(s.journal)
	if !ok {
		critical.Unlock()
		return
	}
	tcb := s.tasks.Get(v)
	tcb.State = StateRunning
	*tcb.StatusPM.BorrowMutNoLogging() = StateRunning
	tcb.SchedNode = pmem.NilRef[plist.Node[pmem.Ref[TCB]]]()
	s.current = v
	critical.Unlock()

	s.observer.ObserveCtxSwitch()

	tcb.resume <- struct{}{}
	<-tcb.yielded

	critical.Lock()
	s.current = pmem.NilRef[TCB]()
	critical.Unlock()
}

// Yield voluntarily relinquishes the CPU without delay: the calling
// task's goroutine must be the one currently running. It returns once
// the dispatcher schedules the task again.
func (s *Scheduler) Yield(ref pmem.Ref[TCB]) {
	critical.Lock()
	tcb := s.tasks.Get(ref)
	tcb.State = StateReady
	*tcb.StatusPM.BorrowMutNoLogging() = StateReady
	tcb.SchedNode, _ = s.ready[tcb.Priority].PushBack(s.journal, ref)
	critical.Unlock()

	tcb.yielded <- struct{}{}
	<-tcb.resume
}

// Delay moves the calling task off the CPU and onto the sorted delay
// list until the scheduler's tick count reaches now+ticks.
func (s *Scheduler) Delay(ref pmem.Ref[TCB], ticks uint64) {
	critical.Lock()
	tcb := s.tasks.Get(ref)
	tcb.State = StateDelayed
	*tcb.StatusPM.BorrowMutNoLogging() = StateDelayed
	tcb.WakeTick = s.tick + ticks
	less := func(a, b pmem.Ref[TCB]) bool {
		return s.tasks.Get(a).WakeTick < s.tasks.Get(b).WakeTick
	}
	tcb.SchedNode, _ = s.delay.InsertSorted(s.journal, ref, less)
	critical.Unlock()

	tcb.yielded <- struct{}{}
	<-tcb.resume
}

// Block parks the calling task's goroutine without placing it on any
// ready or delay list: the caller (a synchronization object) is
// responsible for recording ref on its own wait list first. Block
// returns once some other task calls Wake(ref).
func (s *Scheduler) Block(ref pmem.Ref[TCB]) {
	critical.Lock()
	tcb := s.tasks.Get(ref)
	tcb.State = StateBlocked
	*tcb.StatusPM.BorrowMutNoLogging() = StateBlocked
	critical.Unlock()

	tcb.yielded <- struct{}{}
	<-tcb.resume
}

// SetEventNode records which wait-list node represents ref while it is
// blocked on a synchronization object. Callers (internal/syncobj) set
// this immediately after pushing ref onto their own wait list and
// before calling Block, so a task's TCB always names the list node it
// is currently linked into.
func (s *Scheduler) SetEventNode(ref pmem.Ref[TCB], node pmem.Ref[plist.Node[pmem.Ref[TCB]]]) {
	critical.Lock()
	defer critical.Unlock()
	s.tasks.Get(ref).EventNode = node
}

// Wake moves a blocked task back onto its ready list. The dispatcher
// delivers the actual resume signal the next time it pops ref from that
// list; Wake itself never blocks.
func (s *Scheduler) Wake(ref pmem.Ref[TCB]) {
	critical.Lock()
	defer critical.Unlock()
	tcb := s.tasks.Get(ref)
	tcb.State = StateReady
	*tcb.StatusPM.BorrowMutNoLogging() = StateReady
	tcb.EventNode = pmem.NilRef[plist.Node[pmem.Ref[TCB]]]()
	tcb.SchedNode, _ = s.ready[tcb.Priority].PushBack(s.journal, ref)
}

// ProcessTick advances the tick counter by one and wakes every task
// whose delay has expired, moving it from the delay list to its ready
// list via an op-log-recorded remove+reinsert (SPEC_FULL.md §4.E/§4.F):
// if a crash interrupts the move, recovery rolls it forward to
// completion rather than leaving the task stranded off both lists.
func (s *Scheduler) ProcessTick() {
	critical.Lock()
	defer critical.Unlock()

	s.tick++

	for {
		head := s.delay.Head()
		if head.IsNil() {
			return
		}
		tcbRef := s.delay.Get(head).Value
		tcb := s.tasks.Get(tcbRef)
		if tcb.WakeTick > s.tick {
			return
		}

		tcb.ListTxDone = false
		s.delayLog.BeginRemoveReinsert(s.delay, s.ready[tcb.Priority], head, tcbRef, nil)
		s.delayLog.RollForward(s.journal)
		tcb.ListTxDone = true
		tcb.State = StateReady
		*tcb.StatusPM.BorrowMutNoLogging() = StateReady
	}
}

// RollForwardPending replays any scheduler list-op left pending by a
// crash mid wake-transition. Called by internal/recovery before any
// task resumes.
func (s *Scheduler) RollForwardPending() {
	critical.Lock()
	defer critical.Unlock()
	s.delayLog.RollForward(s.journal)
}
