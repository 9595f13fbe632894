// Package kernel is the intermittent-computing kernel's public surface:
// application registration, startup, and the error/metrics types every
// internal package reports through. It replaces the teacher's
// device-specific CreateAndServe/StopAndDelete API (spec.md §6): the one
// thing an application needs from this kernel is a place to register a
// task entry point and a way to start the dispatcher.
package kernel

import (
	"sync"

	"github.com/introt/kernel/internal/board"
	"github.com/introt/kernel/internal/logging"
	"github.com/introt/kernel/internal/nvmfile"
	"github.com/introt/kernel/internal/pheap"
	"github.com/introt/kernel/internal/pmem"
	"github.com/introt/kernel/internal/recovery"
	"github.com/introt/kernel/internal/sched"
	"github.com/introt/kernel/internal/timer"
	"github.com/introt/kernel/internal/txn"
)

// Config bounds a Kernel instance: task table size, per-domain journal
// capacity, and whether the software-timer daemon (§4.I) runs at all.
// Every field has a board-derived default; the zero value is not valid,
// use DefaultConfig.
type Config struct {
	TaskLimit   int
	JournalSize int

	// EnableTimerDaemon controls whether Start launches the software-timer
	// service. Applications that never call kernel.Timer can leave it off.
	EnableTimerDaemon  bool
	TimerCapacity      int
	TimerCmdQueueDepth int

	// NVMRegionSize is the byte size of the in-memory nvmfile.Region each
	// journal mirrors its undo log to. Every Kernel opens fresh regions;
	// none is re-attached or read back. It must be at least JournalSize's worst-case
	// logged footprint; the default is generous (internal/board).
	NVMRegionSize int
}

// DefaultConfig returns the board's sizing defaults (internal/board).
func DefaultConfig() Config {
	return Config{
		TaskLimit:          board.TaskNumLimit,
		JournalSize:        board.JournalSize,
		EnableTimerDaemon:  true,
		TimerCapacity:      board.TaskNumLimit,
		TimerCmdQueueDepth: board.TimerCmdQueueDepth,
		NVMRegionSize:      board.NVMRegionSize,
	}
}

// AppContext is handed to a registered app's entry function's logic
// through Kernel.Self: the task's own transaction (for kcall/syncobj
// calls), its idempotent-loop stack, and its scheduler reference. It
// plays the role the reference kernel gets for free from a task's own
// stack frame (tcb->tx, tcb->user_tx_info); Go's goroutine-per-task
// model has no equivalent implicit "current task" storage, so Kernel
// keeps one AppContext per registered task instead, looked up through
// the scheduler's notion of which task is currently running (spec.md §5:
// exactly one task executes at a time).
type AppContext struct {
	Kernel *Kernel
	Task   pmem.Ref[sched.TCB]
	Tx     *txn.Transaction
	UserTx *txn.UserTxInfo

	// Heap is this task's own persistent bump arena (spec.md §3/§4.D),
	// the same *pheap.Bump sched.TCB.Heap names. Its cursor is not
	// journaled through Tx, so an abort or a crash does not undo an
	// allocation; only an explicit Heap.Rollback to a Mark does.
	Heap *pheap.Bump
}

// Kernel wires together the scheduler, the optional timer daemon, the
// recovery orchestrator and the metrics/logging ambient stack into one
// runnable instance, replacing the teacher's Device.
type Kernel struct {
	mu  sync.Mutex
	cfg Config
	log *logging.Logger

	metrics  *Metrics
	observer *MetricsObserver

	bootJournal *pmem.Journal
	bootTx      *txn.Transaction

	schedJournal *pmem.Journal
	sched        *sched.Scheduler

	timerJournal *pmem.Journal
	timer        *timer.Daemon

	recovery *recovery.Orchestrator

	contexts map[pmem.Ref[sched.TCB]]*AppContext
	started  bool

	// regions tracks every nvmfile.Region backing a journal this Kernel
	// created, so Close can release them together.
	regions []nvmfile.Region
}

// New builds a Kernel from cfg, wiring the scheduler, optional timer
// daemon and recovery orchestrator to a shared Metrics/Observer pair so
// every internal package's context-switch, syscall, queue and timer
// events land in the same MetricsSnapshot.
func New(cfg Config) *Kernel {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	k := &Kernel{
		cfg:      cfg,
		log:      logging.Default().WithTag("kernel"),
		metrics:  m,
		observer: obs,
		contexts: make(map[pmem.Ref[sched.TCB]]*AppContext),
	}

	bootJournal := k.newNVMBackedJournal()
	bootTx := txn.New(bootJournal, txn.NewCache())
	k.bootJournal, k.bootTx = bootJournal, bootTx

	schedJournal := k.newNVMBackedJournal()
	s := sched.New(cfg.TaskLimit, schedJournal, obs)
	k.schedJournal, k.sched = schedJournal, s

	var td *timer.Daemon
	if cfg.EnableTimerDaemon {
		k.timerJournal = k.newNVMBackedJournal()
		timerTx := txn.New(k.timerJournal, txn.NewCache())
		td = timer.New(cfg.TimerCapacity, cfg.TimerCmdQueueDepth, k.timerJournal, timerTx, obs)
		k.timer = td
	}

	k.recovery = recovery.New(bootTx, s, td, obs, k.taskTransaction)

	return k
}

// newNVMBackedJournal allocates a journal exactly like NewJournal but
// mirrors its undo log to a fresh, empty nvmfile.Region. The region is
// only written, never read back, and no later Kernel re-attaches it. The
// region is tracked on k.regions so Close can release every region this
// Kernel instance opened.
func (k *Kernel) newNVMBackedJournal() *pmem.Journal {
	region := nvmfile.NewMemRegion(int64(k.cfg.NVMRegionSize))
	k.regions = append(k.regions, region)
	return pmem.NewJournalWithRegion(k.cfg.JournalSize, region)
}

// Close releases every nvmfile.Region this Kernel opened for its
// journals. A Kernel that is done running (tests, a shutdown scenario)
// should call this to release the backing memory; a real deployment
// backed by regions from nvmfile.OpenMapped would instead rely on this
// to unmap the file.
func (k *Kernel) Close() error {
	k.mu.Lock()
	regions := k.regions
	k.regions = nil
	k.mu.Unlock()

	var firstErr error
	for _, r := range regions {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Metrics returns the kernel's metrics instance, for a status endpoint
// or a test assertion.
func (k *Kernel) Metrics() *Metrics { return k.metrics }

// Scheduler returns the kernel's scheduler, for synchronization objects
// (internal/syncobj) created by application setup code before Start.
func (k *Kernel) Scheduler() *sched.Scheduler { return k.sched }

// Timer returns the kernel's software-timer daemon, or nil if
// Config.EnableTimerDaemon was false.
func (k *Kernel) Timer() *timer.Daemon { return k.timer }

// Observer returns the kernel's shared metrics observer, for wiring into
// synchronization objects created outside RegisterApp.
func (k *Kernel) Observer() *MetricsObserver { return k.observer }

// NewJournal allocates a fresh journal sized per Config, for a
// synchronization object's own transactional domain (e.g. a semaphore
// shared by several apps, rather than one owned by a single app's
// AppContext.Tx).
func (k *Kernel) NewJournal() *pmem.Journal {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.newNVMBackedJournal()
}

// RegisterApp registers entry to run as a task named name at priority
// prio, receiving param as its argument, the kernel's only app-facing
// entry point besides Start (spec.md §6). A dedicated journal,
// idempotence cache and idempotent-loop stack are allocated for the
// task; entry (or anything it calls) reaches them via Kernel.Self once
// the task is actually running. RegisterApp must be called before Start;
// calling it afterward returns ErrCodeInvalidParam.
func (k *Kernel) RegisterApp(name string, prio int, entry func(any), param any) (pmem.Ref[sched.TCB], error) {
	k.mu.Lock()
	if k.started {
		k.mu.Unlock()
		return pmem.NilRef[sched.TCB](), NewError("register_app", ErrCodeInvalidParam, "cannot register an app after Start")
	}
	journal := k.newNVMBackedJournal()
	k.mu.Unlock()
	tx := txn.New(journal, txn.NewCache())
	userTx := txn.NewUserTxInfo()

	ref, err := k.sched.RegisterTask(name, prio, entry, param)
	if err != nil {
		return ref, WrapError("register_app", err)
	}

	k.mu.Lock()
	k.contexts[ref] = &AppContext{Kernel: k, Task: ref, Tx: tx, UserTx: userTx, Heap: k.sched.Task(ref).Heap}
	k.mu.Unlock()

	k.log.Debugf("registered app %q at priority %d", name, prio)
	return ref, nil
}

// taskTransaction resolves ref's own transaction for the recovery
// orchestrator's per-task rollback sweep (recovery.TaskTxLookup): a task
// killed mid-syscall is rolled back through the same journal its own
// kcall/syncobj calls write to, not bootTx.
func (k *Kernel) taskTransaction(ref pmem.Ref[sched.TCB]) *txn.Transaction {
	k.mu.Lock()
	defer k.mu.Unlock()
	ctx, ok := k.contexts[ref]
	if !ok {
		return nil
	}
	return ctx.Tx
}

// Self returns the AppContext of whichever task is currently running.
// It relies on the kernel's single-task-running-at-a-time invariant
// (spec.md §5): only the goroutine the dispatcher just resumed calls
// Self before yielding control back, so sched.Current always names the
// right task regardless of which app goroutine happens to call it.
func (k *Kernel) Self() *AppContext {
	ref := k.sched.Current()
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.contexts[ref]
}

// Start runs the boot recovery pass, launches the timer daemon if
// configured, then runs the scheduler's dispatch loop until every
// registered app has exited or is blocked with nothing left to wake it
// (spec.md §4.J then §4.F). It returns once the dispatcher has nothing
// left to run.
func (k *Kernel) Start() {
	k.recovery.Recover()

	if k.timer != nil {
		k.timer.Run()
	}

	k.mu.Lock()
	k.started = true
	k.mu.Unlock()

	k.sched.Start()

	if k.timer != nil {
		k.timer.Shutdown()
	}
	k.metrics.Stop()
}
