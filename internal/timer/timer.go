// Package timer implements the kernel's software-timer service: a
// dedicated daemon goroutine owning a sorted active-timer list and a
// bounded command queue, grounded on original_source/src/time.rs's
// TimerDaemon/Timer and its {Start, Stop, Reset, Delete, SetPeriod}
// command set (spec.md §4.I). Unlike a registered task, the daemon is
// not scheduled by package sched: the reference design gives it its own
// list-op-log domain precisely so a crash in the timer's list
// operations recovers independently of the scheduler's.
package timer

import (
	"errors"
	"sync"

	"github.com/introt/kernel/internal/pmem"
	"github.com/introt/kernel/internal/plist"
	"github.com/introt/kernel/internal/txn"
)

// ErrCmdQueueFull is returned by a command method when the daemon's
// command channel is full: spec.md §9 Open Question (i) decided this
// returns an immediate caller error rather than blocking the caller.
var ErrCmdQueueFull = errors.New("timer: command queue full")

// ErrUnknownTimer names an ID that was never created or has since been
// deleted. The command methods do not return it: a command for a
// deleted timer is accepted and ignored when the daemon applies it.
var ErrUnknownTimer = errors.New("timer: unknown timer id")

type state int

const (
	stateDormant state = iota
	stateActive
)

type record struct {
	period     uint64
	expiryTick uint64
	periodic   bool
	callback   func()
	state      state
	deleted    bool
}

// ID addresses one timer. The zero value is not a nil ID: it refers to
// the first timer Create allocated.
type ID = pmem.Ref[record]

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdReset
	cmdDelete
	cmdSetPeriod
)

type command struct {
	kind   cmdKind
	id     ID
	period uint64
}

// Observer reports daemon activity for metrics, mirroring
// sched.CtxSwitchObserver's locally-defined-interface pattern so this
// package never imports the root kernel package.
type Observer interface {
	ObserveExpiry(periodic bool)
	ObserveCmdQueueFull()
}

type noopObserver struct{}

func (noopObserver) ObserveExpiry(bool)  {}
func (noopObserver) ObserveCmdQueueFull() {}

// Daemon owns the active-timer list and runs its main loop on a
// dedicated goroutine started by Run.
type Daemon struct {
	mu      sync.Mutex
	timers  *pmem.Arena[record]
	listMem *pmem.Arena[plist.Node[ID]]
	active  *plist.List[ID]
	opLog   *plist.OpLog[ID]

	journal *pmem.Journal
	tx      *txn.Transaction

	cmds chan command
	tick uint64
	stop chan struct{}
	done chan struct{}

	observer Observer
}

// New creates a daemon able to hold up to capacity timers at once,
// journaling list mutations through journal and running expired
// callbacks inside tx, a dedicated user transaction separate from any
// task's (callbacks are replayed on crash the same way a task's
// syscalls are). observer may be nil.
func New(capacity, cmdQueueDepth int, journal *pmem.Journal, tx *txn.Transaction, observer Observer) *Daemon {
	if observer == nil {
		observer = noopObserver{}
	}
	listMem := pmem.NewArena[plist.Node[ID]](capacity)
	return &Daemon{
		timers:   pmem.NewArena[record](capacity),
		listMem:  listMem,
		active:   plist.New[ID](listMem),
		opLog:    plist.NewOpLog[ID](),
		journal:  journal,
		tx:       tx,
		cmds:     make(chan command, cmdQueueDepth),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		observer: observer,
	}
}

// Create allocates a new, dormant timer with the given period (in
// ticks) and callback. A periodic timer auto-reloads on expiry; a
// one-shot timer deactivates itself instead. The timer does not begin
// counting down until Start is called.
func (d *Daemon) Create(period uint64, periodic bool, callback func()) (ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timers.Alloc(record{period: period, periodic: periodic, callback: callback, state: stateDormant})
}

func (d *Daemon) enqueue(c command) error {
	select {
	case d.cmds <- c:
		return nil
	default:
		d.observer.ObserveCmdQueueFull()
		return ErrCmdQueueFull
	}
}

// Start arms id to expire period ticks from now.
func (d *Daemon) Start(id ID) error { return d.enqueue(command{kind: cmdStart, id: id}) }

// Stop deactivates id without deleting it; it may be Started again later.
func (d *Daemon) Stop(id ID) error { return d.enqueue(command{kind: cmdStop, id: id}) }

// Reset restarts id's countdown from its current period, arming it if dormant.
func (d *Daemon) Reset(id ID) error { return d.enqueue(command{kind: cmdReset, id: id}) }

// Delete permanently removes id; commands referencing it afterward are
// still accepted but are ignored when the daemon applies them.
func (d *Daemon) Delete(id ID) error { return d.enqueue(command{kind: cmdDelete, id: id}) }

// SetPeriod changes id's period for its next expiry, without affecting
// whether it is currently active.
func (d *Daemon) SetPeriod(id ID, period uint64) error {
	return d.enqueue(command{kind: cmdSetPeriod, id: id, period: period})
}

// Tick returns the daemon's own tick count, independent of sched's.
func (d *Daemon) Tick() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tick
}
