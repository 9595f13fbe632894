package timer

import (
	"time"

	"github.com/introt/kernel/internal/board"
	"github.com/introt/kernel/internal/pmem"
	"github.com/introt/kernel/internal/plist"
	"github.com/introt/kernel/internal/txn"
)

func (d *Daemon) less(a, b ID) bool {
	return d.timers.Get(a).expiryTick < d.timers.Get(b).expiryTick
}

func (d *Daemon) findActiveNode(id ID) (pmem.Ref[plist.Node[ID]], bool) {
	var found pmem.Ref[plist.Node[ID]]
	ok := false
	d.active.Iterate(func(ref pmem.Ref[plist.Node[ID]], v *ID) bool {
		if *v == id {
			found, ok = ref, true
			return false
		}
		return true
	})
	return found, ok
}

// removeFromActive unlinks id from the active list via the timer op-log
// domain, distinct from the scheduler's (SPEC_FULL.md §4.I), so a crash
// mid-removal here rolls forward independently of any in-flight
// scheduler list operation.
func (d *Daemon) removeFromActive(id ID) {
	node, ok := d.findActiveNode(id)
	if !ok {
		return
	}
	d.opLog.BeginRemove(d.active, node)
	d.opLog.RollForward(d.journal)
}

func (d *Daemon) applyCommand(c command) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec := d.timers.Get(c.id)
	if rec.deleted {
		return
	}

	switch c.kind {
	case cmdStart:
		if rec.state == stateActive {
			return
		}
		rec.expiryTick = d.tick + rec.period
		rec.state = stateActive
		d.active.InsertSorted(d.journal, c.id, d.less)
	case cmdStop:
		if rec.state != stateActive {
			return
		}
		d.removeFromActive(c.id)
		rec.state = stateDormant
	case cmdReset:
		if rec.state == stateActive {
			d.removeFromActive(c.id)
		}
		rec.expiryTick = d.tick + rec.period
		rec.state = stateActive
		d.active.InsertSorted(d.journal, c.id, d.less)
	case cmdDelete:
		if rec.state == stateActive {
			d.removeFromActive(c.id)
		}
		rec.deleted = true
	case cmdSetPeriod:
		rec.period = c.period
	}
}

// drainCommands applies every command currently queued without blocking,
// step (2) of the daemon's main loop.
func (d *Daemon) drainCommands() {
	for {
		select {
		case c := <-d.cmds:
			d.applyCommand(c)
		default:
			return
		}
	}
}

// processExpiries runs step (1) of the main loop: while the active
// list's head has expired, invoke its callback inside a user
// transaction, then either auto-reload (periodic) or deactivate
// (one-shot).
func (d *Daemon) processExpiries() {
	for {
		d.mu.Lock()
		head := d.active.Head()
		if head.IsNil() {
			d.mu.Unlock()
			return
		}
		id := d.active.Get(head).Value
		rec := d.timers.Get(id)
		if rec.expiryTick > d.tick {
			d.mu.Unlock()
			return
		}
		cb := rec.callback
		d.mu.Unlock()

		txn.Run(d.tx, func() (struct{}, error) {
			cb()
			return struct{}{}, nil
		})

		d.mu.Lock()
		d.observer.ObserveExpiry(rec.periodic)
		if rec.periodic {
			rec.expiryTick = d.tick + rec.period
			d.opLog.BeginPopReinsert(d.active, d.active, head, id, d.less)
			d.opLog.RollForward(d.journal)
		} else {
			d.opLog.BeginPopFront(d.active)
			d.opLog.RollForward(d.journal)
			rec.state = stateDormant
		}
		d.mu.Unlock()
	}
}

// AdvanceTick moves the daemon's own tick count forward by one and runs
// any expiries it now triggers, its explicit-stepping form for
// deterministic tests (mirrors sched.Scheduler.ProcessTick).
func (d *Daemon) AdvanceTick() {
	d.mu.Lock()
	d.tick++
	d.mu.Unlock()
	d.processExpiries()
}

// Step drains the command queue and processes expiries once, without
// advancing the tick, the other explicit-stepping primitive tests drive
// directly instead of starting the real Run loop.
func (d *Daemon) Step() {
	d.drainCommands()
	d.processExpiries()
}

// nextExpiryTick returns the active list head's expiry tick and whether
// one exists.
func (d *Daemon) nextExpiryTick() (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	head := d.active.Head()
	if head.IsNil() {
		return 0, false
	}
	return d.timers.Get(d.active.Get(head).Value).expiryTick, true
}

// Run starts the daemon's main loop on a dedicated goroutine: it repeats
// processExpiries, drainCommands, then blocks on the command channel
// with a timeout equal to the next expiry (spec.md §4.I), converting
// tick counts to wall-clock duration via board.ClkReloadValue. It
// returns immediately; call Shutdown to stop it.
func (d *Daemon) Run() {
	go func() {
		defer close(d.done)
		for {
			select {
			case <-d.stop:
				return
			default:
			}

			d.processExpiries()
			d.drainCommands()

			timeout := board.ClkReloadValue
			elapsed := uint64(1)
			if next, ok := d.nextExpiryTick(); ok {
				cur := d.Tick()
				if next > cur {
					elapsed = next - cur
					timeout = time.Duration(elapsed) * board.ClkReloadValue
				} else {
					timeout = 0
				}
			}

			select {
			case <-d.stop:
				return
			case c := <-d.cmds:
				d.applyCommand(c)
			case <-time.After(timeout):
				d.mu.Lock()
				d.tick += elapsed
				d.mu.Unlock()
			}
		}
	}()
}

// Shutdown stops the daemon's Run loop and waits for it to exit.
func (d *Daemon) Shutdown() {
	close(d.stop)
	<-d.done
}

// RollForwardPending replays any timer-list op left pending by a crash
// mid wake-transition, the timer domain's counterpart to
// sched.Scheduler.RollForwardPending. Called by internal/recovery before
// the daemon's Run loop starts.
func (d *Daemon) RollForwardPending() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opLog.RollForward(d.journal)
}

// Transaction returns the daemon's own user transaction, so the recovery
// orchestrator can roll it back if a crash interrupted a callback.
func (d *Daemon) Transaction() *txn.Transaction {
	return d.tx
}
