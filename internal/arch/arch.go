// Package arch is the kernel's architecture-layer collaborator
// (spec.md §6): stack initialization, starting the kernel, yielding and
// interrupt masking. The reference kernel implements this per target
// (MSP430, hosted simulator); this build models a "task" as a goroutine
// parked on a channel rather than a real machine stack, so InitStack
// returns a closure instead of a stack pointer.
package arch

import (
	"runtime"
	"time"

	"github.com/introt/kernel/internal/critical"
)

// TaskEntry is a task's top-level function. When it returns, sched marks
// the task dead (StateDead) and keeps dispatching the other tasks; the
// return is not reported as an error.
type TaskEntry func(param any)

// InitStack prepares a task for its first run. On real hardware this
// writes an initial register frame onto the task's stack so the first
// context switch "returns" into entry(param); here it just captures the
// pair for sched to invoke in a fresh goroutine.
func InitStack(entry TaskEntry, param any) func() {
	return func() { entry(param) }
}

// StartKernel hands control to the scheduler and never returns, mirroring
// the architecture layer's start_kernel. Callers pass the scheduler's own
// run loop as runLoop.
func StartKernel(runLoop func()) {
	runLoop()
}

// Yield gives other goroutines a chance to run. On real hardware this is
// a software interrupt that forces a context switch; goroutines rely on
// the Go scheduler, so this is a cooperative hint.
func Yield() {
	runtime.Gosched()
}

// DisableInterrupt masks interrupts by entering the kernel critical
// section. Pairs with EnableInterrupt.
func DisableInterrupt() { critical.Enter() }

// EnableInterrupt unmasks interrupts previously masked by DisableInterrupt.
func EnableInterrupt() { critical.Exit() }

// GetCycleCount returns a monotonic cycle-like counter. Real boards read
// a hardware cycle counter; this returns nanoseconds since an arbitrary
// epoch, adequate for the relative timing the kernel needs (timer
// deadlines, power-failure cycle quotas).
func GetCycleCount() uint64 {
	return uint64(time.Now().UnixNano())
}
