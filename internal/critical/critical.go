// Package critical implements the kernel's critical-section discipline:
// all kernel data structures (ready lists, journals, list-op logs) are
// touched only with "interrupts masked". On a hosted build there is no
// real interrupt controller, so masking is realized as a single global
// mutex plus a single global nesting counter, mirroring
// original_source/src/critical.rs's CriticalNestingLevel.
package critical

import "sync"

var (
	mu      sync.Mutex
	nesting int
)

// Section names the critical-section discipline. Enter and Exit only
// raise and lower the global nesting counter, taking the kernel lock just
// long enough to change it; the lock is not held between Enter and Exit.
// Code that needs exclusion across a sequence of operations holds the
// lock itself through Lock/Unlock (the scheduler never runs two tasks'
// kernel code concurrently).
type Section struct{}

// With runs f with the nesting counter incremented, decrementing it on
// return; the kernel lock is not held while f runs. It is the Go
// realization of original_source/src/critical.rs's with_no_interrupt.
func With(f func()) {
	Enter()
	defer Exit()
	f()
}

// Enter increments the nesting level, holding the global lock only while
// it changes the counter.
func Enter() {
	mu.Lock()
	nesting++
	mu.Unlock()
}

// Exit decrements the nesting level.
func Exit() {
	mu.Lock()
	nesting--
	mu.Unlock()
}

// InCritical reports whether the caller is currently inside a critical
// section (original_source's is_in_critical).
func InCritical() bool {
	mu.Lock()
	defer mu.Unlock()
	return nesting > 0
}

// ExitAll resets the nesting counter to zero, used by recovery when a
// crash is detected mid critical-section (original_source's
// exit_all_critical, called from recover() when is_in_critical() was true
// at the moment of the simulated power failure).
func ExitAll() {
	mu.Lock()
	nesting = 0
	mu.Unlock()
}

// Lock exposes the underlying kernel lock directly for packages (sched,
// plist) that need to hold it across a sequence of operations rather than
// through With's single closure.
func Lock()   { mu.Lock() }
func Unlock() { mu.Unlock() }
