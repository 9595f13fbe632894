// Package kcall implements the system-call envelope every blocking
// kernel primitive (queue send/receive, semaphore take/give, event-group
// wait/set) runs its body inside: a bypass check against the
// idempotence cache, a pre-hook, the body itself run under a
// transaction, and a post-hook that records metrics. Grounded on
// original_source/src/syscalls.rs's syscall_begin!/syscall_end! macro
// pair; Go has no macros, so the envelope is a higher-order function
// instead of injected boilerplate.
package kcall

import (
	"github.com/introt/kernel/internal/txn"
)

// Hooks lets a caller observe syscall execution without kcall importing
// the root package (which would create an import cycle, since the root
// package registers apps that call into kcall).
type Hooks interface {
	// PreSyscall is called once, before the body runs, whether or not it
	// will be served from the replay cache.
	PreSyscall(name string)
	// PostSyscall is called once the syscall has a result, reporting
	// whether it was served from the cache (replayed) or actually ran.
	PostSyscall(name string, replayed bool)
}

type noopHooks struct{}

func (noopHooks) PreSyscall(string)        {}
func (noopHooks) PostSyscall(string, bool) {}

// NoOpHooks is the default Hooks implementation: does nothing.
var NoOpHooks Hooks = noopHooks{}

// Syscall runs body as a system call inside tx: name is used only for
// hook reporting. The replay-bypass check, transaction begin/commit and
// retry loop are all handled by txn.Run; Syscall adds the pre/post hook
// phases original_source's syscall_begin!/syscall_end! macros inject
// around every syscall body.
func Syscall[T any](tx *txn.Transaction, hooks Hooks, name string, body func() (T, error)) (T, error) {
	if hooks == nil {
		hooks = NoOpHooks
	}

	replayed := tx.Cache() != nil && tx.Cache().Peek(tx.NextTxID())

	hooks.PreSyscall(name)
	result, err := txn.Run(tx, body)
	hooks.PostSyscall(name, replayed)
	return result, err
}

// Invoke is the non-generic form of Syscall for bodies with no result
// value worth caching, e.g. a pure side-effecting kernel call.
func Invoke(tx *txn.Transaction, hooks Hooks, name string, body func() error) error {
	_, err := Syscall(tx, hooks, name, func() (struct{}, error) {
		return struct{}{}, body()
	})
	return err
}
