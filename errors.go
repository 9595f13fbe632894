// Package kernel is the intermittent-computing kernel's public surface:
// application registration, startup, and the error/metrics types every
// internal package reports through.
package kernel

import (
	"errors"
	"fmt"
)

// Error is the structured error every kernel operation returns, in place of
// the reference kernel's Result<T, ErrorCode> + panic split.
type Error struct {
	Op     string    // operation that failed, e.g. "queue_receive", "list_insert"
	Task   int       // task id the error occurred on (-1 if not applicable)
	Code   ErrorCode // high-level category
	Msg    string    // human-readable detail
	Inner  error     // wrapped error, if any
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Task >= 0 {
		parts = append(parts, fmt.Sprintf("task=%d", e.Task))
	}
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("kernel: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("kernel: %s", msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode is the kernel's error taxonomy (spec.md §7). TxRetry never
// surfaces past txn.Run; TxFatal is returned as an *Error like the other
// codes.
type ErrorCode string

const (
	// ErrCodeInvalidParam: caller supplied out-of-range priority, zero
	// queue length, or a nil handle.
	ErrCodeInvalidParam ErrorCode = "invalid parameter"
	// ErrCodeNoSpace: arena exhausted or task table full.
	ErrCodeNoSpace ErrorCode = "no space"
	// ErrCodeTxExit: user transaction body asked to abort cleanly.
	ErrCodeTxExit ErrorCode = "transaction exited"
	// ErrCodeTxFatal: corrupt journal magic or an impossible list opcode.
	ErrCodeTxFatal ErrorCode = "fatal transaction error"
	// ErrCodeQueueFull / ErrCodeQueueEmpty: timed send/receive timeout.
	ErrCodeQueueFull  ErrorCode = "queue full"
	ErrCodeQueueEmpty ErrorCode = "queue empty"
	// ErrCodeTimeout: a blocking syscall's wait tick budget expired.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeNoTimerDaemon: timer service used before its daemon task started.
	ErrCodeNoTimerDaemon ErrorCode = "no timer daemon"
	// ErrCodeCmdQueueBusy: timer command channel full and caller asked
	// not to block (spec.md §9 Open Question (i)).
	ErrCodeCmdQueueBusy ErrorCode = "timer command queue busy"
)

// NewError creates a structured kernel error with no task context.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Task: -1, Code: code, Msg: msg}
}

// NewTaskError creates a structured kernel error attributed to a task.
func NewTaskError(op string, task int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Task: task, Code: code, Msg: msg}
}

// WrapError wraps inner under op, preserving code/task if inner is already
// a *Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ke, ok := inner.(*Error); ok {
		return &Error{Op: op, Task: ke.Task, Code: ke.Code, Msg: ke.Msg, Inner: ke.Inner}
	}
	return &Error{Op: op, Task: -1, Code: ErrCodeTxFatal, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a *Error carrying code.
func IsCode(err error, code ErrorCode) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Code == code
	}
	return false
}
