package kernel

import (
	"errors"
	"testing"
)

func TestStructuredError(t *testing.T) {
	err := NewError("list_insert", ErrCodeInvalidParam, "nil node handle")

	if err.Op != "list_insert" {
		t.Errorf("Expected Op=list_insert, got %s", err.Op)
	}
	if err.Code != ErrCodeInvalidParam {
		t.Errorf("Expected Code=ErrCodeInvalidParam, got %s", err.Code)
	}

	expected := "kernel: nil node handle (op=list_insert)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestTaskError(t *testing.T) {
	err := NewTaskError("queue_receive", 3, ErrCodeQueueEmpty, "wait ticks exhausted")

	if err.Task != 3 {
		t.Errorf("Expected Task=3, got %d", err.Task)
	}

	expected := "kernel: wait ticks exhausted (op=queue_receive)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestWrapError(t *testing.T) {
	inner := errors.New("journal magic mismatch")
	err := WrapError("recover", inner)

	if err.Code != ErrCodeTxFatal {
		t.Errorf("Expected Code=ErrCodeTxFatal, got %s", err.Code)
	}
	if !errors.Is(err, err) {
		t.Error("Expected error to satisfy errors.Is against itself")
	}
	if errors.Unwrap(err) != inner {
		t.Error("Expected Unwrap to return the inner error")
	}
}

func TestWrapErrorPreservesCode(t *testing.T) {
	inner := NewTaskError("timer_create", 1, ErrCodeNoTimerDaemon, "daemon not started")
	err := WrapError("sys_timer_create", inner)

	if err.Code != ErrCodeNoTimerDaemon {
		t.Errorf("Expected wrapped code to survive, got %s", err.Code)
	}
	if err.Task != 1 {
		t.Errorf("Expected wrapped task to survive, got %d", err.Task)
	}
}

func TestIsCode(t *testing.T) {
	err := NewError("sys_queue_receive", ErrCodeTimeout, "operation timed out")

	if !IsCode(err, ErrCodeTimeout) {
		t.Error("IsCode should return true for matching code")
	}
	if IsCode(err, ErrCodeQueueEmpty) {
		t.Error("IsCode should return false for non-matching code")
	}
	if IsCode(nil, ErrCodeTimeout) {
		t.Error("IsCode should return false for nil error")
	}
}

func TestErrorIsMatchesByCodeOnly(t *testing.T) {
	a := &Error{Op: "a", Code: ErrCodeNoSpace}
	b := &Error{Op: "b", Code: ErrCodeNoSpace}

	if !errors.Is(a, b) {
		t.Error("expected errors with the same code to match via errors.Is")
	}

	c := &Error{Op: "c", Code: ErrCodeTxExit}
	if errors.Is(a, c) {
		t.Error("expected errors with different codes not to match")
	}
}
