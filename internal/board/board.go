// Package board holds the board-layer constants the kernel treats as an
// external collaborator (spec.md §6): arena sizes, task table limits and
// the tick cadence. A real board-support package would derive these from
// the linker script; this one hands out fixed defaults suitable for the
// hosted/test build.
package board

import "time"

// Arena and table sizing. These bound the NVM regions laid out at link
// time (spec.md §6): journal bodies, tx/syscall caches, list-op logs,
// TCB array, per-task heap arenas, static PMVars, timer buffers.
const (
	// HeapSize is the size in bytes of the global (non-task) persistent heap.
	HeapSize = 1 << 20

	// PMHeapSize is the size in bytes handed to each per-task persistent
	// bump arena at task creation.
	PMHeapSize = 16 * 1024

	// StackSize is the (simulated) per-task stack footprint. Stack contents
	// are volatile and are not backed by this region; the constant exists
	// so JIT recovery can report a stable per-task footprint.
	StackSize = 4096

	// TaskNumLimit bounds the static TCB table.
	TaskNumLimit = 32

	// JournalSize is the byte capacity of each per-domain undo-log journal.
	JournalSize = 4096

	// TxCacheSize is the byte capacity of a transaction result cache.
	TxCacheSize = 256

	// SyscallCacheSize is the byte capacity of a per-task syscall replay cache.
	SyscallCacheSize = 512

	// TimerCmdQueueDepth is the fixed capacity of the timer daemon's command
	// channel (spec.md §4.I, Open Question (i)).
	TimerCmdQueueDepth = 16

	// MaxPriority is the lowest-urgency runnable priority (0 is highest,
	// per spec.md §9 Open Question (ii)); sched.RegisterTask rejects
	// priorities outside [0, sched.NumPriorities).
	MaxPriority = 7

	// NVMRegionSize is the byte size of the NVM-backed region mirroring
	// each per-domain journal's undo log (internal/nvmfile).
	NVMRegionSize = 64 * 1024
)

// ClkReloadValue is the simulated tick cadence: how often the board's
// hardware timer would fire process_tick in a real deployment.
const ClkReloadValue = 10 * time.Millisecond
