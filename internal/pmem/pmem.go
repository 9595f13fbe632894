// Package pmem models the kernel's non-volatile memory substrate: an
// undo-log journal that makes a region of memory crash-consistent across
// a simulated reboot, and the PMVar/PMPtr abstractions the rest of the
// kernel logs through. It is grounded on
// mansub1029-go-pmem-transaction/transaction/undoTx.go's entry/log/abort
// shape and on original_source/src/pmem.rs's Journal/PMVar/PMPtr macros.
//
// There is no real non-volatile memory available on a hosted build, so a
// "crash" is simulated by calling Recover on a Journal that was never
// cleared, rather than by an actual power cycle; internal/crashtest
// drives this.
package pmem

import (
	"sync/atomic"
	"unsafe"

	"github.com/introt/kernel/internal/nvmfile"
)

// CrashSafe gates whether journal writes happen at all; list-op logging
// goes through the same journal writes, while the idempotence cache does
// not consult it. Rather than a Go build tag (this package is imported
// both ways, by production code and by tests exercising the crash-unsafe
// fast path), it is a single package variable read on every LogRegion
// call, per SPEC_FULL.md's "crash-safe vs crash-unsafe builds" design note.
var CrashSafe = true

var fenceCounter atomic.Int64

// Fence is the kernel's ordering primitive: a full memory barrier on a
// real MSP430-class target, a compiler fence on hosted targets. Go gives
// no portable fence primitive, so this is modeled as an atomic RMW, which
// the runtime cannot reorder past.
func Fence() {
	fenceCounter.Add(1)
}

type entry struct {
	addr unsafe.Pointer
	data []byte
}

// Journal is a single-writer undo log: every write to a logged region is
// preceded by an entry recording the region's pre-image, so Recover can
// restore any uncommitted prefix of writes. Clear (commit) simply resets
// the tail to zero, the Go equivalent of original_source's Journal.tail=0.
//
// A Journal optionally mirrors every logged pre-image into an
// nvmfile.Region as it is written: the region backs the undo log's own
// payload bytes, the one part of this model that is genuinely byte-for-
// byte copyable NVM content. It does not back the Var values themselves,
// or the Arena slots referencing them (those hold live Go values such as
// channels and function pointers with no byte representation to
// mirror) — only the log built on top of them.
type Journal struct {
	entries []entry
	tail    int

	region    nvmfile.Region // nil if this journal has no NVM-backed mirror
	regionOff int64
}

// NewJournal allocates a journal with initial room for capacity log
// entries (the log grows past it when needed), with no NVM-backed mirror.
func NewJournal(capacity int) *Journal {
	return &Journal{entries: make([]entry, 0, capacity)}
}

// NewJournalWithRegion allocates a journal exactly like NewJournal, but
// mirrors every logged pre-image into region as it is appended. region
// is a durability aid, not the log's authority: recovery always replays
// from the in-process entries, and a region too small to hold the
// current log simply stops being mirrored rather than failing the
// caller's write.
func NewJournalWithRegion(capacity int, region nvmfile.Region) *Journal {
	return &Journal{entries: make([]entry, 0, capacity), region: region}
}

// Region returns the journal's NVM-backed mirror, or nil if it has none.
func (j *Journal) Region() nvmfile.Region { return j.region }

// LogRegion records the current contents of the size bytes at ptr before
// the caller overwrites them. It is the Go realization of
// original_source/src/pmem.rs's Journal::append_log_of.
func (j *Journal) LogRegion(ptr unsafe.Pointer, size uintptr) {
	if !CrashSafe || size == 0 {
		return
	}
	snapshot := getSnapshot(int(size))
	copy(snapshot, unsafe.Slice((*byte)(ptr), size))
	j.entries = append(j.entries[:j.tail], entry{addr: ptr, data: snapshot})
	j.mirror(snapshot)
	Fence()
	j.tail++
	Fence()
}

// mirror best-effort writes data to the journal's backing region at the
// next free offset, if the journal has one. Running out of region space
// silently stops mirroring instead of failing the write it is backing.
func (j *Journal) mirror(data []byte) {
	if j.region == nil {
		return
	}
	if j.regionOff+int64(len(data)) > j.region.Size() {
		return
	}
	if _, err := j.region.WriteAt(data, j.regionOff); err == nil {
		j.regionOff += int64(len(data))
	}
}

// Clear commits the journal: discards every logged pre-image without
// replaying them. Called once a transaction's body has finished and its
// writes are to be kept.
func (j *Journal) Clear() {
	for _, e := range j.entries {
		putSnapshot(e.data)
	}
	j.entries = j.entries[:0]
	j.tail = 0
	j.regionOff = 0
}

// IsEmpty reports whether the journal has any uncommitted entries.
func (j *Journal) IsEmpty() bool {
	return j.tail == 0
}

// Recover replays the journal's entries in reverse order, restoring every
// logged region to its pre-transaction contents, then clears the journal.
// This is the roll-back half of the recovery protocol (spec.md §4.B);
// roll-forward recovery for list operations lives in package plist.
func (j *Journal) Recover() {
	for i := j.tail - 1; i >= 0; i-- {
		e := j.entries[i]
		copy(unsafe.Slice((*byte)(e.addr), len(e.data)), e.data)
	}
	j.Clear()
}

// Var is a logged persistent variable, the Go analogue of
// original_source/src/pmem.rs's PMVar<T>. BorrowMut must be used for any
// write that should survive a crash partway through; BorrowMutNoLogging
// is the deliberate escape hatch used by the optimized list code, which
// logs through a tiny op-log instead of the full journal.
type Var[T any] struct {
	val T
}

// NewVar wraps an initial value in a Var.
func NewVar[T any](v T) *Var[T] {
	return &Var[T]{val: v}
}

// BorrowMut logs the variable's current value to j, then returns a
// pointer the caller may freely mutate.
func (v *Var[T]) BorrowMut(j *Journal) *T {
	j.LogRegion(unsafe.Pointer(&v.val), unsafe.Sizeof(v.val))
	return &v.val
}

// BorrowMutNoLogging returns a mutable pointer without journaling the
// write. Callers take on the responsibility of crash-consistency
// themselves (e.g. via a list-op log recipe).
func (v *Var[T]) BorrowMutNoLogging() *T {
	return &v.val
}

// Borrow returns a read-only pointer to the variable's value.
func (v *Var[T]) Borrow() *T {
	return &v.val
}

// Set logs then assigns newVal.
func (v *Var[T]) Set(newVal T, j *Journal) {
	*v.BorrowMut(j) = newVal
}

// LogValue logs the pre-image of *ptr to j. It is the free-function form
// of Var.BorrowMut for values that live in an Arena rather than behind a
// Var, e.g. a list node's link fields.
func LogValue[T any](j *Journal, ptr *T) {
	j.LogRegion(unsafe.Pointer(ptr), unsafe.Sizeof(*ptr))
}
