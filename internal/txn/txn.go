// Package txn implements the kernel's transaction runtime: the
// begin/commit/rollback protocol every syscall and kernel-internal
// mutation runs inside, plus the idempotence cache that lets a replayed
// transaction observe its already-committed result instead of re-running
// its body. Grounded on original_source/src/transaction.rs's
// Transaction/TxCache and mansub1029-go-pmem-transaction's nesting-level
// commit protocol.
package txn

import (
	"errors"
	"sync"

	"github.com/introt/kernel/internal/pmem"
)

// ErrRetry is the internal retry signal a blocking primitive raises
// inside a transaction body (original_source's TxRetry). It never
// surfaces past Run.
var ErrRetry = errors.New("txn: retry")

// ErrExit is raised by a transaction body that wants to abort cleanly:
// the journal rolls back, the cache is not updated, and the caller sees
// the returned error (spec.md §7's TxExit).
var ErrExit = errors.New("txn: exit")

// Transaction is the per-domain commit/rollback context a syscall or
// kernel operation runs inside. One exists per task plus one "boot"
// transaction used by the recovery orchestrator before any task runs.
type Transaction struct {
	journal *pmem.Journal
	cache   *Cache
	txID    uint64
	mu      sync.Mutex
	nesting int
}

// New creates a transaction backed by journal and cache.
func New(journal *pmem.Journal, cache *Cache) *Transaction {
	return &Transaction{journal: journal, cache: cache}
}

// Journal returns the transaction's journal, for callers (plist) that log
// directly against it.
func (t *Transaction) Journal() *pmem.Journal { return t.journal }

// Cache returns the transaction's idempotence cache.
func (t *Transaction) Cache() *Cache { return t.cache }

// NestingLevel returns the current nesting depth (0 = not inside a
// transaction). spec.md restricts real nesting to the top level only;
// deeper Run calls flatten onto the outermost transaction.
func (t *Transaction) NestingLevel() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nesting
}

// nextTxID returns the id this call to Run should use to cache/replay
// its result under, valid only at the outermost nesting level.
func (t *Transaction) nextTxID() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.txID
}

// NextTxID exposes nextTxID to callers outside the package (kcall) that
// need to report whether an upcoming call will be served from the
// replay cache, without duplicating Run's begin/commit protocol.
func (t *Transaction) NextTxID() uint64 { return t.nextTxID() }

// rewindTxID resets the id the next call to Run will cache/replay
// under, used by UserTxInfo.ExitIdempotentLoop to restore a loop's
// entry checkpoint.
func (t *Transaction) rewindTxID(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.txID = id
}

func (t *Transaction) begin() {
	t.mu.Lock()
	t.nesting++
	t.mu.Unlock()
}

// commitRaw marks the transaction body's result (already gob-encoded) in
// the cache if outermost, advances the tx id, and clears the journal,
// keeping the writes made during the body.
func (t *Transaction) commitRaw(data []byte) {
	t.mu.Lock()
	t.nesting--
	outermost := t.nesting == 0
	id := t.txID
	if outermost {
		t.txID++
	}
	t.mu.Unlock()
	if outermost {
		if t.cache != nil {
			t.cache.put(id, data)
		}
		t.journal.Clear()
	}
}

// commitNoReplay clears the journal (keeping its writes) without caching
// a result, used for TxRetry: the body's side effects up to the retry
// point are kept, but nothing is recorded for idempotent replay, and the
// tx id is not advanced so the same call is retried under the same id.
func (t *Transaction) commitNoReplay() {
	t.mu.Lock()
	t.nesting--
	outermost := t.nesting == 0
	t.mu.Unlock()
	if outermost {
		t.journal.Clear()
	}
}

// RollBackIfUncommitted replays the journal if it is non-empty, used by
// the recovery orchestrator when a crash is detected mid-transaction.
func (t *Transaction) RollBackIfUncommitted() {
	if !t.journal.IsEmpty() {
		t.journal.Recover()
	}
	t.mu.Lock()
	t.nesting = 0
	t.mu.Unlock()
}
