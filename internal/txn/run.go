package txn

import "github.com/introt/kernel/internal/crashtest"

// TryRun runs f once inside tx: if a cached result for this call site's
// tx id already exists, f is skipped entirely and the cached value is
// returned (spec.md invariant 2's "cached return replays" branch).
// Otherwise f runs, and its result is committed (or, on ErrRetry, the
// journal is cleared without caching so the same id is retried).
// Grounded on original_source/src/transaction.rs's try_run.
func TryRun[T any](tx *Transaction, f func() (T, error)) (T, error) {
	id := tx.nextTxID()
	if tx.cache != nil {
		if data, ok := tx.cache.get(id); ok {
			v, ok := decodeResult[T](data)
			if ok {
				return v, nil
			}
		}
	}

	tx.begin()
	res, err := f()
	switch err {
	case ErrRetry:
		tx.commitNoReplay()
		var zero T
		return zero, ErrRetry
	case ErrExit:
		tx.Journal().Recover()
		tx.commitNoReplay()
		var zero T
		return zero, ErrExit
	default:
		// A crash injected here (armed under the "txn_commit" domain, the
		// point every caching transaction passes through between its body
		// finishing and its result becoming visible to replay) leaves the
		// journal uncleared: the next boot's recovery rolls it back and the
		// caller's next attempt re-runs f from scratch, same as a real
		// power loss mid-commit.
		if crashtest.At("txn_commit", 0) {
			return res, err
		}
		tx.commitRaw(encodeResult(res))
		return res, err
	}
}

// Run repeatedly calls TryRun until the body returns something other
// than ErrRetry, the Go realization of original_source's run(), which
// loops run_sys under the hood until a blocking primitive's retry signal
// is resolved by a wake-up.
func Run[T any](tx *Transaction, f func() (T, error)) (T, error) {
	for {
		v, err := TryRun(tx, f)
		if err == ErrRetry {
			continue
		}
		return v, err
	}
}

// FastRun commits f's result without resetting the journal: callers use
// this for a quick nested operation inside a larger, already-open
// transaction where the outer Run owns the commit point. Grounded on
// original_source's fast_run (commit, but keep journaling state for the
// enclosing call).
func FastRun[T any](tx *Transaction, f func() (T, error)) (T, error) {
	tx.begin()
	res, err := f()
	tx.mu.Lock()
	tx.nesting--
	tx.mu.Unlock()
	return res, err
}

// RunNoReplay runs f exactly once per call, committing its journal
// writes but never consulting or populating the cache. Used for
// operations original_source marks crash-safe-but-not-idempotent, e.g.
// statistics sampling that is harmless to redo.
func RunNoReplay(tx *Transaction, f func() error) error {
	tx.begin()
	err := f()
	tx.commitNoReplay()
	return err
}
