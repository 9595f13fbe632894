package txn

import (
	"bytes"
	"encoding/gob"
	"sync"
)

// Cache is the two-tier idempotence cache backing one Transaction: it
// remembers, by transaction id, the gob-encoded result of every
// committed call so a replayed call with a tx id the cache has already
// seen is satisfied from the cache instead of re-running its body
// (spec.md invariant 2). Grounded on original_source/src/transaction.rs's
// TxCache, with its bit-packed (tx_id, cache_ptr, committed) composite
// word collapsed into a mutex-guarded map: Go has no portable single-word
// CAS wide enough for that triple, and a map keyed by id is equivalent
// under the kernel's single-writer-per-domain discipline (spec.md §5).
type Cache struct {
	mu      sync.Mutex
	entries map[uint64][]byte
	nextGet uint64 // ptr: the next tx id this cache will be asked to replay
}

// NewCache creates an empty idempotence cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[uint64][]byte)}
}

func (c *Cache) put(txID uint64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[txID] = data
}

// get returns the cached bytes for txID and whether it was found. A hit
// also retires every entry for an id strictly less than txID, bounding
// the cache's memory the way the reference kernel's ring buffer bounds
// itself by TX_CACHE_SZ.
func (c *Cache) get(txID uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[txID]
	if ok {
		for id := range c.entries {
			if id < txID {
				delete(c.entries, id)
			}
		}
		if txID >= c.nextGet {
			c.nextGet = txID + 1
		}
	}
	return data, ok
}

// Peek reports whether txID has a cached result, without retiring older
// entries the way get does. Used by callers (kcall) that only want to
// know whether a call is about to be replayed, not to consume the cache.
func (c *Cache) Peek(txID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[txID]
	return ok
}

// discardFrom drops every cached entry with a tx id >= checkpoint. Used
// by UserTxInfo.ExitIdempotentLoop to forget results an idempotent
// loop's body cached during an iteration the loop is about to repeat,
// so a crash mid-loop always replays from the loop's start.
func (c *Cache) discardFrom(checkpoint uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.entries {
		if id >= checkpoint {
			delete(c.entries, id)
		}
	}
}

// Reset clears every cached result, used when a task restarts from
// scratch (first boot, or a test harness between scenarios).
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64][]byte)
	c.nextGet = 0
}

func encodeResult[T any](v T) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil
	}
	return buf.Bytes()
}

func decodeResult[T any](data []byte) (T, bool) {
	var v T
	if data == nil {
		return v, false
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}
