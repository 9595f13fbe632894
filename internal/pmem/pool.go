package pmem

import "sync"

// snapshotPool recycles the small byte slices LogRegion copies a
// pre-image into, avoiding a fresh allocation on every logged write.
// Adapted from the teacher's size-bucketed queue.BufferPool (there
// sized for block-I/O buffers up to 1MB; here sized for the handful of
// bytes a journal entry typically snapshots — a node's link fields, a
// scalar PMVar, a list length).
//
// Buckets are powers of two; anything larger than the biggest bucket
// falls back to a plain allocation, just as the teacher's pool falls
// through to its own largest bucket.
const (
	bucket32  = 32
	bucket64  = 64
	bucket128 = 128
	bucket256 = 256
)

var snapshotPool = struct {
	p32  sync.Pool
	p64  sync.Pool
	p128 sync.Pool
	p256 sync.Pool
}{
	p32:  sync.Pool{New: func() any { b := make([]byte, bucket32); return &b }},
	p64:  sync.Pool{New: func() any { b := make([]byte, bucket64); return &b }},
	p128: sync.Pool{New: func() any { b := make([]byte, bucket128); return &b }},
	p256: sync.Pool{New: func() any { b := make([]byte, bucket256); return &b }},
}

// getSnapshot returns a recycled byte slice of at least size bytes, or a
// fresh allocation if size exceeds the largest bucket.
func getSnapshot(size int) []byte {
	switch {
	case size <= bucket32:
		return (*snapshotPool.p32.Get().(*[]byte))[:size]
	case size <= bucket64:
		return (*snapshotPool.p64.Get().(*[]byte))[:size]
	case size <= bucket128:
		return (*snapshotPool.p128.Get().(*[]byte))[:size]
	case size <= bucket256:
		return (*snapshotPool.p256.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

// putSnapshot returns a slice obtained from getSnapshot to its bucket.
// Slices larger than the biggest bucket are left for the garbage
// collector, matching the teacher's pool behavior for oversized buffers.
func putSnapshot(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case bucket32:
		snapshotPool.p32.Put(&buf)
	case bucket64:
		snapshotPool.p64.Put(&buf)
	case bucket128:
		snapshotPool.p128.Put(&buf)
	case bucket256:
		snapshotPool.p256.Put(&buf)
	}
}
