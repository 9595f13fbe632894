package nvmfile

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestMemRegionReadWrite(t *testing.T) {
	r := NewMemRegion(4096)

	n, err := r.WriteAt([]byte("hello"), 10)
	if err != nil || n != 5 {
		t.Fatalf("unexpected write result: n=%d err=%v", n, err)
	}

	buf := make([]byte, 5)
	n, err = r.ReadAt(buf, 10)
	if err != nil || n != 5 || string(buf) != "hello" {
		t.Fatalf("expected to read back \"hello\", got %q (n=%d err=%v)", buf, n, err)
	}
}

func TestMemRegionOutOfRange(t *testing.T) {
	r := NewMemRegion(16)
	if _, err := r.WriteAt([]byte("x"), 100); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestMemRegionWriteSpansShards(t *testing.T) {
	r := NewMemRegion(ShardSize * 2)
	payload := bytes.Repeat([]byte{0xAB}, ShardSize+10)

	if _, err := r.WriteAt(payload, ShardSize-5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	buf := make([]byte, len(payload))
	if _, err := r.ReadAt(buf, ShardSize-5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(buf, payload) {
		t.Fatal("expected a write spanning two shards to read back intact")
	}
}

func TestOpenMappedPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvm.bin")

	r, err := OpenMapped(path, 4096)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.WriteAt([]byte("persisted"), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("unexpected error closing: %v", err)
	}

	r2, err := OpenMapped(path, 4096)
	if err != nil {
		t.Fatalf("unexpected error reopening: %v", err)
	}
	defer r2.Close()

	buf := make([]byte, len("persisted"))
	if _, err := r2.ReadAt(buf, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(buf) != "persisted" {
		t.Fatalf("expected data to survive reopen, got %q", buf)
	}
}
