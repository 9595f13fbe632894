package nvmfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mappedRegion is a Region backed by a real file mmap'd MAP_SHARED, so
// writes are visible to the underlying file (and, on real NVM-backed
// storage, survive a process restart), the Go analogue of
// ehrlich-b-go-ublk/internal/uring/minimal.go's unix.Mmap usage for its
// submission/completion queues, repurposed here for a flat byte region
// instead of a ring buffer.
type mappedRegion struct {
	file *os.File
	data []byte
}

// OpenMapped opens (creating if necessary) path, truncates it to size,
// and mmaps it MAP_SHARED so writes are reflected in the file.
func OpenMapped(path string, size int64) (Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("nvmfile: open %s: %w", path, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("nvmfile: truncate %s: %w", path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("nvmfile: mmap %s: %w", path, err)
	}

	return &mappedRegion{file: f, data: data}, nil
}

func (m *mappedRegion) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.data)) {
		return 0, ErrOutOfRange
	}
	return copy(p, m.data[off:]), nil
}

func (m *mappedRegion) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.data)) {
		return 0, ErrOutOfRange
	}
	return copy(m.data[off:], p), nil
}

func (m *mappedRegion) Size() int64 { return int64(len(m.data)) }

// Close flushes dirty pages to disk, unmaps the region, and closes the
// backing file.
func (m *mappedRegion) Close() error {
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return err
	}
	if err := unix.Munmap(m.data); err != nil {
		return err
	}
	return m.file.Close()
}
