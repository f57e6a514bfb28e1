//go:build unix || darwin || linux || freebsd || openbsd || netbsd

package hostmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mmapStorage is the physical arena's backing store: a single anonymous,
// shared mapping sized to hold every frame in the zone. This is the
// host-simulation stand-in for the physical memory the engine's
// collaborators operate on; an anonymous mapping rather than a
// file-backed one, since there is no on-disk file here, only frames.
type mmapStorage struct {
	data []byte
}

func newMmapStorage(frameSize, nframes int) (*mmapStorage, error) {
	size := frameSize * nframes
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("hostmem: mmap arena of %d bytes: %w", size, err)
	}
	return &mmapStorage{data: data}, nil
}

// sync flushes the arena's pages to their backing store: after the DPU
// reports a completed copy, this guarantees the CPU's view of the
// written range is coherent.
func (m *mmapStorage) sync(off, length int) error {
	if off < 0 || length < 0 || off+length > len(m.data) {
		return fmt.Errorf("hostmem: sync range [%d,%d) out of bounds (arena size %d)", off, off+length, len(m.data))
	}
	return unix.Msync(m.data[off:off+length], unix.MS_SYNC)
}

func (m *mmapStorage) close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}
