//go:build linux || darwin

package hvcore

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// HostMemory is anonymous, page-aligned host memory suitable as guest
// backing. It lives outside the Go heap, so the collector never moves or
// frees it while the guest has it mapped.
type HostMemory struct {
	mu  sync.Mutex
	buf []byte
}

// AllocHost reserves size bytes of zeroed read/write host memory.
// size must be a positive multiple of the host page size.
func AllocHost(size int) (*HostMemory, error) {
	page := unix.Getpagesize()
	if size <= 0 || size%page != 0 {
		return nil, fmt.Errorf("hv: host allocation size %d not a positive multiple of page size %d", size, page)
	}
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("hv: failed to mmap %d bytes: %w", size, err)
	}
	return &HostMemory{buf: buf}, nil
}

// Bytes returns the backing slice, or nil after Free.
func (m *HostMemory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf
}

// Addr returns the host virtual address of the first byte, or 0 after Free.
func (m *HostMemory) Addr() uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&m.buf[0]))
}

func (m *HostMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buf)
}

// Free releases the memory. The caller must unmap every guest range backed
// by it first. Idempotent.
func (m *HostMemory) Free() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buf == nil {
		return nil
	}
	if err := unix.Munmap(m.buf); err != nil {
		return fmt.Errorf("hv: failed to munmap host memory: %w", err)
	}
	m.buf = nil
	return nil
}
