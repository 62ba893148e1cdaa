//go:build !linux && !darwin

package hvcore

import "fmt"

// HostMemory is unavailable on this platform.
type HostMemory struct{}

func AllocHost(size int) (*HostMemory, error) {
	return nil, fmt.Errorf("hv: host allocation: %w", ErrUnsupported)
}

func (m *HostMemory) Bytes() []byte { return nil }
func (m *HostMemory) Addr() uintptr { return 0 }
func (m *HostMemory) Len() int { return 0 }
func (m *HostMemory) Free() error { return nil }
