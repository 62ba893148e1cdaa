package hvcore

import (
	"fmt"
	"strings"
)

// MemPerm represents guest memory permissions.
type MemPerm uint

const (
	MemRead  MemPerm = 1 << 0
	MemWrite MemPerm = 1 << 1
	MemExec  MemPerm = 1 << 2

	// MemNone denies all guest access. Mapping with MemNone reserves the
	// guest range as a placeholder.
	MemNone MemPerm = 0
	MemRWX          = MemRead | MemWrite | MemExec
)

// Union returns the permissions present in p or q.
func (p MemPerm) Union(q MemPerm) MemPerm { return p | q }

// Intersect returns the permissions present in both p and q.
func (p MemPerm) Intersect(q MemPerm) MemPerm { return p & q }

// Without returns p with every permission in q removed.
func (p MemPerm) Without(q MemPerm) MemPerm { return p &^ q }

// Contains reports whether p grants every permission in q.
func (p MemPerm) Contains(q MemPerm) bool { return p&q == q }

// Has reports whether p grants at least one permission in q.
func (p MemPerm) Has(q MemPerm) bool { return p&q != 0 }

func (p MemPerm) IsNone() bool { return p == MemNone }

// Valid reports whether p only carries READ, WRITE and EXEC bits.
func (p MemPerm) Valid() bool { return p&^MemRWX == 0 }

func (p MemPerm) String() string {
	if p == MemNone {
		return "none"
	}
	var sb strings.Builder
	for _, f := range []struct {
		bit MemPerm
		c   byte
	}{{MemRead, 'r'}, {MemWrite, 'w'}, {MemExec, 'x'}} {
		if p&f.bit != 0 {
			sb.WriteByte(f.c)
		} else {
			sb.WriteByte('-')
		}
	}
	if !p.Valid() {
		sb.WriteString("+invalid")
	}
	return sb.String()
}

// flags converts p to the facility's hv_memory_flags_t bit pattern.
func (p MemPerm) flags() uint64 {
	var f uint64
	if p&MemRead != 0 {
		f |= hvMemoryRead
	}
	if p&MemWrite != 0 {
		f |= hvMemoryWrite
	}
	if p&MemExec != 0 {
		f |= hvMemoryExec
	}
	return f
}

// HV_MEMORY_* values from Hypervisor/hv_types.h.
const (
	hvMemoryRead  uint64 = 1 << 0
	hvMemoryWrite uint64 = 1 << 1
	hvMemoryExec  uint64 = 1 << 2
)

// MarshalText renders p in its String form.
func (p MemPerm) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *MemPerm) UnmarshalText(text []byte) error {
	v, err := ParseMemPerm(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParseMemPerm parses "none" or any combination of 'r', 'w', 'x' and '-',
// such as "rw-" or "rx".
func ParseMemPerm(s string) (MemPerm, error) {
	if s == "none" || s == "" {
		return MemNone, nil
	}
	var p MemPerm
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'r', 'R':
			p |= MemRead
		case 'w', 'W':
			p |= MemWrite
		case 'x', 'X':
			p |= MemExec
		case '-':
		default:
			return MemNone, fmt.Errorf("%w: %q", ErrInvalidPermission, s)
		}
	}
	return p, nil
}
