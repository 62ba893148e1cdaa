package hvcore

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// Region is a mapped range of guest-physical address space.
type Region struct {
	GPA  uint64  `json:"gpa"`
	Size uint64  `json:"size"`
	Host uintptr `json:"host"`
	Perm MemPerm `json:"perm"`

	// origin identifies the Map call the region came from. Pieces of one
	// mapping are coalesced again when their permissions converge.
	origin  uint64
	pending bool
}

// End returns the first guest-physical address past the region.
func (r Region) End() uint64 { return r.GPA + r.Size }

// Contains reports whether gpa falls inside the region.
func (r Region) Contains(gpa uint64) bool { return gpa >= r.GPA && gpa < r.End() }

func (r Region) String() string {
	return fmt.Sprintf("[0x%x-0x%x) %s host=0x%x", r.GPA, r.End(), r.Perm, r.Host)
}

func (r Region) hostEnd() uintptr { return r.Host + uintptr(r.Size) }

// slice returns the part of r covering [gpa, end), which must lie within r.
func (r Region) slice(gpa, end uint64) Region {
	s := r
	s.GPA = gpa
	s.Size = end - gpa
	s.Host = r.Host + uintptr(gpa-r.GPA)
	return s
}

func rangesOverlap(a, aEnd, b, bEnd uint64) bool { return a < bEnd && b < aEnd }

// regionTable tracks the guest-physical mappings of one VM, sorted by GPA
// and non-overlapping. The mutex keeps the slice consistent; it is never
// held across a facility call.
type regionTable struct {
	mu      sync.Mutex
	regions []Region
	nextID  uint64
}

// reserve records [gpa, gpa+size) as a pending mapping so concurrent map
// calls cannot claim the same guest or host range.
func (t *regionTable) reserve(uva uintptr, gpa, size uint64, perm MemPerm) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	end := gpa + size
	hostEnd := uva + uintptr(size)
	for _, r := range t.regions {
		if rangesOverlap(gpa, end, r.GPA, r.End()) {
			return 0, ErrOverlap
		}
		if rangesOverlap(uint64(uva), uint64(hostEnd), uint64(r.Host), uint64(r.hostEnd())) {
			return 0, ErrHostOverlap
		}
	}

	t.nextID++
	r := Region{GPA: gpa, Size: size, Host: uva, Perm: perm, origin: t.nextID, pending: true}
	i, _ := slices.BinarySearchFunc(t.regions, gpa, func(r Region, gpa uint64) int {
		return cmp.Compare(r.GPA, gpa)
	})
	t.regions = slices.Insert(t.regions, i, r)
	return r.origin, nil
}

// commit publishes a reservation made by reserve.
func (t *regionTable) commit(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.regions {
		if t.regions[i].origin == id && t.regions[i].pending {
			t.regions[i].pending = false
			return
		}
	}
}

// release drops a reservation made by reserve.
func (t *regionTable) release(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.regions = slices.DeleteFunc(t.regions, func(r Region) bool {
		return r.pending && r.origin == id
	})
}

// covered reports whether every byte of [gpa, gpa+size) is mapped.
func (t *regionTable) covered(gpa, size uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, end := gpa, gpa+size
	for _, r := range t.regions {
		if r.pending || r.End() <= next {
			continue
		}
		if r.GPA > next {
			return false
		}
		next = r.End()
		if next >= end {
			return true
		}
	}
	return false
}

// remove unmaps [gpa, gpa+size), keeping whatever lies outside it.
func (t *regionTable) remove(gpa, size uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	end := gpa + size
	out := make([]Region, 0, len(t.regions)+1)
	for _, r := range t.regions {
		if r.pending || !rangesOverlap(gpa, end, r.GPA, r.End()) {
			out = append(out, r)
			continue
		}
		if r.GPA < gpa {
			out = append(out, r.slice(r.GPA, gpa))
		}
		if r.End() > end {
			out = append(out, r.slice(end, r.End()))
		}
	}
	t.regions = out
}

// protect sets the permissions of [gpa, gpa+size).
func (t *regionTable) protect(gpa, size uint64, perm MemPerm) {
	t.mu.Lock()
	defer t.mu.Unlock()

	end := gpa + size
	out := make([]Region, 0, len(t.regions)+2)
	for _, r := range t.regions {
		if r.pending || !rangesOverlap(gpa, end, r.GPA, r.End()) {
			out = append(out, r)
			continue
		}
		lo, hi := max(r.GPA, gpa), min(r.End(), end)
		if r.GPA < lo {
			out = append(out, r.slice(r.GPA, lo))
		}
		mid := r.slice(lo, hi)
		mid.Perm = perm
		out = append(out, mid)
		if r.End() > hi {
			out = append(out, r.slice(hi, r.End()))
		}
	}
	t.regions = coalesce(out)
}

// coalesce merges adjacent pieces of the same mapping that share
// permissions.
func coalesce(regions []Region) []Region {
	out := regions[:0]
	for _, r := range regions {
		if n := len(out); n > 0 {
			prev := &out[n-1]
			if !prev.pending && !r.pending && prev.origin == r.origin &&
				prev.Perm == r.Perm && prev.End() == r.GPA && prev.hostEnd() == r.Host {
				prev.Size += r.Size
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func (t *regionTable) lookup(gpa uint64) (Region, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.regions {
		if !r.pending && r.Contains(gpa) {
			return r, true
		}
	}
	return Region{}, false
}

func (t *regionTable) snapshot() []Region {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Region, 0, len(t.regions))
	for _, r := range t.regions {
		if !r.pending {
			out = append(out, r)
		}
	}
	return out
}

func (t *regionTable) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.regions = nil
}
