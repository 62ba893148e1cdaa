package hvcore

import (
	"errors"
	"sync"
	"testing"
)

const testPage = 0x1000

// fakeFacility models Hypervisor.framework bookkeeping at page granularity:
// overlapping maps, unmaps of unmapped pages and duplicate VMs are rejected
// the way the framework rejects them.
type fakeFacility struct {
	mu       sync.Mutex
	vmLive   bool
	pages    map[uint64]fakePage
	vcpus    map[uint64]bool
	nextVCPU uint64
	maxVCPUs int
	fail     map[string]uint32
	calls    map[string]int
}

type fakePage struct {
	host  uintptr
	flags uint64
}

func newFakeFacility() *fakeFacility {
	return &fakeFacility{
		pages:    make(map[uint64]fakePage),
		vcpus:    make(map[uint64]bool),
		maxVCPUs: 64,
		fail:     make(map[string]uint32),
		calls:    make(map[string]int),
	}
}

// failNext makes the next call to op return code.
func (f *fakeFacility) failNext(op string, code uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = code
}

func (f *fakeFacility) enter(op string) (uint32, bool) {
	f.calls[op]++
	if code, ok := f.fail[op]; ok {
		delete(f.fail, op)
		return code, true
	}
	return 0, false
}

func (f *fakeFacility) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeFacility) liveVCPUs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.vcpus)
}

func (f *fakeFacility) mappedPages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pages)
}

func (f *fakeFacility) flagsAt(gpa uint64) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[gpa&^(testPage-1)]
	return p.flags, ok
}

func (f *fakeFacility) CreateVM() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code, ok := f.enter("create_vm"); ok {
		return code
	}
	if f.vmLive {
		return HV_BUSY
	}
	f.vmLive = true
	return HV_SUCCESS
}

func (f *fakeFacility) DestroyVM() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code, ok := f.enter("destroy_vm"); ok {
		return code
	}
	if !f.vmLive {
		return HV_BAD_ARGUMENT
	}
	f.vmLive = false
	clear(f.pages)
	clear(f.vcpus)
	return HV_SUCCESS
}

func (f *fakeFacility) CreateVCPU() (uint64, uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code, ok := f.enter("create_vcpu"); ok {
		return 0, code
	}
	if !f.vmLive {
		return 0, HV_BAD_ARGUMENT
	}
	if len(f.vcpus) >= f.maxVCPUs {
		return 0, HV_NO_RESOURCES
	}
	id := f.nextVCPU
	f.nextVCPU++
	f.vcpus[id] = true
	return id, HV_SUCCESS
}

func (f *fakeFacility) DestroyVCPU(id uint64) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code, ok := f.enter("destroy_vcpu"); ok {
		return code
	}
	if !f.vcpus[id] {
		return HV_BAD_ARGUMENT
	}
	delete(f.vcpus, id)
	return HV_SUCCESS
}

func (f *fakeFacility) Map(uva uintptr, gpa, size, flags uint64) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code, ok := f.enter("map"); ok {
		return code
	}
	if !f.vmLive || gpa%testPage != 0 || size%testPage != 0 || size == 0 {
		return HV_BAD_ARGUMENT
	}
	for off := uint64(0); off < size; off += testPage {
		if _, ok := f.pages[gpa+off]; ok {
			return HV_BAD_ARGUMENT
		}
	}
	for off := uint64(0); off < size; off += testPage {
		f.pages[gpa+off] = fakePage{host: uva + uintptr(off), flags: flags}
	}
	return HV_SUCCESS
}

func (f *fakeFacility) Unmap(gpa, size uint64) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code, ok := f.enter("unmap"); ok {
		return code
	}
	for off := uint64(0); off < size; off += testPage {
		if _, ok := f.pages[gpa+off]; !ok {
			return HV_BAD_ARGUMENT
		}
	}
	for off := uint64(0); off < size; off += testPage {
		delete(f.pages, gpa+off)
	}
	return HV_SUCCESS
}

func (f *fakeFacility) Protect(gpa, size, flags uint64) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code, ok := f.enter("protect"); ok {
		return code
	}
	for off := uint64(0); off < size; off += testPage {
		if _, ok := f.pages[gpa+off]; !ok {
			return HV_BAD_ARGUMENT
		}
	}
	for off := uint64(0); off < size; off += testPage {
		p := f.pages[gpa+off]
		p.flags = flags
		f.pages[gpa+off] = p
	}
	return HV_SUCCESS
}

// newTestVM creates a VM over a fresh fake facility with 4K pages and
// destroys it when the test ends.
func newTestVM(t *testing.T) (*VM, *fakeFacility) {
	t.Helper()
	fac := newFakeFacility()
	vm, err := NewVM(WithFacility(fac), WithPageSize(testPage))
	if err != nil {
		t.Fatalf("NewVM() error = %v", err)
	}
	t.Cleanup(func() {
		if err := vm.Close(); err != nil {
			t.Errorf("vm.Close() error = %v", err)
		}
	})
	return vm, fac
}

func wantErrIs(t *testing.T, err error, targets ...error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error matching %v, got nil", targets)
	}
	for _, target := range targets {
		if !errors.Is(err, target) {
			t.Errorf("error %q does not match %q", err, target)
		}
	}
}

// fakeHost is a synthetic page-aligned host address; the fake facility
// never dereferences it.
const fakeHost uintptr = 0x7f00_0000_0000
