package hvcore

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

type vmState int32

const (
	stateActive vmState = iota
	stateDestroyed
)

// VM is the handle of the hypervisor session of this process. Only one VM
// can be active per process; NewVM returns ErrAlreadyActive until the
// active one is destroyed. A destroyed VM cannot be reused.
//
// Map, Unmap and Protect may be called from any goroutine. They do not
// serialize against each other beyond keeping the region table consistent:
// callers must order concurrent calls that touch overlapping guest ranges.
type VM struct {
	fac      Facility
	log      *slog.Logger
	pageSize uint64
	pageMask uint64

	state   atomic.Int32
	closeMu sync.Mutex // serializes Destroy against NewVCPU and the finalizer

	regions regionTable

	vcpuMu sync.Mutex
	vcpus  map[uint64]uint64 // owning thread id -> facility vCPU id
}

var (
	vmMu     sync.Mutex
	vmActive bool
	vmCount  int32 // Atomic counter for debugging
)

// NewVM creates the hypervisor VM for this process.
func NewVM(opts ...Option) (*VM, error) {
	o := newOptions(opts)

	start := time.Now()

	vmMu.Lock()
	defer vmMu.Unlock()

	if vmActive {
		recordValidationError()
		return nil, ErrAlreadyActive
	}

	if err := hvErr(o.facility.CreateVM()); err != nil {
		recordResourceError()
		o.logger.Warn("hv_vm_create rejected", "error", err)
		return nil, fmt.Errorf("failed to create VM: %w", err)
	}

	vm := &VM{
		fac:      o.facility,
		log:      o.logger,
		pageSize: o.pageSize,
		pageMask: o.pageSize - 1,
		vcpus:    make(map[uint64]uint64),
	}
	vm.state.Store(int32(stateActive))
	vmActive = true
	atomic.AddInt32(&vmCount, 1)

	// Set finalizer as safety net in case Close() is not called
	runtime.SetFinalizer(vm, (*VM).finalize)

	recordVMCreate(time.Since(start))
	vm.log.Debug("VM created", "page_size", vm.pageSize)
	return vm, nil
}

// Active reports whether vm can still accept memory and vCPU operations.
func (vm *VM) Active() bool {
	return vm != nil && vmState(vm.state.Load()) == stateActive
}

// PageSize returns the alignment unit of guest and host addresses.
func (vm *VM) PageSize() uint64 { return vm.pageSize }

func (vm *VM) checkActive() error {
	if !vm.Active() {
		return ErrNotActive
	}
	return nil
}

// Destroy tears down the VM: every guest mapping and every vCPU becomes
// invalid. It fails with ErrNotActive if vm was already destroyed.
//
// If the hypervisor rejects the teardown the handle is still retired and
// the error must be treated as fatal for the VM.
func (vm *VM) Destroy() error {
	if vm == nil {
		return ErrNotActive
	}
	vm.closeMu.Lock()
	defer vm.closeMu.Unlock()
	return vm.destroyLocked()
}

func (vm *VM) destroyLocked() error {
	if !vm.state.CompareAndSwap(int32(stateActive), int32(stateDestroyed)) {
		return ErrNotActive
	}

	vmMu.Lock()
	defer vmMu.Unlock()

	ret := vm.fac.DestroyVM()

	vm.orphanVCPUs()
	vm.regions.reset()
	vmActive = false
	atomic.AddInt32(&vmCount, -1)
	runtime.SetFinalizer(vm, nil)

	if err := hvErr(ret); err != nil {
		recordResourceError()
		vm.log.Error("hv_vm_destroy rejected, VM state is undefined", "error", err)
		return fmt.Errorf("failed to destroy VM: %w", err)
	}

	recordVMDestroy()
	vm.log.Debug("VM destroyed")
	return nil
}

// Close destroys the VM. Idempotent.
func (vm *VM) Close() error {
	if vm == nil {
		return nil
	}
	vm.closeMu.Lock()
	defer vm.closeMu.Unlock()
	if !vm.Active() {
		return nil
	}
	return vm.destroyLocked()
}

// finalize is called by the garbage collector as a safety net
func (vm *VM) finalize() {
	// Use non-blocking lock to prevent deadlock in finalizers
	if vm.closeMu.TryLock() {
		defer vm.closeMu.Unlock()
		if vm.Active() {
			vm.log.Warn("VM garbage collected without Close")
			_ = vm.destroyLocked()
		}
	}
}

// Lookup returns the region mapping gpa.
func (vm *VM) Lookup(gpa uint64) (Region, bool) {
	if !vm.Active() {
		return Region{}, false
	}
	return vm.regions.lookup(gpa)
}

// Permissions returns the guest permissions at gpa.
func (vm *VM) Permissions(gpa uint64) (MemPerm, error) {
	if err := vm.checkActive(); err != nil {
		return MemNone, err
	}
	r, ok := vm.regions.lookup(gpa)
	if !ok {
		return MemNone, &RangeError{Op: "lookup", GPA: gpa, Size: 1, Err: ErrNotMapped}
	}
	return r.Perm, nil
}

// Regions returns the current mappings ordered by guest address.
func (vm *VM) Regions() []Region {
	if !vm.Active() {
		return nil
	}
	return vm.regions.snapshot()
}
