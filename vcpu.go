package hvcore

import (
	"fmt"
	"runtime"
	"sync"
)

// VCPU represents a single vCPU associated with a VM.
//
// A vCPU belongs to the OS thread that created it. NewVCPU locks the
// calling goroutine to that thread and Close unlocks it, so the goroutine
// that called NewVCPU must also call Close, typically with defer.
type VCPU struct {
	vm      *VM
	id      uint64
	tid     uint64
	closed  bool
	closeMu sync.Mutex // Protect against concurrent Close() and finalizer
}

// NewVCPU creates a vCPU bound to the calling thread. It fails with
// ErrThreadAffinity if the thread already owns a vCPU of this VM.
func (vm *VM) NewVCPU() (*VCPU, error) {
	if vm == nil {
		return nil, ErrNotActive
	}
	vm.closeMu.Lock()
	defer vm.closeMu.Unlock()
	if err := vm.checkActive(); err != nil {
		return nil, err
	}

	runtime.LockOSThread()
	tid, err := threadID()
	if err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}

	vm.vcpuMu.Lock()
	owned, ok := vm.vcpus[tid]
	vm.vcpuMu.Unlock()
	if ok {
		runtime.UnlockOSThread()
		recordAffinityError()
		return nil, fmt.Errorf("%w: thread %d already owns vCPU %d", ErrThreadAffinity, tid, owned)
	}

	id, ret := vm.fac.CreateVCPU()
	if err := hvErr(ret); err != nil {
		runtime.UnlockOSThread()
		recordResourceError()
		vm.log.Warn("hv_vcpu_create rejected", "thread", tid, "error", err)
		return nil, fmt.Errorf("failed to create vCPU: %w", err)
	}

	vm.vcpuMu.Lock()
	vm.vcpus[tid] = id
	vm.vcpuMu.Unlock()

	c := &VCPU{vm: vm, id: id, tid: tid}

	// Set finalizer as safety net in case Close() is not called
	runtime.SetFinalizer(c, (*VCPU).finalize)

	recordVCPUCreate()
	vm.log.Debug("vCPU created", "vcpu", id, "thread", tid)
	return c, nil
}

// WithVCPU creates a vCPU on the calling thread, passes it to fn and
// releases it on every return path, panics included.
func (vm *VM) WithVCPU(fn func(*VCPU) error) (err error) {
	c, err := vm.NewVCPU()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(c)
}

// ID returns the hypervisor's identifier of the vCPU.
func (c *VCPU) ID() uint64 { return c.id }

// ThreadID returns the id of the OS thread the vCPU is bound to.
func (c *VCPU) ThreadID() uint64 { return c.tid }

// CheckThread returns ErrThreadAffinity unless called on the owning thread.
func (c *VCPU) CheckThread() error {
	tid, err := threadID()
	if err != nil {
		return err
	}
	if tid != c.tid {
		recordAffinityError()
		return fmt.Errorf("%w: vCPU %d belongs to thread %d, called from thread %d", ErrThreadAffinity, c.id, c.tid, tid)
	}
	return nil
}

// Close destroys this vCPU. It must be called on the owning thread.
// Idempotent once it succeeded. After the VM is destroyed Close only
// releases the thread, since the hypervisor already dropped the vCPU.
func (c *VCPU) Close() error {
	if c == nil {
		return nil
	}

	// Lock instance to prevent finalizer race
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return nil // Already closed
	}
	if err := c.CheckThread(); err != nil {
		return err
	}

	vm := c.vm
	vm.closeMu.Lock()
	defer vm.closeMu.Unlock()

	if vm.Active() {
		ret := vm.fac.DestroyVCPU(c.id)
		if err := hvErr(ret); err != nil {
			recordResourceError()
			vm.log.Warn("hv_vcpu_destroy rejected", "vcpu", c.id, "error", err)
			return fmt.Errorf("failed to destroy vCPU: %w", err)
		}
		vm.vcpuMu.Lock()
		delete(vm.vcpus, c.tid)
		vm.vcpuMu.Unlock()
		recordVCPUDestroy()
	}

	c.closed = true
	runtime.UnlockOSThread()

	// Clear finalizer since we've cleaned up properly
	runtime.SetFinalizer(c, nil)

	vm.log.Debug("vCPU destroyed", "vcpu", c.id, "thread", c.tid)
	return nil
}

// finalize is called by the garbage collector as a safety net. It runs on
// the finalizer goroutine, never the owning thread, so it cannot destroy
// the vCPU; it only reports the leak and forgets the thread binding.
func (c *VCPU) finalize() {
	// Use non-blocking lock to prevent deadlock in finalizers
	if c.closeMu.TryLock() {
		defer c.closeMu.Unlock()
		if !c.closed {
			c.closed = true
			c.vm.vcpuMu.Lock()
			if c.vm.vcpus[c.tid] == c.id {
				delete(c.vm.vcpus, c.tid)
			}
			c.vm.vcpuMu.Unlock()
			c.vm.log.Warn("vCPU garbage collected without Close", "vcpu", c.id, "thread", c.tid)
		}
	}
}

// orphanVCPUs forgets every vCPU binding. Called when the VM is destroyed.
func (vm *VM) orphanVCPUs() {
	vm.vcpuMu.Lock()
	defer vm.vcpuMu.Unlock()
	clear(vm.vcpus)
}
