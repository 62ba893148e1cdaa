package hvcore

import (
	"fmt"
	"runtime"
	"time"
	"unsafe"
)

// isPageAligned returns true if addr is page-aligned (fast path)
func (vm *VM) isPageAligned(addr uint64) bool {
	return addr&vm.pageMask == 0
}

// checkRange validates a guest range before it reaches the facility.
func (vm *VM) checkRange(op string, gpa, size uint64) error {
	var err error
	switch {
	case size == 0:
		err = ErrZeroSize
	case !vm.isPageAligned(gpa), !vm.isPageAligned(size):
		err = ErrMisaligned
	case gpa+size < gpa:
		err = ErrOverflow
	}
	if err != nil {
		recordValidationError()
		return &RangeError{Op: op, GPA: gpa, Size: size, Err: err}
	}
	return nil
}

func checkPerm(perms MemPerm) error {
	if !perms.Valid() {
		recordValidationError()
		return fmt.Errorf("%w 0x%x (valid: 0x%x)", ErrInvalidPermission, uint(perms), uint(MemRWX))
	}
	return nil
}

// Map maps a host memory slice into the guest physical address space.
// The host slice base address, length, and gpa must be page-aligned.
//
// The memory must stay valid until the range is unmapped or the VM is
// destroyed. Go heap memory can be moved or reused once unreferenced; use
// AllocHost or mmap'd memory instead.
func (vm *VM) Map(host []byte, gpa uint64, perms MemPerm) error {
	if len(host) == 0 {
		if err := vm.checkActive(); err != nil {
			return err
		}
		recordValidationError()
		return &RangeError{Op: "map", GPA: gpa, Err: ErrZeroSize}
	}
	defer runtime.KeepAlive(host)
	return vm.MapAddr(uintptr(unsafe.Pointer(&host[0])), gpa, uint64(len(host)), perms)
}

// MapAddr maps size bytes of host memory starting at uva into the guest
// physical address space at gpa with the given permissions. MemNone maps a
// placeholder the guest cannot access.
//
// On failure nothing is mapped.
func (vm *VM) MapAddr(uva uintptr, gpa, size uint64, perms MemPerm) error {
	if err := vm.checkActive(); err != nil {
		return err
	}
	if err := vm.checkRange("map", gpa, size); err != nil {
		return err
	}
	if !vm.isPageAligned(uint64(uva)) {
		recordValidationError()
		return &RangeError{Op: "map", GPA: gpa, Size: size, Err: fmt.Errorf("host address 0x%x %w", uva, ErrMisaligned)}
	}
	if uint64(uva)+size < uint64(uva) {
		recordValidationError()
		return &RangeError{Op: "map", GPA: gpa, Size: size, Err: fmt.Errorf("host range: %w", ErrOverflow)}
	}
	if err := checkPerm(perms); err != nil {
		return err
	}

	id, err := vm.regions.reserve(uva, gpa, size, perms)
	if err != nil {
		recordValidationError()
		return &RangeError{Op: "map", GPA: gpa, Size: size, Err: err}
	}

	start := time.Now()
	ret := vm.fac.Map(uva, gpa, size, perms.flags())
	if err := hvErr(ret); err != nil {
		vm.regions.release(id)
		recordResourceError()
		vm.log.Warn("hv_vm_map rejected", "gpa", gpa, "size", size, "perm", perms, "error", err)
		return fmt.Errorf("failed to map %d bytes at 0x%x with perms %s: %w", size, gpa, perms, err)
	}
	vm.regions.commit(id)

	recordMapOperation(time.Since(start))
	vm.log.Debug("mapped", "gpa", gpa, "size", size, "host", uva, "perm", perms)
	return nil
}

// Unmap removes [gpa, gpa+size) from the guest physical address space.
//
// The range may be part of a larger mapping, whose remainder stays mapped,
// or span several adjacent mappings. Every page in it must be mapped:
// otherwise Unmap fails with ErrNotMapped and changes nothing, so unmapping
// the same range twice fails the second time. Host memory is not touched.
func (vm *VM) Unmap(gpa, size uint64) error {
	if err := vm.checkActive(); err != nil {
		return err
	}
	if err := vm.checkRange("unmap", gpa, size); err != nil {
		return err
	}
	if !vm.regions.covered(gpa, size) {
		recordValidationError()
		return &RangeError{Op: "unmap", GPA: gpa, Size: size, Err: ErrNotMapped}
	}

	ret := vm.fac.Unmap(gpa, size)
	if err := hvErr(ret); err != nil {
		recordResourceError()
		vm.log.Warn("hv_vm_unmap rejected", "gpa", gpa, "size", size, "error", err)
		return fmt.Errorf("failed to unmap region 0x%x+%d: %w", gpa, size, err)
	}
	vm.regions.remove(gpa, size)

	recordUnmapOperation()
	vm.log.Debug("unmapped", "gpa", gpa, "size", size)
	return nil
}

// Protect replaces the guest permissions of [gpa, gpa+size). The mapping
// is neither moved nor resized. The same coverage rule as Unmap applies.
func (vm *VM) Protect(gpa, size uint64, perms MemPerm) error {
	if err := vm.checkActive(); err != nil {
		return err
	}
	if err := vm.checkRange("protect", gpa, size); err != nil {
		return err
	}
	if err := checkPerm(perms); err != nil {
		return err
	}
	if !vm.regions.covered(gpa, size) {
		recordValidationError()
		return &RangeError{Op: "protect", GPA: gpa, Size: size, Err: ErrNotMapped}
	}

	ret := vm.fac.Protect(gpa, size, perms.flags())
	if err := hvErr(ret); err != nil {
		recordResourceError()
		vm.log.Warn("hv_vm_protect rejected", "gpa", gpa, "size", size, "perm", perms, "error", err)
		return fmt.Errorf("failed to protect region 0x%x+%d with perms %s: %w", gpa, size, perms, err)
	}
	vm.regions.protect(gpa, size, perms)

	recordProtectOperation()
	vm.log.Debug("protected", "gpa", gpa, "size", size, "perm", perms)
	return nil
}
