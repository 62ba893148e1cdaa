// Package hvcore manages the guest physical address space and the vCPUs of
// the single hardware-assisted VM a process may own, on top of Apple's
// Hypervisor.framework on Darwin ARM64 systems.
//
// # Requirements
//
//   - macOS with Apple Silicon (ARM64)
//   - Hypervisor entitlement: com.apple.security.hypervisor
//   - Code signing with entitlements
//
// Other platforms build, but NewVM fails unless a Facility is supplied with
// WithFacility.
//
// # Basic Usage
//
// Check if hypervisor is supported:
//
//	supported, err := hvcore.Supported()
//	if err != nil || !supported {
//		log.Fatal("Hypervisor not supported on this system")
//	}
//
// Create the VM (only one VM per process is allowed):
//
//	vm, err := hvcore.NewVM()
//	if err != nil {
//		log.Fatal("Failed to create VM:", err)
//	}
//	defer vm.Close()
//
// Memory management:
//
//	// Host backing must be page-aligned and outlive the mapping
//	mem, err := hvcore.AllocHost(int(vm.PageSize()))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer mem.Free()
//
//	const gpa = 0x4000
//	if err := vm.Map(mem.Bytes(), gpa, hvcore.MemRead|hvcore.MemWrite); err != nil {
//		log.Fatal("Failed to map memory:", err)
//	}
//	// Drop write access without remapping
//	if err := vm.Protect(gpa, vm.PageSize(), hvcore.MemRead); err != nil {
//		log.Fatal(err)
//	}
//	defer vm.Unmap(gpa, vm.PageSize())
//
// vCPUs are bound to the OS thread that creates them:
//
//	err = vm.WithVCPU(func(vcpu *hvcore.VCPU) error {
//		// run the vCPU here, on this goroutine
//		return nil
//	})
//
// # Error Handling
//
// Errors match one of ErrNotActive, ErrAlreadyActive, ErrInvalidRange,
// ErrFacilityRejected or ErrThreadAffinity with errors.Is. Range problems
// detected before calling the hypervisor are *RangeError values; hypervisor
// failures carry the raw hv_return_t in an HVError. Nothing is retried.
//
// # Resource Management
//
// VMs and vCPUs must be explicitly closed. A VM finalizer destroys a leaked
// VM; a vCPU finalizer only reports the leak, since vCPUs can only be
// destroyed on their own thread.
//
// # Concurrency
//
// Map, Unmap and Protect take no VM-wide lock. Two overlapping Map calls
// never both succeed, but callers must order concurrent Unmap and Protect
// calls on overlapping ranges themselves.
//
// # Code Signing and Entitlements
//
// Applications must be code signed with hypervisor entitlement:
//
//	<?xml version="1.0" encoding="UTF-8"?>
//	<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN"
//	    "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
//	<plist version="1.0">
//	<dict>
//	    <key>com.apple.security.hypervisor</key>
//	    <true/>
//	</dict>
//	</plist>
//
// Then sign your binary:
//
//	codesign --sign - --force --entitlements=hypervisor.entitlements ./your-app
package hvcore
