//go:build darwin && arm64

package hvcore

/*
#cgo darwin LDFLAGS: -framework Hypervisor
#include <Hypervisor/hv.h>
#include <Hypervisor/hv_error.h>
#include <Hypervisor/hv_vm.h>
#include <Hypervisor/hv_vm_config.h>
#include <Hypervisor/hv_base.h>
#include <Hypervisor/hv_vcpu.h>
#include <Hypervisor/hv_vcpu_config.h>
#include <os/object.h>

// Helper function to create and configure a VM with proper error handling
static hv_return_t go_hv_vm_create_with_cfg() {
#if __has_include(<Hypervisor/hv_vm_config.h>)
	hv_vm_config_t config = hv_vm_config_create();
	if (!config) {
		return HV_ERROR;
	}

	// Get and set default IPA size
	uint32_t default_ipa_size = 0;
	hv_return_t ret = hv_vm_config_get_default_ipa_size(&default_ipa_size);
	if (ret == HV_SUCCESS) {
		ret = hv_vm_config_set_ipa_size(config, default_ipa_size);
		if (ret != HV_SUCCESS) {
			os_release(config);
			return ret;
		}
	}

	ret = hv_vm_create(config);
	os_release(config);
	return ret;
#else
	// Fallback for older macOS versions without hv_vm_config
	return hv_vm_create(NULL);
#endif
}

static hv_return_t go_hv_vcpu_create(hv_vcpu_t *vcpu) {
	hv_vcpu_exit_t *exit = NULL;
	return hv_vcpu_create(vcpu, &exit, NULL);
}

static hv_return_t go_hv_vm_map(void *uva, uint64_t gpa, uint64_t size, uint64_t flags) {
	return hv_vm_map(uva, (hv_ipa_t)gpa, (size_t)size, (hv_memory_flags_t)flags);
}

static hv_return_t go_hv_vm_unmap(uint64_t gpa, uint64_t size) {
	return hv_vm_unmap((hv_ipa_t)gpa, (size_t)size);
}

static hv_return_t go_hv_vm_protect(uint64_t gpa, uint64_t size, uint64_t flags) {
	return hv_vm_protect((hv_ipa_t)gpa, (size_t)size, (hv_memory_flags_t)flags);
}
*/
import "C"

import "unsafe"

// hvfFacility binds Facility to Hypervisor.framework.
type hvfFacility struct{}

func defaultFacility() Facility { return hvfFacility{} }

func (hvfFacility) CreateVM() uint32 {
	return uint32(C.go_hv_vm_create_with_cfg())
}

func (hvfFacility) DestroyVM() uint32 {
	return uint32(C.hv_vm_destroy())
}

func (hvfFacility) CreateVCPU() (uint64, uint32) {
	var vcpu C.hv_vcpu_t
	ret := C.go_hv_vcpu_create(&vcpu)
	return uint64(vcpu), uint32(ret)
}

func (hvfFacility) DestroyVCPU(id uint64) uint32 {
	return uint32(C.hv_vcpu_destroy(C.hv_vcpu_t(id)))
}

func (hvfFacility) Map(uva uintptr, gpa, size, flags uint64) uint32 {
	// uva points at caller-owned memory outside the Go heap, see AllocHost.
	ptr := *(*unsafe.Pointer)(unsafe.Pointer(&uva))
	return uint32(C.go_hv_vm_map(ptr, C.uint64_t(gpa), C.uint64_t(size), C.uint64_t(flags)))
}

func (hvfFacility) Unmap(gpa, size uint64) uint32 {
	return uint32(C.go_hv_vm_unmap(C.uint64_t(gpa), C.uint64_t(size)))
}

func (hvfFacility) Protect(gpa, size, flags uint64) uint32 {
	return uint32(C.go_hv_vm_protect(C.uint64_t(gpa), C.uint64_t(size), C.uint64_t(flags)))
}
