//go:build !darwin || !arm64

package hvcore

import "fmt"

// Supported returns false on platforms without Hypervisor.framework.
func Supported() (bool, error) {
	return false, fmt.Errorf("hypervisor: %w", ErrUnsupported)
}

// unsupportedFacility answers every call with HV_UNSUPPORTED.
type unsupportedFacility struct{}

func defaultFacility() Facility { return unsupportedFacility{} }

func (unsupportedFacility) CreateVM() uint32 { return HV_UNSUPPORTED }
func (unsupportedFacility) DestroyVM() uint32 { return HV_UNSUPPORTED }
func (unsupportedFacility) CreateVCPU() (uint64, uint32) { return 0, HV_UNSUPPORTED }
func (unsupportedFacility) DestroyVCPU(uint64) uint32 { return HV_UNSUPPORTED }
func (unsupportedFacility) Unmap(uint64, uint64) uint32 { return HV_UNSUPPORTED }
func (unsupportedFacility) Protect(_, _, _ uint64) uint32 { return HV_UNSUPPORTED }

func (unsupportedFacility) Map(uintptr, uint64, uint64, uint64) uint32 {
	return HV_UNSUPPORTED
}
