package hvcore

import (
	"errors"
	"fmt"
)

// Hypervisor Framework hv_return_t constants for ARM64
const (
	HV_SUCCESS             uint32 = 0x00000000
	HV_ERROR               uint32 = 0xFAE94001
	HV_BUSY                uint32 = 0xFAE94002
	HV_BAD_ARGUMENT        uint32 = 0xFAE94003
	HV_ILLEGAL_GUEST_STATE uint32 = 0xFAE94004
	HV_NO_RESOURCES        uint32 = 0xFAE94005
	HV_NO_DEVICE           uint32 = 0xFAE94006
	HV_DENIED              uint32 = 0xFAE94007
	HV_EXISTS              uint32 = 0xFAE94008
	HV_UNSUPPORTED         uint32 = 0xFAE9400F
)

// Error kinds. Every error returned by this package matches exactly one of
// these with errors.Is.
var (
	ErrNotActive        = errors.New("hv: VM is not active")
	ErrAlreadyActive    = errors.New("hv: VM already active in this process")
	ErrInvalidRange     = errors.New("hv: invalid guest range")
	ErrFacilityRejected = errors.New("hv: hypervisor rejected the request")
	ErrThreadAffinity   = errors.New("hv: vCPU thread affinity violation")

	ErrInvalidPermission = errors.New("hv: invalid permission bits")
	ErrUnsupported       = errors.New("hv: not supported on this platform")
)

// Refinements of ErrInvalidRange carried by RangeError.
var (
	ErrMisaligned  = errors.New("not page-aligned")
	ErrZeroSize    = errors.New("size must be non-zero")
	ErrOverflow    = errors.New("range would overflow")
	ErrOverlap     = errors.New("overlaps an existing guest mapping")
	ErrHostOverlap = errors.New("host memory already mapped into the guest")
	ErrNotMapped   = errors.New("range is not mapped")
)

// RangeError reports a guest range rejected before it reached the facility.
type RangeError struct {
	Op   string
	GPA  uint64
	Size uint64
	Err  error
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("hv: %s 0x%x+0x%x: %v", e.Op, e.GPA, e.Size, e.Err)
}

func (e *RangeError) Unwrap() []error { return []error{ErrInvalidRange, e.Err} }

// HVError wraps an hv_return_t error code.
// Code stores the raw 32-bit hv_return_t value (often 0xFAE940xx).
type HVError struct {
	Code uint32
}

func (e HVError) Error() string {
	if isProductionEnv() {
		return e.sanitizedError()
	}
	return e.detailedError()
}

// Is makes every facility status match ErrFacilityRejected.
func (e HVError) Is(target error) bool { return target == ErrFacilityRejected }

// detailedError provides full error context for development
func (e HVError) detailedError() string {
	switch e.Code {
	case HV_SUCCESS:
		return "hv: success"
	case HV_ERROR:
		return "hv: general error (HV_ERROR) - check system requirements and API usage"
	case HV_BUSY:
		return "hv: resource busy (HV_BUSY) - another operation is in progress"
	case HV_BAD_ARGUMENT:
		return "hv: invalid argument (HV_BAD_ARGUMENT) - check parameter values and alignment"
	case HV_ILLEGAL_GUEST_STATE:
		return "hv: illegal guest state (HV_ILLEGAL_GUEST_STATE) - guest CPU state is invalid"
	case HV_NO_RESOURCES:
		return "hv: insufficient resources (HV_NO_RESOURCES) - system memory or limits exceeded"
	case HV_NO_DEVICE:
		return "hv: device not found (HV_NO_DEVICE) - hardware virtualization unavailable"
	case HV_DENIED:
		return "hv: access denied (HV_DENIED) - missing entitlement 'com.apple.security.hypervisor' or insufficient privileges"
	case HV_EXISTS:
		return "hv: resource exists (HV_EXISTS) - VM or vCPU already created"
	case HV_UNSUPPORTED:
		return "hv: operation unsupported (HV_UNSUPPORTED) - feature not available on this hardware/OS"
	default:
		return fmt.Sprintf("hv: unknown error code 0x%08x - consult Apple Hypervisor.framework documentation", e.Code)
	}
}

// sanitizedError provides minimal error information for production
func (e HVError) sanitizedError() string {
	switch e.Code {
	case HV_SUCCESS:
		return "hv: success"
	case HV_ERROR:
		return "hv: general error"
	case HV_BUSY:
		return "hv: resource busy"
	case HV_BAD_ARGUMENT:
		return "hv: invalid argument"
	case HV_ILLEGAL_GUEST_STATE:
		return "hv: illegal guest state"
	case HV_NO_RESOURCES:
		return "hv: insufficient resources"
	case HV_NO_DEVICE:
		return "hv: device not found"
	case HV_DENIED:
		return "hv: access denied"
	case HV_EXISTS:
		return "hv: resource exists"
	case HV_UNSUPPORTED:
		return "hv: operation unsupported"
	default:
		return "hv: hypervisor error"
	}
}

func hvErr(code uint32) error {
	if code == HV_SUCCESS {
		return nil
	}
	return HVError{Code: code}
}

// FacilityCode returns the raw hv_return_t carried by err, if any.
func FacilityCode(err error) (uint32, bool) {
	var hv HVError
	if errors.As(err, &hv) {
		return hv.Code, true
	}
	return 0, false
}
