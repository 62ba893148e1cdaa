package hvcore

// Facility is the raw hypervisor call surface the VM core drives.
//
// Every method returns an hv_return_t status: HV_SUCCESS (0) or a failure
// code. Addresses and sizes are passed through unchanged; flags is an
// hv_memory_flags_t bit pattern. Implementations do no validation of their
// own beyond what the underlying hypervisor performs.
type Facility interface {
	CreateVM() uint32
	DestroyVM() uint32
	CreateVCPU() (id uint64, status uint32)
	DestroyVCPU(id uint64) uint32
	Map(uva uintptr, gpa, size, flags uint64) uint32
	Unmap(gpa, size uint64) uint32
	Protect(gpa, size, flags uint64) uint32
}
