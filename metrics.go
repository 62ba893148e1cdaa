package hvcore

import (
	"sync/atomic"
	"time"
)

// Performance metrics for monitoring hypervisor operations
var (
	// Operation counters
	vmCreateCount     uint64
	vmDestroyCount    uint64
	vcpuCreateCount   uint64
	vcpuDestroyCount  uint64
	mapOperations     uint64
	unmapOperations   uint64
	protectOperations uint64

	// Timing metrics (nanoseconds)
	totalVMCreateTime uint64
	totalMapTime      uint64

	// Error counters
	validationErrors uint64
	resourceErrors   uint64
	affinityErrors   uint64
)

// Metrics provides access to performance metrics
type Metrics struct {
	VMCreated         uint64 `json:"vm_created"`
	VMDestroyed       uint64 `json:"vm_destroyed"`
	VCPUCreated       uint64 `json:"vcpu_created"`
	VCPUDestroyed     uint64 `json:"vcpu_destroyed"`
	MapOperations     uint64 `json:"map_operations"`
	UnmapOperations   uint64 `json:"unmap_operations"`
	ProtectOperations uint64 `json:"protect_operations"`
	AvgVMCreateTimeNs uint64 `json:"avg_vm_create_time_ns"`
	AvgMapTimeNs      uint64 `json:"avg_map_time_ns"`
	ValidationErrors  uint64 `json:"validation_errors"`
	ResourceErrors    uint64 `json:"resource_errors"`
	AffinityErrors    uint64 `json:"affinity_errors"`
}

// GetMetrics returns current performance metrics
func GetMetrics() Metrics {
	vmCreated := atomic.LoadUint64(&vmCreateCount)
	mapOps := atomic.LoadUint64(&mapOperations)

	var avgVMCreate, avgMap uint64
	if vmCreated > 0 {
		avgVMCreate = atomic.LoadUint64(&totalVMCreateTime) / vmCreated
	}
	if mapOps > 0 {
		avgMap = atomic.LoadUint64(&totalMapTime) / mapOps
	}

	return Metrics{
		VMCreated:         vmCreated,
		VMDestroyed:       atomic.LoadUint64(&vmDestroyCount),
		VCPUCreated:       atomic.LoadUint64(&vcpuCreateCount),
		VCPUDestroyed:     atomic.LoadUint64(&vcpuDestroyCount),
		MapOperations:     mapOps,
		UnmapOperations:   atomic.LoadUint64(&unmapOperations),
		ProtectOperations: atomic.LoadUint64(&protectOperations),
		AvgVMCreateTimeNs: avgVMCreate,
		AvgMapTimeNs:      avgMap,
		ValidationErrors:  atomic.LoadUint64(&validationErrors),
		ResourceErrors:    atomic.LoadUint64(&resourceErrors),
		AffinityErrors:    atomic.LoadUint64(&affinityErrors),
	}
}

// ResetMetrics clears all performance metrics
func ResetMetrics() {
	atomic.StoreUint64(&vmCreateCount, 0)
	atomic.StoreUint64(&vmDestroyCount, 0)
	atomic.StoreUint64(&vcpuCreateCount, 0)
	atomic.StoreUint64(&vcpuDestroyCount, 0)
	atomic.StoreUint64(&mapOperations, 0)
	atomic.StoreUint64(&unmapOperations, 0)
	atomic.StoreUint64(&protectOperations, 0)
	atomic.StoreUint64(&totalVMCreateTime, 0)
	atomic.StoreUint64(&totalMapTime, 0)
	atomic.StoreUint64(&validationErrors, 0)
	atomic.StoreUint64(&resourceErrors, 0)
	atomic.StoreUint64(&affinityErrors, 0)
}

// Internal metric recording functions
func recordVMCreate(duration time.Duration) {
	atomic.AddUint64(&vmCreateCount, 1)
	atomic.AddUint64(&totalVMCreateTime, uint64(duration.Nanoseconds()))
}

func recordVMDestroy() {
	atomic.AddUint64(&vmDestroyCount, 1)
}

func recordVCPUCreate() {
	atomic.AddUint64(&vcpuCreateCount, 1)
}

func recordVCPUDestroy() {
	atomic.AddUint64(&vcpuDestroyCount, 1)
}

func recordMapOperation(duration time.Duration) {
	atomic.AddUint64(&mapOperations, 1)
	atomic.AddUint64(&totalMapTime, uint64(duration.Nanoseconds()))
}

func recordUnmapOperation() {
	atomic.AddUint64(&unmapOperations, 1)
}

func recordProtectOperation() {
	atomic.AddUint64(&protectOperations, 1)
}

func recordValidationError() {
	atomic.AddUint64(&validationErrors, 1)
}

func recordResourceError() {
	atomic.AddUint64(&resourceErrors, 1)
}

func recordAffinityError() {
	atomic.AddUint64(&affinityErrors, 1)
}
