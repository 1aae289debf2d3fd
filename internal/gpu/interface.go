package gpu

import "github.com/NVIDIA/go-nvml/pkg/nvml"

// memoryDevice is the subset of nvml.Device the monitor reads.
type memoryDevice interface {
	GetName() (string, nvml.Return)
	GetMemoryInfo() (nvml.Memory, nvml.Return)
	GetComputeRunningProcesses() ([]nvml.ProcessInfo, nvml.Return)
	GetGraphicsRunningProcesses() ([]nvml.ProcessInfo, nvml.Return)
}

// NotAvailable is nvml.VALUE_NOT_AVAILABLE as stored in unsigned fields.
const NotAvailable = ^uint64(0)

// MemoryInfo is one reading of device and per-process GPU memory, in bytes.
type MemoryInfo struct {
	Total uint64
	Used  uint64
	Free  uint64
	// ProcessPrivate is the memory attributed to the watched process, or
	// NotAvailable when NVML cannot measure it.
	ProcessPrivate uint64
}
