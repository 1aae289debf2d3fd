// Package gpu reads GPU memory usage through NVML.
package gpu

import (
	"sync"

	"codeberg.org/mutker/infologger/internal/errors"
	"codeberg.org/mutker/infologger/internal/logger"
)

// Monitor reads memory statistics of one NVIDIA device for one process.
type Monitor struct {
	lib    nvmlController
	device memoryDevice
	pid    uint32
	log    logger.Logger
	mu     sync.Mutex
}

// New initializes NVML and binds the device at index for process pid.
func New(index int, pid int, log logger.Logger) (*Monitor, error) {
	return newMonitor(&nvmlWrapper{}, index, pid, log)
}

func newMonitor(lib nvmlController, index int, pid int, log logger.Logger) (*Monitor, error) {
	errFactory := errors.New()

	if index < 0 || pid < 0 {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, "negative device index or pid")
	}

	if err := lib.Initialize(); err != nil {
		return nil, err
	}

	count, err := lib.GetDeviceCount()
	if err != nil {
		_ = lib.Shutdown()
		return nil, err
	}
	if index >= count {
		_ = lib.Shutdown()
		return nil, errFactory.WithData(ErrDeviceNotFound, index)
	}

	device, err := lib.GetDevice(index)
	if err != nil {
		_ = lib.Shutdown()
		return nil, err
	}

	if name, ret := device.GetName(); IsNVMLSuccess(ret) {
		log.Info().Str("device", name).Int("index", index).Msg("Detected GPU")
	}

	return &Monitor{
		lib:    lib,
		device: device,
		pid:    uint32(pid), //nolint:gosec // G115: checked non-negative above
		log:    log,
	}, nil
}

// MemoryInfo returns current device memory and the watched process' share.
func (m *Monitor) MemoryInfo() (MemoryInfo, error) {
	errFactory := errors.New()
	m.mu.Lock()
	defer m.mu.Unlock()

	mem, ret := m.device.GetMemoryInfo()
	if !IsNVMLSuccess(ret) {
		return MemoryInfo{}, errFactory.Wrap(ErrMemoryInfoFailed, newNVMLError(ret))
	}

	info := MemoryInfo{
		Total: mem.Total,
		Used:  mem.Used,
		Free:  mem.Free,
	}

	private, err := m.processMemory()
	if err != nil {
		return MemoryInfo{}, err
	}
	info.ProcessPrivate = private

	return info, nil
}

// processMemory returns the memory the watched process holds. Contexts
// within one list are summed; a process listed in both the compute and the
// graphics list is counted once, using the larger of the two sums. Any
// entry NVML cannot measure makes the result NotAvailable.
func (m *Monitor) processMemory() (uint64, error) {
	errFactory := errors.New()

	compute, ret := m.device.GetComputeRunningProcesses()
	if !IsNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrProcessInfoFailed, newNVMLError(ret))
	}

	graphics, ret := m.device.GetGraphicsRunningProcesses()
	if !IsNVMLSuccess(ret) {
		m.log.Debug().Msgf("Failed to list graphics processes: %v", newNVMLError(ret))
	}

	var total uint64
	for _, list := range [][]nvmlProcess{toProcesses(compute), toProcesses(graphics)} {
		var sum uint64
		for _, p := range list {
			if p.pid != m.pid {
				continue
			}
			if p.usedMemory == NotAvailable {
				return NotAvailable, nil
			}
			sum += p.usedMemory
		}
		total = max(total, sum)
	}

	return total, nil
}

// Shutdown releases NVML.
func (m *Monitor) Shutdown() error {
	return m.lib.Shutdown()
}
