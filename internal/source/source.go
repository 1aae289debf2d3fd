// Package source supplies the raw readings the sampler turns into samples.
package source

import (
	"math"

	"codeberg.org/mutker/infologger/internal/errors"
	"codeberg.org/mutker/infologger/internal/gpu"
	"codeberg.org/mutker/infologger/internal/logger"
	"github.com/shirou/gopsutil/v4/process"
)

// Unsupported marks a reading the platform cannot provide.
const Unsupported = -1

// Source is the set of primitive readings a logging session samples.
type Source interface {
	// CPUTime returns the process CPU time in milliseconds, or Unsupported.
	CPUTime() float64
	// HeapSize returns the process data segment size in bytes, or Unsupported.
	HeapSize() int64
	// GPUMemory returns a GPU memory snapshot; Valid is false when no
	// reading could be taken.
	GPUMemory() GPUMemory
}

// GPUMemory is one GPU memory snapshot in bytes.
type GPUMemory struct {
	Valid          bool
	Total          int64
	Used           int64
	Free           int64
	ProcessPrivate int64
	ProcessShared  int64
}

// GPUReader is implemented by *gpu.Monitor.
type GPUReader interface {
	MemoryInfo() (gpu.MemoryInfo, error)
}

// ProcessSource reads CPU and memory figures of one process through
// gopsutil and GPU memory through an optional GPUReader.
type ProcessSource struct {
	proc *process.Process
	gpu  GPUReader
	log  logger.Logger
}

// NewProcessSource binds to process pid. gpuReader may be nil, in which
// case every GPU snapshot is invalid.
func NewProcessSource(pid int32, gpuReader GPUReader, log logger.Logger) (*ProcessSource, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, errors.New().Wrap(ErrProcessNotFound, err)
	}

	return &ProcessSource{proc: proc, gpu: gpuReader, log: log}, nil
}

// Name returns the executable name of the sampled process, or "" if it
// cannot be read.
func (s *ProcessSource) Name() string {
	name, err := s.proc.Name()
	if err != nil {
		s.log.Debug().Err(err).Msg("Process name unavailable")
		return ""
	}

	return name
}

// CPUTime implements Source.
func (s *ProcessSource) CPUTime() float64 {
	times, err := s.proc.Times()
	if err != nil {
		s.log.Debug().Err(err).Msg("CPU time unavailable")
		return Unsupported
	}

	return (times.User + times.System) * 1000
}

// HeapSize implements Source. The figure is the data segment size where the
// platform reports it and the resident set size otherwise.
func (s *ProcessSource) HeapSize() int64 {
	if data, ok := s.dataSize(); ok {
		return clampInt64(data)
	}

	mem, err := s.proc.MemoryInfo()
	if err != nil {
		s.log.Debug().Err(err).Msg("Memory info unavailable")
		return Unsupported
	}

	return clampInt64(mem.RSS)
}

// GPUMemory implements Source. NVML does not attribute shared memory to
// processes, so ProcessShared is always Unsupported on a valid snapshot.
func (s *ProcessSource) GPUMemory() GPUMemory {
	if s.gpu == nil {
		return GPUMemory{}
	}

	info, err := s.gpu.MemoryInfo()
	if err != nil {
		s.log.Debug().Err(err).Msg("GPU memory unavailable")
		return GPUMemory{}
	}

	return GPUMemory{
		Valid:          true,
		Total:          clampInt64(info.Total),
		Used:           clampInt64(info.Used),
		Free:           clampInt64(info.Free),
		ProcessPrivate: gpuBytes(info.ProcessPrivate),
		ProcessShared:  Unsupported,
	}
}

func gpuBytes(v uint64) int64 {
	if v == gpu.NotAvailable {
		return Unsupported
	}

	return clampInt64(v)
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(v)
}
