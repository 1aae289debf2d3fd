package gpu

import "github.com/NVIDIA/go-nvml/pkg/nvml"

type nvmlProcess struct {
	pid        uint32
	usedMemory uint64
}

func toProcesses(infos []nvml.ProcessInfo) []nvmlProcess {
	out := make([]nvmlProcess, 0, len(infos))
	for _, info := range infos {
		out = append(out, nvmlProcess{pid: info.Pid, usedMemory: info.UsedGpuMemory})
	}

	return out
}
