package record

// Channel identifies one of the independently controlled metric streams.
type Channel int

const (
	CPU Channel = iota
	Memory
	GPU
)

// Channels lists every channel in processing order.
var Channels = [...]Channel{CPU, Memory, GPU}

// String returns the short channel key, also used as directive name and
// log file suffix.
func (c Channel) String() string {
	switch c {
	case CPU:
		return "cpu"
	case Memory:
		return "mem"
	case GPU:
		return "gpu"
	default:
		return "unknown"
	}
}

// RecordName is the name of the parent record a finalized channel produces.
func (c Channel) RecordName() string {
	switch c {
	case CPU:
		return "cpuLoad"
	case Memory:
		return "memUsage"
	case GPU:
		return "gpuMemUsage"
	default:
		return "unknown"
	}
}

// ParseChannel maps a channel key back onto a Channel.
func ParseChannel(key string) (Channel, bool) {
	for _, c := range Channels {
		if c.String() == key {
			return c, true
		}
	}

	return 0, false
}
