//go:build linux

package source

// dataSize reads VmData from /proc/<pid>/statm.
func (s *ProcessSource) dataSize() (uint64, bool) {
	mem, err := s.proc.MemoryInfoEx()
	if err != nil {
		s.log.Debug().Err(err).Msg("Extended memory info unavailable")
		return 0, false
	}
	if mem.Data == 0 {
		return 0, false
	}

	return mem.Data, true
}
