//go:build !linux

package source

// dataSize is only available on Linux.
func (*ProcessSource) dataSize() (uint64, bool) {
	return 0, false
}
