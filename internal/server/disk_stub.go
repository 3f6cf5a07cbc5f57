//go:build !linux

package server

// DiskFree reports zero free bytes on platforms without statfs support.
func DiskFree(path string) (uint64, error) {
	return 0, nil
}
