//go:build linux

package server

import "syscall"

// DiskFree returns the free bytes available to unprivileged writers on
// the filesystem containing path.
func DiskFree(path string) (uint64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
