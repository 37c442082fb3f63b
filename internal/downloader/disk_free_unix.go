//go:build !windows

package downloader

import (
	"fmt"
	"syscall"
)

// DiskUsage reports the size and free space of the volume holding path.
func DiskUsage(path string) (DiskSpace, error) {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		return DiskSpace{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	return DiskSpace{
		Total: uint64(fs.Blocks) * uint64(fs.Bsize),
		Free:  uint64(fs.Bavail) * uint64(fs.Bsize),
	}, nil
}
