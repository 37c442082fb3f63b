//go:build windows

package downloader

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// DiskUsage reports the size and free space of the volume holding path.
func DiskUsage(path string) (DiskSpace, error) {
	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return DiskSpace{}, fmt.Errorf("encode path %s: %w", path, err)
	}

	var freeBytes, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &freeBytes, &totalBytes, &totalFreeBytes); err != nil {
		return DiskSpace{}, fmt.Errorf("get free space %s: %w", path, err)
	}
	return DiskSpace{Total: totalBytes, Free: freeBytes}, nil
}
