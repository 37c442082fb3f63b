package downloader

// DiskSpace describes the volume holding a path.
type DiskSpace struct {
	Total uint64
	Free  uint64 // available to this process
}

// Used returns the bytes in use on the volume.
func (d DiskSpace) Used() uint64 {
	if d.Free > d.Total {
		return 0
	}
	return d.Total - d.Free
}

// UsedPercent returns the share of the volume in use.
func (d DiskSpace) UsedPercent() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Used()) / float64(d.Total) * 100
}

func freeDiskSpace(path string) (uint64, error) {
	space, err := DiskUsage(path)
	if err != nil {
		return 0, err
	}
	return space.Free, nil
}
