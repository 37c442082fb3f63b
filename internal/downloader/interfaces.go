package downloader

import (
	"context"
	"time"
)

// Worker runs the external download tool.
type Worker interface {
	// Download runs one transfer with the given arguments and reports
	// progress until the process exits.
	Download(ctx context.Context, args []string, onProgress func(Progress)) error

	// DumpJSON returns the media description the tool prints for args.
	DumpJSON(ctx context.Context, args []string) ([]byte, error)

	// ListFormats returns the human-readable format table for url.
	ListFormats(ctx context.Context, url string) (string, error)
}

// Progress is one progress report of a running transfer.
type Progress struct {
	DownloadedBytes int64
	TotalBytes      int64
	// BytesPerSecond is averaged since the transfer started.
	BytesPerSecond float64
	ETA            time.Duration
	Filename       string
}

// Percent returns the completed share in percent, 0 when the size is unknown.
func (p Progress) Percent() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	return float64(p.DownloadedBytes) / float64(p.TotalBytes) * 100
}
