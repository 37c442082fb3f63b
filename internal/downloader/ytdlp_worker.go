package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/iconidentify/mediagrabba/internal/config"
	"github.com/iconidentify/mediagrabba/internal/retry"
)

// YTDLPWorker implements Worker by running yt-dlp.
type YTDLPWorker struct {
	executable       string
	progressInterval time.Duration
	probeRetry       retry.Config
	logger           *slog.Logger
}

// NewYTDLPWorker creates a worker for the configured yt-dlp executable. With
// auto install enabled a missing executable is downloaded into the user cache.
func NewYTDLPWorker(ctx context.Context, cfg config.DownloaderConfig, logger *slog.Logger) (*YTDLPWorker, error) {
	executable := cfg.Executable
	if cfg.AutoInstall {
		resolved, err := ytdlp.Install(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("install yt-dlp: %w", err)
		}
		executable = resolved.Executable
		logger.Info("yt-dlp ready", "executable", executable, "version", resolved.Version)
	}

	interval := cfg.ProgressInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	return &YTDLPWorker{
		executable:       executable,
		progressInterval: interval,
		probeRetry:       retry.DefaultConfig(),
		logger:           logger,
	}, nil
}

func (w *YTDLPWorker) command() *ytdlp.Command {
	cmd := ytdlp.New()
	if w.executable != "" {
		cmd.SetExecutable(w.executable)
	}
	return cmd
}

// Download runs yt-dlp with args and forwards progress updates.
func (w *YTDLPWorker) Download(ctx context.Context, args []string, onProgress func(Progress)) error {
	cmd := w.command()
	if onProgress != nil {
		cmd.ProgressFunc(w.progressInterval, func(update ytdlp.ProgressUpdate) {
			onProgress(progressFromUpdate(&update))
		})
	}

	res, err := cmd.Run(ctx, args...)
	if err != nil {
		if res != nil && res.Stderr != "" {
			w.logger.Debug("yt-dlp stderr", "stderr", res.Stderr)
		}
		return fmt.Errorf("run yt-dlp: %w", err)
	}
	return nil
}

// DumpJSON runs yt-dlp with --dump-json and returns its stdout.
func (w *YTDLPWorker) DumpJSON(ctx context.Context, args []string) ([]byte, error) {
	out, err := w.probe(ctx, append([]string{"--dump-json"}, args...))
	if err != nil {
		return nil, fmt.Errorf("dump media info: %w", err)
	}
	return []byte(out), nil
}

// ListFormats runs yt-dlp with -F and returns the format table.
func (w *YTDLPWorker) ListFormats(ctx context.Context, url string) (string, error) {
	out, err := w.probe(ctx, []string{url, "-F"})
	if err != nil {
		return "", fmt.Errorf("list formats: %w", err)
	}
	return out, nil
}

func (w *YTDLPWorker) probe(ctx context.Context, args []string) (string, error) {
	return retry.WithCheck(ctx, w.probeRetry, func() (string, error) {
		res, err := w.command().Run(ctx, args...)
		if err != nil {
			return "", err
		}
		return res.Stdout, nil
	}, func(err error) bool {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	})
}

func progressFromUpdate(update *ytdlp.ProgressUpdate) Progress {
	p := Progress{
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
		ETA:             update.ETA(),
	}
	if !update.Started.IsZero() {
		if elapsed := time.Since(update.Started); elapsed > 0 {
			p.BytesPerSecond = float64(update.DownloadedBytes) / elapsed.Seconds()
		}
	}
	if update.Info != nil && update.Info.Filename != nil {
		p.Filename = *update.Info.Filename
	}
	return p
}
