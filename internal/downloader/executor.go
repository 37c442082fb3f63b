package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// ScheduleTracker is the part of the scheduling engine a download touches.
type ScheduleTracker interface {
	MarkInProgress(ctx context.Context, apiID string) error
	Release(ctx context.Context, apiID string) error
	RecordFailure(ctx context.Context, apiID string) (*domain.ScheduleEntry, error)
}

// ResultRecorder records successful downloads.
type ResultRecorder interface {
	RecordSuccess(ctx context.Context, apiID, title, channel string) error
	RecordRemoval(ctx context.Context, apiID string) error
}

// SettingsProvider returns the current user settings.
type SettingsProvider interface {
	Get(ctx context.Context) (domain.Settings, error)
}

// ProgressSink stores live progress per download.
type ProgressSink interface {
	Set(entry domain.ProgressEntry)
	Delete(apiID string)
}

// ProgressBroadcast starts and stops periodic progress publishing.
type ProgressBroadcast interface {
	Start()
	MaybeStop()
}

// ExecutorConfig holds download execution settings.
type ExecutorConfig struct {
	DownloadPath string
	// MinFreeBytes is the free space the download volume needs before a
	// transfer starts. Zero disables the check.
	MinFreeBytes uint64
}

// ExecutorDeps are the collaborators of an Executor.
type ExecutorDeps struct {
	Worker     Worker
	Strategies *Registry
	Post       *PostProcessor
	Schedule   ScheduleTracker
	Recorder   ResultRecorder
	Settings   SettingsProvider
	Progress   ProgressSink
	Broadcast  ProgressBroadcast
}

// Executor runs scheduled downloads.
type Executor struct {
	cfg ExecutorConfig
	ExecutorDeps
	freeSpace func(path string) (uint64, error)
	logger    *slog.Logger

	wg sync.WaitGroup
}

// NewExecutor creates a new download executor.
func NewExecutor(cfg ExecutorConfig, deps ExecutorDeps, logger *slog.Logger) *Executor {
	if deps.Strategies == nil {
		deps.Strategies = NewRegistry()
	}
	if deps.Post == nil {
		deps.Post = NewPostProcessor(logger)
	}
	return &Executor{
		cfg:          cfg,
		ExecutorDeps: deps,
		freeSpace:    freeDiskSpace,
		logger:       logger,
	}
}

// Launch claims the entry and starts the transfer in the background. The
// entry is marked in progress before Launch returns so that the next
// concurrency check already counts it.
func (e *Executor) Launch(ctx context.Context, entry *domain.ScheduleEntry) error {
	if err := e.Schedule.MarkInProgress(ctx, entry.APIID); err != nil {
		return fmt.Errorf("claim download: %w", err)
	}

	job := *entry
	job.InProgress = true

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.execute(ctx, &job)
	}()
	return nil
}

// Wait blocks until all running downloads returned or ctx is done.
func (e *Executor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) execute(ctx context.Context, entry *domain.ScheduleEntry) {
	logger := e.logger.With("api_id", entry.APIID, "channel", entry.Channel)
	defer func() {
		e.Progress.Delete(entry.APIID)
		e.Broadcast.MaybeStop()
	}()

	err := e.transfer(ctx, entry, logger)
	if err == nil {
		return
	}

	// Shutdown interrupted the transfer; this is not the entry's fault.
	if ctx.Err() != nil {
		logger.Info("download interrupted", "op", "execute", "error", err)
		if relErr := e.Schedule.Release(context.WithoutCancel(ctx), entry.APIID); relErr != nil {
			logger.Error("release interrupted download", "op", "release", "error", relErr)
		}
		return
	}

	logger.Error("download failed", "op", "execute", "error", err)
	if _, ferr := e.Schedule.RecordFailure(ctx, entry.APIID); ferr != nil {
		logger.Error("record failed attempt", "op", "record failure", "error", ferr)
	}
}

func (e *Executor) transfer(ctx context.Context, entry *domain.ScheduleEntry, logger *slog.Logger) error {
	fail := func(op string, err error) error {
		return domain.NewTransferError(entry.APIID, entry.Channel, op, err)
	}

	settings, err := e.Settings.Get(ctx)
	if err != nil {
		return fail("load settings", err)
	}

	if err := e.checkFreeSpace(logger); err != nil {
		return fail("preflight", err)
	}

	dir := filepath.Join(e.cfg.DownloadPath, DirName(entry.Title, entry.APIID, settings.RemoveSpacesFromDirNames))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fail("create dir", err)
	}

	plan, err := e.Strategies.For(entry.Channel).Plan(ctx, e.Worker, Request{
		Entry:    entry,
		Dir:      dir,
		Settings: settings,
	})
	if err != nil {
		return fail("build parameters", err)
	}
	if len(plan.Parts) == 0 {
		return fail("build parameters", domain.ErrNoFormat)
	}
	if plan.Script != "" {
		if err := os.WriteFile(filepath.Join(dir, scriptName(entry.Title)), []byte(plan.Script), 0755); err != nil {
			return fail("write script", err)
		}
	}

	e.Broadcast.Start()

	logger.Info("starting download", "title", entry.Title, "parts", len(plan.Parts))
	for i, part := range plan.Parts {
		partInfo := ""
		if len(plan.Parts) > 1 {
			partInfo = fmt.Sprintf("%d/%d", i+1, len(plan.Parts))
		}
		logger.Debug("download part", "part", partInfo, "args", part.Args)

		onProgress := func(p Progress) {
			e.Progress.Set(progressEntry(entry.APIID, part.File, partInfo, p))
		}
		if err := e.Worker.Download(ctx, part.Args, onProgress); err != nil {
			return fail("download", err)
		}
	}

	if err := e.Recorder.RecordSuccess(ctx, entry.APIID, entry.Title, entry.Channel); err != nil {
		return fail("record success", err)
	}
	if err := e.Recorder.RecordRemoval(ctx, entry.APIID); err != nil {
		return fail("remove from schedule", err)
	}

	if err := e.Post.Process(ctx, dir, entry.Title); err != nil {
		logger.Warn("post-processing incomplete", "op", "post-process", "error", err)
	}
	return nil
}

func (e *Executor) checkFreeSpace(logger *slog.Logger) error {
	if e.cfg.MinFreeBytes == 0 {
		return nil
	}
	if err := os.MkdirAll(e.cfg.DownloadPath, 0755); err != nil {
		return fmt.Errorf("create download path: %w", err)
	}
	free, err := e.freeSpace(e.cfg.DownloadPath)
	if err != nil {
		logger.Warn("free space unknown", "op", "preflight", "error", err)
		return nil
	}
	if free < e.cfg.MinFreeBytes {
		return fmt.Errorf("%w: %s free, %s required", domain.ErrInsufficientSpace,
			humanize.IBytes(free), humanize.IBytes(e.cfg.MinFreeBytes))
	}
	return nil
}

func progressEntry(apiID, file, partInfo string, p Progress) domain.ProgressEntry {
	entry := domain.ProgressEntry{
		APIID:    apiID,
		Percent:  int(p.Percent()),
		File:     file,
		PartInfo: partInfo,
	}
	if p.TotalBytes > 0 {
		entry.Size = humanize.IBytes(uint64(p.TotalBytes))
	}
	if p.BytesPerSecond > 0 {
		entry.Speed = humanize.IBytes(uint64(p.BytesPerSecond)) + "/s"
	}
	if p.ETA > 0 {
		entry.ETA = p.ETA.Round(time.Second).String()
	}
	if entry.File == "" && p.Filename != "" {
		entry.File = filepath.Base(p.Filename)
	}
	return entry
}
