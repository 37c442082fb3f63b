package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/iconidentify/mediagrabba/internal/api"
	"github.com/iconidentify/mediagrabba/internal/api/handler"
	"github.com/iconidentify/mediagrabba/internal/catalog"
	"github.com/iconidentify/mediagrabba/internal/config"
	"github.com/iconidentify/mediagrabba/internal/downloader"
	"github.com/iconidentify/mediagrabba/internal/progress"
	"github.com/iconidentify/mediagrabba/internal/repository"
	"github.com/iconidentify/mediagrabba/internal/service"
	"github.com/iconidentify/mediagrabba/internal/worker"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

type options struct {
	Config  string `short:"c" long:"config" env:"CONFIG_PATH" description:"Path to YAML config file"`
	Version bool   `short:"v" long:"version" description:"Show version and exit"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if opts.Version {
		fmt.Printf("mediagrabba %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// The level follows the debugLogsEnabled setting at runtime.
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting mediagrabba",
		"version", Version,
		"build_time", BuildTime,
	)

	if err := run(opts.Config, level, logger); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(configPath string, level *slog.LevelVar, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	loc, err := cfg.Catalog.Location()
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	// Ensure storage directories exist
	if err := os.MkdirAll(cfg.Storage.DownloadPath, 0755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}

	db, err := repository.OpenSQLite(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	store := repository.NewSQLiteStore(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Services
	events := service.NewEventService(service.DefaultEventServiceConfig(), logger)
	notifier := service.NewNotifier(store, events, logger)
	recorder := service.NewRecorder(store, notifier, logger)
	scheduleSvc := service.NewScheduleService(store, recorder, notifier, loc, logger)
	librarySvc := service.NewLibraryService(store, notifier, logger)
	settingsSvc := service.NewSettingsService(store.Settings, notifier, level, logger)
	if err := settingsSvc.Apply(ctx); err != nil {
		return err
	}

	feeds := catalog.NewFeedSource(cfg.Catalog, store.EPGCache, logger)
	catalogSvc := service.NewCatalogService(feeds, store, notifier, cfg.Catalog.RefreshTimeout, logger)

	// Downloads
	progressCache := progress.NewCache()
	broadcaster := progress.NewBroadcaster(progress.Config{
		Tick:        cfg.Progress.Tick,
		SettleDelay: cfg.Progress.SettleDelay,
	}, progressCache, events, store.Schedule, logger)

	ytdlpWorker, err := downloader.NewYTDLPWorker(ctx, cfg.Downloader, logger)
	if err != nil {
		return err
	}
	if version, err := downloader.FFmpegVersion(ctx); err != nil {
		logger.Warn("post-processing scripts will fail", "error", err)
	} else {
		logger.Info("ffmpeg ready", "version", version)
	}

	executor := downloader.NewExecutor(downloader.ExecutorConfig{
		DownloadPath: cfg.Storage.DownloadPath,
		MinFreeBytes: cfg.Storage.MinFreeBytes,
	}, downloader.ExecutorDeps{
		Worker:    ytdlpWorker,
		Schedule:  scheduleSvc,
		Recorder:  recorder,
		Settings:  settingsSvc,
		Progress:  progressCache,
		Broadcast: broadcaster,
	}, logger)

	// Entries still flagged from a crashed run would block the cap forever.
	if _, err := scheduleSvc.ResetInProgress(ctx); err != nil {
		return err
	}

	dispatcher := worker.NewDispatcher(worker.Config{
		Interval:    cfg.Dispatcher.Interval,
		LaunchDelay: cfg.Dispatcher.LaunchDelay,
		StartJitter: cfg.Dispatcher.StartJitter,
	}, store.Schedule, settingsSvc, executor, logger)

	refresher := worker.NewRefreshScheduler(worker.RefreshConfig{
		Location: loc,
		HourFrom: cfg.Catalog.RefreshHourFrom,
		HourTo:   cfg.Catalog.RefreshHourTo,
		OnStart:  cfg.Catalog.RefreshOnStart,
	}, catalogSvc, notifier, logger)

	// HTTP
	router := api.NewRouter(api.Handlers{
		Health:   handler.NewHealthHandler(store.Schedule, cfg.Storage.DownloadPath),
		Schedule: handler.NewScheduleHandler(scheduleSvc, dispatcher, logger),
		Library:  handler.NewLibraryHandler(librarySvc, logger),
		Settings: handler.NewSettingsHandler(settingsSvc, logger),
		Catalog:  handler.NewCatalogHandler(catalogSvc, logger),
		Progress: handler.NewProgressHandler(progressCache),
		Events:   handler.NewEventHandler(events, logger),
	}, api.Options{
		APIKey:         cfg.Server.APIKey,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	dispatcher.Start()
	refresher.Start()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		logger.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := refresher.Stop(5 * time.Second); err != nil {
		logger.Error("refresh scheduler shutdown error", "error", err)
	}

	// Stopping the dispatcher cancels running transfers; they release their entries.
	if err := dispatcher.Stop(5 * time.Second); err != nil {
		logger.Error("dispatcher shutdown error", "error", err)
	}
	waitCtx, cancelWait := context.WithTimeout(context.Background(), cfg.Downloader.ShutdownTimeout)
	defer cancelWait()
	if err := executor.Wait(waitCtx); err != nil {
		logger.Error("downloads did not finish", "error", err)
	}
	broadcaster.Stop()

	return nil
}
