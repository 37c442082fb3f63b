package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iconidentify/mediagrabba/internal/domain"
	"github.com/iconidentify/mediagrabba/internal/repository"
)

// SettingsService reads and updates the user settings.
type SettingsService struct {
	repo     repository.SettingsRepository
	notifier *Notifier
	level    *slog.LevelVar
	logger   *slog.Logger
}

// NewSettingsService creates a new settings service. level, when not nil,
// follows the debugLogsEnabled setting.
func NewSettingsService(repo repository.SettingsRepository, notifier *Notifier, level *slog.LevelVar, logger *slog.Logger) *SettingsService {
	return &SettingsService{
		repo:     repo,
		notifier: notifier,
		level:    level,
		logger:   logger,
	}
}

// Get returns the current settings.
func (s *SettingsService) Get(ctx context.Context) (domain.Settings, error) {
	settings, err := s.repo.Load(ctx)
	if err != nil {
		return settings, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// Apply syncs process state with the stored settings. It is called once at startup.
func (s *SettingsService) Apply(ctx context.Context) error {
	settings, err := s.Get(ctx)
	if err != nil {
		return err
	}
	s.applyLogLevel(settings)
	return nil
}

// Update validates and stores new settings.
func (s *SettingsService) Update(ctx context.Context, settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	settings.AddMissingDefaultChannels()

	if err := s.repo.Save(ctx, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	s.applyLogLevel(settings)

	s.logger.Info("settings updated",
		"max_downloads", settings.MaxDownloads,
		"resolution_limit", settings.DownloadResolutionLimit,
		"rate_limit", settings.RateLimit(),
	)
	s.notifier.SettingsChanged(ctx)
	return nil
}

func (s *SettingsService) applyLogLevel(settings domain.Settings) {
	if s.level == nil {
		return
	}
	if settings.DebugLogsEnabled {
		s.level.Set(slog.LevelDebug)
	} else {
		s.level.Set(slog.LevelInfo)
	}
}
