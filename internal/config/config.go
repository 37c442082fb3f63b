package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Progress   ProgressConfig   `yaml:"progress"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Downloader DownloaderConfig `yaml:"downloader"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port           int           `yaml:"port" envconfig:"SERVER_PORT" default:"9848"`
	APIKey         string        `yaml:"api_key" envconfig:"API_KEY"`
	AllowedOrigins []string      `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	ReadTimeout    time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	// WriteTimeout stays zero by default so the event stream is not cut off.
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"0s"`
}

// StorageConfig holds database and download directory configuration.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" envconfig:"DATABASE_PATH" default:"/data/mediagrabba.db"`
	DownloadPath string `yaml:"download_path" envconfig:"DOWNLOAD_PATH" default:"/data/downloads"`
	MinFreeBytes uint64 `yaml:"min_free_bytes" envconfig:"MIN_FREE_BYTES" default:"2147483648"` // 2GB
}

// DispatcherConfig holds the download dispatcher configuration.
type DispatcherConfig struct {
	Interval    time.Duration `yaml:"interval" envconfig:"DISPATCH_INTERVAL" default:"60s"`
	LaunchDelay time.Duration `yaml:"launch_delay" envconfig:"DISPATCH_LAUNCH_DELAY" default:"250ms"`
	// StartJitter bounds the random delay before the first sweep.
	StartJitter time.Duration `yaml:"start_jitter" envconfig:"DISPATCH_START_JITTER" default:"59s"`
}

// ProgressConfig holds the progress broadcaster configuration.
type ProgressConfig struct {
	Tick        time.Duration `yaml:"tick" envconfig:"PROGRESS_TICK" default:"1s"`
	SettleDelay time.Duration `yaml:"settle_delay" envconfig:"PROGRESS_SETTLE_DELAY" default:"1500ms"`
}

// CatalogConfig holds metadata refresh configuration.
type CatalogConfig struct {
	Timezone string `yaml:"timezone" envconfig:"CATALOG_TIMEZONE" default:"Europe/Berlin"`
	// The daily refresh runs at a random minute between RefreshHourFrom:00
	// and RefreshHourTo:54.
	RefreshHourFrom int               `yaml:"refresh_hour_from" envconfig:"CATALOG_REFRESH_HOUR_FROM" default:"2"`
	RefreshHourTo   int               `yaml:"refresh_hour_to" envconfig:"CATALOG_REFRESH_HOUR_TO" default:"4"`
	RefreshTimeout  time.Duration     `yaml:"refresh_timeout" envconfig:"CATALOG_REFRESH_TIMEOUT" default:"15m"`
	RefreshOnStart  bool              `yaml:"refresh_on_start" envconfig:"CATALOG_REFRESH_ON_START" default:"true"`
	CacheTTL        time.Duration     `yaml:"cache_ttl" envconfig:"CATALOG_CACHE_TTL" default:"20h"`
	FetchTimeout    time.Duration     `yaml:"fetch_timeout" envconfig:"CATALOG_FETCH_TIMEOUT" default:"30s"`
	MaxRetries      int               `yaml:"max_retries" envconfig:"CATALOG_MAX_RETRIES" default:"3"`
	RetryDelay      time.Duration     `yaml:"retry_delay" envconfig:"CATALOG_RETRY_DELAY" default:"2s"`
	MaxRetryDelay   time.Duration     `yaml:"max_retry_delay" envconfig:"CATALOG_MAX_RETRY_DELAY" default:"30s"`
	UserAgent       string            `yaml:"user_agent" envconfig:"CATALOG_USER_AGENT" default:"mediagrabba/1.0"`
	Feeds           map[string]string `yaml:"feeds" envconfig:"CATALOG_FEEDS"`
}

// DownloaderConfig holds download worker configuration.
type DownloaderConfig struct {
	Executable       string        `yaml:"executable" envconfig:"YTDLP_PATH" default:"yt-dlp"`
	AutoInstall      bool          `yaml:"auto_install" envconfig:"YTDLP_AUTO_INSTALL" default:"false"`
	ProgressInterval time.Duration `yaml:"progress_interval" envconfig:"YTDLP_PROGRESS_INTERVAL" default:"500ms"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" envconfig:"DOWNLOADER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.Storage.DownloadPath == "" {
		return fmt.Errorf("DOWNLOAD_PATH is required")
	}
	if c.Dispatcher.Interval <= 0 {
		return fmt.Errorf("DISPATCH_INTERVAL must be positive")
	}
	if c.Dispatcher.LaunchDelay < 0 {
		return fmt.Errorf("DISPATCH_LAUNCH_DELAY must not be negative")
	}
	if c.Progress.Tick <= 0 {
		return fmt.Errorf("PROGRESS_TICK must be positive")
	}
	if _, err := c.Catalog.Location(); err != nil {
		return fmt.Errorf("CATALOG_TIMEZONE: %w", err)
	}
	if c.Catalog.RefreshTimeout <= 0 {
		return fmt.Errorf("CATALOG_REFRESH_TIMEOUT must be positive")
	}
	if c.Catalog.RefreshHourFrom < 0 || c.Catalog.RefreshHourTo > 23 || c.Catalog.RefreshHourFrom > c.Catalog.RefreshHourTo {
		return fmt.Errorf("catalog refresh hours must satisfy 0 <= from <= to <= 23")
	}
	if c.Downloader.Executable == "" && !c.Downloader.AutoInstall {
		return fmt.Errorf("YTDLP_PATH is required unless YTDLP_AUTO_INSTALL is set")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Location resolves the configured timezone.
func (c *CatalogConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
