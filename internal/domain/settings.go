package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ResolutionNone disables the download resolution limit.
const ResolutionNone = "none"

// ChannelSelection toggles catalog discovery for one channel.
type ChannelSelection struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Settings are the user-adjustable options. The JSON names are stable because
// stored settings are decoded on top of the defaults.
type Settings struct {
	MaxDownloads              int                `json:"maxDownloads"`
	MaxDownloadRate           float64            `json:"maxDownloadRate"`
	MaxDownloadRateUnit       string             `json:"maxDownloadRateUnit"`
	RemoveSpacesFromDirNames  bool               `json:"removeSpacesFromDirNames"`
	DownloadResolutionLimit   string             `json:"downloadResolutionLimit"`
	PreferredDownloadLanguage string             `json:"preferedDownloadLanguage"`
	IncludeAudioTranscription bool               `json:"includeAudioTranscription"`
	IncludeClearLanguage      bool               `json:"includeClearLanguage"`
	IncludeSubtitles          bool               `json:"includeSubtitles"`
	DebugLogsEnabled          bool               `json:"debugLogsEnabled"`
	ChannelSelection          []ChannelSelection `json:"channelSelection"`
}

var defaultChannels = []string{
	"ZDF", "ZDFneo", "ZDFtivi", "phoenix", "3sat", "Arte",
	"ARD", "ARD alpha", "Das Erste", "BR", "HR", "MDR", "NDR",
	"rbb", "SR", "SWR", "WDR", "ONE", "funk", "KIKA",
}

var validResolutions = map[string]bool{
	ResolutionNone: true, "2160": true, "1080": true, "720": true, "540": true, "360": true,
}

// DefaultSettings returns the settings used before the user changed anything.
func DefaultSettings() Settings {
	channels := make([]ChannelSelection, 0, len(defaultChannels))
	for _, name := range defaultChannels {
		channels = append(channels, ChannelSelection{Name: name, Active: true})
	}
	return Settings{
		MaxDownloads:              3,
		MaxDownloadRate:           1.5,
		MaxDownloadRateUnit:       "M",
		RemoveSpacesFromDirNames:  false,
		DownloadResolutionLimit:   ResolutionNone,
		PreferredDownloadLanguage: "de",
		IncludeAudioTranscription: true,
		IncludeClearLanguage:      true,
		IncludeSubtitles:          true,
		DebugLogsEnabled:          false,
		ChannelSelection:          channels,
	}
}

// AddMissingDefaultChannels appends default channels that an older stored
// selection does not know about yet. Appended channels are active.
func (s *Settings) AddMissingDefaultChannels() {
	known := make(map[string]bool, len(s.ChannelSelection))
	for _, c := range s.ChannelSelection {
		known[c.Name] = true
	}
	for _, name := range defaultChannels {
		if !known[name] {
			s.ChannelSelection = append(s.ChannelSelection, ChannelSelection{Name: name, Active: true})
		}
	}
}

// ActiveChannels returns the keys of all channels selected for discovery.
func (s *Settings) ActiveChannels() []string {
	var keys []string
	for _, c := range s.ChannelSelection {
		if c.Active {
			keys = append(keys, ChannelKey(c.Name))
		}
	}
	return keys
}

// ConcurrencyCap is the live download cap. Zero or less means unlimited.
func (s *Settings) ConcurrencyCap() int {
	return s.MaxDownloads
}

// ResolutionHeight returns the height limit in pixels, 0 when unlimited.
func (s *Settings) ResolutionHeight() int {
	if s.DownloadResolutionLimit == "" || s.DownloadResolutionLimit == ResolutionNone {
		return 0
	}
	h, err := strconv.Atoi(s.DownloadResolutionLimit)
	if err != nil {
		return 0
	}
	return h
}

// RateLimit renders the download rate limit as understood by the download
// worker, for example "1.5M". An empty string means no limit.
func (s *Settings) RateLimit() string {
	if s.MaxDownloadRate <= 0 {
		return ""
	}
	return strconv.FormatFloat(s.MaxDownloadRate, 'f', -1, 64) + s.MaxDownloadRateUnit
}

// Validate checks the settings a user submitted.
func (s *Settings) Validate() error {
	if !validResolutions[s.DownloadResolutionLimit] {
		return fmt.Errorf("%w: resolution limit %q", ErrInvalidSettings, s.DownloadResolutionLimit)
	}
	if s.MaxDownloadRate < 0 {
		return fmt.Errorf("%w: negative download rate", ErrInvalidSettings)
	}
	switch strings.ToUpper(s.MaxDownloadRateUnit) {
	case "", "K", "M", "G":
	default:
		return fmt.Errorf("%w: rate unit %q", ErrInvalidSettings, s.MaxDownloadRateUnit)
	}
	if strings.TrimSpace(s.PreferredDownloadLanguage) == "" {
		return fmt.Errorf("%w: preferred language is required", ErrInvalidSettings)
	}
	return nil
}
