package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// AvailabilityKind tells whether an availability date marks the start or the end
// of the window in which an item can be downloaded.
type AvailabilityKind string

const (
	// AvailableFrom marks items that are announced but not yet published.
	AvailableFrom AvailabilityKind = "from"
	// AvailableUntil marks items that are online and expire at the given date.
	AvailableUntil AvailabilityKind = "until"
)

// Content ratings that delay the first download attempt to the evening watershed.
const (
	RatingFSK16 = "FSK16"
	RatingFSK18 = "FSK18"
)

// Availability describes when a catalog item can be downloaded.
type Availability struct {
	Date time.Time        `json:"date"`
	Kind AvailabilityKind `json:"kind"`
}

// MediaInfo holds descriptive metadata shown next to a catalog item.
type MediaInfo struct {
	Duration  time.Duration `json:"duration,omitempty"`
	Thumbnail string        `json:"thumbnail,omitempty"`
	Topic     string        `json:"topic,omitempty"`
}

// CatalogEntry is one downloadable item discovered on a broadcaster library.
type CatalogEntry struct {
	Channel      string       `json:"channel"`
	APIID        string       `json:"api_id"`
	Title        string       `json:"title"`
	DownloadURL  string       `json:"download_url"`
	Availability Availability `json:"availability"`
	Restrictions []string     `json:"restrictions,omitempty"`
	Description  string       `json:"description,omitempty"`
	Media        MediaInfo    `json:"media"`
}

// HasRestriction reports whether the entry carries the given content rating.
func (e *CatalogEntry) HasRestriction(rating string) bool {
	for _, r := range e.Restrictions {
		if strings.EqualFold(r, rating) {
			return true
		}
	}
	return false
}

// ChannelCatalog is the set of items known for one channel after a refresh.
type ChannelCatalog struct {
	Channel   string         `json:"channel"`
	UpdatedAt time.Time      `json:"updated_at"`
	Items     []CatalogEntry `json:"items"`
}

// Find returns the item with the given API ID.
func (c *ChannelCatalog) Find(apiID string) (*CatalogEntry, bool) {
	for i := range c.Items {
		if c.Items[i].APIID == apiID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// ChannelKey converts a channel display name ("ARD alpha") into the key used
// throughout the catalog and schedule ("ard_alpha").
func ChannelKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// EPGCache holds the raw guide data last fetched for a channel. It lets a
// refresh skip the network when the data is still fresh.
type EPGCache struct {
	Channel   string          `json:"channel"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}
