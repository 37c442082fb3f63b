package catalog

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

var ratingPattern = regexp.MustCompile(`(?i)^fsk\s*(\d+)$`)

// convertFeed maps feed items to catalog entries. Items without an identifier
// or a link are skipped.
func convertFeed(channel string, feed *gofeed.Feed, now time.Time) []domain.CatalogEntry {
	items := make([]domain.CatalogEntry, 0, len(feed.Items))
	seen := make(map[string]bool, len(feed.Items))

	for _, item := range feed.Items {
		entry, ok := convertItem(channel, item, now)
		if !ok || seen[entry.APIID] {
			continue
		}
		seen[entry.APIID] = true
		items = append(items, entry)
	}
	return items
}

func convertItem(channel string, item *gofeed.Item, now time.Time) (domain.CatalogEntry, bool) {
	entry := domain.CatalogEntry{
		Channel:     channel,
		APIID:       coalesce(item.GUID, item.Link),
		Title:       strings.TrimSpace(item.Title),
		DownloadURL: item.Link,
		Description: strings.TrimSpace(item.Description),
	}
	if entry.DownloadURL == "" && len(item.Enclosures) > 0 {
		entry.DownloadURL = item.Enclosures[0].URL
	}
	if entry.APIID == "" || entry.DownloadURL == "" {
		return entry, false
	}

	entry.Availability = availability(item, now)

	if r := extensionValue(item, "rating"); r != "" {
		entry.Restrictions = append(entry.Restrictions, normalizeRating(r))
	}
	for _, c := range item.Categories {
		if ratingPattern.MatchString(strings.TrimSpace(c)) {
			entry.Restrictions = append(entry.Restrictions, normalizeRating(c))
		} else if entry.Media.Topic == "" {
			entry.Media.Topic = strings.TrimSpace(c)
		}
	}

	entry.Media.Duration = itemDuration(item)
	entry.Media.Thumbnail = thumbnail(item)
	return entry, true
}

// availability prefers explicit availableFrom/availableUntil elements. A
// publication date in the future announces an item; anything else is
// online now.
func availability(item *gofeed.Item, now time.Time) domain.Availability {
	if t, ok := parseTime(extensionValue(item, "availableFrom")); ok {
		return domain.Availability{Date: t, Kind: domain.AvailableFrom}
	}
	if t, ok := parseTime(extensionValue(item, "availableUntil")); ok {
		return domain.Availability{Date: t, Kind: domain.AvailableUntil}
	}
	if item.PublishedParsed != nil && item.PublishedParsed.After(now) {
		return domain.Availability{Date: *item.PublishedParsed, Kind: domain.AvailableFrom}
	}
	a := domain.Availability{Kind: domain.AvailableUntil}
	if item.PublishedParsed != nil {
		a.Date = *item.PublishedParsed
	}
	return a
}

// extensionValue returns the first extension element with the given name,
// whatever namespace prefix the feed declared for it.
func extensionValue(item *gofeed.Item, name string) string {
	for _, elements := range item.Extensions {
		for _, e := range elements[name] {
			if v := strings.TrimSpace(e.Value); v != "" {
				return v
			}
		}
	}
	return ""
}

func thumbnail(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, e := range item.Extensions["media"]["thumbnail"] {
		if u := e.Attrs["url"]; u != "" {
			return u
		}
	}
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

func itemDuration(item *gofeed.Item) time.Duration {
	raw := extensionValue(item, "duration")
	if raw == "" && item.ITunesExt != nil {
		raw = item.ITunesExt.Duration
	}
	return parseDuration(raw)
}

// parseDuration accepts seconds, MM:SS and HH:MM:SS.
func parseDuration(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	var total int
	for _, part := range strings.Split(raw, ":") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}

func parseTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func normalizeRating(r string) string {
	if m := ratingPattern.FindStringSubmatch(strings.TrimSpace(r)); m != nil {
		return "FSK" + m[1]
	}
	return strings.ToUpper(strings.TrimSpace(r))
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
