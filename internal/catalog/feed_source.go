// Package catalog discovers downloadable items from broadcaster feeds.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/iconidentify/mediagrabba/internal/config"
	"github.com/iconidentify/mediagrabba/internal/domain"
	"github.com/iconidentify/mediagrabba/internal/repository"
	"github.com/iconidentify/mediagrabba/internal/retry"
)

// FeedSource reads one RSS or Atom feed per channel. Parsed items are kept in
// the guide cache so refreshes within the cache TTL skip the network.
type FeedSource struct {
	feeds  map[string]string
	ttl    time.Duration
	retry  retry.Config
	parser *gofeed.Parser
	cache  repository.EPGCacheRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewFeedSource creates a feed source for the configured channel feeds.
func NewFeedSource(cfg config.CatalogConfig, cache repository.EPGCacheRepository, logger *slog.Logger) *FeedSource {
	feeds := make(map[string]string, len(cfg.Feeds))
	for channel, url := range cfg.Feeds {
		feeds[domain.ChannelKey(channel)] = url
	}

	parser := gofeed.NewParser()
	parser.UserAgent = cfg.UserAgent
	parser.Client = &http.Client{Timeout: cfg.FetchTimeout}

	return &FeedSource{
		feeds: feeds,
		ttl:   cfg.CacheTTL,
		retry: retry.Config{
			MaxAttempts:   cfg.MaxRetries,
			InitialDelay:  cfg.RetryDelay,
			MaxDelay:      cfg.MaxRetryDelay,
			BackoffFactor: 2.0,
		},
		parser: parser,
		cache:  cache,
		now:    time.Now,
		logger: logger,
	}
}

// Channels returns the channel keys a feed is configured for.
func (s *FeedSource) Channels() []string {
	keys := make([]string, 0, len(s.feeds))
	for k := range s.feeds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fetch returns the catalog of every requested channel that has a feed.
// Channels that fail are reported in the joined error; the others are
// still returned.
func (s *FeedSource) Fetch(ctx context.Context, channels []string) ([]domain.ChannelCatalog, error) {
	var (
		catalogs []domain.ChannelCatalog
		errs     []error
	)

	for _, channel := range channels {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		channel = domain.ChannelKey(channel)
		url, ok := s.feeds[channel]
		if !ok {
			s.logger.Debug("no feed configured", "channel", channel)
			continue
		}

		items, err := s.channelItems(ctx, channel, url)
		if err != nil {
			s.logger.Error("fetch channel feed", "channel", channel, "op", "fetch", "error", err)
			errs = append(errs, fmt.Errorf("channel %s: %w", channel, err))
			continue
		}

		catalogs = append(catalogs, domain.ChannelCatalog{
			Channel:   channel,
			UpdatedAt: s.now(),
			Items:     items,
		})
	}

	return catalogs, errors.Join(errs...)
}

func (s *FeedSource) channelItems(ctx context.Context, channel, url string) ([]domain.CatalogEntry, error) {
	if items, ok := s.cached(ctx, channel); ok {
		s.logger.Debug("using cached guide data", "channel", channel, "items", len(items))
		return items, nil
	}

	feed, err := retry.WithCheck(ctx, s.retry, func() (*gofeed.Feed, error) {
		return s.parser.ParseURLWithContext(url, ctx)
	}, retryable)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}

	items := convertFeed(channel, feed, s.now())
	if data, err := json.Marshal(items); err == nil && len(items) > 0 {
		if err := s.cache.Put(ctx, channel, data); err != nil {
			s.logger.Warn("cache guide data", "channel", channel, "op", "cache", "error", err)
		}
	}

	s.logger.Info("fetched channel feed", "channel", channel, "items", len(items))
	return items, nil
}

func (s *FeedSource) cached(ctx context.Context, channel string) ([]domain.CatalogEntry, bool) {
	if s.ttl <= 0 {
		return nil, false
	}
	entry, err := s.cache.Get(ctx, channel)
	if err != nil || s.now().Sub(entry.UpdatedAt) >= s.ttl {
		return nil, false
	}
	var items []domain.CatalogEntry
	if err := json.Unmarshal(entry.Data, &items); err != nil {
		s.logger.Warn("discard unreadable guide cache", "channel", channel, "error", err)
		return nil, false
	}
	return items, true
}

// retryable reports whether a feed error may succeed on a later attempt.
// Client errors other than 429 are permanent.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	return true
}
