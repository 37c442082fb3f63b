package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// Request describes one download that needs worker parameters.
type Request struct {
	Entry    *domain.ScheduleEntry
	Dir      string
	Settings domain.Settings
}

// Part is a single worker run.
type Part struct {
	Args []string
	// File is the output file name when the part names its output.
	File string
}

// Plan is the outcome of parameter building. Most downloads have a single
// part; some channels deliver every language as a separate file.
type Plan struct {
	Parts []Part
	// Script is the content of a shell script that is run by the
	// post-processor once all parts are downloaded. Empty when not needed.
	Script string
}

// Strategy builds the worker parameters for a channel.
type Strategy interface {
	Plan(ctx context.Context, worker Worker, req Request) (*Plan, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(ctx context.Context, worker Worker, req Request) (*Plan, error)

// Plan calls f.
func (f StrategyFunc) Plan(ctx context.Context, worker Worker, req Request) (*Plan, error) {
	return f(ctx, worker, req)
}

// Registry maps channel keys to strategies.
type Registry struct {
	byChannel map[string]Strategy
	fallback  Strategy
}

var ardChannels = []string{
	"ard", "das_erste", "ard_alpha", "br", "hr", "sr",
	"mdr", "wdr", "ndr", "swr", "rbb", "one", "funk", "kika",
}

// NewRegistry returns a registry with the built-in channel strategies.
func NewRegistry() *Registry {
	r := &Registry{
		byChannel: make(map[string]Strategy),
		fallback:  StrategyFunc(planDefault),
	}
	r.Register(StrategyFunc(planZDF), "zdf", "zdfneo", "3sat")
	r.Register(StrategyFunc(planArte), "arte")
	r.Register(StrategyFunc(planARD), ardChannels...)
	return r
}

// Register binds a strategy to one or more channels.
func (r *Registry) Register(strategy Strategy, channels ...string) {
	for _, ch := range channels {
		r.byChannel[domain.ChannelKey(ch)] = strategy
	}
}

// For returns the strategy for a channel, falling back to the default one.
func (r *Registry) For(channel string) Strategy {
	if s, ok := r.byChannel[domain.ChannelKey(channel)]; ok {
		return s
	}
	return r.fallback
}

func planDefault(_ context.Context, _ Worker, req Request) (*Plan, error) {
	return &Plan{Parts: []Part{{Args: finishArgs(baseArgs(req), req.Settings)}}}, nil
}

func baseArgs(req Request) []string {
	return []string{req.Entry.DownloadURL, "-P", req.Dir}
}

// heightLimit is the resolution cap in pixels. "none" maps to a height no
// stream reaches.
func heightLimit(s domain.Settings) int {
	if h := s.ResolutionHeight(); h > 0 {
		return h
	}
	return 9999
}

func formatSelector(s domain.Settings) string {
	return fmt.Sprintf("best*[height<=%d]", heightLimit(s))
}

// finishArgs appends the options every single-file download shares.
func finishArgs(args []string, s domain.Settings) []string {
	if !slices.Contains(args, "-f") && s.ResolutionHeight() > 0 {
		args = append(args, "-f", formatSelector(s))
	}
	if rate := s.RateLimit(); rate != "" {
		args = append(args, "--limit-rate="+rate)
	}
	if s.IncludeSubtitles {
		args = append(args, "--all-subs")
	}
	return args
}

// mediaInfo is the part of the worker's JSON media description the
// strategies look at.
type mediaInfo struct {
	Formats []mediaFormat `json:"formats"`
}

type mediaFormat struct {
	FormatID string `json:"format_id"`
	VCodec   string `json:"vcodec"`
	Language string `json:"language"`
	Height   int    `json:"height"`
}

func probeMedia(ctx context.Context, worker Worker, args []string) (*mediaInfo, error) {
	raw, err := worker.DumpJSON(ctx, args)
	if err != nil {
		return nil, err
	}
	var info mediaInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode media info: %w", err)
	}
	return &info, nil
}

// audioTrack is an audio stream selected for the final file.
type audioTrack struct {
	ID   string
	Lang string
}

// preferLanguage moves the tracks in the preferred language to the front
// and keeps the relative order otherwise.
func preferLanguage(tracks []audioTrack, preferred string) []audioTrack {
	if preferred == "" {
		return tracks
	}
	ordered := make([]audioTrack, 0, len(tracks))
	for _, t := range tracks {
		if t.Lang == preferred {
			ordered = append(ordered, t)
		}
	}
	for _, t := range tracks {
		if t.Lang != preferred {
			ordered = append(ordered, t)
		}
	}
	return ordered
}

func stripDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return -1
		}
		return r
	}, s)
}
