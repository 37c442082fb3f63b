package downloader

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

const audioDescriptionMarker = "audio-description"

// muxInput is one downloaded file that becomes a stream of the final file.
type muxInput struct {
	File     string
	Language string
	Video    bool
}

// planARD downloads every language as its own file: one video file in the
// default language plus an audio source per further language. The generated
// script muxes them into a single file.
func planARD(ctx context.Context, worker Worker, req Request) (*Plan, error) {
	base := baseArgs(req)
	if rate := req.Settings.RateLimit(); rate != "" {
		base = append(base, "--limit-rate="+rate)
	}

	info, err := probeMedia(ctx, worker, base)
	if err != nil {
		return nil, fmt.Errorf("probe media: %w", err)
	}
	if len(info.Formats) == 0 {
		return nil, fmt.Errorf("probe media: %w", domain.ErrNoFormat)
	}

	limit := heightLimit(req.Settings)
	pick := func(lang string, audioSource bool) *mediaFormat {
		if audioSource {
			for i := range info.Formats {
				if f := &info.Formats[i]; f.Language == lang && f.Height >= 360 {
					return f
				}
			}
		}
		for i := len(info.Formats) - 1; i >= 0; i-- {
			if f := &info.Formats[i]; f.Language == lang && f.Height <= limit {
				return f
			}
		}
		return nil
	}

	var languages, regular, described []string
	seen := make(map[string]bool)
	for i := len(info.Formats) - 1; i >= 0; i-- {
		lang := info.Formats[i].Language
		if seen[lang] {
			continue
		}
		seen[lang] = true
		languages = append(languages, lang)
		if strings.Contains(lang, audioDescriptionMarker) {
			described = append(described, lang)
		} else {
			regular = append(regular, lang)
		}
	}
	if len(regular) == 0 {
		regular = languages
	}

	plan := &Plan{}
	var inputs []muxInput
	add := func(lang string, video bool) error {
		f := pick(lang, !video)
		if f == nil {
			return fmt.Errorf("select format for language %q: %w", lang, domain.ErrNoFormat)
		}
		file := strings.ReplaceAll(f.FormatID+"."+f.Language+".mp4", " ", "_")
		args := append(slices.Clone(base), "-f", f.FormatID, "-o", file)
		if video && req.Settings.IncludeSubtitles {
			args = append(args, "--all-subs")
		}
		plan.Parts = append(plan.Parts, Part{Args: args, File: file})
		inputs = append(inputs, muxInput{File: file, Language: f.Language, Video: video})
		return nil
	}

	if err := add(regular[0], true); err != nil {
		return nil, err
	}
	for _, lang := range regular[1:] {
		if err := add(lang, false); err != nil {
			return nil, err
		}
	}
	if req.Settings.IncludeAudioTranscription && len(regular) < len(languages) {
		for _, lang := range described {
			if err := add(lang, false); err != nil {
				return nil, err
			}
		}
	}

	plan.Script = muxScript(req.Dir, req.Entry.Title, inputs)
	return plan, nil
}
