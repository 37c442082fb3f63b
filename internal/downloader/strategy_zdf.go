package downloader

import (
	"context"
	"fmt"
)

// planZDF probes the media description. Separate audio-only streams are
// merged into one file with the preferred language first. Without them the
// best format under the resolution cap names the single audio track.
func planZDF(ctx context.Context, worker Worker, req Request) (*Plan, error) {
	args := baseArgs(req)
	info, err := probeMedia(ctx, worker, args)
	if err != nil {
		return nil, fmt.Errorf("probe media: %w", err)
	}

	var languages []audioTrack
	seen := make(map[string]bool)
	for _, f := range info.Formats {
		if f.VCodec != "none" || seen[f.Language] {
			continue
		}
		seen[f.Language] = true
		languages = append(languages, audioTrack{ID: stripDigits(f.FormatID), Lang: f.Language})
	}

	var tracks []audioTrack
	switch {
	case len(languages) > 1:
		tracks = preferLanguage(languages, req.Settings.PreferredDownloadLanguage)
		selector := formatSelector(req.Settings)
		for _, t := range tracks {
			selector += "+ba[language=" + t.Lang + "]"
		}
		args = append(args, "--audio-multistreams", "-f", selector)
	case len(languages) == 1:
		tracks = languages
	default:
		limit := heightLimit(req.Settings)
		for i := len(info.Formats) - 1; i >= 0; i-- {
			if f := info.Formats[i]; f.Height <= limit {
				tracks = []audioTrack{{ID: f.FormatID, Lang: f.Language}}
				break
			}
		}
	}

	plan := &Plan{Parts: []Part{{Args: finishArgs(args, req.Settings)}}}
	if len(tracks) > 0 {
		plan.Script = audioTagScript(req.Dir, tracks)
	}
	return plan, nil
}
