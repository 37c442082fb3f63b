package downloader

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	formatTableRule = regexp.MustCompile(`-{80,}`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	bracketLanguage = regexp.MustCompile(`\[([a-z]{2,3})\]`)
)

// Arte does not answer --dump-json reliably, so the audio streams are read
// from the -F format table.
func planArte(ctx context.Context, worker Worker, req Request) (*Plan, error) {
	args := baseArgs(req)
	table, err := worker.ListFormats(ctx, req.Entry.DownloadURL)
	if err != nil {
		return nil, fmt.Errorf("probe formats: %w", err)
	}

	tracks := arteAudioTracks(table, req.Settings.IncludeAudioTranscription, req.Settings.IncludeClearLanguage)
	switch {
	case len(tracks) > 1:
		tracks = preferLanguage(tracks, req.Settings.PreferredDownloadLanguage)
		args = append(args, "--audio-multistreams", "-f", arteSelector(req, tracks))
	case len(tracks) == 1:
		args = append(args, "-f", arteSelector(req, tracks))
	}

	plan := &Plan{Parts: []Part{{Args: finishArgs(args, req.Settings)}}}
	if len(tracks) > 0 {
		plan.Script = audioTagScript(req.Dir, tracks)
	}
	return plan, nil
}

func arteSelector(req Request, tracks []audioTrack) string {
	selector := formatSelector(req.Settings)
	for _, t := range tracks {
		selector += "+" + t.ID
	}
	return selector
}

// arteAudioTracks parses the audio-only rows of a format table. Regular
// tracks sort before clear-language tracks, which sort before audio
// description; within a rank tracks sort by language and table position.
func arteAudioTracks(table string, withDescription, withClearLanguage bool) []audioTrack {
	sections := formatTableRule.Split(table, -1)
	if len(sections) < 2 || !strings.Contains(table, " audio only ") {
		return nil
	}

	type ranked struct {
		track audioTrack
		key   string
	}
	var found []ranked
	for i, line := range strings.Split(sections[1], "\n") {
		line = whitespaceRun.ReplaceAllString(strings.TrimSpace(line), " ")
		if !strings.Contains(line, "audio only") {
			continue
		}

		rank := "A"
		switch {
		case strings.Contains(line, "_Audiodeskription_"):
			if !withDescription {
				continue
			}
			rank = "Z"
		case strings.Contains(line, "_Klare_Sprache_"):
			if !withClearLanguage {
				continue
			}
			rank = "X"
		}

		var lang string
		if m := bracketLanguage.FindStringSubmatch(line); m != nil {
			lang = m[1]
		}
		id, _, _ := strings.Cut(line, " ")
		found = append(found, ranked{
			track: audioTrack{ID: id, Lang: lang},
			key:   fmt.Sprintf("%s%s%04d", rank, strings.ToUpper(lang), i),
		})
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].key < found[j].key })
	tracks := make([]audioTrack, len(found))
	for i, r := range found {
		tracks[i] = r.track
	}
	return tracks
}
