package downloader

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// trackTag is the metadata written for one audio stream.
type trackTag struct {
	Lang3 string
	Title string
}

// describeTrack maps a language code and the raw stream identifier to an
// ISO 639-2 code and a German track title.
func describeTrack(code, rawID string) trackTag {
	code = strings.ToLower(strings.TrimSpace(code))
	tag := trackTag{Lang3: "und", Title: code}
	if base, err := language.ParseBase(code); err == nil && code != "" {
		tag.Lang3 = base.ISO3()
		tag.Title = display.German.Languages().Name(base)
	}

	switch {
	case strings.Contains(rawID, "_Audiodeskription_") || strings.Contains(rawID, audioDescriptionMarker):
		tag.Title += " (Audiodeskription)"
	case strings.Contains(rawID, "_Klare_Sprache_"):
		tag.Title += " (klare Sprache)"
	case strings.Contains(rawID, "Originalton") || strings.Contains(rawID, "_VO_") || strings.EqualFold(rawID, "ov"):
		tag.Title += " (Originalton)"
	}
	return tag
}

func audioMetadata(index int, tag trackTag) string {
	return fmt.Sprintf(" -metadata:s:a:%d language=%s -metadata:s:a:%d title=%s",
		index, tag.Lang3, index, shellQuote(tag.Title))
}

// audioTagScript tags the audio streams of every downloaded container and
// converts subtitles to SRT.
func audioTagScript(dir string, tracks []audioTrack) string {
	var meta strings.Builder
	for i, t := range tracks {
		meta.WriteString(audioMetadata(i, describeTrack(t.Lang, t.ID)))
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "cd %s || exit 1\n\n", shellQuote(dir))
	fmt.Fprintf(&b, `for file in *.mkv ; do
  [ -e "$file" ] || continue
  filename="${file%%.*}"
  ffmpeg -y -i "$file" -map 0 -c copy%s "$filename.audio_tagged.mkv"
  mv "$filename.audio_tagged.mkv" "$file"
done

for file in *.mp4 ; do
  [ -e "$file" ] || continue
  filename="${file%%.*}"
  ffmpeg -y -i "$file" -map 0 -c copy%s "$filename.audio_tagged.mkv"
  mv "$filename.audio_tagged.mkv" "$filename.mkv"
  rm "$file"
done
`, meta.String(), meta.String())
	b.WriteString(subtitleConversion)
	return b.String()
}

// muxScript combines separately downloaded parts into one Matroska file
// named after the title.
func muxScript(dir, title string, inputs []muxInput) string {
	cmd := []string{"ffmpeg -y"}
	for _, in := range inputs {
		cmd = append(cmd, "-i "+shellQuote(in.File))
	}
	cmd = append(cmd, "-c:a copy -c:v copy")
	for i, in := range inputs {
		if in.Video {
			cmd = append(cmd, fmt.Sprintf("-map %d:v:0", i))
		}
		code, _, _ := strings.Cut(in.Language, "-")
		if len(code) != 3 {
			code = "und"
		}
		cmd = append(cmd, fmt.Sprintf("-map %d:a:0", i)+audioMetadata(i, describeTrack(code, in.Language))[1:])
	}
	cmd = append(cmd, shellQuote(SanitizeName(title)+".mkv"))

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "cd %s || exit 1\n\n", shellQuote(dir))
	fmt.Fprintf(&b, "# combine video and %d audio sources\n", len(inputs))
	b.WriteString(strings.Join(cmd, " ") + " || exit 1\n")
	b.WriteString(subtitleConversion)
	b.WriteString("rm -f ./*.mp4\n")
	return b.String()
}

const subtitleConversion = `
for file in *.vtt ; do
  [ -e "$file" ] || continue
  ffmpeg -y -i "$file" "${file%.*}.srt"
done

find . -size 0 -delete
`

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
