package downloader

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const maxNameBytes = 255

var (
	illegalChars     = regexp.MustCompile(`[/?<>\\:*|"]`)
	controlChars     = regexp.MustCompile(`[\x{00}-\x{1f}\x{80}-\x{9f}]`)
	onlyDots         = regexp.MustCompile(`^\.+$`)
	windowsReserved  = regexp.MustCompile(`(?i)^(con|prn|aux|nul|com[0-9]|lpt[0-9])(\..*)?$`)
	windowsTrailing  = regexp.MustCompile(`[. ]+$`)
	bracketedID      = regexp.MustCompile(` \[.+\]`)
	guillemetSection = regexp.MustCompile(`«(.+)»`)
)

// SanitizeName makes s safe to use as a single file or directory name on
// all common file systems. The result is NFC normalized and at most 255
// bytes long.
func SanitizeName(s string) string {
	s = norm.NFC.String(s)
	s = illegalChars.ReplaceAllString(s, "")
	s = controlChars.ReplaceAllString(s, "")
	s = onlyDots.ReplaceAllString(s, "")
	s = windowsReserved.ReplaceAllString(s, "")
	s = windowsTrailing.ReplaceAllString(s, "")
	return truncateUTF8(s, maxNameBytes)
}

// DirName returns the download directory name for a title. Titles that
// sanitize to nothing fall back to the API ID, so a download never lands in
// the download root itself.
func DirName(title, apiID string, removeSpaces bool) string {
	if removeSpaces {
		title = strings.ReplaceAll(title, " ", "_")
	}
	if name := SanitizeName(title); name != "" {
		return name
	}
	if name := SanitizeName(apiID); name != "" {
		return name
	}
	return "untitled"
}

// scriptName is the file name of the generated post-processing script.
func scriptName(title string) string {
	return "audio_rename_script_" + strings.ReplaceAll(SanitizeName(title), " ", "_") + ".sh"
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
