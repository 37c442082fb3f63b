package downloader

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// FFmpegVersion returns the first line of `ffmpeg -version`. The generated
// audio tagging and muxing scripts need ffmpeg on PATH.
func FFmpegVersion(ctx context.Context) (string, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("run ffmpeg -version: %w", err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	if line = strings.TrimSpace(line); line == "" {
		return "unknown", nil
	}
	return line, nil
}
