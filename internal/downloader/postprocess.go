package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// PostProcessor tidies a download directory once all parts are complete.
type PostProcessor struct {
	runScript func(ctx context.Context, path string) ([]byte, error)
	logger    *slog.Logger
}

// NewPostProcessor creates a post-processor that runs generated scripts with
// /bin/sh.
func NewPostProcessor(logger *slog.Logger) *PostProcessor {
	return &PostProcessor{
		runScript: func(ctx context.Context, path string) ([]byte, error) {
			return exec.CommandContext(ctx, "/bin/sh", path).CombinedOutput()
		},
		logger: logger,
	}
}

// Process removes partial files, cleans file names, names subtitles after
// the title and finally runs and removes the post-processing script.
func (p *PostProcessor) Process(ctx context.Context, dir, title string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read download dir: %w", err)
	}

	logger := p.logger.With("dir", dir, "op", "post-process")
	var script string
	var errs []error

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()

		switch filepath.Ext(name) {
		case ".part", ".ytdl":
			logger.Debug("deleting partial download file", "file", name)
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				errs = append(errs, fmt.Errorf("remove partial file: %w", err))
			}
			continue
		}

		if clean := cleanFileName(name); clean != name {
			logger.Debug("renaming file", "from", name, "to", clean)
			if err := os.Rename(filepath.Join(dir, name), filepath.Join(dir, clean)); err != nil {
				logger.Error("rename file", "from", name, "to", clean, "error", err)
			} else {
				name = clean
			}
		}

		switch filepath.Ext(name) {
		case ".sh":
			script = name
		case ".vtt":
			if err := renameSubtitle(dir, name, title); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if script != "" {
		if err := p.execute(ctx, filepath.Join(dir, script), logger); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *PostProcessor) execute(ctx context.Context, path string, logger *slog.Logger) error {
	logger.Debug("running post-processing script", "script", filepath.Base(path))
	out, err := p.runScript(ctx, path)
	if err != nil {
		logger.Error("post-processing script failed", "script", filepath.Base(path), "output", string(out), "error", err)
		err = fmt.Errorf("run script %s: %w", filepath.Base(path), err)
	}
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		return errors.Join(err, fmt.Errorf("remove script: %w", rmErr))
	}
	return err
}

// cleanFileName drops a " [id]" suffix the worker appends and prefers a
// «quoted» name when the file carries one.
func cleanFileName(name string) string {
	ext := filepath.Ext(name)
	if m := guillemetSection.FindStringSubmatch(name); m != nil {
		return m[1] + ext
	}
	if loc := bracketedID.FindStringIndex(name); loc != nil {
		return name[:loc[0]] + name[loc[1]:]
	}
	return name
}

// renameSubtitle names a subtitle file after the title while keeping the
// language and extension parts, e.g. "x.de.vtt" becomes "<title>.de.vtt".
// Titles containing a dot are left alone.
func renameSubtitle(dir, name, title string) error {
	if strings.Contains(title, ".") {
		return nil
	}
	_, rest, ok := strings.Cut(name, ".")
	if !ok {
		return nil
	}
	target := SanitizeName(title) + "." + rest
	if target == name {
		return nil
	}
	if err := os.Rename(filepath.Join(dir, name), filepath.Join(dir, target)); err != nil {
		return fmt.Errorf("rename subtitle: %w", err)
	}
	return nil
}
