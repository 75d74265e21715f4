package fetch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"openhowl/logger"
)

// Result describes a finished download.
type Result struct {
	Path  string
	Title string
}

// Downloader fetches the audio track behind a remote URL into dir.
type Downloader interface {
	Download(ctx context.Context, url, dir string) (*Result, error)
}

// YtDlp downloads with the yt-dlp executable.
type YtDlp struct {
	Path string
}

// NewYtDlp creates a downloader. An empty path means "yt-dlp" from PATH.
func NewYtDlp(path string) *YtDlp {
	if path == "" {
		path = "yt-dlp"
	}
	return &YtDlp{Path: path}
}

// Download extracts the audio as mp3 into dir. The title printed by yt-dlp
// is returned alongside the file.
func (y *YtDlp) Download(ctx context.Context, url, dir string) (*Result, error) {
	output := filepath.Join(dir, "download.%(ext)s")
	args := []string{
		"-x",
		"--audio-format", "mp3",
		"--no-playlist",
		"--no-simulate",
		"--print", "title",
		"-o", output,
		"--", url,
	}

	cmd := exec.CommandContext(ctx, y.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("[YtDlp] downloading", logger.String("url", url))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("yt-dlp interrupted: %w", ctxErr)
		}
		return nil, fmt.Errorf("yt-dlp execution failed: %w\n%s", err, strings.TrimSpace(stderr.String()))
	}

	path, err := findDownload(dir)
	if err != nil {
		return nil, err
	}
	return &Result{Path: path, Title: firstLine(stdout.String())}, nil
}

// findDownload returns the file yt-dlp left in dir, preferring the mp3.
func findDownload(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read download dir: %w", err)
	}
	var fallback string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".part") {
			continue
		}
		if strings.HasSuffix(e.Name(), ".mp3") {
			return filepath.Join(dir, e.Name()), nil
		}
		if fallback == "" {
			fallback = filepath.Join(dir, e.Name())
		}
	}
	if fallback == "" {
		return "", fmt.Errorf("yt-dlp produced no file")
	}
	return fallback, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
