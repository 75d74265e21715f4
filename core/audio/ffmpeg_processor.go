package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"openhowl/logger"
)

// FFmpegProcessor implements Codec by shelling out to ffmpeg and ffprobe.
type FFmpegProcessor struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
func NewFFmpegProcessor(ffmpegPath, ffprobePath string) *FFmpegProcessor {
	if ffprobePath == "" {
		ffprobePath = strings.Replace(ffmpegPath, "ffmpeg", "ffprobe", 1)
	}
	return &FFmpegProcessor{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

func (p *FFmpegProcessor) run(ctx context.Context, bin string, args []string, stdin io.Reader) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var out, stderr bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s interrupted: %w", filepath.Base(bin), ctxErr)
		}
		return nil, fmt.Errorf("%s execution failed: %w\n%s", filepath.Base(bin), err, strings.TrimSpace(stderr.String()))
	}
	return out.Bytes(), nil
}

func canonicalArgs() []string {
	return []string{
		"-ac", strconv.Itoa(Channels),
		"-ar", strconv.Itoa(SampleRate),
	}
}

// Normalize transcodes inputFile to mono 44.1 kHz 128k mp3. A partially
// written outputFile is removed on failure.
func (p *FFmpegProcessor) Normalize(ctx context.Context, inputFile, outputFile string) error {
	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", inputFile, "-vn"}
	args = append(args, canonicalArgs()...)
	args = append(args, "-c:a", "libmp3lame", "-b:a", Bitrate, "-f", "mp3", outputFile)

	logger.Debug("[FFmpeg] normalize", logger.String("input", inputFile), logger.String("output", outputFile))
	if _, err := p.run(ctx, p.ffmpegPath, args, nil); err != nil {
		os.Remove(outputFile)
		return fmt.Errorf("normalize %s: %w", filepath.Base(inputFile), err)
	}
	return nil
}

// Decode pipes r through ffmpeg and returns raw s16le samples.
func (p *FFmpegProcessor) Decode(ctx context.Context, r io.Reader) (*Buffer, error) {
	args := []string{"-hide_banner", "-loglevel", "error", "-i", "pipe:0", "-vn"}
	args = append(args, canonicalArgs()...)
	args = append(args, "-f", "s16le", "-acodec", "pcm_s16le", "pipe:1")

	raw, err := p.run(ctx, p.ffmpegPath, args, r)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return NewBuffer(SampleRate, BytesToSamples(raw)), nil
}

// Encode compresses buf to mp3 in memory.
func (p *FFmpegProcessor) Encode(ctx context.Context, buf *Buffer) ([]byte, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(buf.SampleRate),
		"-ac", "1",
		"-i", "pipe:0",
	}
	args = append(args, canonicalArgs()...)
	args = append(args, "-c:a", "libmp3lame", "-b:a", Bitrate, "-f", "mp3", "pipe:1")

	out, err := p.run(ctx, p.ffmpegPath, args, bytes.NewReader(SamplesToBytes(buf.Samples)))
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return out, nil
}

// ffprobeOutput defines the structure for ffprobe JSON output.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration uses ffprobe to read the container duration.
func (p *FFmpegProcessor) Duration(ctx context.Context, inputFile string) (time.Duration, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		inputFile,
	}

	out, err := p.run(ctx, p.ffprobePath, args, nil)
	if err != nil {
		return 0, err
	}

	var probeData ffprobeOutput
	if err := json.Unmarshal(out, &probeData); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ffprobe output for %s: %w", inputFile, err)
	}
	if probeData.Format.Duration == "" || probeData.Format.Duration == "N/A" {
		return 0, fmt.Errorf("duration not found in ffprobe output for %s", inputFile)
	}

	seconds, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q for %s: %w", probeData.Format.Duration, inputFile, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
