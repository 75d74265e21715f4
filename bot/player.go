package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"openhowl/core/utils"

	"layeh.com/gopus"
)

// Discord voice is 48 kHz stereo Opus in 20 ms frames.
const (
	opusSampleRate = 48000
	opusChannels   = 2
	opusFrameSize  = opusSampleRate * 20 / 1000 // 960 samples per channel
	opusFrameBytes = opusFrameSize * opusChannels * 2
	opusMaxBytes   = 4000
)

// frameEncoder turns one interleaved PCM frame into an Opus packet.
type frameEncoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

func newOpusEncoder() (*gopus.Encoder, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	return enc, nil
}

// encodeFrames reads s16le stereo PCM from r and sends one Opus packet per
// 20 ms frame to out. A trailing partial frame is padded with silence.
func encodeFrames(ctx context.Context, r io.Reader, enc frameEncoder, out chan<- []byte) error {
	buf := make([]byte, opusFrameBytes)
	pcm := make([]int16, opusFrameSize*opusChannels)
	for {
		n, err := io.ReadFull(r, buf)
		if n == 0 && (err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF)) {
			return nil
		}
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("read pcm: %w", err)
		}
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		for i := range pcm {
			pcm[i] = int16(buf[2*i]) | int16(buf[2*i+1])<<8
		}

		packet, encErr := enc.Encode(pcm, opusFrameSize, opusMaxBytes)
		if encErr != nil {
			return fmt.Errorf("opus encode: %w", encErr)
		}
		select {
		case out <- packet:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err != nil {
			// 最后一个不完整的帧已发送
			return nil
		}
	}
}

// Player fetches rendered previews and streams them to a voice connection.
type Player struct {
	FFmpegPath string
	APIBaseURL string
	TempDir    string
}

// PreviewURL is where the service serves the rendered clip.
func (p *Player) PreviewURL(soundID string) string {
	return strings.TrimRight(p.APIBaseURL, "/") + "/sounds/preview/" + soundID
}

// Play downloads the preview of soundID and sends it to out until it ends or
// ctx is cancelled.
func (p *Player) Play(ctx context.Context, soundID string, out chan<- []byte) error {
	return utils.WithTempDir(p.TempDir, "bot-*", func(dir string) error {
		src := filepath.Join(dir, "preview.mp3")
		if err := utils.DownloadFile(ctx, p.PreviewURL(soundID), src); err != nil {
			return err
		}

		cmd := exec.CommandContext(ctx, p.FFmpegPath,
			"-hide_banner", "-loglevel", "error",
			"-i", src,
			"-f", "s16le",
			"-ar", fmt.Sprint(opusSampleRate),
			"-ac", fmt.Sprint(opusChannels),
			"pipe:1")
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("ffmpeg stdout: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("ffmpeg start: %w", err)
		}

		enc, err := newOpusEncoder()
		if err != nil {
			cmd.Process.Kill()
			cmd.Wait()
			return err
		}
		streamErr := encodeFrames(ctx, stdout, enc, out)
		if streamErr != nil {
			cmd.Process.Kill()
		}
		waitErr := cmd.Wait()
		if streamErr != nil {
			return streamErr
		}
		if waitErr != nil && ctx.Err() == nil {
			return fmt.Errorf("ffmpeg execution failed: %w", waitErr)
		}
		return nil
	})
}
