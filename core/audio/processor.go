package audio

import (
	"context"
	"io"
	"time"
)

// Canonical profile shared by stored assets and rendered previews.
const (
	SampleRate  = 44100
	Channels    = 1
	Bitrate     = "128k"
	ContentType = "audio/mpeg"
)

// Codec decodes and encodes audio for the ingestion and render pipelines.
type Codec interface {
	// Normalize converts inputFile to the canonical mp3 profile at outputFile.
	Normalize(ctx context.Context, inputFile, outputFile string) error
	// Decode reads any supported container into mono PCM at SampleRate.
	Decode(ctx context.Context, r io.Reader) (*Buffer, error)
	// Encode compresses buf into the streaming profile.
	Encode(ctx context.Context, buf *Buffer) ([]byte, error)
	// Duration probes the playing time of inputFile.
	Duration(ctx context.Context, inputFile string) (time.Duration, error)
}
