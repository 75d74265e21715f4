package render

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"openhowl/core/apperr"
	"openhowl/core/audio"
	"openhowl/logger"
	"openhowl/model"
	"openhowl/observe"
	"openhowl/repository"
	"openhowl/storage"

	"golang.org/x/sync/singleflight"
)

// Result is a rendered preview. Each caller gets its own Reader at offset 0.
type Result struct {
	Reader      *bytes.Reader
	ContentType string
}

// Cache keeps encoded renders by sound id and fingerprint.
type Cache interface {
	Get(ctx context.Context, id, fingerprint string) ([]byte, bool)
	Set(ctx context.Context, id, fingerprint string, data []byte)
	EvictSound(ctx context.Context, id string)
}

// Renderer produces previews of catalog sounds with their effects applied.
type Renderer struct {
	repo    repository.SoundRepository
	assets  storage.AssetStore
	codec   audio.Codec
	pool    *audio.WorkerPool
	cache   Cache
	metrics *observe.Metrics
	group   singleflight.Group
}

// NewRenderer creates a Renderer. cache and metrics may be nil.
func NewRenderer(repo repository.SoundRepository, assets storage.AssetStore, codec audio.Codec,
	pool *audio.WorkerPool, cache Cache, metrics *observe.Metrics) *Renderer {
	return &Renderer{
		repo:    repo,
		assets:  assets,
		codec:   codec,
		pool:    pool,
		cache:   cache,
		metrics: metrics,
	}
}

// Fingerprint identifies everything that affects the rendered bytes.
func Fingerprint(s *model.Sound) string {
	e := s.Effects
	key := fmt.Sprintf("%s|%s|%d|%d|%d|%t%t%t%t%t%t%t",
		s.ID, s.FilePath, s.TrimStart, s.TrimEnd, s.Volume,
		e.Echo, e.Reverse, e.Lowpass, e.Highpass, e.Speedup, e.Slowdown, e.Distort)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

// Render returns the preview of sound id as it is stored right now.
func (r *Renderer) Render(ctx context.Context, id string) (res *Result, err error) {
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.RecordRender(ctx, start, err)
		}
	}()

	sound, err := r.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	fp := Fingerprint(sound)

	if r.cache != nil {
		data, hit := r.cache.Get(ctx, id, fp)
		if r.metrics != nil {
			r.metrics.RecordCacheLookup(ctx, hit)
		}
		if hit {
			return newResult(data), nil
		}
	}

	v, err, _ := r.group.Do(fp, func() (interface{}, error) {
		// 合并的请求不应被单个调用方取消
		flightCtx := context.WithoutCancel(ctx)
		data, err := r.render(flightCtx, sound)
		if err == nil && r.cache != nil {
			r.cache.Set(flightCtx, id, fp, data)
		}
		return data, err
	})
	if err != nil {
		return nil, err
	}
	return newResult(v.([]byte)), nil
}

func newResult(data []byte) *Result {
	return &Result{Reader: bytes.NewReader(data), ContentType: audio.ContentType}
}

func (r *Renderer) render(ctx context.Context, sound *model.Sound) ([]byte, error) {
	rc, err := r.assets.Open(ctx, sound.FilePath)
	if err != nil {
		return nil, apperr.Wrap(apperr.AssetUnreadable, err, "asset for sound %s is unreadable", sound.ID)
	}
	defer rc.Close()

	var out []byte
	err = r.pool.Do(ctx, func(ctx context.Context) error {
		buf, err := r.codec.Decode(ctx, rc)
		if err != nil {
			return apperr.Wrap(apperr.AssetUnreadable, err, "failed to decode asset for sound %s", sound.ID)
		}

		processed := audio.Apply(buf, audio.ParamsFor(sound))

		out, err = r.codec.Encode(ctx, processed)
		if err != nil {
			return apperr.Wrap(apperr.AudioProcessingError, err, "failed to encode preview for sound %s", sound.ID)
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			err = apperr.Wrap(apperr.AudioProcessingError, err, "render of sound %s failed", sound.ID)
		}
		logger.Warn("[Render] render failed", logger.String("id", sound.ID), logger.ErrorField(err))
		return nil, err
	}

	logger.Debug("[Render] rendered",
		logger.String("id", sound.ID),
		logger.Int("bytes", len(out)))
	return out, nil
}

// Forget drops cached renders of id, after an update or delete.
func (r *Renderer) Forget(ctx context.Context, id string) {
	if r.cache != nil {
		r.cache.EvictSound(ctx, id)
	}
}
