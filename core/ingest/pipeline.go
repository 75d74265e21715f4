package ingest

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"openhowl/core/apperr"
	"openhowl/core/audio"
	"openhowl/core/fetch"
	"openhowl/core/utils"
	"openhowl/logger"
	"openhowl/model"
	"openhowl/observe"
	"openhowl/repository"
	"openhowl/storage"
)

// AllowedExtensions lists the upload containers ffmpeg is asked to read.
var AllowedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".flac": true,
	".m4a":  true,
	".aac":  true,
	".webm": true,
	".opus": true,
}

// UploadRequest is one uploaded file.
type UploadRequest struct {
	Filename string
	Name     string
	Body     io.Reader
}

// ImportRequest asks for the audio behind a remote URL.
type ImportRequest struct {
	URL  string
	Name string
}

// Options tunes a Pipeline.
type Options struct {
	TempDir        string
	MaxUploadBytes int64
	FetchTimeout   time.Duration
	Metrics        *observe.Metrics
}

// Pipeline turns uploaded or fetched audio into catalog records backed by a
// normalized asset.
type Pipeline struct {
	repo       repository.SoundRepository
	assets     storage.AssetStore
	codec      audio.Codec
	pool       *audio.WorkerPool
	downloader fetch.Downloader
	opts       Options
}

// NewPipeline creates a Pipeline. downloader may be nil when remote import
// is not offered.
func NewPipeline(repo repository.SoundRepository, assets storage.AssetStore, codec audio.Codec,
	pool *audio.WorkerPool, downloader fetch.Downloader, opts Options) *Pipeline {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 2 * time.Minute
	}
	return &Pipeline{
		repo:       repo,
		assets:     assets,
		codec:      codec,
		pool:       pool,
		downloader: downloader,
		opts:       opts,
	}
}

// Upload stores an uploaded file as a new sound.
func (p *Pipeline) Upload(ctx context.Context, req UploadRequest) (sound *model.Sound, err error) {
	start := time.Now()
	defer func() { p.record(ctx, "upload", start, err) }()

	ext := utils.SafeExt(req.Filename)
	if !AllowedExtensions[ext] {
		return nil, apperr.New(apperr.UnsupportedFormat, "unsupported file type %q", ext)
	}
	if req.Body == nil {
		return nil, apperr.New(apperr.BadRequest, "missing file")
	}

	err = utils.WithTempDir(p.opts.TempDir, "upload-*", func(dir string) error {
		raw := filepath.Join(dir, "source"+ext)
		if _, err := utils.SaveLimited(req.Body, raw, p.opts.MaxUploadBytes); err != nil {
			if errors.Is(err, utils.ErrTooLarge) {
				return apperr.New(apperr.PayloadTooLarge, "file exceeds %d bytes", p.opts.MaxUploadBytes)
			}
			return apperr.Wrap(apperr.Internal, err, "failed to save upload")
		}

		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(req.Filename), filepath.Ext(req.Filename))
		}
		var err error
		sound, err = p.store(ctx, dir, raw, name)
		return err
	})
	if err != nil {
		logger.Warn("[Ingest] upload failed",
			logger.String("filename", req.Filename),
			logger.ErrorField(err))
		return nil, err
	}
	return sound, nil
}

// Import downloads the audio behind req.URL and stores it as a new sound.
func (p *Pipeline) Import(ctx context.Context, req ImportRequest) (sound *model.Sound, err error) {
	start := time.Now()
	defer func() { p.record(ctx, "import", start, err) }()

	if err := validateSource(req.URL); err != nil {
		return nil, err
	}
	if p.downloader == nil {
		return nil, apperr.New(apperr.FetchFailed, "remote import is not configured")
	}

	err = utils.WithTempDir(p.opts.TempDir, "import-*", func(dir string) error {
		fetchCtx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
		res, err := p.downloader.Download(fetchCtx, req.URL, dir)
		cancel()
		if err != nil {
			return apperr.Wrap(apperr.FetchFailed, err, "failed to fetch %s", req.URL)
		}

		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = res.Title
		}
		sound, err = p.store(ctx, dir, res.Path, name)
		return err
	})
	if err != nil {
		logger.Warn("[Ingest] import failed",
			logger.String("url", req.URL),
			logger.ErrorField(err))
		return nil, err
	}
	return sound, nil
}

func validateSource(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return apperr.Wrap(apperr.InvalidSource, err, "invalid url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.New(apperr.InvalidSource, "url must be an absolute http(s) address")
	}
	return nil
}

// store normalizes src, moves the result into the asset store and creates the
// record. The asset is removed again if the record cannot be created.
func (p *Pipeline) store(ctx context.Context, dir, src, name string) (*model.Sound, error) {
	id := repository.NewID()
	normalized := filepath.Join(dir, "normalized.mp3")

	err := p.pool.Do(ctx, func(ctx context.Context) error {
		return p.codec.Normalize(ctx, src, normalized)
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.AudioProcessingError, err, "failed to normalize audio")
	}

	var lengthMs int64
	if d, err := p.codec.Duration(ctx, normalized); err != nil {
		logger.Warn("[Ingest] duration probe failed, storing length 0",
			logger.String("id", id),
			logger.ErrorField(err))
	} else {
		lengthMs = d.Milliseconds()
	}

	ref, err := p.assets.Put(ctx, id, normalized)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to store asset")
	}

	created, err := p.repo.Create(ctx, &model.Sound{
		ID:         id,
		Name:       name,
		Length:     lengthMs,
		Volume:     model.IngestVolume,
		TrimStart:  0,
		TrimEnd:    lengthMs,
		FilePath:   ref,
		FileFormat: model.AssetFormat,
	})
	if err != nil {
		if rmErr := p.assets.Remove(context.WithoutCancel(ctx), ref); rmErr != nil {
			logger.Warn("[Ingest] failed to remove orphaned asset",
				logger.String("ref", ref),
				logger.ErrorField(rmErr))
		}
		return nil, err
	}

	logger.Info("[Ingest] sound stored",
		logger.String("id", created.ID),
		logger.String("name", created.Name),
		logger.Int64("lengthMs", created.Length))
	return created, nil
}

func (p *Pipeline) record(ctx context.Context, source string, start time.Time, err error) {
	if p.opts.Metrics != nil {
		p.opts.Metrics.RecordIngest(ctx, source, start, err)
	}
}
