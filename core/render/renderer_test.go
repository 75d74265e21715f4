package render

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"openhowl/core/apperr"
	"openhowl/core/audio"
	"openhowl/model"
	"openhowl/repository"
	"openhowl/storage"
)

// pcmCodec treats assets as raw little-endian PCM.
type pcmCodec struct {
	decodes atomic.Int32
}

func (c *pcmCodec) Normalize(context.Context, string, string) error { return nil }

func (c *pcmCodec) Decode(_ context.Context, r io.Reader) (*audio.Buffer, error) {
	c.decodes.Add(1)
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data)%2 != 0 {
		return nil, errors.New("odd byte count")
	}
	return audio.NewBuffer(audio.SampleRate, audio.BytesToSamples(data)), nil
}

func (c *pcmCodec) Encode(_ context.Context, buf *audio.Buffer) ([]byte, error) {
	return audio.SamplesToBytes(buf.Samples), nil
}

func (c *pcmCodec) Duration(context.Context, string) (time.Duration, error) { return 0, nil }

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	evicted []string
}

func (m *mapCache) Get(_ context.Context, id, fp string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[id+":"+fp]
	return data, ok
}

func (m *mapCache) Set(_ context.Context, id, fp string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id+":"+fp] = data
}

func (m *mapCache) EvictSound(_ context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evicted = append(m.evicted, id)
}

type fixture struct {
	renderer *Renderer
	repo     repository.SoundRepository
	store    *storage.LocalStore
	codec    *pcmCodec
	root     string
}

func newFixture(t *testing.T, cache Cache) *fixture {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewLocalStore(filepath.Join(root, "sounds"))
	if err != nil {
		t.Fatal(err)
	}
	repo := repository.NewJSONSoundRepository(filepath.Join(root, "sounds.json"), store)
	pool := audio.NewWorkerPool(2, 4)
	t.Cleanup(pool.Stop)
	codec := &pcmCodec{}
	return &fixture{
		renderer: NewRenderer(repo, store, codec, pool, cache, nil),
		repo:     repo,
		store:    store,
		codec:    codec,
		root:     root,
	}
}

// ramp is 100 ms of a rising signal.
func ramp() []int16 {
	samples := make([]int16, audio.SampleRate/10)
	for i := range samples {
		samples[i] = int16(i%2000 - 1000)
	}
	return samples
}

func (f *fixture) addSound(t *testing.T, s *model.Sound, samples []int16) *model.Sound {
	t.Helper()
	id := repository.NewID()
	src := filepath.Join(f.root, id+".pcm")
	if err := os.WriteFile(src, audio.SamplesToBytes(samples), 0644); err != nil {
		t.Fatal(err)
	}
	ref, err := f.store.Put(context.Background(), id, src)
	if err != nil {
		t.Fatal(err)
	}
	s.ID = id
	s.FilePath = ref
	s.FileFormat = model.AssetFormat
	created, err := f.repo.Create(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	return created
}

func readAll(t *testing.T, res *Result) []byte {
	t.Helper()
	data, err := io.ReadAll(res.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestRenderUnknownSound(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.renderer.Render(context.Background(), "missing"); !errors.Is(err, apperr.NotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestRenderUnityIsIdentity(t *testing.T) {
	f := newFixture(t, nil)
	in := ramp()
	s := f.addSound(t, &model.Sound{Name: "ramp", Length: 100, Volume: 100}, in)

	res, err := f.renderer.Render(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.ContentType != "audio/mpeg" {
		t.Errorf("ContentType = %s", res.ContentType)
	}
	if got := readAll(t, res); !bytes.Equal(got, audio.SamplesToBytes(in)) {
		t.Error("volume 100 with no effects should not change the samples")
	}
}

func TestRenderIsDeterministicAndReadersAreIndependent(t *testing.T) {
	f := newFixture(t, nil)
	s := f.addSound(t, &model.Sound{
		Name:    "fx",
		Length:  100,
		Volume:  60,
		Effects: model.Effects{Echo: true, Reverse: true, Lowpass: true},
	}, ramp())
	ctx := context.Background()

	first, err := f.renderer.Render(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.renderer.Render(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	a := readAll(t, first)
	b := readAll(t, second)
	if len(a) == 0 || !bytes.Equal(a, b) {
		t.Error("identical renders differ")
	}
}

func TestRenderUsesCurrentRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s := f.addSound(t, &model.Sound{Name: "trim", Length: 100, Volume: 100}, ramp())

	s.TrimStart = 50
	if _, err := f.repo.Update(ctx, s.ID, s); err != nil {
		t.Fatal(err)
	}
	res, err := f.renderer.Render(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := res.Reader.Len(), 2*(len(ramp())-audio.SampleRate*50/1000); got != want {
		t.Errorf("rendered %d bytes, want %d", got, want)
	}
}

func TestRenderMissingAsset(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s, err := f.repo.Create(ctx, &model.Sound{Name: "ghost", FilePath: "ghost.mp3", Length: 100})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.renderer.Render(ctx, s.ID); !errors.Is(err, apperr.AssetUnreadable) {
		t.Errorf("err = %v, want AssetUnreadable", err)
	}
}

func TestRenderCorruptAsset(t *testing.T) {
	f := newFixture(t, nil)
	s := f.addSound(t, &model.Sound{Name: "odd", Length: 1}, nil)
	// Overwrite the stored asset with an odd number of bytes.
	if err := os.WriteFile(filepath.Join(f.root, "sounds", s.ID+".mp3"), []byte{1, 2, 3}, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.renderer.Render(context.Background(), s.ID); !errors.Is(err, apperr.AssetUnreadable) {
		t.Errorf("err = %v, want AssetUnreadable", err)
	}
}

func TestRenderAfterDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s := f.addSound(t, &model.Sound{Name: "bye", Length: 100}, ramp())

	if _, err := f.repo.Delete(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.renderer.Render(ctx, s.ID); !errors.Is(err, apperr.NotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestRenderCache(t *testing.T) {
	cache := &mapCache{entries: map[string][]byte{}}
	f := newFixture(t, cache)
	ctx := context.Background()
	s := f.addSound(t, &model.Sound{Name: "cached", Length: 100, Volume: 80}, ramp())

	first, err := f.renderer.Render(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.renderer.Render(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n := f.codec.decodes.Load(); n != 1 {
		t.Errorf("decoded %d times, want 1", n)
	}
	if !bytes.Equal(readAll(t, first), readAll(t, second)) {
		t.Error("cached render differs")
	}

	// A changed record has a new fingerprint and renders again.
	s.Volume = 20
	if _, err := f.repo.Update(ctx, s.ID, s); err != nil {
		t.Fatal(err)
	}
	if _, err := f.renderer.Render(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if n := f.codec.decodes.Load(); n != 2 {
		t.Errorf("decoded %d times after update, want 2", n)
	}

	f.renderer.Forget(ctx, s.ID)
	if len(cache.evicted) != 1 || cache.evicted[0] != s.ID {
		t.Errorf("evicted = %v", cache.evicted)
	}
}

func TestFingerprintCoversEffects(t *testing.T) {
	a := &model.Sound{ID: "x", Volume: 70}
	b := a.Clone()
	b.Effects.Distort = true
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("fingerprint ignores effects")
	}
	if Fingerprint(a) != Fingerprint(a.Clone()) {
		t.Error("fingerprint is not stable")
	}
}
