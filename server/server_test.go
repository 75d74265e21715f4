package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"openhowl/config"
	"openhowl/core/audio"
	"openhowl/core/fetch"
	"openhowl/core/hub"
	"openhowl/core/ingest"
	"openhowl/core/render"
	"openhowl/model"
	"openhowl/repository"
	"openhowl/storage"

	"github.com/gorilla/websocket"
)

const (
	userToken  = "user-token"
	adminToken = "admin-token"
)

// pcmCodec stores uploads verbatim and treats them as raw PCM.
type pcmCodec struct{}

func (pcmCodec) Normalize(_ context.Context, in, out string) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0644)
}

func (pcmCodec) Decode(_ context.Context, r io.Reader) (*audio.Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return audio.NewBuffer(audio.SampleRate, audio.BytesToSamples(data)), nil
}

func (pcmCodec) Encode(_ context.Context, buf *audio.Buffer) ([]byte, error) {
	return audio.SamplesToBytes(buf.Samples), nil
}

func (pcmCodec) Duration(_ context.Context, path string) (time.Duration, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	samples := info.Size() / 2
	return time.Duration(samples) * time.Second / audio.SampleRate, nil
}

type noDownloader struct{}

func (noDownloader) Download(context.Context, string, string) (*fetch.Result, error) {
	return nil, io.ErrUnexpectedEOF
}

func newTestServer(t *testing.T) (*Server, repository.SoundRepository) {
	t.Helper()
	root := t.TempDir()
	cfg := config.FromEnv()
	cfg.CORSOrigin = "http://localhost:3000"
	cfg.UserToken = userToken
	cfg.AdminToken = adminToken
	cfg.UserPassword = "user-pass"
	cfg.AdminPassword = "admin-pass"
	cfg.MaxUploadBytes = 8820 // 100 ms of mono PCM
	cfg.TempDir = filepath.Join(root, "tmp")

	store, err := storage.NewLocalStore(filepath.Join(root, "sounds"))
	if err != nil {
		t.Fatal(err)
	}
	repo := repository.NewJSONSoundRepository(filepath.Join(root, "sounds.json"), store)
	pool := audio.NewWorkerPool(2, 8)
	t.Cleanup(pool.Stop)

	h := hub.New(8)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)

	srv := New(cfg, Deps{
		Repo: repo,
		Ingest: ingest.NewPipeline(repo, store, pcmCodec{}, pool, noDownloader{}, ingest.Options{
			TempDir:        cfg.TempDir,
			MaxUploadBytes: cfg.MaxUploadBytes,
			FetchTimeout:   time.Second,
		}),
		Renderer: render.NewRenderer(repo, store, pcmCodec{}, pool, nil, nil),
		Hub:      h,
	})
	return srv, repo
}

func do(t *testing.T, srv *Server, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, srv *Server, method, path, token string, v interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return do(t, srv, method, path, token, bytes.NewReader(data), "application/json")
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body %q: %v", rec.Body.String(), err)
	}
	return body.Error.Kind
}

func multipartUpload(t *testing.T, filename, name string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if name != "" {
		if err := mw.WriteField("name", name); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(content)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func soundFromBody(t *testing.T, rec *httptest.ResponseRecorder) *model.Sound {
	t.Helper()
	var s model.Sound
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return &s
}

func TestListEmpty(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/sounds", "", nil, "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("GET /sounds = %d %q", rec.Code, rec.Body.String())
	}
}

func TestCreateSound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/sounds", "", map[string]interface{}{
		"id":        "client-chosen",
		"name":      "Bonk",
		"length":    1500,
		"file_path": "/etc/passwd",
		"effects":   map[string]bool{"echo": true, "reverb": true},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /sounds = %d %s", rec.Code, rec.Body.String())
	}
	s := soundFromBody(t, rec)
	if s.ID == "" || s.ID == "client-chosen" {
		t.Errorf("ID = %q", s.ID)
	}
	if s.Volume != model.DefaultVolume || s.TrimEnd != 1500 || s.FilePath != "" || !s.Effects.Echo {
		t.Errorf("sound = %+v", s)
	}

	rec = do(t, srv, http.MethodGet, "/sounds", "", nil, "")
	var list []*model.Sound
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list) != 1 || list[0].ID != s.ID {
		t.Errorf("list = %+v", list)
	}
}

func TestCreateSoundInvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/sounds", "", strings.NewReader("{nope"), "application/json")
	if rec.Code != http.StatusBadRequest || errorKind(t, rec) != "BadRequest" {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateRequiresToken(t *testing.T) {
	srv, repo := newTestServer(t)
	s, err := repo.Create(context.Background(), &model.Sound{Name: "a", Length: 1000})
	if err != nil {
		t.Fatal(err)
	}
	path := "/sounds/" + s.ID
	payload := map[string]interface{}{"name": "renamed", "volume": 10}

	if rec := doJSON(t, srv, http.MethodPut, path, "", payload); rec.Code != http.StatusUnauthorized || errorKind(t, rec) != "Unauthorized" {
		t.Errorf("no token = %d %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, srv, http.MethodPut, path, "wrong", payload); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d", rec.Code)
	}

	rec := doJSON(t, srv, http.MethodPut, path, userToken, payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("user token = %d %s", rec.Code, rec.Body.String())
	}
	if got := soundFromBody(t, rec); got.Name != "renamed" || got.Volume != 10 || got.ID != s.ID || got.Length != 1000 {
		t.Errorf("updated = %+v", got)
	}

	if rec := doJSON(t, srv, http.MethodPut, "/sounds/missing", adminToken, payload); rec.Code != http.StatusNotFound || errorKind(t, rec) != "NotFound" {
		t.Errorf("missing = %d %s", rec.Code, rec.Body.String())
	}
}

func TestUploadPreviewDelete(t *testing.T) {
	srv, _ := newTestServer(t)
	pcm := audio.SamplesToBytes(make([]int16, 4410))
	for i := range pcm {
		pcm[i] = byte(i)
	}

	body, ct := multipartUpload(t, "clip.wav", "Clip", pcm)
	if rec := do(t, srv, http.MethodPost, "/sounds/upload", userToken, body, ct); rec.Code != http.StatusForbidden || errorKind(t, rec) != "Forbidden" {
		t.Fatalf("user upload = %d %s", rec.Code, rec.Body.String())
	}

	body, ct = multipartUpload(t, "clip.wav", "Clip", pcm)
	rec := do(t, srv, http.MethodPost, "/sounds/upload", adminToken, body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin upload = %d %s", rec.Code, rec.Body.String())
	}
	s := soundFromBody(t, rec)
	if s.Name != "Clip" || s.Volume != model.IngestVolume || s.Length != 100 || s.TrimEnd != 100 {
		t.Errorf("uploaded = %+v", s)
	}

	rec = do(t, srv, http.MethodGet, "/sounds/preview/"+s.ID, "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("preview = %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %s", ct)
	}
	if rec.Body.Len() != len(pcm) {
		t.Errorf("preview has %d bytes, want %d", rec.Body.Len(), len(pcm))
	}

	req := httptest.NewRequest(http.MethodGet, "/sounds/preview/"+s.ID, nil)
	req.Header.Set("Range", "bytes=0-99")
	ranged := httptest.NewRecorder()
	srv.Handler().ServeHTTP(ranged, req)
	if ranged.Code != http.StatusPartialContent || ranged.Body.Len() != 100 {
		t.Errorf("range preview = %d with %d bytes", ranged.Code, ranged.Body.Len())
	}

	if rec := do(t, srv, http.MethodDelete, "/sounds/"+s.ID, userToken, nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("delete = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, srv, http.MethodGet, "/sounds/preview/"+s.ID, "", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("preview after delete = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodDelete, "/sounds/"+s.ID, userToken, nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d", rec.Code)
	}
}

func TestUploadRejections(t *testing.T) {
	srv, repo := newTestServer(t)

	body, ct := multipartUpload(t, "huge.mp3", "", make([]byte, 8821))
	rec := do(t, srv, http.MethodPost, "/sounds/upload", adminToken, body, ct)
	if rec.Code != http.StatusRequestEntityTooLarge || errorKind(t, rec) != "PayloadTooLarge" {
		t.Errorf("oversized = %d %s", rec.Code, rec.Body.String())
	}

	body, ct = multipartUpload(t, "virus.exe", "", []byte("MZ"))
	rec = do(t, srv, http.MethodPost, "/sounds/upload", adminToken, body, ct)
	if rec.Code != http.StatusBadRequest || errorKind(t, rec) != "UnsupportedFormat" {
		t.Errorf("bad extension = %d %s", rec.Code, rec.Body.String())
	}

	if list, _ := repo.List(context.Background()); len(list) != 0 {
		t.Errorf("rejected uploads created %d records", len(list))
	}
}

func TestImportRejectsBadURL(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/sounds/youtube", adminToken, map[string]string{"url": "ftp://nope"})
	if rec.Code != http.StatusBadRequest || errorKind(t, rec) != "InvalidSource" {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, srv, http.MethodPost, "/sounds/youtube", adminToken, map[string]string{"url": "https://example.com/v"})
	if rec.Code != http.StatusInternalServerError || errorKind(t, rec) != "FetchFailed" {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestLogin(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/auth/login", "", map[string]string{"password": "admin-pass"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d %s", rec.Code, rec.Body.String())
	}
	var resp LoginResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Token != adminToken || resp.Role != "admin" {
		t.Errorf("login response = %+v", resp)
	}

	rec = doJSON(t, srv, http.MethodPost, "/auth/login", "", map[string]string{"password": "guess"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password = %d", rec.Code)
	}
}

func TestCORSAndUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodOptions, "/sounds/abc", "", nil, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("preflight = %d %v", rec.Code, rec.Header())
	}

	rec = do(t, srv, http.MethodGet, "/nope", "", nil, "")
	if rec.Code != http.StatusNotFound || errorKind(t, rec) != "NotFound" {
		t.Errorf("unknown route = %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/healthz", "", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("healthz = %d %s", rec.Code, rec.Body.String())
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	a, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial a: %v", err)
	}
	defer a.Close()
	b, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial b: %v", err)
	}
	defer b.Close()

	// Both peers must be subscribed before publishing.
	deadline := time.Now().Add(time.Second)
	for srv.hub.Len() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := a.WriteMessage(websocket.TextMessage, []byte(`{"play":"abc"}`)); err != nil {
		t.Fatal(err)
	}
	for name, conn := range map[string]*websocket.Conn{"sender": a, "peer": b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("%s read: %v", name, err)
		}
		if string(msg) != `{"play":"abc"}` {
			t.Errorf("%s got %s", name, msg)
		}
	}
}
