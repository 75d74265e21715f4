package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"openhowl/core/apperr"
	"openhowl/core/ingest"
	"openhowl/logger"
	"openhowl/model"

	"github.com/gorilla/mux"
)

// multipartOverhead is allowed on top of the file for boundaries and fields.
const multipartOverhead = 1 << 20

// decodeSound reads a sound from the JSON body. Volume defaults to
// model.DefaultVolume when absent; client-supplied asset fields are dropped.
func decodeSound(r *http.Request) (*model.Sound, error) {
	sound := &model.Sound{Volume: model.DefaultVolume}
	if err := json.NewDecoder(r.Body).Decode(sound); err != nil {
		return nil, apperr.Wrap(apperr.BadRequest, err, "invalid sound payload")
	}
	sound.ID = ""
	sound.FilePath = ""
	sound.FileFormat = ""
	return sound, nil
}

// ListSoundsHandler GET /sounds
func (s *Server) ListSoundsHandler(w http.ResponseWriter, r *http.Request) {
	sounds, err := s.repo.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sounds == nil {
		sounds = []*model.Sound{}
	}
	writeJSON(w, http.StatusOK, sounds)
}

// CreateSoundHandler POST /sounds
func (s *Server) CreateSoundHandler(w http.ResponseWriter, r *http.Request) {
	sound, err := decodeSound(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.repo.Create(r.Context(), sound)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

// UpdateSoundHandler PUT /sounds/{id}
func (s *Server) UpdateSoundHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sound, err := decodeSound(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := s.repo.Update(r.Context(), id, sound)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.renderer.Forget(r.Context(), id)
	writeJSON(w, http.StatusOK, updated)
}

// DeleteSoundHandler DELETE /sounds/{id}
func (s *Server) DeleteSoundHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.repo.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.renderer.Forget(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// UploadSoundHandler POST /sounds/upload, multipart "file" and "name".
func (s *Server) UploadSoundHandler(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.BadRequest, err, "expected a multipart form"))
		return
	}

	form, err := readUploadForm(mr, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sound, err := s.ingest.Upload(r.Context(), ingest.UploadRequest{
		Filename: form.filename,
		Name:     form.name,
		Body:     bytes.NewReader(form.data),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sound)
}

type uploadForm struct {
	name     string
	filename string
	data     []byte
}

// readUploadForm reads the "name" and "file" parts. The file is capped at
// limit bytes.
func readUploadForm(mr *multipart.Reader, limit int64) (*uploadForm, error) {
	form := &uploadForm{}
	haveFile := false
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, uploadReadError(err)
		}
		isFile, err := form.readPart(part, limit)
		if err != nil {
			return nil, err
		}
		haveFile = haveFile || isFile
	}
	if !haveFile {
		return nil, apperr.New(apperr.BadRequest, "missing file")
	}
	return form, nil
}

func (f *uploadForm) readPart(part *multipart.Part, limit int64) (bool, error) {
	defer part.Close()

	switch part.FormName() {
	case "name":
		raw, err := io.ReadAll(io.LimitReader(part, 1024))
		if err != nil {
			return false, uploadReadError(err)
		}
		f.name = strings.TrimSpace(string(raw))
	case "file":
		f.filename = part.FileName()
		// 多读一个字节用于判断是否超限
		data, err := io.ReadAll(io.LimitReader(part, limit+1))
		if err != nil {
			return false, uploadReadError(err)
		}
		if int64(len(data)) > limit {
			return false, apperr.New(apperr.PayloadTooLarge, "file exceeds %d bytes", limit)
		}
		f.data = data
		return true, nil
	}
	return false, nil
}

func uploadReadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.Wrap(apperr.PayloadTooLarge, err, "request body too large")
	}
	return apperr.Wrap(apperr.BadRequest, err, "failed to read upload")
}

// ImportSoundHandler POST /sounds/youtube
func (s *Server) ImportSoundHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, r, apperr.Wrap(apperr.BadRequest, err, "invalid import payload"))
		return
	}

	sound, err := s.ingest.Import(r.Context(), ingest.ImportRequest{URL: req.URL, Name: req.Name})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sound)
}

// PreviewSoundHandler GET /sounds/preview/{id}
func (s *Server) PreviewSoundHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	res, err := s.renderer.Render(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	// ServeContent 支持 Range 请求
	http.ServeContent(w, r, id+".mp3", time.Time{}, res.Reader)
}

// HealthHandler GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	rev, err := s.repo.Revision(r.Context())
	if err != nil {
		logger.Warn("[HTTP] health check could not read catalog", logger.ErrorField(err))
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "revision": rev})
}
