package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"openhowl/config"
	"openhowl/core/auth"
	"openhowl/core/hub"
	"openhowl/core/ingest"
	"openhowl/core/render"
	"openhowl/logger"
	"openhowl/observe"
	"openhowl/repository"

	"github.com/gorilla/mux"
)

// Deps are the components the HTTP surface drives.
type Deps struct {
	Repo     repository.SoundRepository
	Ingest   *ingest.Pipeline
	Renderer *render.Renderer
	Hub      *hub.Hub
	Metrics  *observe.Metrics // optional
}

// Server exposes the sound catalog over HTTP and websocket.
type Server struct {
	cfg      *config.Config
	repo     repository.SoundRepository
	ingest   *ingest.Pipeline
	renderer *render.Renderer
	hub      *hub.Hub
	metrics  *observe.Metrics
	creds    auth.Credentials
	handler  http.Handler
}

// New builds the router.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:      cfg,
		repo:     deps.Repo,
		ingest:   deps.Ingest,
		renderer: deps.Renderer,
		hub:      deps.Hub,
		metrics:  deps.Metrics,
		creds: auth.Credentials{
			UserToken:     cfg.UserToken,
			AdminToken:    cfg.AdminToken,
			UserPassword:  cfg.UserPassword,
			AdminPassword: cfg.AdminPassword,
		},
	}

	router := mux.NewRouter()
	router.Use(s.accessLog)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errRouteNotFound)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// 音效相关的API端点
	router.HandleFunc("/sounds", s.ListSoundsHandler).Methods(http.MethodGet)
	router.HandleFunc("/sounds", s.CreateSoundHandler).Methods(http.MethodPost)
	router.HandleFunc("/sounds/upload", s.requireRole(auth.RoleAdmin, s.UploadSoundHandler)).Methods(http.MethodPost)
	router.HandleFunc("/sounds/youtube", s.requireRole(auth.RoleAdmin, s.ImportSoundHandler)).Methods(http.MethodPost)
	router.HandleFunc("/sounds/preview/{id}", s.PreviewSoundHandler).Methods(http.MethodGet)
	router.HandleFunc("/sounds/{id}", s.requireRole(auth.RoleUser, s.UpdateSoundHandler)).Methods(http.MethodPut)
	router.HandleFunc("/sounds/{id}", s.requireRole(auth.RoleUser, s.DeleteSoundHandler)).Methods(http.MethodDelete)

	// 认证
	router.HandleFunc("/auth/login", s.LoginHandler).Methods(http.MethodPost)

	// 广播通道
	router.HandleFunc("/ws", s.WebSocketHandler).Methods(http.MethodGet)

	router.Handle("/metrics", observe.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.HealthHandler).Methods(http.MethodGet)

	s.handler = s.cors(router)
	return s
}

// Handler returns the root handler, CORS included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = s.cfg.ListenAddr
	}
	// 设置服务器超时；预览和导入可能较慢，不设置写超时
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", logger.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
