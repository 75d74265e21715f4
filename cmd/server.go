package cmd

import (
	"context"
	"time"

	"openhowl/cache"
	"openhowl/config"
	"openhowl/core/audio"
	"openhowl/core/fetch"
	"openhowl/core/hub"
	"openhowl/core/ingest"
	"openhowl/core/render"
	"openhowl/logger"
	"openhowl/observe"
	"openhowl/repository"
	"openhowl/server"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serverAddr string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动OpenHowl服务器",
	Long:  `启动OpenHowl的HTTP服务器，提供音效管理、预览渲染和WebSocket广播`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context(), serverAddr)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVarP(&serverAddr, "addr", "a", "", "监听地址，覆盖 LISTEN_ADDR")
}

func runServer(parent context.Context, addr string) error {
	cfg := config.Load()
	initLogger(cfg)
	defer logger.Sync()

	ctx, stop := signalContext(parent)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, "openhowl")
	if err != nil {
		logger.Fatal("初始化指标失败", logger.ErrorField(err))
	}
	defer shutdownMetrics(context.Background())
	metrics := observe.DefaultMetrics()

	assets, err := openAssets(ctx, cfg)
	if err != nil {
		logger.Fatal("无法打开音频存储", logger.ErrorField(err))
	}
	repo := repository.NewJSONSoundRepository(cfg.CatalogFile, assets)

	codec := audio.NewFFmpegProcessor(cfg.FFmpegPath, cfg.FFprobePath)
	pool := audio.NewWorkerPool(cfg.AudioWorkers, cfg.AudioWorkers*4)
	defer pool.Stop()

	var renderCache render.Cache
	if cfg.RedisEnabled() {
		client, err := cache.ConnectRedis(ctx, cfg)
		if err != nil {
			// 缓存不可用时直接渲染
			logger.Warn("Redis不可用，禁用渲染缓存", logger.ErrorField(err))
		} else {
			defer client.Close()
			renderCache = cache.NewRenderCache(client, cfg.RenderCacheTTL)
			logger.Info("渲染缓存已启用", logger.Duration("ttl", cfg.RenderCacheTTL))
		}
	}

	pipeline := ingest.NewPipeline(repo, assets, codec, pool, fetch.NewYtDlp(cfg.YtDlpPath), ingest.Options{
		TempDir:        cfg.TempDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		FetchTimeout:   cfg.FetchTimeout,
		Metrics:        metrics,
	})
	renderer := render.NewRenderer(repo, assets, codec, pool, renderCache, metrics)
	events := hub.New(cfg.WSQueueSize)

	srv := server.New(cfg, server.Deps{
		Repo:     repo,
		Ingest:   pipeline,
		Renderer: renderer,
		Hub:      events,
		Metrics:  metrics,
	})

	watcher := &repository.CatalogWatcher{
		Path:     cfg.CatalogFile,
		Repo:     repo,
		Debounce: 200 * time.Millisecond,
		OnChange: func(c repository.CatalogChange) {
			events.PublishEvent(hub.Event{Type: hub.EventCatalogChanged, Revision: c.Revision})
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		events.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := watcher.Run(gctx); err != nil {
			// 监听失败不影响服务
			logger.Warn("catalog watcher stopped", logger.ErrorField(err))
		}
		return nil
	})
	g.Go(func() error {
		defer events.Stop()
		return srv.ListenAndServe(gctx, addr)
	})
	return g.Wait()
}
