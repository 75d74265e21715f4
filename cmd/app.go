package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"openhowl/config"
	"openhowl/logger"
	"openhowl/storage"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func initLogger(cfg *config.Config) {
	logger.InitLogger(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	})
}

// openAssets picks MinIO when an endpoint is configured, otherwise the
// local sounds directory.
func openAssets(ctx context.Context, cfg *config.Config) (storage.AssetStore, error) {
	if cfg.MinioEnabled() {
		return storage.NewMinioStore(ctx, cfg)
	}
	logger.Info("使用本地目录存储音频", logger.String("dir", cfg.SoundsDir))
	return storage.NewLocalStore(cfg.SoundsDir)
}
