package config

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	ListenAddr string
	CORSOrigin string

	FFmpegPath  string
	FFprobePath string
	YtDlpPath   string

	DataDir     string // Base directory for all persisted state
	CatalogFile string // Serialized sound catalog: DataDir/sounds.json
	SoundsDir   string // Normalized assets, one file per sound id: DataDir/sounds
	TempDir     string // Scratch space for uploads and downloads

	MaxUploadBytes int64
	FetchTimeout   time.Duration
	AudioWorkers   int

	// Shared bearer tokens
	UserToken     string
	AdminToken    string
	UserPassword  string
	AdminPassword string

	// Redis配置，RedisHost为空时禁用渲染缓存
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	RenderCacheTTL time.Duration

	// MinIO配置，MinioEndpoint为空时使用本地目录
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	WSQueueSize int

	LogLevel string
	LogFile  string

	// Discord bot
	DiscordToken string
	BotPrefix    string
	APIBaseURL   string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s", "2m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() *Config {
	dataDir := getEnv("DATA_DIR", "data")
	ffmpegPath := getEnv("FFMPEG_PATH", "ffmpeg")

	return &Config{
		ListenAddr:     getEnv("LISTEN_ADDR", ":8000"),
		CORSOrigin:     getEnv("CORS_ORIGIN", "http://localhost:3000"),
		FFmpegPath:     ffmpegPath,
		FFprobePath:    getEnv("FFPROBE_PATH", filepath.Join(filepath.Dir(ffmpegPath), "ffprobe")),
		YtDlpPath:      getEnv("YTDLP_PATH", "yt-dlp"),
		DataDir:        dataDir,
		CatalogFile:    getEnv("CATALOG_FILE", filepath.Join(dataDir, "sounds.json")),
		SoundsDir:      getEnv("SOUNDS_DIR", filepath.Join(dataDir, "sounds")),
		TempDir:        getEnv("TEMP_DIR", os.TempDir()),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 10<<20),
		FetchTimeout:   getEnvDuration("FETCH_TIMEOUT", 2*time.Minute),
		AudioWorkers:   getEnvInt("AUDIO_WORKERS", runtime.NumCPU()),
		UserToken:      os.Getenv("USER_TOKEN"),
		AdminToken:     os.Getenv("ADMIN_TOKEN"),
		UserPassword:   os.Getenv("USER_PASSWORD"),
		AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
		RedisHost:      getEnv("REDIS_HOST", ""),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RenderCacheTTL: getEnvDuration("RENDER_CACHE_TTL", 10*time.Minute),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "openhowl"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		WSQueueSize:    getEnvInt("WS_QUEUE_SIZE", 32),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFile:        getEnv("LOG_FILE", ""),
		DiscordToken:   os.Getenv("DISCORD_BOT_TOKEN"),
		BotPrefix:      getEnv("BOT_PREFIX", "/OpenHowl "),
		APIBaseURL:     getEnv("API_BASE_URL", "http://127.0.0.1:8000"),
	}
}

// RedisEnabled reports whether a render cache should be connected.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// MinioEnabled reports whether assets live in a MinIO bucket instead of SoundsDir.
func (c *Config) MinioEnabled() bool {
	return c.MinioEndpoint != ""
}
