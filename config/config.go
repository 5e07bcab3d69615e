package config

import (
	"fmt"
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// 所有字段都可以通过环境变量（或 .env 文件）覆盖。
type Config struct {
	ServerAddr string `env:"SERVER_ADDR" env-default:":8080"`

	// 本地曲库（嵌入式 sqlite）
	LibraryDBPath        string `env:"LIBRARY_DB_PATH" env-default:"data/soundwaves.db"`
	LibraryHistoryWindow int    `env:"LIBRARY_HISTORY_WINDOW" env-default:"200"`
	BlobBackend          string `env:"BLOB_BACKEND" env-default:"db"` // db, minio

	// 远端收听记录（MySQL）
	RemoteHistoryEnabled bool   `env:"REMOTE_HISTORY_ENABLED" env-default:"false"`
	DBHost               string `env:"DB_HOST" env-default:"127.0.0.1"`
	DBPort               string `env:"DB_PORT" env-default:"3306"`
	DBUser               string `env:"DB_USER" env-default:"root"`
	DBPassword           string `env:"DB_PASSWORD"` // For password, better not to have a hardcoded default
	DBName               string `env:"DB_NAME" env-default:"soundwaves"`

	// Redis配置
	RedisHost     string `env:"REDIS_HOST" env-default:"127.0.0.1"`
	RedisPort     string `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`
	OutboxBackend string `env:"OUTBOX_BACKEND" env-default:"memory"` // memory, redis

	// MinIO配置
	MinioEndpoint  string `env:"MINIO_ENDPOINT" env-default:"127.0.0.1:9000"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET" env-default:"soundwaves"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" env-default:"false"`
	MinioRegion    string `env:"MINIO_REGION" env-default:"us-east-1"`

	JWTSecret string `env:"JWT_SECRET"`

	// YouTube 相关
	YouTubeAPIKey      string        `env:"YOUTUBE_API_KEY"`
	OEmbedURL          string        `env:"OEMBED_URL" env-default:"https://www.youtube.com/oembed"`
	InvidiousInstances []string      `env:"INVIDIOUS_INSTANCES" env-separator:"," env-default:"https://inv.tux.pizza,https://invidious.flokinet.to,https://invidious.projectsegfau.lt,https://vid.puffyan.us,https://invidious.kavin.rocks,https://yewtu.be"`
	PipedInstances     []string      `env:"PIPED_INSTANCES" env-separator:"," env-default:"https://pipedapi.kavin.rocks,https://api.piped.yt,https://pa.il.ax,https://pipedapi.moomoo.me"`
	MirrorTimeout      time.Duration `env:"MIRROR_TIMEOUT" env-default:"5s"`
	VideoInfoTTL       time.Duration `env:"VIDEO_INFO_TTL" env-default:"6h"`

	// 下载
	DownloadWorkers   int           `env:"DOWNLOAD_WORKERS" env-default:"2"`
	DownloadQueueSize int           `env:"DOWNLOAD_QUEUE_SIZE" env-default:"64"`
	DownloadTimeout   time.Duration `env:"DOWNLOAD_TIMEOUT" env-default:"10m"` // 单个文件的下载上限

	// 本地导入目录，为空则不监听
	ImportDir string `env:"IMPORT_DIR"`

	// 日志
	LogLevel      string `env:"LOG_LEVEL" env-default:"info"`
	LogFile       string `env:"LOG_FILE" env-default:"logs/soundwaves.log"`
	LogMaxSize    int    `env:"LOG_MAX_SIZE" env-default:"100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" env-default:"3"`
	LogMaxAge     int    `env:"LOG_MAX_AGE" env-default:"28"`
	LogCompress   bool   `env:"LOG_COMPRESS" env-default:"true"`
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	cfg, err := Read()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return cfg
}

// Read binds the current environment into a Config without touching .env.
func Read() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	switch c.BlobBackend {
	case "db", "minio":
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend)
	}
	switch c.OutboxBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown OUTBOX_BACKEND %q", c.OutboxBackend)
	}
	if c.LibraryHistoryWindow <= 0 {
		return fmt.Errorf("LIBRARY_HISTORY_WINDOW must be positive, got %d", c.LibraryHistoryWindow)
	}
	if c.MirrorTimeout <= 0 {
		return fmt.Errorf("MIRROR_TIMEOUT must be positive, got %s", c.MirrorTimeout)
	}
	if c.DownloadTimeout <= 0 {
		return fmt.Errorf("DOWNLOAD_TIMEOUT must be positive, got %s", c.DownloadTimeout)
	}
	if c.DownloadWorkers < 1 {
		c.DownloadWorkers = 1
	}
	if c.DownloadQueueSize < 1 {
		c.DownloadQueueSize = 1
	}
	return nil
}

// RedisAddr 返回 host:port 形式的 Redis 地址
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
