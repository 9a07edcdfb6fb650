// Пакет config - загрузка конфигурации gateway и registry из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BlobBackendDisk  = "disk"
	BlobBackendMinio = "minio"
)

// Config содержит параметры обоих процессов. каждый читает только своё.
type Config struct {
	// путь к файлу sqlite
	DBPath string
	// общая с gateway директория временных файлов загрузки
	TmpDir string

	// disk или minio
	BlobBackend string
	// директория блобов для disk
	DataDir string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// время жизни одноразового кода
	CodeTTL time.Duration
	// время жизни ссылки
	LinkTTL time.Duration
	// максимальный размер загрузки в байтах
	MaxUploadSize int64
	// интервал запуска очистки
	SweepInterval time.Duration
	// сколько RegisterFile может копировать блобы одновременно
	MaxConcurrentUploads int

	GRPCAddr     string
	MetricsAddr  string
	RegistryAddr string
	HTTPAddr     string

	LogLevel        slog.Level
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения и валидирует её.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.DBPath = getEnvDefault("FILEDROP_DB_PATH", "./data/data.db")
	cfg.TmpDir = getEnvDefault("FILEDROP_TMP_DIR", "./data/tmp")
	cfg.DataDir = getEnvDefault("FILEDROP_DATA_DIR", "./data/files")

	cfg.BlobBackend = getEnvDefault("FILEDROP_BLOB_BACKEND", BlobBackendDisk)
	switch cfg.BlobBackend {
	case BlobBackendDisk:
	case BlobBackendMinio:
		if cfg.MinioEndpoint, err = getEnvRequired("FILEDROP_MINIO_ENDPOINT"); err != nil {
			return nil, err
		}
		cfg.MinioAccessKey = getEnvDefault("FILEDROP_MINIO_ACCESS_KEY", "")
		cfg.MinioSecretKey = getEnvDefault("FILEDROP_MINIO_SECRET_KEY", "")
		cfg.MinioBucket = getEnvDefault("FILEDROP_MINIO_BUCKET", "gofiledrop")
		if cfg.MinioUseSSL, err = getEnvBool("FILEDROP_MINIO_USE_SSL", false); err != nil {
			return nil, fmt.Errorf("FILEDROP_MINIO_USE_SSL: %w", err)
		}
	default:
		return nil, fmt.Errorf("FILEDROP_BLOB_BACKEND: invalid value %q, allowed: disk, minio", cfg.BlobBackend)
	}

	if cfg.CodeTTL, err = getEnvPositiveDuration("FILEDROP_CODE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.LinkTTL, err = getEnvPositiveDuration("FILEDROP_LINK_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getEnvPositiveDuration("FILEDROP_SWEEP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvPositiveDuration("FILEDROP_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.MaxUploadSize, err = getEnvInt64("FILEDROP_MAX_UPLOAD_SIZE", 1<<30); err != nil {
		return nil, fmt.Errorf("FILEDROP_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("FILEDROP_MAX_UPLOAD_SIZE: value must be positive")
	}

	if cfg.MaxConcurrentUploads, err = getEnvInt("FILEDROP_MAX_CONCURRENT_UPLOADS", 10); err != nil {
		return nil, fmt.Errorf("FILEDROP_MAX_CONCURRENT_UPLOADS: %w", err)
	}
	if cfg.MaxConcurrentUploads <= 0 {
		return nil, fmt.Errorf("FILEDROP_MAX_CONCURRENT_UPLOADS: value must be positive")
	}

	cfg.GRPCAddr = getEnvDefault("FILEDROP_GRPC_ADDR", ":50051")
	cfg.MetricsAddr = getEnvDefault("FILEDROP_METRICS_ADDR", ":9091")
	cfg.RegistryAddr = getEnvDefault("FILEDROP_REGISTRY_ADDR", "localhost:50051")
	cfg.HTTPAddr = getEnvDefault("FILEDROP_HTTP_ADDR", ":8001")

	if cfg.LogLevel, err = parseLogLevel(getEnvDefault("FILEDROP_LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("FILEDROP_LOG_LEVEL: %w", err)
	}
	cfg.LogFormat = getEnvDefault("FILEDROP_LOG_FORMAT", "text")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FILEDROP_LOG_FORMAT: invalid value %q, allowed: json, text", cfg.LogFormat)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер по конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: required environment variable is not set", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %q", val)
	}
	return n, nil
}

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %q", val)
	}
	return n, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid bool: %q", val)
	}
	return b, nil
}

// getEnvPositiveDuration читает длительность в формате Go (10m, 24h) и требует > 0.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q (use Go format: 30s, 10m, 1h)", key, val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be positive", key)
	}
	return d, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid level %q, allowed: debug, info, warn, error", level)
	}
}
