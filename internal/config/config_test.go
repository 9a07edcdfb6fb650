package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 10*time.Minute, cfg.CodeTTL)
	require.Equal(t, 24*time.Hour, cfg.LinkTTL)
	require.Equal(t, time.Hour, cfg.SweepInterval)
	require.Equal(t, int64(1<<30), cfg.MaxUploadSize)
	require.Equal(t, BlobBackendDisk, cfg.BlobBackend)
	require.Equal(t, slog.LevelInfo, cfg.LogLevel)
	require.Equal(t, ":50051", cfg.GRPCAddr)
	require.Equal(t, "localhost:50051", cfg.RegistryAddr)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("FILEDROP_CODE_TTL", "30s")
	t.Setenv("FILEDROP_LINK_TTL", "2h")
	t.Setenv("FILEDROP_MAX_UPLOAD_SIZE", "1024")
	t.Setenv("FILEDROP_LOG_LEVEL", "debug")
	t.Setenv("FILEDROP_LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.CodeTTL)
	require.Equal(t, 2*time.Hour, cfg.LinkTTL)
	require.Equal(t, int64(1024), cfg.MaxUploadSize)
	require.Equal(t, slog.LevelDebug, cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_Minio(t *testing.T) {
	t.Setenv("FILEDROP_BLOB_BACKEND", "minio")

	_, err := Load()
	require.ErrorContains(t, err, "FILEDROP_MINIO_ENDPOINT")

	t.Setenv("FILEDROP_MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("FILEDROP_MINIO_USE_SSL", "true")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "gofiledrop", cfg.MinioBucket)
	require.True(t, cfg.MinioUseSSL)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"FILEDROP_BLOB_BACKEND":           "s3",
		"FILEDROP_CODE_TTL":               "ten minutes",
		"FILEDROP_LINK_TTL":               "-1h",
		"FILEDROP_MAX_UPLOAD_SIZE":        "0",
		"FILEDROP_MAX_CONCURRENT_UPLOADS": "many",
		"FILEDROP_LOG_LEVEL":              "trace",
		"FILEDROP_LOG_FORMAT":             "xml",
	}

	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			require.ErrorContains(t, err, key)
		})
	}
}
