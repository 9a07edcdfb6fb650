package blob

import (
	"context"
	"fmt"

	"github.com/kfcempoyee/gofiledrop/internal/config"
)

// FromConfig открывает хранилище, выбранное в FILEDROP_BLOB_BACKEND.
// оба процесса должны смотреть в одно и то же хранилище.
func FromConfig(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendDisk:
		return NewDiskStore(cfg.DataDir)
	case config.BlobBackendMinio:
		return NewMinioStore(ctx, MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}
