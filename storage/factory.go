package storage

import (
	"context"
	"fmt"

	"github.com/warp/hr-engine/config"
)

// New builds the FileStore selected by cfg.Type, wrapped in Encrypted when
// an encryption key is configured.
func New(ctx context.Context, cfg config.StorageConfig) (FileStore, error) {
	var fs FileStore
	switch cfg.Type {
	case "memory":
		fs = NewMemory()
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem storage requires root to be set")
		}
		local, err := NewFileSystem(cfg.Root)
		if err != nil {
			return nil, err
		}
		fs = local
	case "s3":
		remote, err := NewS3(ctx, S3Options{
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		fs = remote
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}

	if cfg.EncryptKey == "" {
		return fs, nil
	}
	return NewEncrypted(fs, cfg.EncryptKey)
}
