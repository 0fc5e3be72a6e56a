package storage

import (
	"errors"
	"fmt"

	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/internal/config"
	"github.com/yokitheyo/gobbler/internal/domain"
)

var ErrObjectNotFound = errors.New("object not found")

// New returns the output storage selected by cfg.Type.
func New(cfg *config.StorageConfig) (domain.StorageService, error) {
	switch cfg.Type {
	case "", "local":
		zlog.Logger.Info().Str("path", cfg.LocalPath).Msg("Initializing local storage")
		st, err := NewLocalStorage(cfg)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "s3":
		zlog.Logger.Info().Str("endpoint", cfg.S3Endpoint).Str("bucket", cfg.S3Bucket).Msg("Initializing S3 storage")
		st, err := NewS3Storage(cfg)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		zlog.Logger.Error().Str("type", cfg.Type).Msg("Unsupported storage type, use 'local' or 's3'")
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
