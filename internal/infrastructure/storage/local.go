package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/internal/config"
)

type localStorage struct {
	basePath string
}

func NewLocalStorage(cfg *config.StorageConfig) (*localStorage, error) {
	if cfg.LocalPath == "" {
		return nil, fmt.Errorf("LocalPath is empty, set output.storage.local_path in config or env")
	}
	if err := os.MkdirAll(cfg.LocalPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &localStorage{basePath: cfg.LocalPath}, nil
}

// Save replaces name atomically, so readers never see a half-written image.
func (s *localStorage) Save(ctx context.Context, name string, reader io.Reader) (string, error) {
	if reader == nil {
		zlog.Logger.Error().Str("filename", name).Msg("reader is nil")
		return "", fmt.Errorf("reader is nil")
	}

	fullPath := filepath.Join(s.basePath, name)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("create dir for %s: %w", fullPath, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".tmp-*")
	if err != nil {
		zlog.Logger.Error().Err(err).Str("path", fullPath).Msg("failed to create file")
		return "", fmt.Errorf("create file %s: %w", fullPath, err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		zlog.Logger.Error().Err(err).Str("path", fullPath).Msg("failed to write file")
		return "", fmt.Errorf("write file %s: %w", fullPath, err)
	}
	if written == 0 {
		return "", fmt.Errorf("no bytes written to file %s", fullPath)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return "", fmt.Errorf("rename to %s: %w", fullPath, err)
	}

	zlog.Logger.Debug().
		Str("path", name).
		Int64("bytes", written).
		Msg("file saved")
	return name, nil
}

func (s *localStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath := filepath.Join(s.basePath, path)
	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, path)
		}
		zlog.Logger.Error().Err(err).Str("path", fullPath).Msg("failed to open file")
		return nil, fmt.Errorf("open file %s: %w", fullPath, err)
	}
	return file, nil
}

func (s *localStorage) Delete(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	fullPath := filepath.Join(s.basePath, path)
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			zlog.Logger.Warn().Str("path", fullPath).Msg("file not found, skipping delete")
			return nil
		}
		return fmt.Errorf("delete file %s: %w", fullPath, err)
	}
	zlog.Logger.Info().Str("path", path).Msg("file deleted")
	return nil
}
