package domain

import (
	"context"
	"io"
)

// ImageSource is what an assembler pulls images from.
type ImageSource interface {
	Start(ctx context.Context)
	Image() *PoolImage
	ImageBlocking(ctx context.Context) (*PoolImage, error)
	Size() int
	Shutdown()
}

type StorageService interface {
	Save(ctx context.Context, name string, reader io.Reader) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

type EventPublisher interface {
	PublishComposite(ctx context.Context, c *Composite) error
	Close() error
}
