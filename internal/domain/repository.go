package domain

import "context"

type HistoryRepository interface {
	Record(ctx context.Context, used *UsedImage) error
	Recent(ctx context.Context, limit int) ([]*UsedImage, error)
	Count(ctx context.Context) (int64, error)
}
