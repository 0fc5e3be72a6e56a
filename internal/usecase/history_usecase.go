package usecase

import (
	"context"

	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/internal/domain"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// HistoryUsecase reads the consumed-image history. repo may be nil when
// history is disabled.
type HistoryUsecase struct {
	repo domain.HistoryRepository
}

func NewHistoryUsecase(repo domain.HistoryRepository) *HistoryUsecase {
	return &HistoryUsecase{repo: repo}
}

func (u *HistoryUsecase) Enabled() bool { return u.repo != nil }

func (u *HistoryUsecase) Recent(ctx context.Context, limit int) ([]*domain.UsedImage, error) {
	if u.repo == nil {
		return nil, domain.ErrHistoryDisabled
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	images, err := u.repo.Recent(ctx, limit)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to list used images")
		return nil, err
	}
	return images, nil
}

func (u *HistoryUsecase) Count(ctx context.Context) (int64, error) {
	if u.repo == nil {
		return 0, domain.ErrHistoryDisabled
	}
	return u.repo.Count(ctx)
}
