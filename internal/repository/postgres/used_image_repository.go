package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/internal/domain"
)

type usedImageRepository struct {
	db       *dbpg.DB
	strategy retry.Strategy
}

func NewUsedImageRepository(db *dbpg.DB, strategy retry.Strategy) domain.HistoryRepository {
	return &usedImageRepository{
		db:       db,
		strategy: strategy,
	}
}

func (r *usedImageRepository) Record(ctx context.Context, used *domain.UsedImage) error {
	query := `
		INSERT INTO used_images (id, filename, source, sha1, width, height, used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecWithRetry(ctx, r.strategy, query,
		used.ID,
		used.Filename,
		used.Source,
		used.SHA1,
		used.Width,
		used.Height,
		used.UsedAt,
	)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("filename", used.Filename).Msg("failed to record used image")
		return fmt.Errorf("record used image: %w", err)
	}

	zlog.Logger.Debug().Str("id", used.ID).Str("filename", used.Filename).Msg("used image recorded")
	return nil
}

func (r *usedImageRepository) Recent(ctx context.Context, limit int) ([]*domain.UsedImage, error) {
	query := `
		SELECT id, filename, source, sha1, width, height, used_at
		FROM used_images
		ORDER BY used_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryWithRetry(ctx, r.strategy, query, limit)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to list used images")
		return nil, fmt.Errorf("list used images: %w", err)
	}
	defer rows.Close()

	return scanUsedImages(rows)
}

func (r *usedImageRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	row := r.db.Master.QueryRowContext(ctx, `SELECT COUNT(*) FROM used_images`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count used images: %w", err)
	}
	return n, nil
}

func scanUsedImages(rows *sql.Rows) ([]*domain.UsedImage, error) {
	var images []*domain.UsedImage
	for rows.Next() {
		var img domain.UsedImage
		err := rows.Scan(
			&img.ID,
			&img.Filename,
			&img.Source,
			&img.SHA1,
			&img.Width,
			&img.Height,
			&img.UsedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan used image: %w", err)
		}
		images = append(images, &img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate used images: %w", err)
	}
	return images, nil
}
