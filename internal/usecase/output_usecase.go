package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"image"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/internal/config"
	"github.com/yokitheyo/gobbler/internal/domain"
)

var refreshPage = template.Must(template.New("page").Parse(`<html>
<head>
<meta http-equiv="refresh" content="{{.Refresh}}">
<title>gobbler</title>
</head>
<body style="background-color:#000000; margin:0">
<center><img src="{{.Image}}?{{.Stamp}}" alt="gobbler"></center>
</body>
</html>
`))

// OutputUsecase writes every final image to storage, keeps an optional
// auto-refreshing HTML page next to it and announces the new composite.
type OutputUsecase struct {
	storage   domain.StorageService
	publisher domain.EventPublisher

	filename string
	htmlPage string
	quality  int
	refresh  int
	format   imaging.Format

	mu     sync.RWMutex
	latest *domain.Composite
}

// NewOutputUsecase fails if the output filename has no supported image
// extension. publisher may be nil.
func NewOutputUsecase(cfg *config.Config, storage domain.StorageService, publisher domain.EventPublisher) (*OutputUsecase, error) {
	format, err := imaging.FormatFromFilename(cfg.Output.Filename)
	if err != nil {
		return nil, fmt.Errorf("output.filename %q: %w", cfg.Output.Filename, err)
	}
	refresh := cfg.Program.EverySec
	if refresh <= 0 {
		refresh = 60
	}
	return &OutputUsecase{
		storage:   storage,
		publisher: publisher,
		filename:  cfg.Output.Filename,
		htmlPage:  cfg.Output.HTMLPage,
		quality:   cfg.Output.Quality,
		refresh:   refresh,
		format:    format,
	}, nil
}

func (u *OutputUsecase) Publish(ctx context.Context, img image.Image) (*domain.Composite, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, domain.ErrNoImage
	}
	b := img.Bounds()

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, u.format, imaging.JPEGQuality(u.quality)); err != nil {
		zlog.Logger.Error().Err(err).Str("filename", u.filename).Msg("failed to encode image")
		return nil, fmt.Errorf("encode image: %w", err)
	}

	path, err := u.storage.Save(ctx, u.filename, &buf)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("filename", u.filename).Msg("failed to save image")
		return nil, fmt.Errorf("save image: %w", err)
	}

	composite := &domain.Composite{
		ID:        uuid.New().String(),
		Path:      path,
		Width:     b.Dx(),
		Height:    b.Dy(),
		CreatedAt: time.Now().UTC(),
	}

	if u.htmlPage != "" {
		if err := u.writePage(ctx, composite); err != nil {
			zlog.Logger.Error().Err(err).Str("page", u.htmlPage).Msg("failed to write html page")
		}
	}

	if u.publisher != nil {
		if err := u.publisher.PublishComposite(ctx, composite); err != nil {
			zlog.Logger.Error().Err(err).Str("composite_id", composite.ID).Msg("failed to publish composite event")
		}
	}

	u.mu.Lock()
	u.latest = composite
	u.mu.Unlock()

	zlog.Logger.Info().
		Str("composite_id", composite.ID).
		Str("path", path).
		Int("width", composite.Width).
		Int("height", composite.Height).
		Int("bytes", buf.Len()).
		Msg("image published")
	return composite, nil
}

func (u *OutputUsecase) writePage(ctx context.Context, c *domain.Composite) error {
	src, err := filepath.Rel(filepath.Dir(u.htmlPage), u.filename)
	if err != nil {
		src = u.filename
	}
	var page bytes.Buffer
	err = refreshPage.Execute(&page, struct {
		Refresh int
		Image   string
		Stamp   int64
	}{u.refresh, filepath.ToSlash(src), c.CreatedAt.Unix()})
	if err != nil {
		return err
	}
	_, err = u.storage.Save(ctx, u.htmlPage, &page)
	return err
}

// Latest is the last published composite, or nil.
func (u *OutputUsecase) Latest() *domain.Composite {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.latest
}

// OpenLatest opens the stored file of the last published composite.
func (u *OutputUsecase) OpenLatest(ctx context.Context) (io.ReadCloser, *domain.Composite, error) {
	c := u.Latest()
	if c == nil {
		return nil, nil, domain.ErrNoImage
	}
	rc, err := u.storage.Open(ctx, c.Path)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("path", c.Path).Msg("failed to open published image")
		return nil, nil, errors.Join(domain.ErrNoImage, err)
	}
	return rc, c, nil
}

// ContentType of the published image.
func (u *OutputUsecase) ContentType() string {
	switch u.format {
	case imaging.PNG:
		return "image/png"
	case imaging.GIF:
		return "image/gif"
	case imaging.BMP:
		return "image/bmp"
	case imaging.TIFF:
		return "image/tiff"
	default:
		return "image/jpeg"
	}
}
