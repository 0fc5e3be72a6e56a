// Package assembler turns images pulled from the pool into output pictures.
package assembler

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/internal/config"
	"github.com/yokitheyo/gobbler/internal/domain"
	"github.com/yokitheyo/gobbler/internal/infrastructure/processor"
)

// Assembler is implemented by every assembler variant.
type Assembler interface {
	SaveImageTo(ctx context.Context, path string) error
	Shutdown()
}

// base owns the image source. The source is started on construction and
// stopped by Shutdown.
type base struct {
	cfg     *config.Config
	source  domain.ImageSource
	log     zerolog.Logger
	quality int
}

func newBase(ctx context.Context, cfg *config.Config, source domain.ImageSource, name string) base {
	source.Start(ctx)
	return base{
		cfg:     cfg,
		source:  source,
		log:     zlog.Logger.With().Str("component", name).Logger(),
		quality: cfg.Output.Quality,
	}
}

func (b *base) Shutdown() {
	b.source.Shutdown()
}

func (b *base) width() int  { return b.cfg.Assembler.SizeX }
func (b *base) height() int { return b.cfg.Assembler.SizeY }

// filters applies the optional mirror, emboss and invert filters.
func (b *base) filters(img *image.NRGBA, embossBlend float64) *image.NRGBA {
	a := b.cfg.Assembler
	if a.Mirror {
		img = imaging.FlipH(img)
	}
	if a.Emboss {
		img = processor.Emboss(img, embossBlend)
	}
	if a.Invert {
		img = imaging.Invert(img)
	}
	return img
}

// WriteImage encodes img in the format named by the extension of path.
// The file is replaced atomically.
func WriteImage(img image.Image, path string, quality int) error {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return err
	}
	if quality <= 0 {
		quality = 85
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*"+filepath.Ext(path))
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := imaging.Encode(tmp, img, format, imaging.JPEGQuality(quality)); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
