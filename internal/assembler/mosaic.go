package assembler

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/yokitheyo/gobbler/internal/config"
	"github.com/yokitheyo/gobbler/internal/domain"
)

// Mosaic fills an NbX x NbY grid with one pool image per cell.
type Mosaic struct {
	base
	nbX, nbY int
}

func NewMosaic(ctx context.Context, cfg *config.Config, source domain.ImageSource) *Mosaic {
	nbX, nbY := cfg.Assembler.Mosaic.NbX, cfg.Assembler.Mosaic.NbY
	if nbX <= 0 {
		nbX = 5
	}
	if nbY <= 0 {
		nbY = 5
	}
	return &Mosaic{base: newBase(ctx, cfg, source, "assembler_mosaic"), nbX: nbX, nbY: nbY}
}

// Render pulls every cell image, blocking for each.
func (m *Mosaic) Render(ctx context.Context) (*image.NRGBA, error) {
	canvas := imaging.New(m.width(), m.height(), color.Black)
	cellW, cellH := m.width()/m.nbX, m.height()/m.nbY

	for y := 0; y < m.nbY; y++ {
		for x := 0; x < m.nbX; x++ {
			pimg, err := m.source.ImageBlocking(ctx)
			if err != nil {
				return nil, fmt.Errorf("get image for cell %d,%d: %w", x, y, err)
			}
			cell := imaging.Resize(pimg.Image, cellW, cellH, imaging.Lanczos)
			canvas = imaging.Paste(canvas, cell, image.Pt(x*cellW, y*cellH))
		}
	}
	return m.filters(canvas, 0), nil
}

func (m *Mosaic) SaveImageTo(ctx context.Context, path string) error {
	m.log.Info().Str("path", path).Int("nbx", m.nbX).Int("nby", m.nbY).Msg("Generating image")
	img, err := m.Render(ctx)
	if err != nil {
		return err
	}
	if err := WriteImage(img, path, m.quality); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	m.log.Info().Str("path", path).Msg("Done")
	return nil
}
