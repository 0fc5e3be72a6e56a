package assembler

import (
	"context"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/yokitheyo/gobbler/internal/config"
	"github.com/yokitheyo/gobbler/internal/domain"
	"github.com/yokitheyo/gobbler/internal/infrastructure/processor"
)

// Simple outputs one pool image per call, shrunk to the canvas size.
type Simple struct {
	base
}

func NewSimple(ctx context.Context, cfg *config.Config, source domain.ImageSource) *Simple {
	return &Simple{base: newBase(ctx, cfg, source, "assembler_simple")}
}

func (s *Simple) SaveImageTo(ctx context.Context, path string) error {
	s.log.Info().Str("path", path).Msg("Generating image")
	pimg, err := s.source.ImageBlocking(ctx)
	if err != nil {
		return fmt.Errorf("get image: %w", err)
	}

	img := processor.ToNRGBA(imaging.Fit(pimg.Image, s.width(), s.height(), imaging.Lanczos))
	img = s.filters(img, 0.1)

	if err := WriteImage(img, path, s.quality); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	s.log.Info().Str("path", path).Str("source", pimg.Source).Msg("Done")
	return nil
}
