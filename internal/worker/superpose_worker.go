package worker

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/internal/domain"
	"github.com/yokitheyo/gobbler/internal/dto"
)

// Superposer is the part of the superpose assembler remote requests drive.
type Superposer interface {
	Superpose() bool
	SuperposeBlocking(ctx context.Context) error
	Image() *image.NRGBA
	Err() error
}

type Publisher interface {
	Publish(ctx context.Context, img image.Image) (*domain.Composite, error)
}

// SuperposeWorker handles superpose requests coming from the queue.
type SuperposeWorker struct {
	assembler Superposer
	output    Publisher
}

// NewSuperposeWorker создает нового воркера
func NewSuperposeWorker(assembler Superposer, output Publisher) *SuperposeWorker {
	return &SuperposeWorker{
		assembler: assembler,
		output:    output,
	}
}

func (w *SuperposeWorker) HandleSuperposeRequest(ctx context.Context, req *dto.SuperposeRequest) error {
	if !req.Wait {
		accepted := w.assembler.Superpose()
		if err := w.assembler.Err(); !accepted && errors.Is(err, domain.ErrPersistence) {
			zlog.Logger.Error().Err(err).Str("request_id", req.RequestID).Msg("superpose assembler has stopped")
			return fmt.Errorf("superpose for %s: %w", req.RequestID, err)
		}
		zlog.Logger.Info().
			Str("request_id", req.RequestID).
			Bool("accepted", accepted).
			Msg("superpose requested")
		return nil
	}

	zlog.Logger.Info().Str("request_id", req.RequestID).Msg("starting superpose session")
	if err := w.assembler.SuperposeBlocking(ctx); err != nil {
		zlog.Logger.Error().Err(err).Str("request_id", req.RequestID).Msg("superpose session failed")
		return fmt.Errorf("superpose for %s: %w", req.RequestID, err)
	}

	c, err := w.output.Publish(ctx, w.assembler.Image())
	if err != nil {
		return fmt.Errorf("publish for %s: %w", req.RequestID, err)
	}

	zlog.Logger.Info().
		Str("request_id", req.RequestID).
		Str("composite_id", c.ID).
		Msg("superpose request completed")
	return nil
}
