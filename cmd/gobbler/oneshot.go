package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/internal/assembler"
	"github.com/yokitheyo/gobbler/internal/config"
	"github.com/yokitheyo/gobbler/internal/domain"
)

var outFile string

var mosaicCmd = &cobra.Command{
	Use:   "mosaic",
	Short: "Save a single mosaic of collected images and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(cmd, func(ctx context.Context, cfg *config.Config, src domain.ImageSource) assembler.Assembler {
			return assembler.NewMosaic(ctx, cfg, src)
		})
	},
}

var singleCmd = &cobra.Command{
	Use:   "single",
	Short: "Save one collected image, resized to the output size, and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(cmd, func(ctx context.Context, cfg *config.Config, src domain.ImageSource) assembler.Assembler {
			return assembler.NewSimple(ctx, cfg, src)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{mosaicCmd, singleCmd} {
		rootCmd.AddCommand(c)
		c.Flags().StringVarP(&outFile, "out", "o", "", "Output file (default is output.filename)")
	}
}

func oneShot(cmd *cobra.Command, build func(context.Context, *config.Config, domain.ImageSource) assembler.Assembler) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	imagePool, err := newPool(cfg, nil)
	if err != nil {
		return err
	}
	a := build(ctx, cfg, imagePool)
	defer a.Shutdown()

	path := outFile
	if path == "" {
		path = cfg.Output.Filename
	}
	if err := a.SaveImageTo(ctx, path); err != nil {
		return err
	}
	zlog.Logger.Info().Str("path", path).Str("mode", cmd.Name()).Msg("image saved")
	return nil
}
