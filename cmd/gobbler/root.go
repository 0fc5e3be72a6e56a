package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/internal/collector"
	"github.com/yokitheyo/gobbler/internal/config"
	"github.com/yokitheyo/gobbler/internal/domain"
	"github.com/yokitheyo/gobbler/internal/pool"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gobbler",
	Short: "Build an ever-changing image from pictures collected on the web",
	Long: strings.TrimSpace(`
Collectors pick random images from web sources or the local disk and stage
them in a pool directory. An assembler blends them into a composite that
keeps evolving, saved periodically to the configured output.
`),
	SilenceUsage: true,
}

// Execute is called by main.main(). It only needs to happen once.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml or /app/config.yaml)")
}

// loadConfig initializes logging, reads the config file and applies the
// configured log level.
func loadConfig() (*config.Config, error) {
	zlog.Init()
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	level := zerolog.InfoLevel
	if cfg.Logging.Level != "" {
		if l, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level)); err == nil {
			level = l
		} else {
			zlog.Logger.Warn().Str("level", cfg.Logging.Level).Msg("unknown log level, using info")
		}
	}
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	return cfg, nil
}

// newPool wires the configured sources into collector workers and a pool
// fed by them. Nothing is started.
func newPool(cfg *config.Config, history domain.HistoryRepository) (*pool.Pool, error) {
	sources, err := collector.BuildSources(cfg)
	if err != nil {
		return nil, err
	}
	workers := collector.NewWorkers(cfg, sources)
	collectors := make([]pool.Collector, 0, len(workers))
	for _, w := range workers {
		collectors = append(collectors, w)
	}

	var opts []pool.Option
	if history != nil {
		opts = append(opts, pool.WithHistory(history))
	}
	zlog.Logger.Info().Int("collectors", len(collectors)).Str("dir", cfg.Pool.ImagePoolDirectory).Msg("pool configured")
	return pool.New(cfg, collectors, opts...)
}
