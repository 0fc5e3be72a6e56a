package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/internal/assembler"
	"github.com/yokitheyo/gobbler/internal/config"
	"github.com/yokitheyo/gobbler/internal/domain"
	httpHandler "github.com/yokitheyo/gobbler/internal/handler/http"
	"github.com/yokitheyo/gobbler/internal/handler/middleware"
	infradatabase "github.com/yokitheyo/gobbler/internal/infrastructure/database"
	"github.com/yokitheyo/gobbler/internal/infrastructure/kafka"
	"github.com/yokitheyo/gobbler/internal/infrastructure/storage"
	"github.com/yokitheyo/gobbler/internal/repository/postgres"
	"github.com/yokitheyo/gobbler/internal/retry"
	"github.com/yokitheyo/gobbler/internal/usecase"
	"github.com/yokitheyo/gobbler/internal/worker"
)

var (
	runOnce  bool
	runFresh bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect images and keep superposing them into the output image",
	Long: `Starts the collectors, the pool and the superpose assembler, then saves a
new composite every program.every seconds until interrupted.

With server.enabled the current image and the program status are served
over HTTP. With kafka.enabled each composite is announced on kafka.topic and
superpose requests are read from kafka.request_topic.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Save a single composite and exit")
	runCmd.Flags().BoolVar(&runFresh, "fresh", false, "Ignore the image persisted by a previous run")
}

func run(ctx context.Context, cfg *config.Config) error {
	zlog.Logger.Info().Msg("Starting gobbler")

	var (
		database *dbpg.DB
		history  domain.HistoryRepository
	)
	if cfg.Database.Enabled {
		db, err := infradatabase.Connect(&cfg.Database)
		if err != nil {
			return err
		}
		database = db
		defer infradatabase.Close(database)

		zlog.Logger.Info().Msg("Running database migrations...")
		if err := infradatabase.RunMigrations(database, cfg.Migrations.Path); err != nil {
			return err
		}
		history = postgres.NewUsedImageRepository(database, retry.DefaultStrategy)
	}

	storageService, err := storage.New(&cfg.Output.Storage)
	if err != nil {
		return err
	}

	var (
		producer  *kafka.Producer
		publisher domain.EventPublisher
	)
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(&cfg.Kafka)
		defer producer.Close()
		publisher = producer
	}

	output, err := usecase.NewOutputUsecase(cfg, storageService, publisher)
	if err != nil {
		return err
	}

	imagePool, err := newPool(cfg, history)
	if err != nil {
		return err
	}

	var opts []assembler.SuperposeOption
	if runFresh {
		opts = append(opts, assembler.WithFreshStart())
	}
	superpose := assembler.NewSuperpose(ctx, cfg, imagePool, opts...)
	defer superpose.Shutdown()

	superposeWorker := worker.NewSuperposeWorker(superpose, output)

	if cfg.Kafka.Enabled && cfg.Kafka.RequestTopic != "" {
		consumer := kafka.NewConsumer(&cfg.Kafka, superposeWorker.HandleSuperposeRequest)
		defer consumer.Close()
		consumerCtx, stopConsumer := context.WithCancel(ctx)
		defer stopConsumer()
		go func() {
			if err := consumer.Start(consumerCtx); err != nil {
				zlog.Logger.Error().Err(err).Msg("kafka consumer stopped")
			}
		}()
	}

	if cfg.Server.Enabled {
		srv := newServer(cfg, superpose, imagePool, output, usecase.NewHistoryUsecase(history), superposeWorker)
		go func() {
			zlog.Logger.Info().Str("addr", cfg.Server.Addr).Msg("Starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zlog.Logger.Error().Err(err).Msg("HTTP server failed")
			}
		}()
		defer shutdownServer(cfg, srv)
	}

	every := time.Duration(cfg.Program.EverySec) * time.Second
	err = superposeLoop(ctx, superpose, output, every, runOnce)
	zlog.Logger.Info().Int("sessions", superpose.Sessions()).Msg("Shutting down")
	return err
}

// superposeLoop runs a session, publishes it and sleeps every, until ctx
// ends. It fails only when the assembler could not save its composite.
func superposeLoop(ctx context.Context, a worker.Superposer, out worker.Publisher, every time.Duration, once bool) error {
	for {
		err := a.SuperposeBlocking(ctx)
		switch {
		case errors.Is(err, domain.ErrPersistence):
			zlog.Logger.Error().Err(err).Msg("superpose assembler stopped")
			return fmt.Errorf("superpose assembler stopped: %w", err)
		case ctx.Err() != nil || errors.Is(err, domain.ErrShutdown):
			return nil
		case err != nil:
			zlog.Logger.Error().Err(err).Msg("superpose session failed")
		default:
			if _, err := out.Publish(ctx, a.Image()); err != nil {
				zlog.Logger.Error().Err(err).Msg("failed to publish composite")
			}
		}

		if once {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(every):
		}
	}
}

func newServer(cfg *config.Config, superpose *assembler.Superpose, status httpHandler.PoolStatus, output httpHandler.Output, history httpHandler.History, requests httpHandler.RequestHandler) *http.Server {
	engine := ginext.New("api")
	engine.Use(
		middleware.ErrorHandlerMiddleware(),
		middleware.LoggerMiddleware(),
		middleware.CORSMiddleware(),
	)

	handler := httpHandler.NewCompositeHandler(superpose, status, cfg.Pool.NbImages, output, history, requests)
	handler.RegisterRoutes(engine)

	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}
}

func shutdownServer(cfg *config.Config, srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
	} else {
		zlog.Logger.Info().Msg("HTTP server stopped gracefully")
	}
}
