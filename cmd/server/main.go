package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/humberto2626/Ready-Sit-Play-V2/internal/api"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/compiler"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/config"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/database"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/ledger"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/logging"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/media"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/objectstore"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/thumbnail"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/uploader"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults apply when empty)")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(conf.LogLevel)

	handle := database.NewHandle(database.Config{
		Type:       "sqlite",
		SQLitePath: conf.Database.Path,
	})
	db, err := handle.Open()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open local store")
	}
	defer handle.Close()

	version, err := database.NewMigrator(db).Run(context.Background())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	logger.Info().Int("schema_version", version).Str("path", conf.Database.Path).Msg("local store ready")

	validator := media.NewValidator(conf.Upload.MaxBlobSize)
	captures := database.NewCaptureRepository(db, validator)

	if n, err := captures.BackfillMIMETypes(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("mime-type backfill failed")
	} else if n > 0 {
		logger.Info().Int64("records", n).Msg("backfilled legacy mime types")
	}

	ledgerDB, err := database.Open(database.Config{
		Type:       conf.Ledger.Type,
		Host:       conf.Ledger.Host,
		Port:       conf.Ledger.Port,
		User:       conf.Ledger.User,
		Password:   conf.Ledger.Pass,
		Name:       conf.Ledger.Name,
		SQLitePath: conf.Ledger.Path,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open sync status ledger")
	}
	defer ledgerDB.Close()

	led := ledger.NewSQLLedger(ledgerDB)
	if err := led.EnsureSchema(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare ledger schema")
	}

	gateway, err := objectstore.NewLocal(conf.ObjectStore.Root, conf.ObjectStore.PublicBaseURL, map[string]int64{
		conf.ObjectStore.MediaBucket:     conf.ObjectStore.MediaSizeLimit,
		conf.ObjectStore.ThumbnailBucket: conf.ObjectStore.ThumbSizeLimit,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize object storage")
	}

	registry := prometheus.NewRegistry()
	metrics := uploader.NewMetrics(registry)
	queue := uploader.NewQueue(conf.Upload.QueueCapacity, conf.Upload.TaskDelay, logger, metrics)
	defer queue.Close()

	uploads := uploader.NewService(captures, led, gateway, queue,
		conf.ObjectStore.MediaBucket, conf.ObjectStore.ThumbnailBucket, logger)

	app := &api.App{
		Captures:      captures,
		Games:         database.NewGameRepository(db),
		Ledger:        led,
		Gateway:       gateway,
		Uploads:       uploads,
		MediaBucket:   conf.ObjectStore.MediaBucket,
		ThumbBucket:   conf.ObjectStore.ThumbnailBucket,
		MaxUploadSize: conf.ObjectStore.MediaSizeLimit,
		Logger:        logger,
		CompileOptions: compiler.Options{
			Width:             conf.Compile.Width,
			Height:            conf.Compile.Height,
			FPS:               conf.Compile.FPS,
			TransitionSeconds: conf.Compile.TransitionSeconds,
			ClipTimeout:       conf.Compile.ClipTimeout,
			JobTimeout:        conf.Compile.JobTimeout,
		},
	}

	// Both depend on ffmpeg. The service still runs without it: thumbnails
	// are skipped and compilation answers 503.
	thumbs, err := thumbnail.NewGenerator(conf.Thumbnail.Timeout, conf.Thumbnail.MaxDimension, conf.Thumbnail.JPEGQuality, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("thumbnail generation disabled")
	} else {
		app.Thumbnails = thumbs
	}
	comp, err := compiler.New(logger)
	if err != nil {
		logger.Warn().Err(err).Msg("compilation disabled")
	} else {
		app.Compiler = comp
	}

	router := api.NewRouter(app, registry)
	addr := fmt.Sprintf("%s:%d", conf.Server.Host, conf.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown did not complete cleanly")
	}
}
