// Command worker runs the statement-processing consumer on its own. With the
// in-memory queue it only serves single-process setups; pointing the queue
// interfaces at a broker makes this the horizontally scaled deployment.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfigueredo/spendy/internal/config"
	"github.com/mfigueredo/spendy/internal/extraction"
	"github.com/mfigueredo/spendy/internal/jobs"
	"github.com/mfigueredo/spendy/internal/jobs/inmemory"
	"github.com/mfigueredo/spendy/internal/logger"
	"github.com/mfigueredo/spendy/internal/objstore"
	"github.com/mfigueredo/spendy/internal/pipeline"
	"github.com/mfigueredo/spendy/internal/storage/sqlite"
	"github.com/mfigueredo/spendy/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := context.Background()

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to open database")
	}
	defer store.Close()

	var objects pipeline.ObjectStore
	if cfg.GCSBucket != "" {
		gcs, err := objstore.NewGCSStore(ctx, cfg.GCSBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS store")
		}
		defer gcs.Close()
		objects = gcs
	} else {
		fs, err := objstore.NewFSStore(cfg.LocalStorageDir)
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.LocalStorageDir).Msg("Failed to create local file store")
		}
		objects = fs
	}

	extractor, err := extraction.NewGeminiExtractor(ctx, cfg.ExtractionModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extraction client")
	}

	processor := pipeline.NewProcessor(store, objects, extractor, log)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.JobQueueSize, jobStore,
		inmemory.WithWorkers(cfg.WorkerCount),
		inmemory.WithRetryable(pipeline.IsRetryable),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobHandler := worker.NewHandler(processor, objects, log)
	timedHandler := func(ctx context.Context, job jobs.Job) (jobs.HandlerResult, error) {
		ctx, cancel := context.WithTimeout(ctx, cfg.ExtractionTimeout)
		defer cancel()
		return jobHandler(ctx, job)
	}

	if err := jobQueue.Start(runCtx, timedHandler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Int("workers", cfg.WorkerCount).Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}
