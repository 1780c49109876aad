// Command api runs the statement ingestion HTTP service. It serves uploads
// and the dashboard read endpoints, and consumes parse jobs in-process so a
// single binary covers small deployments.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/mfigueredo/spendy/internal/api/handlers"
	"github.com/mfigueredo/spendy/internal/api/middleware"
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
		log.Info().Str("dir", cfg.LocalStorageDir).Msg("No GCS bucket configured, storing uploads locally")
	}

	extractor, err := extraction.NewGeminiExtractor(ctx, cfg.ExtractionModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extraction client")
	}

	processor := pipeline.NewProcessor(store, objects, extractor, log)

	// Job infrastructure: in-memory queue consumed by this same process.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.JobQueueSize, jobStore,
		inmemory.WithWorkers(cfg.WorkerCount),
		inmemory.WithRetryable(pipeline.IsRetryable),
	)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := worker.NewHandler(processor, objects, log)
	timedHandler := func(ctx context.Context, job jobs.Job) (jobs.HandlerResult, error) {
		ctx, cancel := context.WithTimeout(ctx, cfg.ExtractionTimeout)
		defer cancel()
		return jobHandler(ctx, job)
	}

	go func() {
		log.Info().Int("workers", cfg.WorkerCount).Msg("Starting job consumer")
		if err := jobQueue.Start(workerCtx, timedHandler); err != nil {
			log.Error().Err(err).Msg("Job consumer stopped with error")
		}
	}()

	statementsHandler := handlers.NewStatementsHandler(store, objects, jobQueue, cfg.MaxUploadSizeBytes, log)
	transactionsHandler := handlers.NewTransactionsHandler(store, log)
	categoriesHandler := &handlers.CategoriesHandler{}
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	apiMux := http.NewServeMux()

	apiMux.HandleFunc("/api/statements", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			statementsHandler.UploadStatement(w, r)
		case http.MethodGet:
			statementsHandler.ListStatements(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	apiMux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			transactionsHandler.ListTransactions(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	apiMux.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			categoriesHandler.ListCategories(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	apiMux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	apiMux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Authenticated and rate-limited API surface; health stays open for
	// load-balancer probes.
	api := middleware.Auth(middleware.RateLimit(rate.Limit(5), 10)(apiMux))

	mux := http.NewServeMux()
	mux.Handle("/api/", api)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
