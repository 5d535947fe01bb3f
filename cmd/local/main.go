package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"image-moderation/cmd"
	"image-moderation/internal/api"
	"image-moderation/internal/config"
	"image-moderation/internal/database"
	"image-moderation/internal/messaging"
	"image-moderation/internal/pipeline"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"
)

type LocalConfig struct {
	Root string `env:"ROOT" envDefault:"./moderation-local"`
	Port int    `env:"PORT" envDefault:"3001"`
}

// createQueue republishes images whose last run failed so that a restart
// picks them up again. At most messaging.InMemoryQueueSize records are loaded;
// any beyond that stay FAILED until a later restart.
func createQueue(ctx context.Context, db *gorm.DB, bucket string) (*messaging.InMemoryQueue, error) {
	failed, err := database.ListImageRecords(ctx, db, database.ImageFilter{
		Status: database.ImageFailed,
		Bucket: bucket,
		Limit:  messaging.InMemoryQueueSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch failed images from database: %w", err)
	}
	if len(failed) == messaging.InMemoryQueueSize {
		slog.Warn("more failed images than the resume queue holds, remaining images are requeued on next restart", "queued", len(failed))
	}

	queue := messaging.NewInMemoryQueue()

	for _, record := range failed {
		payload := messaging.ResumeTaskPayload{
			ImageId:     record.Id,
			Bucket:      record.Bucket,
			StagedKey:   record.StagedKey,
			FailedStage: record.Status,
			Attempt:     1,
		}
		if record.FinalKey.Valid {
			payload.FinalKey = record.FinalKey.String
			if payload.Labels, err = record.LabelNames(); err != nil {
				slog.Warn("ignoring stored labels for failed image", "image_id", record.Id, "error", err)
				payload.Labels = nil
			}
		}
		if err := queue.PublishResumeTask(ctx, payload); err != nil {
			queue.Close()
			return nil, fmt.Errorf("failed to publish resume task: %w", err)
		}
	}

	return queue, nil
}

func createServer(service *api.ModerationService, port int) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300, // Cache preflight response for 5 minutes
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)                    // Log requests
	r.Use(middleware.Recoverer)                 // Recover from panics
	r.Use(middleware.Timeout(60 * time.Second)) // Set request timeout

	r.Route("/api/v1", func(r chi.Router) {
		service.AddRoutes(r)
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
}

func main() {
	cmd.LoadEnvFile()

	var localCfg LocalConfig
	if err := env.Parse(&localCfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.StorageRoot == "" {
		cfg.StorageRoot = filepath.Join(localCfg.Root, "storage")
	}
	if cfg.DatabaseURL == "" {
		cfg.SQLitePath = filepath.Join(localCfg.Root, "db", "moderation.db")
	}

	cmd.ConfigureLogger(cfg.LogLevel, "text")

	slog.Info("starting local backend", "root", localCfg.Root, "port", localCfg.Port, "bucket", cfg.BucketName)

	ctx := context.Background()

	db, err := cmd.CreateDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store, err := cmd.CreateObjectStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create object store: %v", err)
	}

	classifier, err := cmd.CreateClassifier(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create classifier: %v", err)
	}

	queue, err := createQueue(ctx, db, cfg.BucketName)
	if err != nil {
		log.Fatalf("Failed to create resume queue: %v", err)
	}

	p := cmd.CreatePipeline(cfg, cmd.PipelineDeps{
		Store:      store,
		Classifier: classifier,
		DB:         db,
		Publisher:  queue,
	})

	worker := pipeline.NewResumeWorker(p, queue, queue, cfg.ResumeMaxAttempts, messaging.RetryDelay)

	server := createServer(api.NewModerationService(p, db, cfg.MaxUploadBytes), localCfg.Port)

	slog.Info("starting worker")
	go worker.Start()

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		slog.Info("shutting down worker")
		worker.Stop()
	}()

	slog.Info("server started", "port", localCfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", localCfg.Port, err)
	}

	slog.Info("server stopped")
}
