package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"image-moderation/cmd"
	"image-moderation/internal/config"
	"image-moderation/internal/messaging"
	"image-moderation/internal/pipeline"
)

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cmd.ConfigureLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.RabbitMQURL == "" {
		log.Fatalf("RABBITMQ_URL must be set for the resume worker")
	}

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

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	// The worker republishes retries itself, so the pipeline gets no publisher.
	p := cmd.CreatePipeline(cfg, cmd.PipelineDeps{Store: store, Classifier: classifier, DB: db})

	worker := pipeline.NewResumeWorker(p, publisher, receiver, cfg.ResumeMaxAttempts, messaging.RetryDelay)

	go worker.Start()

	slog.Info("worker started, waiting for tasks")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutdown signal received, stopping worker")
	worker.Stop()

	slog.Info("worker process stopped")
}
