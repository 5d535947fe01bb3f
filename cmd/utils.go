package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"image-moderation/internal/config"
	"image-moderation/internal/database"
	"image-moderation/internal/messaging"
	"image-moderation/internal/metrics"
	"image-moderation/internal/moderation"
	"image-moderation/internal/pipeline"
	"image-moderation/internal/storage"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func ConfigureLogger(level, format string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		log.Printf("invalid log level '%s', using info", level)
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func CreateObjectStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	if cfg.StorageRoot != "" {
		slog.Info("using local object store", "root", cfg.StorageRoot, "bucket", cfg.BucketName)
		store, err := storage.NewLocalObjectStore(cfg.StorageRoot, cfg.BucketName)
		if err != nil {
			return nil, err
		}
		if cfg.BucketName != "" {
			if err := store.CreateBucket(ctx); err != nil {
				return nil, err
			}
		}
		return store, nil
	}

	slog.Info("using s3 object store", "endpoint", cfg.S3EndpointURL, "region", cfg.AWSRegion, "bucket", cfg.BucketName)
	return storage.NewS3ObjectStore(ctx, cfg.BucketName, storage.S3ClientConfig{
		Endpoint:        cfg.S3EndpointURL,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
}

func CreateClassifier(ctx context.Context, cfg *config.Config) (moderation.Classifier, error) {
	if cfg.ClassifierURL != "" {
		slog.Info("using http classifier", "url", cfg.ClassifierURL)
		return moderation.NewHTTPClassifier(cfg.ClassifierURL, time.Duration(cfg.ClassifierTimeout)*time.Second), nil
	}

	slog.Info("using rekognition classifier", "region", cfg.AWSRegion)
	return moderation.NewRekognitionClassifier(ctx, moderation.RekognitionConfig{
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
}

// CreatePublisher returns nil when no broker is configured, in which case
// failed runs leave their staged object for the bucket lifecycle rule.
func CreatePublisher(cfg *config.Config) (messaging.Publisher, error) {
	if cfg.RabbitMQURL == "" {
		slog.Warn("RABBITMQ_URL not set, resume tasks are disabled")
		return nil, nil
	}
	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		return nil, err
	}
	return publisher, nil
}

func CreateDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.NewDatabase(cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}
	return db, nil
}

type PipelineDeps struct {
	Store      storage.ObjectStore
	Classifier moderation.Classifier
	DB         *gorm.DB
	Publisher  messaging.Publisher
	Registry   prometheus.Registerer
}

func CreatePipeline(cfg *config.Config, deps PipelineDeps) *pipeline.Pipeline {
	opts := []pipeline.Option{}
	if deps.DB != nil {
		opts = append(opts, pipeline.WithLedger(database.NewLedger(deps.DB)))
	}
	if deps.Publisher != nil {
		opts = append(opts, pipeline.WithPublisher(deps.Publisher))
	}
	if deps.Registry != nil {
		opts = append(opts, pipeline.WithMetrics(metrics.New(deps.Registry)))
	}
	return pipeline.New(deps.Store, deps.Classifier, cfg.Pipeline(), opts...)
}
