package config

import (
	"fmt"
	"log/slog"

	"image-moderation/internal/pipeline"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Not required at startup, the pipeline reports a missing bucket per request.
	BucketName       string  `env:"BUCKET_NAME"`
	StagingPrefix    string  `env:"STAGING_PREFIX" envDefault:"uploads"`
	FlaggedPrefix    string  `env:"FLAGGED_PREFIX" envDefault:"nsfw"`
	ClearPrefix      string  `env:"CLEAR_PREFIX" envDefault:"safe"`
	MinConfidence    float32 `env:"MIN_CONFIDENCE" envDefault:"70"`
	ImageExtension   string  `env:"IMAGE_EXTENSION" envDefault:".jpg"`
	ImageContentType string  `env:"IMAGE_CONTENT_TYPE" envDefault:"image/jpeg"`

	AWSRegion          string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3EndpointURL      string `env:"S3_ENDPOINT_URL"`
	StorageRoot        string `env:"STORAGE_ROOT"`

	ClassifierURL     string `env:"CLASSIFIER_URL"`
	ClassifierTimeout int    `env:"CLASSIFIER_TIMEOUT_SECONDS" envDefault:"30"`

	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"./data/moderation.db"`
	RabbitMQURL string `env:"RABBITMQ_URL"`

	APIPort           string `env:"API_PORT" envDefault:"8001"`
	MaxUploadBytes    int64  `env:"MAX_UPLOAD_BYTES" envDefault:"15728640"`
	ResumeMaxAttempts int    `env:"RESUME_MAX_ATTEMPTS" envDefault:"3"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.MinConfidence < 0 || cfg.MinConfidence > 100 {
		return nil, fmt.Errorf("MIN_CONFIDENCE must be between 0 and 100, got %v", cfg.MinConfidence)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", cfg.MaxUploadBytes)
	}

	if cfg.S3EndpointURL != "" && (cfg.AWSAccessKeyID == "" || cfg.AWSSecretAccessKey == "") {
		slog.Warn("S3_ENDPOINT_URL is set, but AWS_ACCESS_KEY_ID or AWS_SECRET_ACCESS_KEY are missing")
	}
	if cfg.BucketName == "" {
		slog.Warn("BUCKET_NAME is not set, every upload will fail with a configuration error")
	}

	return &cfg, nil
}

func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Bucket:        c.BucketName,
		StagingPrefix: c.StagingPrefix,
		FlaggedPrefix: c.FlaggedPrefix,
		ClearPrefix:   c.ClearPrefix,
		Extension:     c.ImageExtension,
		ContentType:   c.ImageContentType,
		MinConfidence: c.MinConfidence,
	}
}
