package main

import (
	"context"
	"log"

	"image-moderation/cmd"
	"image-moderation/internal/api"
	"image-moderation/internal/config"

	"github.com/aws/aws-lambda-go/lambda"
)

// Clients are built once per execution environment and reused across
// invocations. The ledger and resume queue are not used here.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cmd.ConfigureLogger(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	store, err := cmd.CreateObjectStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create object store: %v", err)
	}

	classifier, err := cmd.CreateClassifier(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create classifier: %v", err)
	}

	p := cmd.CreatePipeline(cfg, cmd.PipelineDeps{Store: store, Classifier: classifier})

	lambda.Start(api.NewGatewayHandler(p).Handle)
}
