package moderation

import (
	"context"
	"fmt"
	"log/slog"

	"image-moderation/internal/awsconfig"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

type RekognitionApi interface {
	DetectModerationLabels(ctx context.Context, params *rekognition.DetectModerationLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectModerationLabelsOutput, error)
}

type RekognitionClassifier struct {
	client RekognitionApi
}

var _ Classifier = (*RekognitionClassifier)(nil)

type RekognitionConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

func NewRekognitionClassifier(ctx context.Context, cfg RekognitionConfig) (*RekognitionClassifier, error) {
	awsCfg, err := awsconfig.Load(ctx, awsconfig.Options{
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rekognition client: %w", err)
	}

	client := rekognition.NewFromConfig(awsCfg, func(o *rekognition.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewRekognitionClassifierFromClient(client), nil
}

func NewRekognitionClassifierFromClient(client RekognitionApi) *RekognitionClassifier {
	return &RekognitionClassifier{client: client}
}

func (c *RekognitionClassifier) Classify(ctx context.Context, ref ObjectRef, minConfidence float32) ([]Label, error) {
	resp, err := c.client.DetectModerationLabels(ctx, &rekognition.DetectModerationLabelsInput{
		Image: &types.Image{
			S3Object: &types.S3Object{
				Bucket: aws.String(ref.Bucket),
				Name:   aws.String(ref.Key),
			},
		},
		MinConfidence: aws.Float32(minConfidence),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to detect moderation labels for s3://%s/%s: %w", ref.Bucket, ref.Key, err)
	}

	labels := make([]Label, 0, len(resp.ModerationLabels))
	for _, label := range resp.ModerationLabels {
		labels = append(labels, Label{
			Name:       aws.ToString(label.Name),
			ParentName: aws.ToString(label.ParentName),
			Confidence: aws.ToFloat32(label.Confidence),
		})
	}

	slog.Info("moderation labels detected", "bucket", ref.Bucket, "key", ref.Key, "labels", len(labels))

	return labels, nil
}
