package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPClassifier calls a self-hosted moderation service that can read the same
// bucket. It expects POST /v1/moderate with the object reference and answers
// with the labels it detected.
type HTTPClassifier struct {
	client *resty.Client
}

var _ Classifier = (*HTTPClassifier)(nil)

const moderateEndpoint = "/v1/moderate"

type moderateRequest struct {
	Bucket        string  `json:"bucket"`
	Key           string  `json:"key"`
	MinConfidence float32 `json:"min_confidence"`
}

type moderateResponse struct {
	Labels []struct {
		Name       string  `json:"name"`
		ParentName string  `json:"parent_name"`
		Confidence float32 `json:"confidence"`
	} `json:"labels"`
}

func NewHTTPClassifier(baseURL string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		client: resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
	}
}

func (c *HTTPClassifier) Classify(ctx context.Context, ref ObjectRef, minConfidence float32) ([]Label, error) {
	var result moderateResponse

	res, err := c.client.R().
		SetContext(ctx).
		SetBody(moderateRequest{Bucket: ref.Bucket, Key: ref.Key, MinConfidence: minConfidence}).
		SetResult(&result).
		Post(moderateEndpoint)
	if err != nil {
		return nil, fmt.Errorf("moderation request for %s/%s failed: %w", ref.Bucket, ref.Key, err)
	}

	if !res.IsSuccess() {
		slog.Error("moderation service returned error", "status_code", res.StatusCode(), "body", res.String())
		return nil, fmt.Errorf("moderation service returned status %d for %s/%s", res.StatusCode(), ref.Bucket, ref.Key)
	}

	// The service is asked to filter, but the threshold is enforced here as well.
	labels := make([]Label, 0, len(result.Labels))
	for _, label := range result.Labels {
		if label.Confidence < minConfidence {
			continue
		}
		labels = append(labels, Label{Name: label.Name, ParentName: label.ParentName, Confidence: label.Confidence})
	}

	return labels, nil
}
