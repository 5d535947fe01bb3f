package moderation

import "context"

// ObjectRef points the classifier at an object that has already been stored,
// so image bytes are never sent twice.
type ObjectRef struct {
	Bucket string
	Key    string
}

type Label struct {
	Name       string
	ParentName string
	Confidence float32
}

type Classifier interface {
	// Classify returns the labels detected at or above minConfidence (0-100).
	// An empty result means nothing of concern was found.
	Classify(ctx context.Context, ref ObjectRef, minConfidence float32) ([]Label, error)
}

func LabelNames(labels []Label) []string {
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		names = append(names, label.Name)
	}
	return names
}
