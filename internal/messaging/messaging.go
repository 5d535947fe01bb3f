// Package messaging carries resume tasks for images that were staged but never
// placed. The broker only holds references to staged objects, never image
// bytes.
package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const ResumeQueue = "resume_queue"

const (
	// RetryDelay spaces out both broker reconnects and resume retries.
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type ResumeTaskPayload struct {
	ImageId   uuid.UUID
	Bucket    string
	StagedKey string
	// FailedStage is the last stage the image reached before the failure.
	FailedStage string
	// Attempt starts at 1 for the task published by the failed upload.
	Attempt int
	// FinalKey and Labels carry the verdict of a run that had already copied
	// the image to its final key. Both are empty otherwise.
	FinalKey string   `json:",omitempty"`
	Labels   []string `json:",omitempty"`
}

type Task interface {
	Type() string
	Payload() []byte

	Ack() error
	// Nack hands the task back to the queue for redelivery.
	Nack() error
	// Reject drops the task.
	Reject() error
}

type Publisher interface {
	PublishResumeTask(ctx context.Context, payload ResumeTaskPayload) error
	Close()
}

type Receiver interface {
	Tasks() <-chan Task
	Close()
}
