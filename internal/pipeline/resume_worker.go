package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"image-moderation/internal/messaging"

	"github.com/google/uuid"
)

const DefaultResumeMaxAttempts = 3

// ResumeWorker drains the resume queue. A failed resume is republished with
// the next attempt number after a delay; once the attempt limit is reached
// the image is marked abandoned and its staged object is left for the bucket
// lifecycle rule.
type ResumeWorker struct {
	pipeline    *Pipeline
	publisher   messaging.Publisher
	receiver    messaging.Receiver
	maxAttempts int
	retryDelay  time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

func NewResumeWorker(pipeline *Pipeline, publisher messaging.Publisher, receiver messaging.Receiver, maxAttempts int, retryDelay time.Duration) *ResumeWorker {
	if maxAttempts <= 0 {
		maxAttempts = DefaultResumeMaxAttempts
	}
	return &ResumeWorker{
		pipeline:    pipeline,
		publisher:   publisher,
		receiver:    receiver,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		stop:        make(chan struct{}),
	}
}

func (w *ResumeWorker) Start() {
	slog.Info("starting resume worker", "max_attempts", w.maxAttempts)

	tasks := w.receiver.Tasks()
	for {
		select {
		case task, ok := <-tasks:
			if !ok {
				return
			}
			w.ProcessTask(task)
		case <-w.stop:
			return
		}
	}
}

// Stop ends Start after the task in progress, if any, and closes the
// publisher and receiver.
func (w *ResumeWorker) Stop() {
	w.stopOnce.Do(func() {
		slog.Info("stopping resume worker")

		close(w.stop)
		w.publisher.Close()
		w.receiver.Close()
	})
}

func (w *ResumeWorker) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	var err error
	switch task.Type() {
	case messaging.ResumeQueue:
		var payload messaging.ResumeTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling resume task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		if err = w.validate(payload); err != nil {
			slog.Error("invalid resume task", "image_id", payload.ImageId, "error", err)
			if err := task.Reject(); err != nil {
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = w.resume(ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil { // reject unknown message type
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func (w *ResumeWorker) validate(payload messaging.ResumeTaskPayload) error {
	if payload.ImageId == uuid.Nil {
		return fmt.Errorf("missing image id")
	}
	if payload.StagedKey == "" {
		return fmt.Errorf("missing staged key")
	}
	if payload.Bucket != w.pipeline.Bucket() {
		return fmt.Errorf("task bucket %q does not match configured bucket %q", payload.Bucket, w.pipeline.Bucket())
	}
	return nil
}

// resume returns an error only when the task could not be handed back to the
// queue, so that the broker redelivers it.
func (w *ResumeWorker) resume(ctx context.Context, payload messaging.ResumeTaskPayload) error {
	result, err := w.pipeline.Resume(ctx, ResumePoint{
		ID:        payload.ImageId,
		StagedKey: payload.StagedKey,
		FinalKey:  payload.FinalKey,
		Labels:    payload.Labels,
	})
	if err == nil {
		slog.Info("resumed image placed", "image_id", payload.ImageId, "final_key", result.FinalKey, "attempt", payload.Attempt)
		return nil
	}

	if errors.Is(err, ErrNothingToResume) {
		// Neither the staged object nor a final copy exists, so no retry can
		// place the image.
		w.pipeline.abandon(ctx, payload.ImageId, err)
		return nil
	}

	if payload.Attempt >= w.maxAttempts {
		w.pipeline.abandon(ctx, payload.ImageId, err)
		return nil
	}

	select {
	case <-time.After(w.retryDelay):
	case <-w.stop:
		return fmt.Errorf("worker stopped before retrying image %s", payload.ImageId)
	}

	next := payload
	next.Attempt++
	if err := w.publisher.PublishResumeTask(ctx, next); err != nil {
		return fmt.Errorf("failed to republish resume task for image %s: %w", payload.ImageId, err)
	}
	slog.Info("resume task rescheduled", "image_id", payload.ImageId, "attempt", next.Attempt)

	return nil
}
