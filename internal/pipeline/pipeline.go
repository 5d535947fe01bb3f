package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"image-moderation/internal/formdata"
	"image-moderation/internal/imaging"
	"image-moderation/internal/messaging"
	"image-moderation/internal/metrics"
	"image-moderation/internal/moderation"
	"image-moderation/internal/storage"

	"github.com/google/uuid"
)

type Stage string

const (
	StageReceived   Stage = "RECEIVED"
	StageStaged     Stage = "STAGED"
	StageClassified Stage = "CLASSIFIED"
	StagePlaced     Stage = "PLACED"
	StageFailed     Stage = "FAILED"
	StageAbandoned  Stage = "ABANDONED"
)

const (
	DefaultStagingPrefix = "uploads"
	DefaultFlaggedPrefix = "nsfw"
	DefaultClearPrefix   = "safe"
	DefaultExtension     = ".jpg"
	DefaultContentType   = "image/jpeg"
	DefaultMinConfidence = 70
)

type Config struct {
	Bucket        string
	StagingPrefix string
	FlaggedPrefix string
	ClearPrefix   string
	Extension     string
	ContentType   string
	MinConfidence float32
}

func DefaultConfig(bucket string) Config {
	return Config{
		Bucket:        bucket,
		StagingPrefix: DefaultStagingPrefix,
		FlaggedPrefix: DefaultFlaggedPrefix,
		ClearPrefix:   DefaultClearPrefix,
		Extension:     DefaultExtension,
		ContentType:   DefaultContentType,
		MinConfidence: DefaultMinConfidence,
	}
}

// Asset tracks one image through the pipeline.
type Asset struct {
	ID        uuid.UUID
	Bucket    string
	FileName  string
	StagedKey string
	Labels    []string
	Flagged   bool
	FinalKey  string
	Stage     Stage
	// Copied is set once the object exists at FinalKey.
	Copied bool
}

type Result struct {
	FileName string
	Flagged  bool
	Labels   []string
	Message  string
	FinalKey string
}

type StageUpdate struct {
	Stage    Stage
	Labels   []string
	Flagged  bool
	FinalKey string
	Err      error
}

// Ledger persists the stage of every asset. Ledger errors never fail a
// pipeline run.
type Ledger interface {
	Register(ctx context.Context, asset *Asset, info imaging.Info, sizeBytes int64) error

	Transition(ctx context.Context, id uuid.UUID, update StageUpdate) error

	RecordAttempt(ctx context.Context, id uuid.UUID) error
}

type Pipeline struct {
	store      storage.ObjectStore
	classifier moderation.Classifier
	cfg        Config

	ledger    Ledger
	publisher messaging.Publisher
	metrics   *metrics.Metrics
	newID     func() uuid.UUID
}

type Option func(*Pipeline)

func WithLedger(ledger Ledger) Option {
	return func(p *Pipeline) {
		p.ledger = ledger
	}
}

func WithPublisher(publisher messaging.Publisher) Option {
	return func(p *Pipeline) {
		p.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(p *Pipeline) {
		p.newID = newID
	}
}

func New(store storage.ObjectStore, classifier moderation.Classifier, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      store,
		classifier: classifier,
		cfg:        cfg,
		newID:      uuid.New,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Bucket() string {
	return p.cfg.Bucket
}

func objectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func (p *Pipeline) partition(flagged bool) string {
	if flagged {
		return strings.Trim(p.cfg.FlaggedPrefix, "/")
	}
	return strings.Trim(p.cfg.ClearPrefix, "/")
}

// Process runs one upload through Received, Staged, Classified and Placed.
// Nothing is written to storage unless the body yields a file payload.
func (p *Pipeline) Process(ctx context.Context, body []byte, contentType string, isBase64 bool) (*Result, error) {
	start := time.Now()
	defer p.metrics.ObserveDuration(start)

	result, err := p.process(ctx, body, contentType, isBase64)
	if err != nil {
		p.metrics.ObserveFailure(ErrorKind(err))
		return nil, err
	}

	p.metrics.ObservePlaced(p.partition(result.Flagged))
	return result, nil
}

func (p *Pipeline) process(ctx context.Context, body []byte, contentType string, isBase64 bool) (*Result, error) {
	if p.cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket name is not set", ErrConfiguration)
	}

	if contentType == "" {
		return nil, fmt.Errorf("%w: missing Content-Type header", ErrMalformedRequest)
	}

	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(string(body))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64 body: %w", ErrMalformedRequest, err)
		}
		body = decoded
	}

	payload, found, err := formdata.Extract(body, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	if !found || len(payload) == 0 {
		return nil, ErrNoFileFound
	}

	id := p.newID()
	fileName := id.String() + p.cfg.Extension
	asset := &Asset{
		ID:        id,
		Bucket:    p.cfg.Bucket,
		FileName:  fileName,
		StagedKey: objectKey(p.cfg.StagingPrefix, fileName),
		Stage:     StageReceived,
	}

	info := imaging.Probe(payload)
	slog.Info("received image", "image_id", id, "bucket", asset.Bucket, "size_bytes", len(payload), "format", info.Format)
	p.register(ctx, asset, info, int64(len(payload)))

	if err := p.store.PutObject(ctx, asset.StagedKey, bytes.NewReader(payload), p.cfg.ContentType); err != nil {
		err = fmt.Errorf("%w: failed to stage image %s: %w", ErrServiceFailure, asset.StagedKey, err)
		p.recordFailure(ctx, asset, err)
		return nil, err
	}
	p.advance(ctx, asset, StageStaged)
	slog.Info("image staged, starting moderation", "image_id", id, "bucket", asset.Bucket, "key", asset.StagedKey)

	if err := p.place(ctx, asset); err != nil {
		p.recordFailure(ctx, asset, err)
		p.scheduleResume(ctx, asset)
		return nil, err
	}

	return p.result(asset), nil
}

// ResumePoint is what a failed run leaves behind. FinalKey and Labels are
// only set when the copy to the final key had already succeeded.
type ResumePoint struct {
	ID        uuid.UUID
	StagedKey string
	FinalKey  string
	Labels    []string
}

// Resume finishes an image whose earlier run failed after staging. An image
// that already has a final copy keeps that verdict and is never classified
// again; otherwise the staged object goes through Classified and Placed.
func (p *Pipeline) Resume(ctx context.Context, point ResumePoint) (*Result, error) {
	if p.cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket name is not set", ErrConfiguration)
	}

	staged, err := p.store.ObjectExists(ctx, point.StagedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to check staged object %s: %w", ErrServiceFailure, point.StagedKey, err)
	}

	asset := &Asset{
		ID:        point.ID,
		Bucket:    p.cfg.Bucket,
		FileName:  path.Base(point.StagedKey),
		StagedKey: point.StagedKey,
		Stage:     StageStaged,
	}

	copied, err := p.findCopy(ctx, asset.FileName, point.FinalKey)
	if err != nil {
		return nil, err
	}
	if !staged && copied == "" {
		return nil, fmt.Errorf("%w: %s", ErrNothingToResume, point.StagedKey)
	}

	if p.ledger != nil {
		if err := p.ledger.RecordAttempt(ctx, asset.ID); err != nil {
			slog.Error("error recording resume attempt", "image_id", asset.ID, "error", err)
		}
	}

	if copied != "" {
		asset.Stage = StageClassified
		asset.Copied = true
		asset.FinalKey = copied
		if copied == point.FinalKey {
			asset.Labels = point.Labels
			asset.Flagged = len(point.Labels) > 0
		} else {
			asset.Flagged = copied == objectKey(p.partition(true), asset.FileName)
		}
		slog.Info("resuming image with existing final copy", "image_id", asset.ID, "bucket", asset.Bucket, "key", copied, "staged", staged)
		err = p.removeOtherCopies(ctx, asset)
		if err == nil {
			err = p.finish(ctx, asset, staged)
		}
	} else {
		slog.Info("resuming image", "image_id", asset.ID, "bucket", asset.Bucket, "key", asset.StagedKey)
		err = p.place(ctx, asset)
	}
	if err != nil {
		p.metrics.ObserveFailure(ErrorKind(err))
		p.recordFailure(ctx, asset, err)
		return nil, err
	}

	p.metrics.ObservePlaced(p.partition(asset.Flagged))
	return p.result(asset), nil
}

// findCopy returns the first existing final key for fileName, trying the key
// recorded by the failed run before the flagged and clear partitions.
func (p *Pipeline) findCopy(ctx context.Context, fileName, recorded string) (string, error) {
	candidates := []string{
		objectKey(p.partition(true), fileName),
		objectKey(p.partition(false), fileName),
	}
	if recorded != "" {
		candidates = append([]string{recorded}, candidates...)
	}

	for _, key := range candidates {
		exists, err := p.store.ObjectExists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("%w: failed to check final object %s: %w", ErrServiceFailure, key, err)
		}
		if exists {
			return key, nil
		}
	}
	return "", nil
}

// removeOtherCopies deletes any copy outside FinalKey so the image ends up
// in exactly one partition.
func (p *Pipeline) removeOtherCopies(ctx context.Context, asset *Asset) error {
	for _, flagged := range []bool{true, false} {
		other := objectKey(p.partition(flagged), asset.FileName)
		if other == asset.FinalKey {
			continue
		}
		exists, err := p.store.ObjectExists(ctx, other)
		if err != nil {
			return fmt.Errorf("%w: failed to check object %s: %w", ErrServiceFailure, other, err)
		}
		if !exists {
			continue
		}
		slog.Warn("removing copy from other partition", "image_id", asset.ID, "key", other, "final_key", asset.FinalKey)
		if err := p.store.DeleteObject(ctx, other); err != nil {
			return fmt.Errorf("%w: failed to delete copy %s: %w", ErrServiceFailure, other, err)
		}
	}
	return nil
}

// place classifies the staged object, copies it to its final key and only
// then deletes the staged key.
func (p *Pipeline) place(ctx context.Context, asset *Asset) error {
	labels, err := p.classifier.Classify(ctx, moderation.ObjectRef{Bucket: asset.Bucket, Key: asset.StagedKey}, p.cfg.MinConfidence)
	if err != nil {
		return fmt.Errorf("%w: failed to classify image %s: %w", ErrServiceFailure, asset.StagedKey, err)
	}

	asset.Labels = moderation.LabelNames(labels)
	asset.Flagged = len(asset.Labels) > 0
	asset.FinalKey = objectKey(p.partition(asset.Flagged), asset.FileName)
	p.advance(ctx, asset, StageClassified)
	slog.Info("moderation complete", "image_id", asset.ID, "flagged", asset.Flagged, "labels", asset.Labels)

	if err := p.store.CopyObject(ctx, asset.StagedKey, asset.FinalKey); err != nil {
		return fmt.Errorf("%w: failed to copy image %s to %s: %w", ErrServiceFailure, asset.StagedKey, asset.FinalKey, err)
	}
	asset.Copied = true

	return p.finish(ctx, asset, true)
}

// finish deletes the staged object, if still present, and marks the asset
// placed. It must only run once the object exists at FinalKey.
func (p *Pipeline) finish(ctx context.Context, asset *Asset, staged bool) error {
	if staged {
		if err := p.store.DeleteObject(ctx, asset.StagedKey); err != nil {
			return fmt.Errorf("%w: failed to delete staged image %s: %w", ErrServiceFailure, asset.StagedKey, err)
		}
	}

	p.advance(ctx, asset, StagePlaced)
	slog.Info("image placed", "image_id", asset.ID, "bucket", asset.Bucket, "key", asset.FinalKey)

	return nil
}

func (p *Pipeline) result(asset *Asset) *Result {
	return &Result{
		FileName: asset.FileName,
		Flagged:  asset.Flagged,
		Labels:   asset.Labels,
		Message:  fmt.Sprintf("Image moved to %s folder", p.partition(asset.Flagged)),
		FinalKey: asset.FinalKey,
	}
}

func (p *Pipeline) register(ctx context.Context, asset *Asset, info imaging.Info, sizeBytes int64) {
	if p.ledger == nil {
		return
	}
	if err := p.ledger.Register(ctx, asset, info, sizeBytes); err != nil {
		slog.Error("error registering image in ledger", "image_id", asset.ID, "error", err)
	}
}

func (p *Pipeline) advance(ctx context.Context, asset *Asset, stage Stage) {
	asset.Stage = stage
	if p.ledger == nil {
		return
	}
	update := StageUpdate{
		Stage:    stage,
		Labels:   asset.Labels,
		Flagged:  asset.Flagged,
		FinalKey: asset.FinalKey,
	}
	if err := p.ledger.Transition(ctx, asset.ID, update); err != nil {
		slog.Error("error updating image stage in ledger", "image_id", asset.ID, "stage", stage, "error", err)
	}
}

func (p *Pipeline) recordFailure(ctx context.Context, asset *Asset, err error) {
	slog.Error("error processing image", "image_id", asset.ID, "bucket", asset.Bucket, "key", asset.StagedKey, "stage", asset.Stage, "error", err)
	if p.ledger == nil {
		return
	}
	if lerr := p.ledger.Transition(ctx, asset.ID, StageUpdate{Stage: StageFailed, Err: err}); lerr != nil {
		slog.Error("error recording image failure in ledger", "image_id", asset.ID, "error", lerr)
	}
}

// scheduleResume hands a staged but unplaced image to the resume queue. The
// staged object is left in place if no publisher is configured.
func (p *Pipeline) scheduleResume(ctx context.Context, asset *Asset) {
	if p.publisher == nil {
		slog.Warn("no resume queue configured, staged image left in place", "image_id", asset.ID, "key", asset.StagedKey)
		return
	}

	payload := messaging.ResumeTaskPayload{
		ImageId:     asset.ID,
		Bucket:      asset.Bucket,
		StagedKey:   asset.StagedKey,
		FailedStage: string(asset.Stage),
		Attempt:     1,
	}
	if asset.Copied {
		payload.FinalKey = asset.FinalKey
		payload.Labels = asset.Labels
	}
	if err := p.publisher.PublishResumeTask(context.WithoutCancel(ctx), payload); err != nil {
		slog.Error("error publishing resume task", "image_id", asset.ID, "error", err)
		return
	}
	slog.Info("resume task published", "image_id", asset.ID, "key", asset.StagedKey)
}

func (p *Pipeline) abandon(ctx context.Context, id uuid.UUID, cause error) {
	slog.Warn("abandoning image", "image_id", id, "error", cause)
	if p.ledger == nil {
		return
	}
	if err := p.ledger.Transition(ctx, id, StageUpdate{Stage: StageAbandoned, Err: cause}); err != nil {
		slog.Error("error marking image abandoned in ledger", "image_id", id, "error", err)
	}
}
