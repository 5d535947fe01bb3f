package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"image-moderation/internal/imaging"
	"image-moderation/internal/messaging"
	"image-moderation/internal/moderation"
	"image-moderation/internal/storage"

	"github.com/google/uuid"
)

type fakeStore struct {
	storage.ObjectStore

	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	ops     []string

	putErr    error
	copyErr   error
	deleteErr error
	existsErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *fakeStore) Bucket() string {
	return "test-bucket"
}

func (s *fakeStore) PutObject(ctx context.Context, key string, data io.Reader, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "put "+key)
	if s.putErr != nil {
		return s.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.objects[key] = b
	s.types[key] = contentType
	return nil
}

func (s *fakeStore) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *fakeStore) CopyObject(ctx context.Context, srcKey, destKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "copy "+srcKey+" "+destKey)
	if s.copyErr != nil {
		return s.copyErr
	}
	b, ok := s.objects[srcKey]
	if !ok {
		return storage.ErrObjectNotFound
	}
	s.objects[destKey] = b
	return nil
}

func (s *fakeStore) DeleteObject(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "delete "+key)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, key)
	return nil
}

func (s *fakeStore) ObjectExists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.objects[key]
	return ok, nil
}

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

type fakeClassifier struct {
	labels []moderation.Label
	err    error
	refs   []moderation.ObjectRef
	conf   []float32
}

func (c *fakeClassifier) Classify(ctx context.Context, ref moderation.ObjectRef, minConfidence float32) ([]moderation.Label, error) {
	c.refs = append(c.refs, ref)
	c.conf = append(c.conf, minConfidence)
	if c.err != nil {
		return nil, c.err
	}
	return c.labels, nil
}

type ledgerEntry struct {
	asset    Asset
	info     imaging.Info
	size     int64
	stages   []Stage
	attempts int
	lastErr  error
}

type fakeLedger struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*ledgerEntry
	err     error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: map[uuid.UUID]*ledgerEntry{}}
}

func (l *fakeLedger) Register(ctx context.Context, asset *Asset, info imaging.Info, sizeBytes int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.entries[asset.ID] = &ledgerEntry{asset: *asset, info: info, size: sizeBytes, stages: []Stage{asset.Stage}, attempts: 1}
	return nil
}

func (l *fakeLedger) entry(id uuid.UUID) *ledgerEntry {
	e, ok := l.entries[id]
	if !ok {
		e = &ledgerEntry{asset: Asset{ID: id}}
		l.entries[id] = e
	}
	return e
}

func (l *fakeLedger) Transition(ctx context.Context, id uuid.UUID, update StageUpdate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	e := l.entry(id)
	e.stages = append(e.stages, update.Stage)
	e.lastErr = update.Err
	return nil
}

func (l *fakeLedger) RecordAttempt(ctx context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.entry(id).attempts++
	return nil
}

func (l *fakeLedger) stages(id uuid.UUID) []Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[id]; ok {
		return e.stages
	}
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []messaging.ResumeTaskPayload
	err       error
	closed    bool
}

func (p *fakePublisher) PublishResumeTask(ctx context.Context, payload messaging.ResumeTaskPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, payload)
	return nil
}

func (p *fakePublisher) Close() {
	p.closed = true
}

type fakeTask struct {
	queue    string
	payload  []byte
	acked    bool
	nacked   bool
	rejected bool
}

func (t *fakeTask) Type() string    { return t.queue }
func (t *fakeTask) Payload() []byte { return t.payload }
func (t *fakeTask) Ack() error      { t.acked = true; return nil }
func (t *fakeTask) Nack() error     { t.nacked = true; return nil }
func (t *fakeTask) Reject() error   { t.rejected = true; return nil }

var errUnavailable = errors.New("service unavailable")

const testBoundary = "----WebKitFormBoundary7MA4YWxkTrZu0gW"

func multipartBody(parts ...string) []byte {
	var buf bytes.Buffer
	for _, part := range parts {
		fmt.Fprintf(&buf, "--%s\r\n%s\r\n", testBoundary, part)
	}
	fmt.Fprintf(&buf, "--%s--\r\n", testBoundary)
	return buf.Bytes()
}

func filePart(name string, content []byte) string {
	return fmt.Sprintf("Content-Disposition: form-data; name=\"file\"; filename=%q\r\nContent-Type: image/jpeg\r\n\r\n%s", name, content)
}

func fieldPart(name, value string) string {
	return fmt.Sprintf("Content-Disposition: form-data; name=%q\r\n\r\n%s", name, value)
}

func multipartContentType() string {
	return "multipart/form-data; boundary=" + testBoundary
}
