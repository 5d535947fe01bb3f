package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"image-moderation/internal/messaging"
	"image-moderation/internal/moderation"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resumeTask(t *testing.T, payload messaging.ResumeTaskPayload) *fakeTask {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &fakeTask{queue: messaging.ResumeQueue, payload: data}
}

func stagedPayload(store *fakeStore, attempt int) messaging.ResumeTaskPayload {
	id := uuid.New()
	stagedKey := "uploads/" + id.String() + ".jpg"
	store.objects[stagedKey] = testImage
	return messaging.ResumeTaskPayload{
		ImageId:     id,
		Bucket:      "test-bucket",
		StagedKey:   stagedKey,
		FailedStage: string(StageStaged),
		Attempt:     attempt,
	}
}

func TestResumeWorkerPlacesImage(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	p := newTestPipeline(store, &fakeClassifier{})
	worker := NewResumeWorker(p, publisher, nil, 3, 0)

	payload := stagedPayload(store, 1)
	task := resumeTask(t, payload)
	worker.ProcessTask(task)

	assert.True(t, task.acked)
	assert.False(t, task.nacked)
	assert.NotContains(t, store.objects, payload.StagedKey)
	assert.Contains(t, store.objects, "safe/"+payload.ImageId.String()+".jpg")
	assert.Empty(t, publisher.published)
}

func TestResumeWorkerReschedulesFailure(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	p := newTestPipeline(store, &fakeClassifier{err: errUnavailable})
	worker := NewResumeWorker(p, publisher, nil, 3, 0)

	payload := stagedPayload(store, 1)
	task := resumeTask(t, payload)
	worker.ProcessTask(task)

	assert.True(t, task.acked)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, 2, publisher.published[0].Attempt)
	assert.Equal(t, payload.StagedKey, publisher.published[0].StagedKey)
	assert.Contains(t, store.objects, payload.StagedKey)
}

func TestResumeWorkerAbandonsAfterMaxAttempts(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	ledger := newFakeLedger()
	p := newTestPipeline(store, &fakeClassifier{err: errUnavailable}, WithLedger(ledger))
	worker := NewResumeWorker(p, publisher, nil, 3, 0)

	payload := stagedPayload(store, 3)
	task := resumeTask(t, payload)
	worker.ProcessTask(task)

	assert.True(t, task.acked)
	assert.Empty(t, publisher.published)
	assert.Equal(t, []Stage{StageFailed, StageAbandoned}, ledger.stages(payload.ImageId))
	assert.Contains(t, store.objects, payload.StagedKey)
}

func TestResumeWorkerNacksWhenRepublishFails(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{err: errUnavailable}
	p := newTestPipeline(store, &fakeClassifier{err: errUnavailable})
	worker := NewResumeWorker(p, publisher, nil, 3, 0)

	task := resumeTask(t, stagedPayload(store, 1))
	worker.ProcessTask(task)

	assert.True(t, task.nacked)
	assert.False(t, task.acked)
}

func TestResumeWorkerAbandonsWhenNothingToResume(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	ledger := newFakeLedger()
	p := newTestPipeline(store, &fakeClassifier{}, WithLedger(ledger))
	worker := NewResumeWorker(p, publisher, nil, 3, 0)

	id := uuid.New()
	task := resumeTask(t, messaging.ResumeTaskPayload{
		ImageId:   id,
		Bucket:    "test-bucket",
		StagedKey: "uploads/gone.jpg",
		Attempt:   1,
	})
	worker.ProcessTask(task)

	assert.True(t, task.acked)
	assert.Empty(t, publisher.published)
	assert.Equal(t, []Stage{StageAbandoned}, ledger.stages(id))
	assert.ErrorIs(t, ledger.entries[id].lastErr, ErrNothingToResume)
}

func TestResumeWorkerAbandonsImageThatNeverStaged(t *testing.T) {
	store := newFakeStore()
	store.putErr = errUnavailable
	ledger := newFakeLedger()
	publisher := &fakePublisher{}
	id := uuid.New()
	p := newTestPipeline(store, &fakeClassifier{}, fixedID(id), WithLedger(ledger))

	_, err := p.Process(context.Background(), multipartBody(filePart("photo.jpg", testImage)), multipartContentType(), false)
	require.ErrorIs(t, err, ErrServiceFailure)
	require.Equal(t, StageFailed, ledger.stages(id)[len(ledger.stages(id))-1])

	worker := NewResumeWorker(p, publisher, nil, 3, 0)
	task := resumeTask(t, messaging.ResumeTaskPayload{
		ImageId:   id,
		Bucket:    "test-bucket",
		StagedKey: "uploads/" + id.String() + ".jpg",
		Attempt:   1,
	})
	worker.ProcessTask(task)

	assert.True(t, task.acked)
	assert.Empty(t, publisher.published)
	stages := ledger.stages(id)
	require.GreaterOrEqual(t, len(stages), 2)
	assert.Equal(t, []Stage{StageFailed, StageAbandoned}, stages[len(stages)-2:])
}

func TestResumeWorkerReusesCopyAfterDeleteFailure(t *testing.T) {
	store := newFakeStore()
	store.deleteErr = errUnavailable
	classifier := &fakeClassifier{}
	ledger := newFakeLedger()
	publisher := &fakePublisher{}
	id := uuid.New()
	p := newTestPipeline(store, classifier, fixedID(id), WithLedger(ledger), WithPublisher(publisher))

	_, err := p.Process(context.Background(), multipartBody(filePart("photo.jpg", testImage)), multipartContentType(), false)
	require.Error(t, err)
	require.Len(t, publisher.published, 1)

	store.deleteErr = nil
	classifier.labels = []moderation.Label{{Name: "Violence", Confidence: 97}}

	worker := NewResumeWorker(p, publisher, nil, 3, 0)
	task := resumeTask(t, publisher.published[0])
	worker.ProcessTask(task)

	assert.True(t, task.acked)
	assert.Len(t, publisher.published, 1)
	assert.Len(t, classifier.refs, 1)

	var finals []string
	for key := range store.objects {
		finals = append(finals, key)
	}
	assert.Equal(t, []string{"safe/" + id.String() + ".jpg"}, finals)
	stages := ledger.stages(id)
	assert.Equal(t, StagePlaced, stages[len(stages)-1])
}

func TestResumeWorkerRejectsInvalidTasks(t *testing.T) {
	p := newTestPipeline(newFakeStore(), &fakeClassifier{})
	worker := NewResumeWorker(p, &fakePublisher{}, nil, 3, 0)

	malformed := &fakeTask{queue: messaging.ResumeQueue, payload: []byte("{not json")}
	worker.ProcessTask(malformed)
	assert.True(t, malformed.rejected)

	wrongBucket := resumeTask(t, messaging.ResumeTaskPayload{ImageId: uuid.New(), Bucket: "other", StagedKey: "uploads/a.jpg"})
	worker.ProcessTask(wrongBucket)
	assert.True(t, wrongBucket.rejected)

	missingID := resumeTask(t, messaging.ResumeTaskPayload{Bucket: "test-bucket", StagedKey: "uploads/a.jpg"})
	worker.ProcessTask(missingID)
	assert.True(t, missingID.rejected)

	unknown := &fakeTask{queue: "unknown_queue", payload: []byte("{}")}
	worker.ProcessTask(unknown)
	assert.True(t, unknown.rejected)
}

func TestResumeWorkerEndToEndWithInMemoryQueue(t *testing.T) {
	store := newFakeStore()
	classifier := &fakeClassifier{err: errUnavailable}
	queue := messaging.NewInMemoryQueue()

	id := uuid.New()
	p := newTestPipeline(store, classifier, fixedID(id), WithPublisher(queue))

	_, err := p.Process(context.Background(), multipartBody(filePart("photo.jpg", testImage)), multipartContentType(), false)
	require.Error(t, err)

	// The classifier recovers before the worker picks up the task.
	classifier.err = nil

	worker := NewResumeWorker(p, queue, queue, 3, 0)
	done := make(chan struct{})
	go func() {
		worker.Start()
		close(done)
	}()

	finalKey := "safe/" + id.String() + ".jpg"
	assert.Eventually(t, func() bool {
		exists, _ := store.ObjectExists(context.Background(), finalKey)
		return exists
	}, 5*time.Second, 10*time.Millisecond)

	worker.Stop()
	<-done

	exists, err := store.ObjectExists(context.Background(), "uploads/"+id.String()+".jpg")
	require.NoError(t, err)
	assert.False(t, exists)
}

type idleReceiver struct {
	tasks  chan messaging.Task
	closed bool
}

func (r *idleReceiver) Tasks() <-chan messaging.Task { return r.tasks }
func (r *idleReceiver) Close()                       { r.closed = true }

func TestResumeWorkerStopReturnsWithOpenReceiver(t *testing.T) {
	receiver := &idleReceiver{tasks: make(chan messaging.Task)}
	publisher := &fakePublisher{}
	worker := NewResumeWorker(newTestPipeline(newFakeStore(), &fakeClassifier{}), publisher, receiver, 3, time.Hour)

	done := make(chan struct{})
	go func() {
		worker.Start()
		close(done)
	}()

	worker.Stop()
	worker.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.True(t, receiver.closed)
	assert.True(t, publisher.closed)
}
