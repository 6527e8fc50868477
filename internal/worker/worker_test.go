package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printworks/jobtrack/internal/broadcast"
	"github.com/printworks/jobtrack/internal/engine"
	"github.com/printworks/jobtrack/internal/model"
	"github.com/printworks/jobtrack/internal/service"
	"github.com/printworks/jobtrack/internal/store"
)

var hod = model.Actor{ID: "hod-1", Role: model.RoleHOD}

type queued struct {
	task *asynq.Task
	opts []asynq.Option
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []queued
	ids   map[string]bool
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range opts {
		if o.Type() == asynq.TaskIDOpt {
			id := o.Value().(string)
			if f.ids == nil {
				f.ids = make(map[string]bool)
			}
			if f.ids[id] {
				return nil, asynq.ErrTaskIDConflict
			}
			f.ids[id] = true
		}
	}
	f.tasks = append(f.tasks, queued{task: task, opts: opts})
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (f *fakeEnqueuer) snapshot() []queued {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queued(nil), f.tasks...)
}

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    error
}

func (m *memoryStorage) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	if m.fail != nil {
		return "", m.fail
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = data
	return m.GetPublicURL(key), nil
}

func (m *memoryStorage) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return bytes.Clone(data), nil
}

func (m *memoryStorage) GetPublicURL(key string) string { return "mem://" + key }

type urgentRecorder struct {
	jobs []*model.JobView
}

func (u *urgentRecorder) BroadcastUrgent(job *model.JobView) { u.jobs = append(u.jobs, job) }

func newEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	return engine.New(s, opts...), s
}

func createJob(t *testing.T, eng *engine.Engine, due time.Time) *model.JobRecord {
	t.Helper()
	job, err := eng.Create(context.Background(), engine.NewJob{
		CustomerName: "Acme",
		ProductName:  "Label roll",
		Quantity:     500,
		DueDate:      due,
		Actor:        hod,
	})
	require.NoError(t, err)
	return job
}

func TestUrgencyWorker_Sweep(t *testing.T) {
	eng, s := newEngine(t)
	createJob(t, eng, time.Now().Add(24*time.Hour))
	createJob(t, eng, time.Now().Add(10*24*time.Hour))
	createJob(t, eng, time.Time{})

	alerts := &urgentRecorder{}
	w := NewUrgencyWorker(service.NewJobService(eng, s), alerts)

	require.NoError(t, w.ProcessTask(context.Background(), NewUrgencySweepTask()))
	require.Len(t, alerts.jobs, 1)
	assert.True(t, alerts.jobs[0].Urgent)
}

type failingLister struct{}

func (failingLister) UrgentJobs(context.Context) ([]*model.JobView, error) {
	return nil, assert.AnError
}

func TestUrgencyWorker_ListFailure(t *testing.T) {
	w := NewUrgencyWorker(failingLister{}, &urgentRecorder{})
	err := w.ProcessTask(context.Background(), NewUrgencySweepTask())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestArchiveWorker_UploadsRetiredJob(t *testing.T) {
	eng, s := newEngine(t)
	job := createJob(t, eng, time.Time{})
	res, err := eng.Apply(context.Background(), engine.Transition{
		JobID: job.ID, Action: model.ActionCancel, Actor: hod, Notes: "customer withdrew",
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, res.Job.Status)

	storage := &memoryStorage{}
	w := NewArchiveWorker(s, storage)
	task, err := NewArchiveTask(job.ID, string(model.StatusCancelled))
	require.NoError(t, err)
	require.NoError(t, w.ProcessTask(context.Background(), task))

	data, err := storage.Download(context.Background(), ArchiveKey(job.ID))
	require.NoError(t, err)

	var doc ArchiveDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, model.StatusCancelled, doc.Job.Status)
	require.Len(t, doc.Job.StatusHistory, 1)
	assert.Equal(t, model.ActionCancel, doc.Job.StatusHistory[0].Action)
	assert.False(t, doc.ArchivedAt.IsZero())
}

func TestArchiveWorker_SkipsLiveAndMissingJobs(t *testing.T) {
	eng, s := newEngine(t)
	job := createJob(t, eng, time.Time{})
	storage := &memoryStorage{}
	w := NewArchiveWorker(s, storage)

	task, err := NewArchiveTask(job.ID, string(model.StatusCancelled))
	require.NoError(t, err)
	require.NoError(t, w.ProcessTask(context.Background(), task))
	assert.Empty(t, storage.objects)

	missing, err := NewArchiveTask("ghost", string(model.StatusCompleted))
	require.NoError(t, err)
	err = w.ProcessTask(context.Background(), missing)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = w.ProcessTask(context.Background(), asynq.NewTask(TaskTypeArchive, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestArchiveWorker_UploadFailureRetries(t *testing.T) {
	eng, s := newEngine(t)
	job := createJob(t, eng, time.Time{})
	_, err := eng.Apply(context.Background(), engine.Transition{JobID: job.ID, Action: model.ActionCancel, Actor: hod})
	require.NoError(t, err)

	w := NewArchiveWorker(s, &memoryStorage{fail: assert.AnError})
	task, err := NewArchiveTask(job.ID, string(model.StatusCancelled))
	require.NoError(t, err)

	err = w.ProcessTask(context.Background(), task)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestArchiveDispatcher_EnqueuesOnRetirement(t *testing.T) {
	broker := broadcast.NewBroker(16)
	enq := &fakeEnqueuer{}
	d := NewArchiveDispatcher(broker, enq)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return broker.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	broker.Publish(model.LifecycleEvent{JobID: "j1", OldStatus: model.StatusQAInProgress, NewStatus: model.StatusOnHold})
	broker.Publish(model.LifecycleEvent{JobID: "j1", OldStatus: model.StatusOnHold, NewStatus: model.StatusCancelled})
	broker.Publish(model.LifecycleEvent{JobID: "j1", OldStatus: model.StatusOnHold, NewStatus: model.StatusCancelled})
	broker.Publish(model.LifecycleEvent{JobID: "j2", OldStatus: model.StatusDispatchInProgress, NewStatus: model.StatusCompleted})

	require.Eventually(t, func() bool { return len(enq.snapshot()) == 2 }, time.Second, 10*time.Millisecond)
	tasks := enq.snapshot()
	assert.Equal(t, TaskTypeArchive, tasks[0].task.Type())

	var payload archivePayload
	require.NoError(t, json.Unmarshal(tasks[1].task.Payload(), &payload))
	assert.Equal(t, "j2", payload.JobID)
	assert.Equal(t, string(model.StatusCompleted), payload.Status)

	cancel()
	<-done
	assert.Equal(t, 0, broker.Subscribers())
}

func TestScheduler(t *testing.T) {
	_, err := NewScheduler("not a cron", &fakeEnqueuer{})
	assert.Error(t, err)

	enq := &fakeEnqueuer{}
	s, err := NewScheduler("*/15 * * * *", enq)
	require.NoError(t, err)

	from := time.Date(2025, 5, 1, 10, 7, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 5, 1, 10, 15, 0, 0, time.UTC), s.Next(from))

	s.EnqueueSweep()
	tasks := enq.snapshot()
	require.Len(t, tasks, 1)
	assert.Equal(t, TaskTypeUrgencySweep, tasks[0].task.Type())

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
