package worker

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeUrgencySweep = "jobs:urgency_sweep"
	TaskTypeArchive      = "jobs:archive"

	QueueUrgency = "urgency"
	QueueArchive = "archive"
)

// Queues is the asynq queue priority map for the worker server
var Queues = map[string]int{
	QueueUrgency: 6,
	QueueArchive: 4,
}

// Enqueuer is the part of *asynq.Client the dispatchers use
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type archivePayload struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// NewUrgencySweepTask builds the periodic urgency sweep
func NewUrgencySweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeUrgencySweep, nil)
}

// NewArchiveTask builds the audit archive task for a retired job
func NewArchiveTask(jobID, status string) (*asynq.Task, error) {
	data, err := json.Marshal(archivePayload{JobID: jobID, Status: status})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeArchive, data), nil
}

// SweepOptions returns the enqueue options for an urgency sweep. Unique keeps
// overlapping cron ticks from several instances down to one sweep.
func SweepOptions() []asynq.Option {
	return []asynq.Option{
		asynq.Queue(QueueUrgency),
		asynq.MaxRetry(1),
		asynq.Unique(time.Minute),
	}
}

// ArchiveOptions returns the enqueue options for an archive task. The task id
// collapses duplicates when every instance sees the same terminal event.
func ArchiveOptions(jobID string) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(QueueArchive),
		asynq.MaxRetry(5),
		asynq.TaskID("archive:" + jobID),
		asynq.Retention(24 * time.Hour),
	}
}

// ArchiveKey is the object key an archived job card is stored under
func ArchiveKey(jobID string) string {
	return "archive/jobs/" + jobID + ".json"
}
