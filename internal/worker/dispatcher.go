package worker

import (
	"context"
	"errors"
	"log"

	"github.com/hibiken/asynq"

	"github.com/printworks/jobtrack/internal/broadcast"
	"github.com/printworks/jobtrack/internal/model"
)

// ArchiveDispatcher turns lifecycle events that retire a job into archive tasks
type ArchiveDispatcher struct {
	broker   *broadcast.Broker
	enqueuer Enqueuer
}

// NewArchiveDispatcher creates a new archive dispatcher
func NewArchiveDispatcher(broker *broadcast.Broker, enqueuer Enqueuer) *ArchiveDispatcher {
	return &ArchiveDispatcher{broker: broker, enqueuer: enqueuer}
}

// Run consumes the global topic until ctx is done or the broker closes
func (d *ArchiveDispatcher) Run(ctx context.Context) {
	sub := d.broker.Subscribe(model.TopicAllJobs)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			d.handle(event)
		case <-sub.Gaps():
			log.Printf("Archive dispatcher missed events (%d dropped so far)", sub.Dropped())
		}
	}
}

func (d *ArchiveDispatcher) handle(event model.LifecycleEvent) {
	if !event.NewStatus.IsTerminal() || event.OldStatus == event.NewStatus {
		return
	}

	task, err := NewArchiveTask(event.JobID, string(event.NewStatus))
	if err != nil {
		log.Printf("Failed to build archive task for %s: %v", event.JobID, err)
		return
	}

	if _, err := d.enqueuer.Enqueue(task, ArchiveOptions(event.JobID)...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return
		}
		log.Printf("Failed to enqueue archive task for %s: %v", event.JobID, err)
	}
}
