package worker

import (
	"context"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/printworks/jobtrack/internal/model"
)

// UrgentLister returns the non-terminal jobs inside the urgency window
type UrgentLister interface {
	UrgentJobs(ctx context.Context) ([]*model.JobView, error)
}

// UrgentNotifier pushes an urgency alert to connected dashboards
type UrgentNotifier interface {
	BroadcastUrgent(job *model.JobView)
}

// UrgencyWorker processes urgency sweeps
type UrgencyWorker struct {
	jobs     UrgentLister
	notifier UrgentNotifier
}

// NewUrgencyWorker creates a new urgency worker
func NewUrgencyWorker(jobs UrgentLister, notifier UrgentNotifier) *UrgencyWorker {
	return &UrgencyWorker{jobs: jobs, notifier: notifier}
}

// ProcessTask handles an urgency sweep task
func (w *UrgencyWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	n, err := w.Sweep(ctx)
	if err != nil {
		return err
	}
	log.Printf("Urgency sweep flagged %d jobs", n)
	return nil
}

// Sweep alerts on every urgent job and reports how many were found
func (w *UrgencyWorker) Sweep(ctx context.Context) (int, error) {
	jobs, err := w.jobs.UrgentJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list urgent jobs: %w", err)
	}
	for _, job := range jobs {
		w.notifier.BroadcastUrgent(job)
	}
	return len(jobs), nil
}
