package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler enqueues the urgency sweep on a cron schedule
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	enqueuer Enqueuer
}

// NewScheduler validates spec and registers the sweep
func NewScheduler(spec string, enqueuer Enqueuer) (*Scheduler, error) {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid urgency cron %q: %w", spec, err)
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithParser(cronParser)),
		schedule: schedule,
		enqueuer: enqueuer,
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.EnqueueSweep))
	return s, nil
}

// EnqueueSweep queues one urgency sweep. Duplicates within the unique window
// are expected when several instances share a schedule.
func (s *Scheduler) EnqueueSweep() {
	_, err := s.enqueuer.Enqueue(NewUrgencySweepTask(), SweepOptions()...)
	if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		log.Printf("Failed to enqueue urgency sweep: %v", err)
	}
}

// Next returns the next fire time after t
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("Urgency sweep scheduled, next run at %s", s.Next(time.Now()).Format(time.RFC3339))
}

// Stop halts the schedule and waits for a running enqueue to finish
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
