package service

import (
	"context"

	"github.com/printworks/jobtrack/internal/engine"
	"github.com/printworks/jobtrack/internal/model"
	"github.com/printworks/jobtrack/internal/store"
)

// JobService handles job card creation, reads and generic transitions
type JobService struct {
	engine *engine.Engine
	store  store.Store
}

func NewJobService(eng *engine.Engine, s store.Store) *JobService {
	return &JobService{
		engine: eng,
		store:  s,
	}
}

// Create submits a new job card
func (s *JobService) Create(ctx context.Context, actor model.Actor, req *model.CreateJobRequest) (*model.JobView, error) {
	newJob := engine.NewJob{
		DisplayCode:  req.DisplayCode,
		CustomerName: req.CustomerName,
		ProductName:  req.ProductName,
		Quantity:     req.Quantity,
		Priority:     req.Priority,
		Notes:        req.Notes,
		Actor:        actor,
	}
	if req.DueDate != nil {
		newJob.DueDate = *req.DueDate
	}

	job, err := s.engine.Create(ctx, newJob)
	if err != nil {
		return nil, err
	}
	return s.engine.View(job), nil
}

// Get returns one job with its read-time fields
func (s *JobService) Get(ctx context.Context, jobID string) (*model.JobView, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.engine.View(job), nil
}

// List returns the jobs matching filter. urgentOnly keeps only urgent ones.
func (s *JobService) List(ctx context.Context, filter model.JobFilter, urgentOnly bool) (*model.JobListResponse, error) {
	jobs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	views := make([]*model.JobView, 0, len(jobs))
	for _, job := range jobs {
		v := s.engine.View(job)
		if urgentOnly && !v.Urgent {
			continue
		}
		views = append(views, v)
	}
	return &model.JobListResponse{Jobs: views, Total: len(views)}, nil
}

// UrgentJobs lists every non-terminal job inside the urgency window
func (s *JobService) UrgentJobs(ctx context.Context) ([]*model.JobView, error) {
	resp, err := s.List(ctx, model.JobFilter{}, true)
	if err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// History returns the audit trail of a job
func (s *JobService) History(ctx context.Context, jobID string) (*model.HistoryResponse, error) {
	if _, err := s.store.Get(ctx, jobID); err != nil {
		return nil, err
	}
	history, err := s.store.History(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []model.HistoryEntry{}
	}
	return &model.HistoryResponse{JobID: jobID, History: history}, nil
}

// Transition applies a single lifecycle action
func (s *JobService) Transition(ctx context.Context, actor model.Actor, jobID string, req *model.TransitionRequest) (*model.JobView, error) {
	res, err := s.engine.Apply(ctx, engine.Transition{
		JobID:           jobID,
		Action:          req.Action,
		Actor:           actor,
		Notes:           req.Notes,
		ExpectedVersion: req.Version,
		Priority:        req.Priority,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	return s.engine.ResultView(res), nil
}
