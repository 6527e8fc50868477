package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/printworks/jobtrack/internal/engine"
	"github.com/printworks/jobtrack/internal/model"
)

const defaultBulkConcurrency = 8

// AssignmentService handles the role-gated composite operations: assignment,
// reassignment, HOD review and bulk actions
type AssignmentService struct {
	engine          *engine.Engine
	bulkConcurrency int
}

func NewAssignmentService(eng *engine.Engine, bulkConcurrency int) *AssignmentService {
	if bulkConcurrency <= 0 {
		bulkConcurrency = defaultBulkConcurrency
	}
	return &AssignmentService{
		engine:          eng,
		bulkConcurrency: bulkConcurrency,
	}
}

// Assign hands a pending job to a worker. A job that already has a worker
// fails with ErrAlreadyAssigned; use Reassign to replace it.
func (s *AssignmentService) Assign(ctx context.Context, actor model.Actor, jobID string, req *model.AssignRequest) (*model.JobView, error) {
	res, err := s.engine.Apply(ctx, engine.Transition{
		JobID:           jobID,
		Action:          model.ActionAssign,
		Actor:           actor,
		Notes:           req.Notes,
		ExpectedVersion: req.Version,
		Assignee:        &model.Assignee{ID: req.WorkerID, Name: req.WorkerName},
		Priority:        req.Priority,
		DueDate:         req.DueDate,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	return s.engine.ResultView(res), nil
}

// Reassign replaces the worker and restarts the department cycle at ASSIGNED
func (s *AssignmentService) Reassign(ctx context.Context, actor model.Actor, jobID string, req *model.ReassignRequest) (*model.JobView, error) {
	res, err := s.engine.Apply(ctx, engine.Transition{
		JobID:           jobID,
		Action:          model.ActionReassign,
		Actor:           actor,
		Notes:           req.Notes,
		ExpectedVersion: req.Version,
		Assignee:        &model.Assignee{ID: req.WorkerID, Name: req.WorkerName},
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	return s.engine.ResultView(res), nil
}

// ReviewDecision approves or rejects a job in HOD_REVIEW. Rejection feedback
// is appended to the department notes.
func (s *AssignmentService) ReviewDecision(ctx context.Context, actor model.Actor, jobID string, req *model.ReviewRequest) (*model.JobView, error) {
	var action model.Action
	switch req.Decision {
	case model.DecisionApprove:
		action = model.ActionApprove
	case model.DecisionReject:
		action = model.ActionReject
	default:
		return nil, &model.ValidationError{Field: "decision", Message: fmt.Sprintf("unknown decision %q", req.Decision)}
	}

	res, err := s.engine.Apply(ctx, engine.Transition{
		JobID:           jobID,
		Action:          action,
		Actor:           actor,
		Notes:           req.Feedback,
		ExpectedVersion: req.Version,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	return s.engine.ResultView(res), nil
}

// BulkAction applies the same action to every id independently and
// concurrently. Failures are reported per id and never stop the batch.
func (s *AssignmentService) BulkAction(ctx context.Context, actor model.Actor, req *model.BulkActionRequest) (*model.BulkActionResponse, error) {
	results := make([]model.BulkItemResult, len(req.JobIDs))

	var g errgroup.Group
	g.SetLimit(s.bulkConcurrency)
	for i, jobID := range req.JobIDs {
		g.Go(func() error {
			results[i] = s.applyOne(ctx, actor, jobID, req)
			return nil
		})
	}
	_ = g.Wait()

	resp := &model.BulkActionResponse{Action: req.Action, Results: results}
	for _, r := range results {
		if r.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	return resp, nil
}

func (s *AssignmentService) applyOne(ctx context.Context, actor model.Actor, jobID string, req *model.BulkActionRequest) model.BulkItemResult {
	if err := ctx.Err(); err != nil {
		return model.BulkItemResult{JobID: jobID, Code: model.CodeServiceError, Error: err.Error()}
	}
	res, err := s.engine.Apply(ctx, engine.Transition{
		JobID:  jobID,
		Action: req.Action,
		Actor:  actor,
		Notes:  req.Notes,
	})
	if err != nil {
		return model.BulkItemResult{JobID: jobID, Code: model.ErrorCode(err), Error: err.Error()}
	}
	return model.BulkItemResult{JobID: jobID, Success: true, Job: res.Job}
}
