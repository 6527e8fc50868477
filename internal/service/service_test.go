package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printworks/jobtrack/internal/engine"
	"github.com/printworks/jobtrack/internal/model"
	"github.com/printworks/jobtrack/internal/store"
)

var (
	hod      = model.Actor{ID: "hod-1", Role: model.RoleHOD, Department: model.DepartmentPrepress}
	designer = model.Actor{ID: "D1", Role: model.RoleDesigner}
)

type services struct {
	jobs    *JobService
	assign  *AssignmentService
	store   *store.MemoryStore
	clockAt time.Time
}

func setup(t *testing.T) *services {
	t.Helper()
	s := &services{store: store.NewMemoryStore(), clockAt: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)}
	eng := engine.New(s.store, engine.WithClock(func() time.Time { return s.clockAt }))
	s.jobs = NewJobService(eng, s.store)
	s.assign = NewAssignmentService(eng, 4)
	return s
}

func (s *services) newJob(t *testing.T, customer string) *model.JobView {
	t.Helper()
	job, err := s.jobs.Create(context.Background(), hod, &model.CreateJobRequest{
		CustomerName: customer,
		ProductName:  "Printed sleeve",
		Quantity:     2500,
	})
	require.NoError(t, err)
	return job
}

// toReview drives a fresh job to Prepress HOD_REVIEW.
func (s *services) toReview(t *testing.T, customer string) *model.JobView {
	t.Helper()
	ctx := context.Background()
	job := s.newJob(t, customer)
	due := s.clockAt.Add(5 * 24 * time.Hour)

	job, err := s.assign.Assign(ctx, hod, job.ID, &model.AssignRequest{WorkerID: "D1", DueDate: &due, Version: job.Version})
	require.NoError(t, err)
	job, err = s.jobs.Transition(ctx, designer, job.ID, &model.TransitionRequest{Action: model.ActionStart, Version: job.Version})
	require.NoError(t, err)
	job, err = s.jobs.Transition(ctx, designer, job.ID, &model.TransitionRequest{Action: model.ActionSubmitForReview, Version: job.Version})
	require.NoError(t, err)
	require.Equal(t, model.SubStatusHODReview, job.SubStatus())
	return job
}

func TestAssign_AlreadyAssigned(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	job := s.newJob(t, "Acme")
	due := s.clockAt.Add(48 * time.Hour)

	job, err := s.assign.Assign(ctx, hod, job.ID, &model.AssignRequest{WorkerID: "D1", DueDate: &due, Version: job.Version})
	require.NoError(t, err)
	assert.Equal(t, "D1", job.AssigneeID())
	assert.True(t, job.Urgent)

	_, err = s.assign.Assign(ctx, hod, job.ID, &model.AssignRequest{WorkerID: "D2", Version: job.Version})
	assert.ErrorIs(t, err, model.ErrAlreadyAssigned)
}

func TestAssign_MissingDueDate(t *testing.T) {
	s := setup(t)
	job := s.newJob(t, "Acme")

	_, err := s.assign.Assign(context.Background(), hod, job.ID, &model.AssignRequest{WorkerID: "D1", Version: job.Version})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestReassign_SingleAssigneeAndOneEntry(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	job := s.newJob(t, "Acme")
	due := s.clockAt.Add(5 * 24 * time.Hour)

	job, err := s.assign.Assign(ctx, hod, job.ID, &model.AssignRequest{WorkerID: "A", DueDate: &due, Version: job.Version})
	require.NoError(t, err)
	before := len(job.StatusHistory)

	job, err = s.assign.Reassign(ctx, hod, job.ID, &model.ReassignRequest{WorkerID: "B", Version: job.Version})
	require.NoError(t, err)

	require.NotNil(t, job.AssignedTo)
	assert.Equal(t, "B", job.AssignedTo.ID)
	assert.Len(t, job.StatusHistory, before+1)
	assert.Contains(t, job.StatusHistory[before].Notes, "A to B")
}

func TestReview_RejectAndApprove(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	job := s.toReview(t, "Acme")

	job, err := s.assign.ReviewDecision(ctx, hod, job.ID, &model.ReviewRequest{
		Decision: model.DecisionReject, Feedback: "fix bleed", Version: job.Version,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SubStatusInProgress, job.SubStatus())
	assert.Equal(t, "D1", job.AssigneeID())
	assert.Len(t, job.StatusHistory, 4)
	assert.Equal(t, 25, job.ProgressPercentage)

	job, err = s.jobs.Transition(ctx, designer, job.ID, &model.TransitionRequest{Action: model.ActionSubmitForReview, Version: job.Version})
	require.NoError(t, err)

	_, err = s.assign.ReviewDecision(ctx, designer, job.ID, &model.ReviewRequest{Decision: model.DecisionApprove, Version: job.Version})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	job, err = s.assign.ReviewDecision(ctx, hod, job.ID, &model.ReviewRequest{Decision: model.DecisionApprove, Version: job.Version})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAssignedToInventory, job.Status)
	assert.Equal(t, 45, job.ProgressPercentage)
	assert.Equal(t, model.DepartmentInventory, job.CurrentDepartment)
}

func TestReview_UnknownDecision(t *testing.T) {
	s := setup(t)
	job := s.toReview(t, "Acme")
	_, err := s.assign.ReviewDecision(context.Background(), hod, job.ID, &model.ReviewRequest{Decision: "MAYBE", Version: job.Version})
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "decision", verr.Field)
}

func TestBulkApprove_PartialFailure(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	a := s.toReview(t, "Alpha")
	b := s.toReview(t, "Bravo")
	c := s.newJob(t, "Charlie")

	resp, err := s.assign.BulkAction(ctx, hod, &model.BulkActionRequest{
		JobIDs: []string{a.ID, b.ID, c.ID},
		Action: model.ActionApprove,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 3)
	assert.True(t, resp.Results[0].Success)
	assert.True(t, resp.Results[1].Success)
	assert.False(t, resp.Results[2].Success)
	assert.Equal(t, c.ID, resp.Results[2].JobID)
	assert.Equal(t, model.CodeInvalidTransition, resp.Results[2].Code)

	untouched, err := s.jobs.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Version, untouched.Version)
	assert.Equal(t, model.StatusCreated, untouched.Status)
	assert.Empty(t, untouched.StatusHistory)
}

func TestBulk_UnknownJob(t *testing.T) {
	s := setup(t)
	resp, err := s.assign.BulkAction(context.Background(), hod, &model.BulkActionRequest{
		JobIDs: []string{"nope"},
		Action: model.ActionCancel,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, model.CodeNotFound, resp.Results[0].Code)
}

func TestList_FiltersAndUrgent(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	first := s.newJob(t, "Northwind")
	s.newJob(t, "Contoso")
	due := s.clockAt.Add(24 * time.Hour)
	_, err := s.assign.Assign(ctx, hod, first.ID, &model.AssignRequest{WorkerID: "D1", DueDate: &due, Version: first.Version})
	require.NoError(t, err)

	all, err := s.jobs.List(ctx, model.JobFilter{}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)

	urgent, err := s.jobs.List(ctx, model.JobFilter{}, true)
	require.NoError(t, err)
	require.Equal(t, 1, urgent.Total)
	assert.Equal(t, first.ID, urgent.Jobs[0].ID)

	search, err := s.jobs.List(ctx, model.JobFilter{Search: "contoso"}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, search.Total)

	mine, err := s.jobs.List(ctx, model.JobFilter{AssigneeID: "D1"}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, mine.Total)

	hot, err := s.jobs.UrgentJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, hot, 1)
}

func TestHistory(t *testing.T) {
	s := setup(t)
	job := s.toReview(t, "Acme")

	resp, err := s.jobs.History(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, resp.History, 3)
	assert.Equal(t, model.ActionAssign, resp.History[0].Action)
	assert.Equal(t, model.ActionSubmitForReview, resp.History[2].Action)

	_, err = s.jobs.History(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
