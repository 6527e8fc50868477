// Package engine applies validated lifecycle transitions to stored job
// records. Mutations of one job are serialized; reads go straight to the
// store and never wait on writers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/printworks/jobtrack/internal/model"
	"github.com/printworks/jobtrack/internal/store"
	"github.com/printworks/jobtrack/internal/workflow"
)

// Publisher receives lifecycle events. Implementations must not block.
type Publisher interface {
	Publish(event model.LifecycleEvent)
}

// Transition is one requested action against one job.
type Transition struct {
	JobID  string
	Action model.Action
	Actor  model.Actor
	Notes  string
	// ExpectedVersion is the version the caller observed. Zero skips the check.
	ExpectedVersion int64
	Assignee        *model.Assignee
	Priority        model.Priority
	DueDate         *time.Time
	IdempotencyKey  string
}

// Result is the committed record and the event it produced. Replayed is set
// when an idempotency key matched an earlier mutation and nothing was applied.
type Result struct {
	Job      *model.JobRecord
	Event    *model.LifecycleEvent
	Replayed bool
}

// NewJob carries the business fields of a job card submission.
type NewJob struct {
	DisplayCode  string
	CustomerName string
	ProductName  string
	Quantity     int
	Priority     model.Priority
	DueDate      time.Time
	Notes        string
	Actor        model.Actor
}

type Engine struct {
	store         store.Store
	idem          store.IdempotencyStore
	publisher     Publisher
	locks         *keyedLocks
	now           func() time.Time
	thresholdDays int
	idemTTL       time.Duration
	origin        string
}

type Option func(*Engine)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithIdempotency(s store.IdempotencyStore, ttl time.Duration) Option {
	return func(e *Engine) {
		e.idem = s
		e.idemTTL = ttl
	}
}

func WithUrgencyThreshold(days int) Option {
	return func(e *Engine) { e.thresholdDays = days }
}

// WithOrigin stamps events with the id of this instance.
func WithOrigin(origin string) Option {
	return func(e *Engine) { e.origin = origin }
}

func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		locks:         newKeyedLocks(),
		now:           time.Now,
		thresholdDays: 2,
		idemTTL:       time.Hour,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create stores a new job card in CREATED. A display code is allocated from
// the store sequence when none is supplied. The due date may be left for
// the first assignment to set.
func (e *Engine) Create(ctx context.Context, req NewJob) (*model.JobRecord, error) {
	if !workflow.CanCreate(req.Actor.Role) {
		return nil, &model.TransitionError{From: "", Action: "CREATE", Role: req.Actor.Role, Reason: "role cannot create jobs"}
	}
	priority := req.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !priority.Valid() {
		return nil, &model.ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", priority)}
	}

	code := strings.TrimSpace(req.DisplayCode)
	generated := code == ""

	now := e.now()
	job := &model.JobRecord{
		ID:                  uuid.NewString(),
		DisplayCode:         code,
		CustomerName:        req.CustomerName,
		ProductName:         req.ProductName,
		Quantity:            req.Quantity,
		Status:              model.StatusCreated,
		CurrentDepartment:   model.DepartmentNone,
		DepartmentSubStatus: map[model.Department]model.SubStatus{},
		ProgressPercentage:  workflow.Progress(model.StatusCreated),
		StageLabel:          workflow.StageLabel(model.StatusCreated, ""),
		Priority:            priority,
		DueDate:             req.DueDate,
		CreatedBy:           req.Actor.ID,
		CreatedAt:           now,
		UpdatedAt:           now,
		Version:             1,
	}
	if req.Notes != "" {
		job.Notes = map[model.Department][]model.Note{
			model.DepartmentNone: {{Author: req.Actor.ID, Text: req.Notes, CreatedAt: now}},
		}
	}

	if err := e.insert(ctx, job, generated); err != nil {
		return nil, err
	}

	e.publish(model.LifecycleEvent{
		ID:                 uuid.NewString(),
		JobID:              job.ID,
		DisplayCode:        job.DisplayCode,
		NewStatus:          job.Status,
		Actor:              req.Actor,
		Timestamp:          now,
		Version:            job.Version,
		ProgressPercentage: job.ProgressPercentage,
		CurrentDepartment:  job.CurrentDepartment,
	})
	return job, nil
}

// maxCodeAttempts bounds how many sequence numbers Create tries when a
// generated display code is already taken by a manually supplied one.
const maxCodeAttempts = 5

func (e *Engine) insert(ctx context.Context, job *model.JobRecord, generated bool) error {
	if !generated {
		return e.store.Create(ctx, job)
	}
	var err error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		n, seqErr := e.store.NextSequence(ctx)
		if seqErr != nil {
			return seqErr
		}
		job.DisplayCode = fmt.Sprintf("JC-%04d", n)
		if err = e.store.Create(ctx, job); !errors.Is(err, model.ErrDuplicate) {
			return err
		}
	}
	return err
}

// Apply validates t against the stored record and commits the resulting
// state. Exactly one event is published per committed transition; failed
// transitions leave the record untouched.
func (e *Engine) Apply(ctx context.Context, t Transition) (*Result, error) {
	if t.IdempotencyKey != "" && e.idem != nil {
		if res, err := e.replay(ctx, t); res != nil || err != nil {
			return res, err
		}
	}

	unlock, err := e.locks.Lock(ctx, t.JobID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// a duplicate that raced us to the lock
	if t.IdempotencyKey != "" && e.idem != nil {
		if res, err := e.replay(ctx, t); res != nil || err != nil {
			return res, err
		}
	}

	job, err := e.store.Get(ctx, t.JobID)
	if err != nil {
		return nil, err
	}
	if t.ExpectedVersion != 0 && job.Version != t.ExpectedVersion {
		return nil, &model.StaleWriteError{JobID: job.ID, Expected: t.ExpectedVersion, Actual: job.Version}
	}

	out, err := workflow.Decide(job, workflow.Command{
		Action:   t.Action,
		Actor:    t.Actor,
		Assignee: t.Assignee,
		Priority: t.Priority,
	})
	if err != nil {
		return nil, err
	}

	next, err := e.build(job, t, out)
	if err != nil {
		return nil, err
	}

	if err := e.store.Update(ctx, next, job.Version); err != nil {
		return nil, err
	}

	if t.IdempotencyKey != "" && e.idem != nil {
		rec := store.IdempotencyRecord{JobID: job.ID, Action: t.Action}
		if err := e.idem.Remember(ctx, t.IdempotencyKey, rec, e.idemTTL); err != nil {
			log.Printf("Failed to record idempotency key for job %s: %v", job.ID, err)
		}
	}

	event := model.LifecycleEvent{
		ID:                 uuid.NewString(),
		JobID:              next.ID,
		DisplayCode:        next.DisplayCode,
		Action:             t.Action,
		OldStatus:          job.Status,
		NewStatus:          next.Status,
		SubStatus:          next.SubStatus(),
		Actor:              t.Actor,
		Timestamp:          next.UpdatedAt,
		Version:            next.Version,
		ProgressPercentage: next.ProgressPercentage,
		CurrentDepartment:  next.CurrentDepartment,
		AssignedTo:         next.AssignedTo,
	}
	// published while the job lock is held so per-job order matches commit order
	e.publish(event)

	return &Result{Job: next, Event: &event}, nil
}

func (e *Engine) replay(ctx context.Context, t Transition) (*Result, error) {
	rec, found, err := e.idem.Lookup(ctx, t.IdempotencyKey)
	if err != nil {
		log.Printf("Idempotency lookup failed, applying without it: %v", err)
		return nil, nil
	}
	if !found {
		return nil, nil
	}
	if rec.JobID != t.JobID {
		return nil, &model.ValidationError{Field: "idempotencyKey", Message: "key was already used for another job"}
	}
	if rec.Action != t.Action {
		return nil, &model.ValidationError{
			Field:   "idempotencyKey",
			Message: fmt.Sprintf("key was already used for %s", rec.Action),
		}
	}
	job, err := e.store.Get(ctx, t.JobID)
	if err != nil {
		return nil, err
	}
	return &Result{Job: job, Replayed: true}, nil
}

// build derives the next record from the current one and a decided outcome.
func (e *Engine) build(job *model.JobRecord, t Transition, out workflow.Outcome) (*model.JobRecord, error) {
	next := job.Clone()

	if t.DueDate != nil && !t.DueDate.IsZero() {
		if !job.DueDate.IsZero() && !job.DueDate.Equal(*t.DueDate) {
			return nil, &model.ValidationError{Field: "dueDate", Message: "due date is immutable once set"}
		}
		next.DueDate = *t.DueDate
	}
	if t.Action == model.ActionAssign && next.DueDate.IsZero() {
		return nil, &model.ValidationError{Field: "dueDate", Message: "due date is required to assign"}
	}

	next.Status = out.Status
	next.CurrentDepartment = out.Department
	next.DepartmentSubStatus = map[model.Department]model.SubStatus{}
	if out.Department != model.DepartmentNone && out.SubStatus != "" {
		next.DepartmentSubStatus[out.Department] = out.SubStatus
	}
	next.AssignedTo = out.Assignee
	next.HeldFrom = out.HeldFrom
	next.Priority = out.Priority
	next.ProgressPercentage = workflow.Progress(out.Status)
	next.StageLabel = workflow.StageLabel(out.Status, out.SubStatus)

	now := e.now()
	if !now.After(job.UpdatedAt) {
		now = job.UpdatedAt.Add(time.Millisecond)
	}
	next.UpdatedAt = now
	next.Version = job.Version + 1

	if t.Notes != "" {
		dept := job.CurrentDepartment
		if dept == model.DepartmentNone || dept == "" {
			dept = out.Department
		}
		if next.Notes == nil {
			next.Notes = make(map[model.Department][]model.Note)
		}
		next.Notes[dept] = append(next.Notes[dept], model.Note{Author: t.Actor.ID, Text: t.Notes, CreatedAt: now})
	}

	next.StatusHistory = append(next.StatusHistory, model.HistoryEntry{
		Sequence:   len(job.StatusHistory) + 1,
		Action:     t.Action,
		Status:     out.Status,
		SubStatus:  out.SubStatus,
		Department: out.Department,
		ActorID:    t.Actor.ID,
		ActorRole:  t.Actor.Role,
		Notes:      historyNote(job, t, out),
		Timestamp:  now,
	})
	return next, nil
}

func historyNote(job *model.JobRecord, t Transition, out workflow.Outcome) string {
	var parts []string
	switch t.Action {
	case model.ActionReassign:
		parts = append(parts, fmt.Sprintf("reassigned from %s to %s", job.AssigneeID(), out.Assignee.ID))
	case model.ActionSetPriority:
		parts = append(parts, fmt.Sprintf("priority %s -> %s", job.Priority, out.Priority))
	}
	if t.Notes != "" {
		parts = append(parts, t.Notes)
	}
	return strings.Join(parts, "; ")
}

func (e *Engine) publish(event model.LifecycleEvent) {
	if e.publisher == nil {
		return
	}
	event.Origin = e.origin
	e.publisher.Publish(event)
}

// View decorates a record with the read-time urgency fields.
func (e *Engine) View(job *model.JobRecord) *model.JobView {
	days, urgent := workflow.Urgency(job.Status, job.DueDate, e.now(), e.thresholdDays)
	return &model.JobView{JobRecord: job, DaysUntilDue: days, Urgent: urgent}
}

// ResultView is View for an Apply result, flagging replayed requests.
func (e *Engine) ResultView(res *Result) *model.JobView {
	v := e.View(res.Job)
	v.Replayed = res.Replayed
	return v
}

// Now exposes the engine clock so read paths agree with write paths.
func (e *Engine) Now() time.Time {
	return e.now()
}
