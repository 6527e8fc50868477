package workflow

import (
	"fmt"

	"github.com/printworks/jobtrack/internal/model"
)

// Command is a requested action as seen by the validator.
type Command struct {
	Action   model.Action
	Actor    model.Actor
	Assignee *model.Assignee
	Priority model.Priority
}

// Outcome is the complete next state produced by a legal command.
type Outcome struct {
	Status     model.Status
	Department model.Department
	SubStatus  model.SubStatus
	Assignee   *model.Assignee
	HeldFrom   *model.HoldPoint
	Priority   model.Priority
}

// subMoves covers the department-local actions that only change the sub-status.
var subMoves = map[model.Action]struct {
	from []model.SubStatus
	to   model.SubStatus
}{
	model.ActionStart:           {[]model.SubStatus{model.SubStatusAssigned, model.SubStatusRejected}, model.SubStatusInProgress},
	model.ActionPause:           {[]model.SubStatus{model.SubStatusInProgress}, model.SubStatusPaused},
	model.ActionResume:          {[]model.SubStatus{model.SubStatusPaused}, model.SubStatusInProgress},
	model.ActionSubmitForReview: {[]model.SubStatus{model.SubStatusInProgress}, model.SubStatusHODReview},
	model.ActionReject:          {[]model.SubStatus{model.SubStatusHODReview}, model.SubStatusInProgress},
}

var reassignable = []model.SubStatus{
	model.SubStatusAssigned, model.SubStatusInProgress, model.SubStatusPaused,
	model.SubStatusHODReview, model.SubStatusRejected,
}

// Decide validates cmd against the current job state and returns the state
// the job moves to. It has no side effects.
func Decide(job *model.JobRecord, cmd Command) (Outcome, error) {
	if !cmd.Action.Valid() {
		return Outcome{}, &model.ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", cmd.Action)}
	}

	sub := job.SubStatus()
	reject := func(reason string) (Outcome, error) {
		return Outcome{}, &model.TransitionError{
			From: job.Status, Sub: sub, Action: cmd.Action, Role: cmd.Actor.Role, Reason: reason,
		}
	}

	if job.Status.IsTerminal() {
		return reject("job is retired")
	}
	if !Allowed(cmd.Actor.Role, cmd.Action) {
		return reject("role lacks capability")
	}
	if cmd.Actor.Role == model.RoleHOD && scoped(cmd.Actor.Department) && effectiveDepartment(job) != cmd.Actor.Department {
		return reject("job is outside the actor's department")
	}
	if cmd.Actor.Role.IsWorker() && job.AssigneeID() != cmd.Actor.ID {
		return reject("job is not assigned to the actor")
	}
	if job.Status == model.StatusOnHold {
		switch cmd.Action {
		case model.ActionRelease, model.ActionCancel, model.ActionSetPriority:
		default:
			return reject("job is on hold")
		}
	}

	out := Outcome{
		Status:     job.Status,
		Department: job.CurrentDepartment,
		SubStatus:  sub,
		Assignee:   job.AssignedTo,
		HeldFrom:   job.HeldFrom,
		Priority:   job.Priority,
	}
	if out.Department == "" {
		out.Department = model.DepartmentNone
	}

	switch cmd.Action {
	case model.ActionAssign:
		if cmd.Assignee == nil || cmd.Assignee.ID == "" {
			return Outcome{}, &model.ValidationError{Field: "workerId", Message: "worker is required"}
		}
		if job.AssignedTo != nil {
			return Outcome{}, fmt.Errorf("%w: job %s is held by %s", model.ErrAlreadyAssigned, job.ID, job.AssignedTo.ID)
		}
		switch {
		case job.Status == model.StatusCreated:
			out.Status = model.StatusAssignedToPrepress
			out.Department = model.DepartmentPrepress
		case sub == model.SubStatusPending:
		default:
			return reject("assignment requires a pending department")
		}
		out.SubStatus = model.SubStatusAssigned
		out.Assignee = cmd.Assignee
		if cmd.Priority != "" {
			out.Priority = cmd.Priority
		}

	case model.ActionReassign:
		if cmd.Assignee == nil || cmd.Assignee.ID == "" {
			return Outcome{}, &model.ValidationError{Field: "workerId", Message: "worker is required"}
		}
		if job.AssignedTo == nil || !contains(reassignable, sub) {
			return reject("nothing to reassign")
		}
		if job.AssignedTo.ID == cmd.Assignee.ID {
			return Outcome{}, &model.ValidationError{Field: "workerId", Message: "job is already assigned to this worker"}
		}
		out.SubStatus = model.SubStatusAssigned
		out.Assignee = cmd.Assignee

	case model.ActionStart, model.ActionPause, model.ActionResume, model.ActionSubmitForReview, model.ActionReject:
		move := subMoves[cmd.Action]
		if !contains(move.from, sub) {
			return reject(fmt.Sprintf("requires sub-status %v", move.from))
		}
		out.SubStatus = move.to
		if cmd.Action == model.ActionStart && statusTable[job.Status].phase == phaseAssigned {
			out.Status = statusFor(job.CurrentDepartment, phaseInProgress)
		}

	case model.ActionApprove:
		if sub != model.SubStatusHODReview {
			return reject("approval requires HOD_REVIEW")
		}
		out.Assignee = nil
		if next, ok := NextDepartment(job.CurrentDepartment); ok {
			out.Status = statusFor(next, phaseAssigned)
			out.Department = next
			out.SubStatus = model.SubStatusPending
		} else {
			out.Status = model.StatusCompleted
			out.Department = model.DepartmentNone
			out.SubStatus = ""
		}

	case model.ActionHold:
		out.HeldFrom = &model.HoldPoint{Status: job.Status, SubStatus: sub}
		out.Status = model.StatusOnHold
		out.Department = model.DepartmentNone
		out.SubStatus = ""

	case model.ActionRelease:
		if job.Status != model.StatusOnHold {
			return reject("job is not on hold")
		}
		if job.HeldFrom == nil {
			return reject("hold point is missing")
		}
		out.Status = job.HeldFrom.Status
		out.Department = DepartmentOf(job.HeldFrom.Status)
		out.SubStatus = job.HeldFrom.SubStatus
		out.HeldFrom = nil

	case model.ActionCancel:
		out.Status = model.StatusCancelled
		out.Department = model.DepartmentNone
		out.SubStatus = ""
		out.HeldFrom = nil
		out.Assignee = nil

	case model.ActionAdvance:
		next, ok := Successor(job.Status)
		if !ok {
			return reject("no backbone successor")
		}
		out.Status = next
		out.Department = DepartmentOf(next)
		switch statusTable[next].phase {
		case phaseAssigned:
			out.SubStatus = model.SubStatusPending
			out.Assignee = nil
		case phaseInProgress:
			if job.AssignedTo == nil {
				return reject("in-progress requires an assignee")
			}
			out.SubStatus = model.SubStatusInProgress
		case phaseCompleted:
			out.SubStatus = model.SubStatusCompleted
		default:
			out.SubStatus = ""
			out.Assignee = nil
		}

	case model.ActionSetPriority:
		if !cmd.Priority.Valid() {
			return Outcome{}, &model.ValidationError{Field: "priority", Message: "priority is required"}
		}
		if cmd.Priority == job.Priority {
			return Outcome{}, &model.ValidationError{Field: "priority", Message: "priority unchanged"}
		}
		out.Priority = cmd.Priority
	}

	if IsAheadOf(job.Status, out.Status) {
		return reject(fmt.Sprintf("backbone cannot move back to %s", out.Status))
	}
	return out, nil
}

// effectiveDepartment is the department an HOD must own to act on the job.
func effectiveDepartment(job *model.JobRecord) model.Department {
	switch job.Status {
	case model.StatusCreated:
		return model.DepartmentPrepress
	case model.StatusOnHold:
		if job.HeldFrom != nil {
			if d := DepartmentOf(job.HeldFrom.Status); d != model.DepartmentNone {
				return d
			}
			if job.HeldFrom.Status == model.StatusCreated {
				return model.DepartmentPrepress
			}
		}
	}
	return job.CurrentDepartment
}

func scoped(d model.Department) bool {
	return d != "" && d != model.DepartmentNone
}

func contains(set []model.SubStatus, s model.SubStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
