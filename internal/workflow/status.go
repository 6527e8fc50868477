// Package workflow holds the job card state machine: the progress table, the
// department mapping, the capability table and the pure transition decision.
package workflow

import (
	"math"
	"time"

	"github.com/printworks/jobtrack/internal/model"
)

type phase int

const (
	phaseNone phase = iota
	phaseAssigned
	phaseInProgress
	phaseCompleted
)

type statusInfo struct {
	progress   int
	department model.Department
	phase      phase
}

// statusTable must carry an entry for every model.AllStatuses value.
var statusTable = map[model.Status]statusInfo{
	model.StatusCreated:              {5, model.DepartmentNone, phaseNone},
	model.StatusAssignedToPrepress:   {15, model.DepartmentPrepress, phaseAssigned},
	model.StatusPrepressInProgress:   {25, model.DepartmentPrepress, phaseInProgress},
	model.StatusPrepressCompleted:    {35, model.DepartmentPrepress, phaseCompleted},
	model.StatusAssignedToInventory:  {45, model.DepartmentInventory, phaseAssigned},
	model.StatusInventoryInProgress:  {55, model.DepartmentInventory, phaseInProgress},
	model.StatusInventoryCompleted:   {65, model.DepartmentInventory, phaseCompleted},
	model.StatusAssignedToProduction: {75, model.DepartmentProduction, phaseAssigned},
	model.StatusProductionInProgress: {85, model.DepartmentProduction, phaseInProgress},
	model.StatusProductionCompleted:  {90, model.DepartmentProduction, phaseCompleted},
	model.StatusAssignedToQA:         {92, model.DepartmentQA, phaseAssigned},
	model.StatusQAInProgress:         {94, model.DepartmentQA, phaseInProgress},
	model.StatusQACompleted:          {96, model.DepartmentQA, phaseCompleted},
	model.StatusAssignedToDispatch:   {98, model.DepartmentDispatch, phaseAssigned},
	model.StatusDispatchInProgress:   {99, model.DepartmentDispatch, phaseInProgress},
	model.StatusDispatchCompleted:    {100, model.DepartmentDispatch, phaseCompleted},
	model.StatusCompleted:            {100, model.DepartmentNone, phaseNone},
	model.StatusOnHold:               {0, model.DepartmentNone, phaseNone},
	model.StatusCancelled:            {0, model.DepartmentNone, phaseNone},
}

// Progress returns the progress percentage for a status. It depends on
// nothing but the status.
func Progress(s model.Status) int {
	return statusTable[s].progress
}

// DepartmentOf maps a backbone status to the department it sits in.
func DepartmentOf(s model.Status) model.Department {
	info, ok := statusTable[s]
	if !ok {
		return model.DepartmentNone
	}
	return info.department
}

// BackboneIndex returns the position of s in the canonical ordering, or -1
// for side states and unknown values.
func BackboneIndex(s model.Status) int {
	for i, v := range model.Backbone {
		if v == s {
			return i
		}
	}
	return -1
}

// IsAheadOf reports whether a is strictly further along the backbone than b.
func IsAheadOf(a, b model.Status) bool {
	ia, ib := BackboneIndex(a), BackboneIndex(b)
	return ia >= 0 && ib >= 0 && ia > ib
}

// Successor returns the next backbone status.
func Successor(s model.Status) (model.Status, bool) {
	i := BackboneIndex(s)
	if i < 0 || i+1 >= len(model.Backbone) {
		return "", false
	}
	return model.Backbone[i+1], true
}

func statusFor(d model.Department, p phase) model.Status {
	for s, info := range statusTable {
		if info.department == d && info.phase == p {
			return s
		}
	}
	return ""
}

// NextDepartment returns the department after d in pipeline order.
func NextDepartment(d model.Department) (model.Department, bool) {
	for i, v := range model.Departments {
		if v == d && i+1 < len(model.Departments) {
			return model.Departments[i+1], true
		}
	}
	return "", false
}

var departmentLabels = map[model.Department]string{
	model.DepartmentPrepress:   "Prepress",
	model.DepartmentInventory:  "Inventory",
	model.DepartmentProduction: "Production",
	model.DepartmentQA:         "QA",
	model.DepartmentDispatch:   "Dispatch",
}

var subStatusLabels = map[model.SubStatus]string{
	model.SubStatusPending:    "Pending",
	model.SubStatusAssigned:   "Assigned",
	model.SubStatusInProgress: "In Progress",
	model.SubStatusPaused:     "Paused",
	model.SubStatusHODReview:  "HOD Review",
	model.SubStatusCompleted:  "Completed",
	model.SubStatusRejected:   "Rejected",
}

// StageLabel is the human-facing stage shown on dashboards.
func StageLabel(s model.Status, sub model.SubStatus) string {
	switch s {
	case model.StatusCreated:
		return "Created"
	case model.StatusCompleted:
		return "Completed"
	case model.StatusOnHold:
		return "On Hold"
	case model.StatusCancelled:
		return "Cancelled"
	}
	dept := departmentLabels[DepartmentOf(s)]
	if label, ok := subStatusLabels[sub]; ok {
		return dept + " / " + label
	}
	return dept
}

// DaysUntilDue is ceil((due - now) / 1 day).
func DaysUntilDue(due, now time.Time) int {
	return int(math.Ceil(due.Sub(now).Hours() / 24))
}

// Urgency derives days-until-due and the urgent flag. A job without a due
// date has neither; terminal jobs are never urgent.
func Urgency(s model.Status, due, now time.Time, thresholdDays int) (*int, bool) {
	if due.IsZero() {
		return nil, false
	}
	days := DaysUntilDue(due, now)
	return &days, days <= thresholdDays && !s.IsTerminal()
}
