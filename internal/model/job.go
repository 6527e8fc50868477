package model

import (
	"strings"
	"time"
)

// Actor is the identity a mutation is performed as. The role is trusted as
// supplied by the identity layer.
type Actor struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	Role       Role       `json:"role"`
	Department Department `json:"department,omitempty"`
}

// Assignee is the designer/operator currently responsible for a job.
type Assignee struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Note is a free-text remark attached to a department. Notes are appended, never edited.
type Note struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// HistoryEntry is one line of the append-only status log.
type HistoryEntry struct {
	Sequence   int        `json:"sequence"`
	Action     Action     `json:"action"`
	Status     Status     `json:"status"`
	SubStatus  SubStatus  `json:"subStatus,omitempty"`
	Department Department `json:"department"`
	ActorID    string     `json:"actorId"`
	ActorRole  Role       `json:"actorRole"`
	Notes      string     `json:"notes,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// HoldPoint remembers where a job was when it was put on hold.
type HoldPoint struct {
	Status    Status    `json:"status"`
	SubStatus SubStatus `json:"subStatus,omitempty"`
}

// JobRecord is the authoritative state of one job card.
type JobRecord struct {
	ID                  string                   `json:"id"`
	DisplayCode         string                   `json:"displayCode"`
	CustomerName        string                   `json:"customerName,omitempty"`
	ProductName         string                   `json:"productName,omitempty"`
	Quantity            int                      `json:"quantity,omitempty"`
	Status              Status                   `json:"status"`
	CurrentDepartment   Department               `json:"currentDepartment"`
	DepartmentSubStatus map[Department]SubStatus `json:"departmentSubStatus"`
	ProgressPercentage  int                      `json:"progressPercentage"`
	StageLabel          string                   `json:"stageLabel"`
	Priority            Priority                 `json:"priority"`
	AssignedTo          *Assignee                `json:"assignedTo,omitempty"`
	DueDate             time.Time                `json:"dueDate"`
	Notes               map[Department][]Note    `json:"notes,omitempty"`
	StatusHistory       []HistoryEntry           `json:"statusHistory"`
	HeldFrom            *HoldPoint               `json:"heldFrom,omitempty"`
	CreatedBy           string                   `json:"createdBy,omitempty"`
	CreatedAt           time.Time                `json:"createdAt"`
	UpdatedAt           time.Time                `json:"updatedAt"`
	Version             int64                    `json:"version"`
}

// SubStatus returns the sub-status of the active department, or "" when the
// job is not inside a department.
func (j *JobRecord) SubStatus() SubStatus {
	if j.CurrentDepartment == DepartmentNone || j.CurrentDepartment == "" {
		return ""
	}
	return j.DepartmentSubStatus[j.CurrentDepartment]
}

// AssigneeID returns the assigned worker ID or "".
func (j *JobRecord) AssigneeID() string {
	if j.AssignedTo == nil {
		return ""
	}
	return j.AssignedTo.ID
}

// Clone returns a deep copy so callers can mutate without touching shared snapshots.
func (j *JobRecord) Clone() *JobRecord {
	if j == nil {
		return nil
	}
	c := *j
	if j.DepartmentSubStatus != nil {
		c.DepartmentSubStatus = make(map[Department]SubStatus, len(j.DepartmentSubStatus))
		for k, v := range j.DepartmentSubStatus {
			c.DepartmentSubStatus[k] = v
		}
	}
	if j.AssignedTo != nil {
		a := *j.AssignedTo
		c.AssignedTo = &a
	}
	if j.Notes != nil {
		c.Notes = make(map[Department][]Note, len(j.Notes))
		for k, v := range j.Notes {
			c.Notes[k] = append([]Note(nil), v...)
		}
	}
	c.StatusHistory = append([]HistoryEntry(nil), j.StatusHistory...)
	if j.HeldFrom != nil {
		h := *j.HeldFrom
		c.HeldFrom = &h
	}
	return &c
}

// JobView is a JobRecord decorated with fields derived at read time.
type JobView struct {
	*JobRecord
	DaysUntilDue *int `json:"daysUntilDue,omitempty"`
	Urgent       bool `json:"urgent"`
	// Replayed marks a response to a repeated idempotency key; nothing was applied.
	Replayed bool `json:"replayed,omitempty"`
}

// JobFilter selects records for listings. Empty fields match everything.
type JobFilter struct {
	Status     Status
	Priority   Priority
	Department Department
	AssigneeID string
	Search     string
}

// Matches applies the filter to a single record.
func (f JobFilter) Matches(j *JobRecord) bool {
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if f.Priority != "" && j.Priority != f.Priority {
		return false
	}
	if f.Department != "" && j.CurrentDepartment != f.Department {
		return false
	}
	if f.AssigneeID != "" && j.AssigneeID() != f.AssigneeID {
		return false
	}
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(j.DisplayCode), term) &&
			!strings.Contains(strings.ToLower(j.CustomerName), term) &&
			!strings.Contains(strings.ToLower(j.ProductName), term) {
			return false
		}
	}
	return true
}
