package model

import (
	"fmt"
	"time"
)

// LifecycleEvent is emitted exactly once per successful transition.
type LifecycleEvent struct {
	ID                 string     `json:"id"`
	JobID              string     `json:"jobId"`
	DisplayCode        string     `json:"displayCode"`
	Action             Action     `json:"action"`
	OldStatus          Status     `json:"oldStatus"`
	NewStatus          Status     `json:"newStatus"`
	SubStatus          SubStatus  `json:"subStatus,omitempty"`
	Actor              Actor      `json:"actor"`
	Timestamp          time.Time  `json:"timestamp"`
	Version            int64      `json:"version"`
	ProgressPercentage int        `json:"progressPercentage"`
	CurrentDepartment  Department `json:"currentDepartment"`
	AssignedTo         *Assignee  `json:"assignedTo,omitempty"`
	Origin             string     `json:"origin,omitempty"`
}

// DedupKey identifies an event for idempotent merges on the consumer side.
func (e LifecycleEvent) DedupKey() string {
	return fmt.Sprintf("%s|%s|%d", e.JobID, e.NewStatus, e.Timestamp.UnixNano())
}

// Broadcast topics
const TopicAllJobs = "jobs"

// TopicJob returns the per-job topic used by detail views.
func TopicJob(jobID string) string {
	return "job:" + jobID
}
