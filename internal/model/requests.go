package model

import "time"

// CreateJobRequest represents a new job card submission
type CreateJobRequest struct {
	DisplayCode  string     `json:"displayCode" validate:"omitempty,max=32"`
	CustomerName string     `json:"customerName" validate:"required,max=200"`
	ProductName  string     `json:"productName" validate:"required,max=200"`
	Quantity     int        `json:"quantity" validate:"required,min=1"`
	Priority     Priority   `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	DueDate      *time.Time `json:"dueDate"`
	Notes        string     `json:"notes" validate:"omitempty,max=2000"`
}

// TransitionRequest is a generic lifecycle action against one job
type TransitionRequest struct {
	Action         Action   `json:"action" validate:"required,oneof=ASSIGN REASSIGN START PAUSE RESUME SUBMIT_FOR_REVIEW APPROVE REJECT HOLD RELEASE CANCEL ADVANCE SET_PRIORITY"`
	Version        int64    `json:"version" validate:"required,min=1"`
	Notes          string   `json:"notes" validate:"omitempty,max=2000"`
	Priority       Priority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	IdempotencyKey string   `json:"idempotencyKey" validate:"omitempty,max=128"`
}

// AssignRequest hands a job to a worker
type AssignRequest struct {
	WorkerID       string     `json:"workerId" validate:"required,max=64"`
	WorkerName     string     `json:"workerName" validate:"omitempty,max=200"`
	Priority       Priority   `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	DueDate        *time.Time `json:"dueDate"`
	Notes          string     `json:"notes" validate:"omitempty,max=2000"`
	Version        int64      `json:"version" validate:"required,min=1"`
	IdempotencyKey string     `json:"idempotencyKey" validate:"omitempty,max=128"`
}

// ReassignRequest replaces the current worker
type ReassignRequest struct {
	WorkerID       string `json:"workerId" validate:"required,max=64"`
	WorkerName     string `json:"workerName" validate:"omitempty,max=200"`
	Notes          string `json:"notes" validate:"omitempty,max=2000"`
	Version        int64  `json:"version" validate:"required,min=1"`
	IdempotencyKey string `json:"idempotencyKey" validate:"omitempty,max=128"`
}

// ReviewRequest is an HOD decision on a job in HOD_REVIEW
type ReviewRequest struct {
	Decision       Decision `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	Feedback       string   `json:"feedback" validate:"omitempty,max=2000"`
	Version        int64    `json:"version" validate:"required,min=1"`
	IdempotencyKey string   `json:"idempotencyKey" validate:"omitempty,max=128"`
}

// BulkActionRequest applies one action to many jobs independently
type BulkActionRequest struct {
	JobIDs []string `json:"jobIds" validate:"required,min=1,max=200,dive,required"`
	Action Action   `json:"action" validate:"required,oneof=START PAUSE RESUME SUBMIT_FOR_REVIEW APPROVE REJECT HOLD RELEASE CANCEL ADVANCE"`
	Notes  string   `json:"notes" validate:"omitempty,max=2000"`
}

// BulkItemResult is the outcome for one id of a bulk action
type BulkItemResult struct {
	JobID   string     `json:"jobId"`
	Success bool       `json:"success"`
	Job     *JobRecord `json:"job,omitempty"`
	Code    string     `json:"code,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// BulkActionResponse collects per-id outcomes
type BulkActionResponse struct {
	Action    Action           `json:"action"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Results   []BulkItemResult `json:"results"`
}

// JobListResponse wraps listings
type JobListResponse struct {
	Jobs  []*JobView `json:"jobs"`
	Total int        `json:"total"`
}

// HistoryResponse is the audit trail of one job
type HistoryResponse struct {
	JobID   string         `json:"jobId"`
	History []HistoryEntry `json:"history"`
}

// CapabilityResponse lists what a role may do
type CapabilityResponse struct {
	Role    Role     `json:"role"`
	Actions []Action `json:"actions"`
	Create  bool     `json:"canCreate"`
}

// CapabilitiesResponse is the caller's own capabilities plus the full table
type CapabilitiesResponse struct {
	Self  CapabilityResponse   `json:"self"`
	Roles []CapabilityResponse `json:"roles"`
}
