package model

// Backbone status
type Status string

const (
	StatusCreated              Status = "CREATED"
	StatusAssignedToPrepress   Status = "ASSIGNED_TO_PREPRESS"
	StatusPrepressInProgress   Status = "PREPRESS_IN_PROGRESS"
	StatusPrepressCompleted    Status = "PREPRESS_COMPLETED"
	StatusAssignedToInventory  Status = "ASSIGNED_TO_INVENTORY"
	StatusInventoryInProgress  Status = "INVENTORY_IN_PROGRESS"
	StatusInventoryCompleted   Status = "INVENTORY_COMPLETED"
	StatusAssignedToProduction Status = "ASSIGNED_TO_PRODUCTION"
	StatusProductionInProgress Status = "PRODUCTION_IN_PROGRESS"
	StatusProductionCompleted  Status = "PRODUCTION_COMPLETED"
	StatusAssignedToQA         Status = "ASSIGNED_TO_QA"
	StatusQAInProgress         Status = "QA_IN_PROGRESS"
	StatusQACompleted          Status = "QA_COMPLETED"
	StatusAssignedToDispatch   Status = "ASSIGNED_TO_DISPATCH"
	StatusDispatchInProgress   Status = "DISPATCH_IN_PROGRESS"
	StatusDispatchCompleted    Status = "DISPATCH_COMPLETED"
	StatusCompleted            Status = "COMPLETED"
	StatusOnHold               Status = "ON_HOLD"
	StatusCancelled            Status = "CANCELLED"
)

// Backbone is the canonical linear ordering used for progress and
// "is-ahead-of" comparisons. Side states are not part of it.
var Backbone = []Status{
	StatusCreated,
	StatusAssignedToPrepress, StatusPrepressInProgress, StatusPrepressCompleted,
	StatusAssignedToInventory, StatusInventoryInProgress, StatusInventoryCompleted,
	StatusAssignedToProduction, StatusProductionInProgress, StatusProductionCompleted,
	StatusAssignedToQA, StatusQAInProgress, StatusQACompleted,
	StatusAssignedToDispatch, StatusDispatchInProgress, StatusDispatchCompleted,
	StatusCompleted,
}

// AllStatuses is the closed wire vocabulary.
var AllStatuses = append(append([]Status{}, Backbone...), StatusOnHold, StatusCancelled)

// IsTerminal reports whether no further transitions are accepted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Departments
type Department string

const (
	DepartmentPrepress   Department = "PREPRESS"
	DepartmentInventory  Department = "INVENTORY"
	DepartmentProduction Department = "PRODUCTION"
	DepartmentQA         Department = "QA"
	DepartmentDispatch   Department = "DISPATCH"
	DepartmentNone       Department = "NONE"
)

// Departments in pipeline order.
var Departments = []Department{
	DepartmentPrepress, DepartmentInventory, DepartmentProduction, DepartmentQA, DepartmentDispatch,
}

func (d Department) Valid() bool {
	if d == DepartmentNone {
		return true
	}
	for _, v := range Departments {
		if v == d {
			return true
		}
	}
	return false
}

// Department-local sub-status
type SubStatus string

const (
	SubStatusPending    SubStatus = "PENDING"
	SubStatusAssigned   SubStatus = "ASSIGNED"
	SubStatusInProgress SubStatus = "IN_PROGRESS"
	SubStatusPaused     SubStatus = "PAUSED"
	SubStatusHODReview  SubStatus = "HOD_REVIEW"
	SubStatusCompleted  SubStatus = "COMPLETED"
	SubStatusRejected   SubStatus = "REJECTED"
)

var AllSubStatuses = []SubStatus{
	SubStatusPending, SubStatusAssigned, SubStatusInProgress, SubStatusPaused,
	SubStatusHODReview, SubStatusCompleted, SubStatusRejected,
}

// Priority levels
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

var ValidPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

func (p Priority) Valid() bool {
	for _, v := range ValidPriorities {
		if v == p {
			return true
		}
	}
	return false
}

// Roles
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleHOD      Role = "HOD"
	RoleDesigner Role = "DESIGNER"
	RoleOperator Role = "OPERATOR"
	RoleViewer   Role = "VIEWER"
)

var ValidRoles = []Role{RoleAdmin, RoleHOD, RoleDesigner, RoleOperator, RoleViewer}

// IsWorker reports whether the role works jobs rather than supervising them.
func (r Role) IsWorker() bool {
	return r == RoleDesigner || r == RoleOperator
}

func (r Role) Valid() bool {
	for _, v := range ValidRoles {
		if v == r {
			return true
		}
	}
	return false
}

// Actions a caller may request against a job
type Action string

const (
	ActionAssign          Action = "ASSIGN"
	ActionReassign        Action = "REASSIGN"
	ActionStart           Action = "START"
	ActionPause           Action = "PAUSE"
	ActionResume          Action = "RESUME"
	ActionSubmitForReview Action = "SUBMIT_FOR_REVIEW"
	ActionApprove         Action = "APPROVE"
	ActionReject          Action = "REJECT"
	ActionHold            Action = "HOLD"
	ActionRelease         Action = "RELEASE"
	ActionCancel          Action = "CANCEL"
	ActionAdvance         Action = "ADVANCE"
	ActionSetPriority     Action = "SET_PRIORITY"
)

var ValidActions = []Action{
	ActionAssign, ActionReassign, ActionStart, ActionPause, ActionResume,
	ActionSubmitForReview, ActionApprove, ActionReject, ActionHold, ActionRelease,
	ActionCancel, ActionAdvance, ActionSetPriority,
}

func (a Action) Valid() bool {
	for _, v := range ValidActions {
		if v == a {
			return true
		}
	}
	return false
}

// Review decisions
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)
