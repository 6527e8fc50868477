package workflow

import "github.com/printworks/jobtrack/internal/model"

var (
	supervisors = []model.Role{model.RoleHOD, model.RoleAdmin}
	workers     = []model.Role{model.RoleDesigner, model.RoleOperator, model.RoleHOD, model.RoleAdmin}
)

// capabilities is the single table deciding which roles may request which
// actions. Worker roles are further limited to jobs assigned to them.
var capabilities = map[model.Action][]model.Role{
	model.ActionAssign:          supervisors,
	model.ActionReassign:        supervisors,
	model.ActionStart:           workers,
	model.ActionPause:           workers,
	model.ActionResume:          workers,
	model.ActionSubmitForReview: workers,
	model.ActionApprove:         supervisors,
	model.ActionReject:          supervisors,
	model.ActionHold:            supervisors,
	model.ActionRelease:         supervisors,
	model.ActionCancel:          supervisors,
	model.ActionAdvance:         {model.RoleAdmin},
	model.ActionSetPriority:     supervisors,
}

// Allowed reports whether role holds the capability for action.
func Allowed(role model.Role, action model.Action) bool {
	for _, r := range capabilities[action] {
		if r == role {
			return true
		}
	}
	return false
}

// ActionsFor lists the actions a role may request, in declaration order.
func ActionsFor(role model.Role) []model.Action {
	actions := []model.Action{}
	for _, a := range model.ValidActions {
		if Allowed(role, a) {
			actions = append(actions, a)
		}
	}
	return actions
}

// CanCreate reports whether role may submit new job cards.
func CanCreate(role model.Role) bool {
	return role == model.RoleHOD || role == model.RoleAdmin
}

// Capabilities returns a copy of the table keyed by action, for export.
func Capabilities() map[model.Action][]model.Role {
	out := make(map[model.Action][]model.Role, len(capabilities))
	for a, roles := range capabilities {
		out[a] = append([]model.Role(nil), roles...)
	}
	return out
}
