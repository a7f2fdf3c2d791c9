package engine

import (
	"github.com/fieldops/request-service/internal/auth"
	"github.com/fieldops/request-service/internal/errs"
	"github.com/fieldops/request-service/internal/model"
)

type operation string

const (
	opCreate      operation = "create"
	opUpdate      operation = "update"
	opAssign      operation = "assign a technician to"
	opSchedule    operation = "schedule"
	opAcknowledge operation = "acknowledge"
	opStart       operation = "start"
	opFinish      operation = "finish"
	opClose       operation = "close"
	opDelete      operation = "delete"
)

// openForEdit are the statuses in which a request is still mutable by
// operators: no technician has begun work.
var openForEdit = []model.RequestStatus{
	model.StatusCreated,
	model.StatusAssigned,
	model.StatusAcknowledged,
}

type rule struct {
	roles []model.Role
	from  []model.RequestStatus
}

// transitions is the single source of truth for who may trigger each
// operation and from which status. Every operation consults this table;
// no guard is re-derived at a call site.
var transitions = map[operation]rule{
	opCreate: {
		roles: []model.Role{model.RoleClient, model.RoleOperator, model.RoleAdmin},
	},
	opUpdate: {
		roles: []model.Role{model.RoleOperator, model.RoleAdmin},
		from:  openForEdit,
	},
	opAssign: {
		roles: []model.Role{model.RoleOperator, model.RoleAdmin, model.RoleSupervisor},
		from:  openForEdit,
	},
	opSchedule: {
		roles: []model.Role{model.RoleOperator, model.RoleAdmin, model.RoleSupervisor},
		from:  openForEdit,
	},
	opAcknowledge: {
		roles: []model.Role{model.RoleTechnician, model.RoleSupervisor},
		from:  []model.RequestStatus{model.StatusAssigned},
	},
	opStart: {
		roles: []model.Role{model.RoleTechnician, model.RoleSupervisor},
		from:  []model.RequestStatus{model.StatusAcknowledged},
	},
	opFinish: {
		roles: []model.Role{model.RoleTechnician, model.RoleSupervisor, model.RoleOperator, model.RoleAdmin},
		from:  []model.RequestStatus{model.StatusInProgress, model.StatusAwaitingClosure},
	},
	opClose: {
		roles: []model.Role{model.RoleOperator, model.RoleAdmin},
		from:  []model.RequestStatus{model.StatusAwaitingClosure},
	},
	opDelete: {
		roles: []model.Role{model.RoleOperator, model.RoleAdmin},
		from:  openForEdit,
	},
}

func checkRole(ident *auth.Identity, op operation) error {
	for _, r := range transitions[op].roles {
		if ident.Role == r {
			return nil
		}
	}
	return errs.Authorization("role %q may not %s a request", ident.Role, op)
}

func checkStatus(op operation, status model.RequestStatus) error {
	for _, s := range transitions[op].from {
		if status == s {
			return nil
		}
	}
	return errs.InvalidState("cannot %s a request in status %q", op, status)
}

// requireAssignee rejects technicians acting on somebody else's request.
// Supervisors override.
func requireAssignee(ident *auth.Identity, r *model.Request) error {
	if ident.Role != model.RoleTechnician {
		return nil
	}
	if r.TechnicianID == nil || *r.TechnicianID != ident.UserID {
		return errs.Authorization("request %d is assigned to another technician", r.ID)
	}
	return nil
}

// statusRank is the curated display priority consumed by the query service:
// urgent and artifact-pending work first, closed requests last. This is not
// lifecycle order.
var statusRank = map[model.RequestStatus]int{
	model.StatusCreated:         0,
	model.StatusAwaitingClosure: 1,
	model.StatusInProgress:      2,
	model.StatusAssigned:        3,
	model.StatusAcknowledged:    4,
	model.StatusClosed:          5,
}

// StatusRank returns the display priority of a status (lower sorts first).
func StatusRank(s model.RequestStatus) int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return len(statusRank)
}

// Visible reports whether the caller's role scope covers the request:
// clients see their own client's (or site's) requests, technicians their
// assignments, staff everything.
func Visible(ident *auth.Identity, r *model.Request) bool {
	switch {
	case ident.Role.Staff():
		return true
	case ident.Role == model.RoleClient:
		if ident.SiteID != nil {
			return r.SiteID == *ident.SiteID
		}
		return ident.ClientID != nil && r.Site.ClientID == *ident.ClientID
	case ident.Role == model.RoleTechnician:
		return r.TechnicianID != nil && *r.TechnicianID == ident.UserID
	}
	return false
}
