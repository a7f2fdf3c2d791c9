// Package engine owns the request lifecycle state machine. Every transition
// validates the caller's role and the request's current status against the
// transition table, then persists through a single atomic store operation.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fieldops/request-service/internal/artifact"
	"github.com/fieldops/request-service/internal/auth"
	"github.com/fieldops/request-service/internal/errs"
	"github.com/fieldops/request-service/internal/kafka"
	"github.com/fieldops/request-service/internal/model"
	"github.com/fieldops/request-service/internal/store"
)

// ArtifactSaver persists completion artifacts (D: depend on abstractions).
type ArtifactSaver interface {
	Save(ctx context.Context, requestID uint64, kind artifact.Kind, name, contentType string, data []byte) error
}

type Engine struct {
	store     store.Requests
	refs      store.Refs
	artifacts ArtifactSaver
	events    kafka.RequestEventProducer
	now       func() time.Time
}

func New(st store.Requests, refs store.Refs, artifacts ArtifactSaver, events kafka.RequestEventProducer) *Engine {
	return &Engine{store: st, refs: refs, artifacts: artifacts, events: events, now: time.Now}
}

type CreateInput struct {
	SiteID       uint64
	SystemID     uint64
	SystemTypeID *uint64
	Scope        string
	Code         string
	TypeID       uint64
}

// Create opens a new request. Clients may not choose code or type: the code
// stays empty until an operator assigns it and the type defaults to the
// client-reported one.
func (e *Engine) Create(ctx context.Context, ident *auth.Identity, in CreateInput) (*model.Request, string, error) {
	if err := checkRole(ident, opCreate); err != nil {
		return nil, "", err
	}
	scope := strings.TrimSpace(in.Scope)
	if len(scope) < 2 {
		return nil, "", errs.Validation("scope must be at least 2 characters")
	}
	if in.SiteID == 0 {
		return nil, "", errs.Validation("site is required")
	}
	if in.SystemID == 0 {
		return nil, "", errs.Validation("system is required")
	}
	site, err := e.refs.SiteByID(ctx, in.SiteID)
	if err != nil {
		return nil, "", err
	}
	if _, err := e.refs.SystemByID(ctx, in.SystemID); err != nil {
		return nil, "", err
	}
	if in.SystemTypeID != nil {
		if _, err := e.refs.SystemTypeByID(ctx, *in.SystemTypeID); err != nil {
			return nil, "", err
		}
	}

	code := strings.TrimSpace(in.Code)
	var typ *model.RequestType
	if ident.Role == model.RoleClient {
		if ident.SiteID != nil && *ident.SiteID != in.SiteID {
			return nil, "", errs.Authorization("site %d is outside the caller's scope", in.SiteID)
		}
		if ident.ClientID == nil || site.ClientID != *ident.ClientID {
			return nil, "", errs.Authorization("site %d does not belong to the caller's client", in.SiteID)
		}
		code = ""
		if typ, err = e.refs.DefaultRequestType(ctx); err != nil {
			return nil, "", err
		}
	} else {
		if in.TypeID == 0 {
			return nil, "", errs.Validation("type is required")
		}
		if code == "" {
			return nil, "", errs.Validation("code is required")
		}
		if typ, err = e.refs.RequestTypeByID(ctx, in.TypeID); err != nil {
			return nil, "", err
		}
	}

	r := &model.Request{
		Code:         code,
		TypeID:       typ.ID,
		Scope:        scope,
		SiteID:       in.SiteID,
		SystemID:     in.SystemID,
		SystemTypeID: in.SystemTypeID,
		Status:       model.StatusCreated,
		CreatedBy:    ident.UserID,
	}
	if err := e.store.Create(ctx, r); err != nil {
		return nil, "", err
	}
	e.emit(ctx, "request.created", r)
	return r, fmt.Sprintf("request %d created", r.ID), nil
}

type UpdateInput struct {
	SiteID       uint64
	SystemID     uint64
	SystemTypeID *uint64
	Code         string
	TypeID       uint64
	Scope        string
}

// Update rewrites the operator-editable fields while the request is still
// open for edit. Status is unchanged.
func (e *Engine) Update(ctx context.Context, ident *auth.Identity, id uint64, in UpdateInput) (*model.Request, string, error) {
	if err := checkRole(ident, opUpdate); err != nil {
		return nil, "", err
	}
	scope := strings.TrimSpace(in.Scope)
	if len(scope) < 2 {
		return nil, "", errs.Validation("scope must be at least 2 characters")
	}
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, "", errs.Validation("code is required")
	}
	if in.SiteID == 0 || in.SystemID == 0 || in.TypeID == 0 {
		return nil, "", errs.Validation("site, system and type are required")
	}
	if _, err := e.refs.SiteByID(ctx, in.SiteID); err != nil {
		return nil, "", err
	}
	if _, err := e.refs.SystemByID(ctx, in.SystemID); err != nil {
		return nil, "", err
	}
	if _, err := e.refs.RequestTypeByID(ctx, in.TypeID); err != nil {
		return nil, "", err
	}
	if in.SystemTypeID != nil {
		if _, err := e.refs.SystemTypeByID(ctx, *in.SystemTypeID); err != nil {
			return nil, "", err
		}
	}
	r, err := e.store.Transition(ctx, id, func(r *model.Request) error {
		if err := checkStatus(opUpdate, r.Status); err != nil {
			return err
		}
		r.SiteID = in.SiteID
		r.SystemID = in.SystemID
		r.SystemTypeID = in.SystemTypeID
		r.Code = code
		r.TypeID = in.TypeID
		r.Scope = scope
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return r, fmt.Sprintf("request %d updated", r.ID), nil
}

// AssignTechnician sets the assigned technician and derives the supervisor.
// Assigning to a created request promotes it to assigned; reassigning an
// acknowledged request clears the acknowledgement and returns it to
// assigned, so the new technician confirms receipt themselves.
func (e *Engine) AssignTechnician(ctx context.Context, ident *auth.Identity, id, technicianID uint64) (*model.Request, string, error) {
	if err := checkRole(ident, opAssign); err != nil {
		return nil, "", err
	}
	if technicianID == 0 {
		return nil, "", errs.Validation("technician is required")
	}
	tech, err := e.refs.UserByID(ctx, technicianID)
	if err != nil {
		return nil, "", err
	}
	if !tech.Role.FieldWorker() {
		return nil, "", errs.Validation("user %d cannot be assigned field work", technicianID)
	}
	supervisorID := tech.SupervisorID
	if tech.Role == model.RoleSupervisor {
		supervisorID = &tech.ID
	}
	r, err := e.store.Transition(ctx, id, func(r *model.Request) error {
		if err := checkStatus(opAssign, r.Status); err != nil {
			return err
		}
		r.TechnicianID = &tech.ID
		r.SupervisorID = supervisorID
		if r.Status == model.StatusAcknowledged {
			r.AcknowledgedAt = nil
		}
		r.Status = model.StatusAssigned
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	e.emit(ctx, "request.status_changed", r)
	return r, fmt.Sprintf("technician %d assigned to request %d", technicianID, r.ID), nil
}

type ScheduleInput struct {
	// Date in 2006-01-02 form, Time in 15:04 form. Either may be set alone;
	// both may be reassigned while the request is open for edit.
	Date *string
	Time *string
}

func (e *Engine) Schedule(ctx context.Context, ident *auth.Identity, id uint64, in ScheduleInput) (*model.Request, string, error) {
	if err := checkRole(ident, opSchedule); err != nil {
		return nil, "", err
	}
	var date *time.Time
	if in.Date != nil {
		d, err := time.Parse("2006-01-02", *in.Date)
		if err != nil {
			return nil, "", errs.Validation("invalid tentative date %q, want YYYY-MM-DD", *in.Date)
		}
		date = &d
	}
	if in.Time != nil {
		if _, err := time.Parse("15:04", *in.Time); err != nil {
			return nil, "", errs.Validation("invalid tentative time %q, want HH:MM", *in.Time)
		}
	}
	if in.Date == nil && in.Time == nil {
		return nil, "", errs.Validation("tentative date or time is required")
	}
	r, err := e.store.Transition(ctx, id, func(r *model.Request) error {
		if err := checkStatus(opSchedule, r.Status); err != nil {
			return err
		}
		if date != nil {
			r.TentativeDate = date
		}
		if in.Time != nil {
			r.TentativeTime = in.Time
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return r, fmt.Sprintf("tentative schedule updated for request %d", r.ID), nil
}

// GetByID returns the request if the caller's role scope covers it.
func (e *Engine) GetByID(ctx context.Context, ident *auth.Identity, id uint64) (*model.Request, error) {
	r, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Visible(ident, r) {
		return nil, errs.Authorization("request %d is not visible to the caller", id)
	}
	return r, nil
}

func requestEventPayload(r *model.Request) map[string]interface{} {
	if r == nil {
		return nil
	}
	payload := map[string]interface{}{
		"request_id": int64(r.ID),
		"code":       r.Code,
		"status":     string(r.Status),
		"site_id":    int64(r.SiteID),
		"type_id":    int64(r.TypeID),
	}
	if r.TechnicianID != nil {
		payload["technician_id"] = int64(*r.TechnicianID)
	}
	return payload
}

// emit fires the event even if the caller's request is cancelled, bounded
// by its own timeout.
func (e *Engine) emit(_ context.Context, event string, r *model.Request) {
	if e.events == nil {
		return
	}
	payload := requestEventPayload(r)
	eventCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		defer cancel()
		e.events.ProduceRequestEvent(eventCtx, event, payload)
	}()
}
