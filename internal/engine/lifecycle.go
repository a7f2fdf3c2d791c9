package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fieldops/request-service/internal/artifact"
	"github.com/fieldops/request-service/internal/auth"
	"github.com/fieldops/request-service/internal/errs"
	"github.com/fieldops/request-service/internal/model"
)

// Acknowledge records that the assigned technician confirmed receipt.
func (e *Engine) Acknowledge(ctx context.Context, ident *auth.Identity, id uint64) (*model.Request, string, error) {
	if err := checkRole(ident, opAcknowledge); err != nil {
		return nil, "", err
	}
	r, err := e.store.Transition(ctx, id, func(r *model.Request) error {
		if err := checkStatus(opAcknowledge, r.Status); err != nil {
			return err
		}
		if err := requireAssignee(ident, r); err != nil {
			return err
		}
		now := e.now()
		r.AcknowledgedAt = &now
		r.Status = model.StatusAcknowledged
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	e.emit(ctx, "request.status_changed", r)
	return r, fmt.Sprintf("request %d acknowledged", r.ID), nil
}

// Start records that work began on site.
func (e *Engine) Start(ctx context.Context, ident *auth.Identity, id uint64) (*model.Request, string, error) {
	if err := checkRole(ident, opStart); err != nil {
		return nil, "", err
	}
	r, err := e.store.Transition(ctx, id, func(r *model.Request) error {
		if err := checkStatus(opStart, r.Status); err != nil {
			return err
		}
		if err := requireAssignee(ident, r); err != nil {
			return err
		}
		now := e.now()
		r.StartedAt = &now
		r.Status = model.StatusInProgress
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	e.emit(ctx, "request.status_changed", r)
	return r, fmt.Sprintf("request %d started", r.ID), nil
}

type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

type FinishInput struct {
	Ticket Upload
	Report *Upload
}

// Finish uploads the completion artifacts and, on the first call, stamps the
// finish time and moves the request to awaiting_closure. While the request
// awaits closure, technicians, supervisors and operators may re-upload
// artifacts; the finish timestamp never moves.
func (e *Engine) Finish(ctx context.Context, ident *auth.Identity, id uint64, in FinishInput) (*model.Request, string, error) {
	if err := checkRole(ident, opFinish); err != nil {
		return nil, "", err
	}
	current, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if err := checkStatus(opFinish, current.Status); err != nil {
		return nil, "", err
	}
	if current.Status == model.StatusInProgress && ident.Role.Staff() && ident.Role != model.RoleSupervisor {
		return nil, "", errs.Authorization("operators may only re-upload artifacts on a finished request")
	}
	if err := requireAssignee(ident, current); err != nil {
		return nil, "", err
	}
	if len(in.Ticket.Data) == 0 {
		return nil, "", errs.Validation("ticket file is required")
	}
	typ, err := e.refs.RequestTypeByID(ctx, current.TypeID)
	if err != nil {
		return nil, "", err
	}
	if typ.RequiresReport && (in.Report == nil || len(in.Report.Data) == 0) {
		return nil, "", errs.Validation("report file is required for %s requests", typ.Name)
	}

	if err := e.artifacts.Save(ctx, id, artifact.KindTicket, in.Ticket.Name, in.Ticket.ContentType, in.Ticket.Data); err != nil {
		return nil, "", err
	}
	if in.Report != nil && len(in.Report.Data) > 0 {
		if err := e.artifacts.Save(ctx, id, artifact.KindReport, in.Report.Name, in.Report.ContentType, in.Report.Data); err != nil {
			return nil, "", err
		}
	}

	firstFinish := false
	r, err := e.store.Transition(ctx, id, func(r *model.Request) error {
		if err := checkStatus(opFinish, r.Status); err != nil {
			return err
		}
		if err := requireAssignee(ident, r); err != nil {
			return err
		}
		if r.Status == model.StatusInProgress {
			now := e.now()
			r.FinishedAt = &now
			r.Status = model.StatusAwaitingClosure
			firstFinish = true
		}
		r.TicketFile = &in.Ticket.Name
		if in.Report != nil && len(in.Report.Data) > 0 {
			r.ReportFile = &in.Report.Name
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	e.emit(ctx, "request.status_changed", r)
	if firstFinish {
		return r, fmt.Sprintf("request %d finished, awaiting closure", r.ID), nil
	}
	return r, fmt.Sprintf("artifacts updated for request %d", r.ID), nil
}

// Close is terminal: no further transition is permitted afterwards. A
// request cannot close without a code.
func (e *Engine) Close(ctx context.Context, ident *auth.Identity, id uint64) (*model.Request, string, error) {
	if err := checkRole(ident, opClose); err != nil {
		return nil, "", err
	}
	r, err := e.store.Transition(ctx, id, func(r *model.Request) error {
		if err := checkStatus(opClose, r.Status); err != nil {
			return err
		}
		if strings.TrimSpace(r.Code) == "" {
			return errs.Validation("request %d has no code; assign one before closing", r.ID)
		}
		now := e.now()
		r.ClosedAt = &now
		r.Status = model.StatusClosed
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	e.emit(ctx, "request.status_changed", r)
	return r, fmt.Sprintf("request %d closed", r.ID), nil
}

// Delete permanently removes a request that no technician has worked on.
func (e *Engine) Delete(ctx context.Context, ident *auth.Identity, id uint64) (string, error) {
	if err := checkRole(ident, opDelete); err != nil {
		return "", err
	}
	err := e.store.Delete(ctx, id, func(r *model.Request) error {
		return checkStatus(opDelete, r.Status)
	})
	if err != nil {
		return "", err
	}
	if e.events != nil {
		eventCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		go func() {
			defer cancel()
			e.events.ProduceRequestEvent(eventCtx, "request.deleted", map[string]interface{}{"request_id": int64(id)})
		}()
	}
	return fmt.Sprintf("request %d deleted", id), nil
}
