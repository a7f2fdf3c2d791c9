package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fieldops/request-service/internal/artifact"
	"github.com/fieldops/request-service/internal/auth"
	"github.com/fieldops/request-service/internal/errs"
	"github.com/fieldops/request-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStore implements store.Requests using an in-memory map. Transition
// mirrors the real store: mutate runs on a copy and errors abort the write.
type mockStore struct {
	mu       sync.Mutex
	nextID   uint64
	requests map[uint64]*model.Request
	refs     *mockRefs
}

func (m *mockStore) populate(r *model.Request) {
	if site, ok := m.refs.sites[r.SiteID]; ok {
		r.Site = *site
	}
	if sys, ok := m.refs.systems[r.SystemID]; ok {
		r.System = *sys
	}
	if typ, ok := m.refs.types[r.TypeID]; ok {
		r.Type = *typ
	}
}

func (m *mockStore) Create(_ context.Context, r *model.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	r.CreatedAt = time.Now()
	cp := *r
	m.requests[r.ID] = &cp
	m.populate(r)
	return nil
}

func (m *mockStore) Get(_ context.Context, id uint64) (*model.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, errs.NotFound("request not found")
	}
	cp := *r
	m.populate(&cp)
	return &cp, nil
}

func (m *mockStore) List(_ context.Context) ([]model.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Request, 0, len(m.requests))
	for _, r := range m.requests {
		cp := *r
		m.populate(&cp)
		out = append(out, cp)
	}
	return out, nil
}

func (m *mockStore) Transition(_ context.Context, id uint64, mutate func(*model.Request) error) (*model.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, errs.NotFound("request not found")
	}
	cp := *r
	if err := mutate(&cp); err != nil {
		return nil, err
	}
	m.requests[id] = &cp
	out := cp
	m.populate(&out)
	return &out, nil
}

func (m *mockStore) Delete(_ context.Context, id uint64, guard func(*model.Request) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return errs.NotFound("request not found")
	}
	if err := guard(r); err != nil {
		return err
	}
	delete(m.requests, id)
	return nil
}

type mockRefs struct {
	sites       map[uint64]*model.Site
	systems     map[uint64]*model.System
	systemTypes map[uint64]*model.SystemType
	users       map[uint64]*model.User
	types       map[uint64]*model.RequestType
}

func (m *mockRefs) SiteByID(_ context.Context, id uint64) (*model.Site, error) {
	if s, ok := m.sites[id]; ok {
		return s, nil
	}
	return nil, errs.NotFound("site %d not found", id)
}

func (m *mockRefs) SystemByID(_ context.Context, id uint64) (*model.System, error) {
	if s, ok := m.systems[id]; ok {
		return s, nil
	}
	return nil, errs.NotFound("system %d not found", id)
}

func (m *mockRefs) SystemTypeByID(_ context.Context, id uint64) (*model.SystemType, error) {
	if s, ok := m.systemTypes[id]; ok {
		return s, nil
	}
	return nil, errs.NotFound("system type %d not found", id)
}

func (m *mockRefs) UserByID(_ context.Context, id uint64) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, errs.NotFound("user %d not found", id)
}

func (m *mockRefs) RequestTypeByID(_ context.Context, id uint64) (*model.RequestType, error) {
	if t, ok := m.types[id]; ok {
		return t, nil
	}
	return nil, errs.NotFound("request type %d not found", id)
}

func (m *mockRefs) DefaultRequestType(_ context.Context) (*model.RequestType, error) {
	for _, t := range m.types {
		if t.ClientDefault {
			return t, nil
		}
	}
	return nil, errs.NotFound("no default request type configured")
}

type mockArtifacts struct {
	saved map[string][]byte
}

func (m *mockArtifacts) Save(_ context.Context, requestID uint64, kind artifact.Kind, name, contentType string, data []byte) error {
	if m.saved == nil {
		m.saved = map[string][]byte{}
	}
	m.saved[string(kind)] = data
	return nil
}

type fixture struct {
	store     *mockStore
	refs      *mockRefs
	artifacts *mockArtifacts
	eng       *Engine
	clock     time.Time
}

const (
	siteNorthwind  = 10
	siteOtherOwner = 20
	systemRooftop  = 3
	techRiley      = 42
	techMorgan     = 99
	supSam         = 50
	typeIncident   = 1
	typeMaint      = 2
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	supID := uint64(supSam)
	refs := &mockRefs{
		sites: map[uint64]*model.Site{
			siteNorthwind:  {ID: siteNorthwind, Name: "Downtown Store", ClientID: 7, Client: model.Client{ID: 7, Name: "Northwind Retail"}},
			siteOtherOwner: {ID: siteOtherOwner, Name: "Harbor Warehouse", ClientID: 8, Client: model.Client{ID: 8, Name: "Contoso"}},
		},
		systems: map[uint64]*model.System{
			systemRooftop: {ID: systemRooftop, Name: "Rooftop Unit 1"},
		},
		systemTypes: map[uint64]*model.SystemType{
			5: {ID: 5, Name: "HVAC"},
		},
		users: map[uint64]*model.User{
			techRiley:  {ID: techRiley, Name: "Riley Chen", Role: model.RoleTechnician, SupervisorID: &supID},
			techMorgan: {ID: techMorgan, Name: "Morgan Diaz", Role: model.RoleTechnician, SupervisorID: &supID},
			supSam:     {ID: supSam, Name: "Sam Ortega", Role: model.RoleSupervisor},
			70:         {ID: 70, Name: "Noa Levin", Role: model.RoleClient},
		},
		types: map[uint64]*model.RequestType{
			typeIncident: {ID: typeIncident, Name: "incident", ClientDefault: true},
			typeMaint:    {ID: typeMaint, Name: "maintenance", RequiresReport: true},
		},
	}
	st := &mockStore{requests: map[uint64]*model.Request{}, refs: refs}
	art := &mockArtifacts{}
	f := &fixture{
		store:     st,
		refs:      refs,
		artifacts: art,
		eng:       New(st, refs, art, nil),
		clock:     time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}
	// Deterministic clock advancing one minute per stamp.
	f.eng.now = func() time.Time {
		f.clock = f.clock.Add(time.Minute)
		return f.clock
	}
	return f
}

func clientIdent(clientID uint64) *auth.Identity {
	return &auth.Identity{UserID: 70, Role: model.RoleClient, ClientID: &clientID}
}

func operatorIdent() *auth.Identity {
	return &auth.Identity{UserID: 60, Role: model.RoleOperator}
}

func techIdent(id uint64) *auth.Identity {
	return &auth.Identity{UserID: id, Role: model.RoleTechnician}
}

func supervisorIdent() *auth.Identity {
	return &auth.Identity{UserID: supSam, Role: model.RoleSupervisor}
}

// seed inserts a request directly, bypassing the engine.
func (f *fixture) seed(status model.RequestStatus, code string, typeID uint64, technicianID *uint64) uint64 {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.nextID++
	f.store.requests[f.store.nextID] = &model.Request{
		ID:           f.store.nextID,
		Code:         code,
		TypeID:       typeID,
		Scope:        "seeded",
		SiteID:       siteNorthwind,
		SystemID:     systemRooftop,
		Status:       status,
		TechnicianID: technicianID,
		CreatedBy:    60,
	}
	return f.store.nextID
}

func TestCreateByClientDefaults(t *testing.T) {
	f := newFixture(t)
	r, msg, err := f.eng.Create(context.Background(), clientIdent(7), CreateInput{
		SiteID:   siteNorthwind,
		SystemID: systemRooftop,
		Scope:    "AC not cooling",
		Code:     "should-be-ignored",
		TypeID:   typeMaint,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCreated, r.Status)
	assert.Empty(t, r.Code)
	assert.Equal(t, uint64(typeIncident), r.TypeID)
	assert.Equal(t, uint64(70), r.CreatedBy)
	assert.Contains(t, msg, "created")
}

func TestCreateByOperatorRequiresCodeAndType(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.eng.Create(context.Background(), operatorIdent(), CreateInput{
		SiteID: siteNorthwind, SystemID: systemRooftop, Scope: "replace filter", Code: "FS-100",
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, _, err = f.eng.Create(context.Background(), operatorIdent(), CreateInput{
		SiteID: siteNorthwind, SystemID: systemRooftop, Scope: "replace filter", TypeID: typeMaint,
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	r, _, err := f.eng.Create(context.Background(), operatorIdent(), CreateInput{
		SiteID: siteNorthwind, SystemID: systemRooftop, Scope: "replace filter", Code: "FS-100", TypeID: typeMaint,
	})
	require.NoError(t, err)
	assert.Equal(t, "FS-100", r.Code)
}

func TestCreateValidatesScopeAndRefs(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.eng.Create(context.Background(), clientIdent(7), CreateInput{
		SiteID: siteNorthwind, SystemID: systemRooftop, Scope: " x ",
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, _, err = f.eng.Create(context.Background(), clientIdent(7), CreateInput{
		SiteID: 999, SystemID: systemRooftop, Scope: "broken door",
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestCreateClientScopeEnforced(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.eng.Create(context.Background(), clientIdent(7), CreateInput{
		SiteID: siteOtherOwner, SystemID: systemRooftop, Scope: "not my site",
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindAuthorization, errs.KindOf(err))
}

func TestAssignAcknowledgeFlow(t *testing.T) {
	f := newFixture(t)
	id := f.seed(model.StatusCreated, "FS-1", typeIncident, nil)

	r, _, err := f.eng.AssignTechnician(context.Background(), operatorIdent(), id, techRiley)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAssigned, r.Status)
	require.NotNil(t, r.TechnicianID)
	assert.Equal(t, uint64(techRiley), *r.TechnicianID)
	require.NotNil(t, r.SupervisorID)
	assert.Equal(t, uint64(supSam), *r.SupervisorID)

	// A different technician may not acknowledge.
	_, _, err = f.eng.Acknowledge(context.Background(), techIdent(techMorgan), id)
	require.Error(t, err)
	assert.Equal(t, errs.KindAuthorization, errs.KindOf(err))

	r, _, err = f.eng.Acknowledge(context.Background(), techIdent(techRiley), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAcknowledged, r.Status)
	assert.NotNil(t, r.AcknowledgedAt)
}

func TestAssignRejectsNonFieldWorker(t *testing.T) {
	f := newFixture(t)
	id := f.seed(model.StatusCreated, "FS-1", typeIncident, nil)
	_, _, err := f.eng.AssignTechnician(context.Background(), operatorIdent(), id, 70)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestReassignRearmsAcknowledgement(t *testing.T) {
	f := newFixture(t)
	id := f.seed(model.StatusCreated, "FS-1", typeIncident, nil)
	_, _, err := f.eng.AssignTechnician(context.Background(), operatorIdent(), id, techRiley)
	require.NoError(t, err)
	_, _, err = f.eng.Acknowledge(context.Background(), techIdent(techRiley), id)
	require.NoError(t, err)

	r, _, err := f.eng.AssignTechnician(context.Background(), operatorIdent(), id, techMorgan)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAssigned, r.Status)
	assert.Nil(t, r.AcknowledgedAt)
	assert.Equal(t, uint64(techMorgan), *r.TechnicianID)
}

func TestFullLifecycleTimestampsMonotonic(t *testing.T) {
	f := newFixture(t)
	id := f.seed(model.StatusCreated, "FS-7", typeIncident, nil)

	_, _, err := f.eng.AssignTechnician(context.Background(), operatorIdent(), id, techRiley)
	require.NoError(t, err)
	_, _, err = f.eng.Acknowledge(context.Background(), techIdent(techRiley), id)
	require.NoError(t, err)
	_, _, err = f.eng.Start(context.Background(), techIdent(techRiley), id)
	require.NoError(t, err)

	r, msg, err := f.eng.Finish(context.Background(), techIdent(techRiley), id, FinishInput{
		Ticket: Upload{Name: "ticket.pdf", ContentType: "application/pdf", Data: []byte("ticket")},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAwaitingClosure, r.Status)
	assert.Contains(t, msg, "awaiting closure")

	require.NotNil(t, r.AcknowledgedAt)
	require.NotNil(t, r.StartedAt)
	require.NotNil(t, r.FinishedAt)
	assert.True(t, !r.StartedAt.Before(*r.AcknowledgedAt), "start before acknowledge")
	assert.True(t, !r.FinishedAt.Before(*r.StartedAt), "finish before start")

	r, _, err = f.eng.Close(context.Background(), operatorIdent(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, r.Status)
	assert.NotNil(t, r.ClosedAt)
}

func TestFinishRequiresReportForType(t *testing.T) {
	f := newFixture(t)
	tid := uint64(techRiley)
	id := f.seed(model.StatusInProgress, "FS-2", typeMaint, &tid)

	_, _, err := f.eng.Finish(context.Background(), techIdent(techRiley), id, FinishInput{
		Ticket: Upload{Name: "ticket.pdf", Data: []byte("ticket")},
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	assert.Contains(t, err.Error(), "report")

	r, _, err := f.eng.Finish(context.Background(), techIdent(techRiley), id, FinishInput{
		Ticket: Upload{Name: "ticket.pdf", Data: []byte("ticket")},
		Report: &Upload{Name: "report.pdf", Data: []byte("report")},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAwaitingClosure, r.Status)
	assert.Equal(t, []byte("report"), f.artifacts.saved["report"])
}

func TestFinishOperatorReuploadOnly(t *testing.T) {
	f := newFixture(t)
	tid := uint64(techRiley)
	id := f.seed(model.StatusInProgress, "FS-3", typeIncident, &tid)

	// Operator cannot perform the first finish.
	_, _, err := f.eng.Finish(context.Background(), operatorIdent(), id, FinishInput{
		Ticket: Upload{Name: "ticket.pdf", Data: []byte("ticket")},
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindAuthorization, errs.KindOf(err))

	_, _, err = f.eng.Finish(context.Background(), techIdent(techRiley), id, FinishInput{
		Ticket: Upload{Name: "ticket.pdf", Data: []byte("v1")},
	})
	require.NoError(t, err)
	first, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)

	r, msg, err := f.eng.Finish(context.Background(), operatorIdent(), id, FinishInput{
		Ticket: Upload{Name: "ticket-v2.pdf", Data: []byte("v2")},
	})
	require.NoError(t, err)
	assert.Contains(t, msg, "artifacts updated")
	// The finish timestamp never moves on re-upload.
	assert.Equal(t, first.FinishedAt.Unix(), r.FinishedAt.Unix())
	assert.Equal(t, []byte("v2"), f.artifacts.saved["ticket"])
}

func TestCloseRequiresCode(t *testing.T) {
	f := newFixture(t)
	id := f.seed(model.StatusAwaitingClosure, "", typeIncident, nil)
	_, _, err := f.eng.Close(context.Background(), operatorIdent(), id)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	assert.Contains(t, err.Error(), "code")

	r, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAwaitingClosure, r.Status)
}

func TestClosedIsTerminal(t *testing.T) {
	f := newFixture(t)
	tid := uint64(techRiley)
	id := f.seed(model.StatusClosed, "FS-9", typeIncident, &tid)

	ops := map[string]func() error{
		"update": func() error {
			_, _, err := f.eng.Update(context.Background(), operatorIdent(), id, UpdateInput{
				SiteID: siteNorthwind, SystemID: systemRooftop, Code: "FS-9", TypeID: typeIncident, Scope: "still broken",
			})
			return err
		},
		"assign": func() error {
			_, _, err := f.eng.AssignTechnician(context.Background(), operatorIdent(), id, techRiley)
			return err
		},
		"schedule": func() error {
			d := "2025-06-03"
			_, _, err := f.eng.Schedule(context.Background(), operatorIdent(), id, ScheduleInput{Date: &d})
			return err
		},
		"acknowledge": func() error {
			_, _, err := f.eng.Acknowledge(context.Background(), techIdent(techRiley), id)
			return err
		},
		"start": func() error {
			_, _, err := f.eng.Start(context.Background(), techIdent(techRiley), id)
			return err
		},
		"finish": func() error {
			_, _, err := f.eng.Finish(context.Background(), techIdent(techRiley), id, FinishInput{
				Ticket: Upload{Name: "t.pdf", Data: []byte("x")},
			})
			return err
		},
		"close": func() error {
			_, _, err := f.eng.Close(context.Background(), operatorIdent(), id)
			return err
		},
		"delete": func() error {
			_, err := f.eng.Delete(context.Background(), operatorIdent(), id)
			return err
		},
	}
	for name, op := range ops {
		err := op()
		require.Error(t, err, name)
		assert.Equal(t, errs.KindInvalidState, errs.KindOf(err), name)
	}

	r, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, r.Status)
}

func TestRoleGuards(t *testing.T) {
	f := newFixture(t)
	id := f.seed(model.StatusAwaitingClosure, "FS-4", typeIncident, nil)

	_, _, err := f.eng.Close(context.Background(), clientIdent(7), id)
	require.Error(t, err)
	assert.Equal(t, errs.KindAuthorization, errs.KindOf(err))

	_, err = f.eng.Delete(context.Background(), techIdent(techRiley), id)
	require.Error(t, err)
	assert.Equal(t, errs.KindAuthorization, errs.KindOf(err))

	_, _, err = f.eng.AssignTechnician(context.Background(), clientIdent(7), id, techRiley)
	require.Error(t, err)
	assert.Equal(t, errs.KindAuthorization, errs.KindOf(err))
}

func TestStartOnlyFromAcknowledged(t *testing.T) {
	f := newFixture(t)
	tid := uint64(techRiley)
	id := f.seed(model.StatusAssigned, "FS-5", typeIncident, &tid)
	_, _, err := f.eng.Start(context.Background(), techIdent(techRiley), id)
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))
}

func TestSupervisorOverridesAssignee(t *testing.T) {
	f := newFixture(t)
	tid := uint64(techRiley)
	id := f.seed(model.StatusAssigned, "FS-6", typeIncident, &tid)
	r, _, err := f.eng.Acknowledge(context.Background(), supervisorIdent(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAcknowledged, r.Status)
}

func TestScheduleSetsDateAndTime(t *testing.T) {
	f := newFixture(t)
	id := f.seed(model.StatusAssigned, "FS-8", typeIncident, nil)

	d, tm := "2025-06-10", "14:30"
	r, _, err := f.eng.Schedule(context.Background(), operatorIdent(), id, ScheduleInput{Date: &d, Time: &tm})
	require.NoError(t, err)
	require.NotNil(t, r.TentativeDate)
	assert.Equal(t, "2025-06-10", r.TentativeDate.Format("2006-01-02"))
	require.NotNil(t, r.TentativeTime)
	assert.Equal(t, "14:30", *r.TentativeTime)

	bad := "25:99"
	_, _, err = f.eng.Schedule(context.Background(), operatorIdent(), id, ScheduleInput{Time: &bad})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestDeleteOnlyEarlyStates(t *testing.T) {
	f := newFixture(t)
	early := f.seed(model.StatusCreated, "FS-10", typeIncident, nil)
	_, err := f.eng.Delete(context.Background(), operatorIdent(), early)
	require.NoError(t, err)
	_, err = f.store.Get(context.Background(), early)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	late := f.seed(model.StatusInProgress, "FS-11", typeIncident, nil)
	_, err = f.eng.Delete(context.Background(), operatorIdent(), late)
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))
}

func TestGetByIDScoped(t *testing.T) {
	f := newFixture(t)
	id := f.seed(model.StatusCreated, "FS-12", typeIncident, nil)

	_, err := f.eng.GetByID(context.Background(), clientIdent(7), id)
	require.NoError(t, err)

	_, err = f.eng.GetByID(context.Background(), clientIdent(8), id)
	require.Error(t, err)
	assert.Equal(t, errs.KindAuthorization, errs.KindOf(err))

	_, err = f.eng.GetByID(context.Background(), techIdent(techMorgan), id)
	require.Error(t, err)
	assert.Equal(t, errs.KindAuthorization, errs.KindOf(err))
}
