package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geahr/be-hr-approvals/internal/platform/apperr"
	"github.com/geahr/be-hr-approvals/internal/repository"
)

// ── Leave-side fakes ──────────────────────────────────────────────────────────

type fakeLeaveStore struct {
	leaves []*repository.LeaveRequest
}

func (s *fakeLeaveStore) find(id string) *repository.LeaveRequest {
	for _, lr := range s.leaves {
		if lr.ID == id {
			return lr
		}
	}
	return nil
}

func (s *fakeLeaveStore) Create(ctx context.Context, lr *repository.LeaveRequest) error {
	lr.ID = uuid.NewString()
	s.leaves = append(s.leaves, lr)
	return nil
}

func (s *fakeLeaveStore) GetByID(ctx context.Context, id string) (*repository.LeaveRequest, error) {
	if lr := s.find(id); lr != nil {
		copied := *lr
		return &copied, nil
	}
	return nil, notFoundErr("leave_request", id)
}

func (s *fakeLeaveStore) List(ctx context.Context, employeeID, status *string) ([]*repository.LeaveRequest, error) {
	var out []*repository.LeaveRequest
	for i := len(s.leaves) - 1; i >= 0; i-- {
		lr := s.leaves[i]
		if employeeID != nil && lr.EmployeeID != *employeeID {
			continue
		}
		if status != nil && lr.Status != *status {
			continue
		}
		copied := *lr
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakeLeaveStore) MarkSubmitted(ctx context.Context, id, approvalRequestID string) error {
	lr := s.find(id)
	if lr == nil {
		return notFoundErr("leave_request", id)
	}
	lr.Status = repository.LeaveStatusSubmitted
	lr.ApprovalRequestID = &approvalRequestID
	return nil
}

func (s *fakeLeaveStore) SyncStatus(ctx context.Context, id, status, lastActionNote string) error {
	lr := s.find(id)
	if lr == nil {
		return notFoundErr("leave_request", id)
	}
	lr.Status = status
	lr.LastActionNote = lastActionNote
	return nil
}

type fakeEmployeeStore struct {
	employees   map[string]*repository.Employee
	employments map[string]*repository.Employment
}

func newFakeEmployeeStore() *fakeEmployeeStore {
	return &fakeEmployeeStore{
		employees:   map[string]*repository.Employee{},
		employments: map[string]*repository.Employment{},
	}
}

func (s *fakeEmployeeStore) GetEmployee(ctx context.Context, id string) (*repository.Employee, error) {
	if emp, ok := s.employees[id]; ok {
		return emp, nil
	}
	return nil, notFoundErr("employee", id)
}

func (s *fakeEmployeeStore) GetActiveEmployment(ctx context.Context, employeeID string) (*repository.Employment, error) {
	return s.employments[employeeID], nil
}

type auditRecord struct {
	Action     string
	EntityType string
	EntityID   string
	Note       string
}

type fakeAuditor struct {
	records []auditRecord
}

func (a *fakeAuditor) Write(ctx context.Context, action, entityType, entityID string, actorID *string, before, after map[string]any, note string) {
	a.records = append(a.records, auditRecord{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Note:       note,
	})
}

func (a *fakeAuditor) actionsFor(entityID string) []string {
	var out []string
	for _, r := range a.records {
		if r.EntityID == entityID {
			out = append(out, r.Action)
		}
	}
	return out
}

type publishedEvent struct {
	EventType  string
	LeaveID    string
	Recipients []string
}

type fakeNotifier struct {
	events []publishedEvent
}

func (n *fakeNotifier) PublishLeaveEvent(ctx context.Context, eventType, leaveID, actorID string, recipients []string, payload map[string]any) {
	n.events = append(n.events, publishedEvent{
		EventType:  eventType,
		LeaveID:    leaveID,
		Recipients: recipients,
	})
}

// ── Fixture ───────────────────────────────────────────────────────────────────

type leaveFixture struct {
	svc       *LeaveService
	leaves    *fakeLeaveStore
	employees *fakeEmployeeStore
	workflows *fakeWorkflowStore
	approvals *fakeApprovalStore
	roles     *fakeRoleDirectory
	audit     *fakeAuditor
	notifier  *fakeNotifier
}

func newLeaveFixture() *leaveFixture {
	f := &leaveFixture{
		leaves:    &fakeLeaveStore{},
		employees: newFakeEmployeeStore(),
		workflows: &fakeWorkflowStore{},
		approvals: &fakeApprovalStore{},
		roles:     &fakeRoleDirectory{roles: map[string][]string{}},
		audit:     &fakeAuditor{},
		notifier:  &fakeNotifier{},
	}
	engine := NewApprovalService(fakeTx{}, f.workflows, f.approvals, f.roles, newTestLogger())
	f.svc = NewLeaveService(f.leaves, f.employees, engine, f.roles, f.audit, f.notifier, newTestLogger())
	return f
}

// seedLeaveWorkflows installs the three global leave chains.
func (f *leaveFixture) seedLeaveWorkflows() {
	f.workflows.add(&repository.WorkflowDefinition{
		Module:   ModuleLeave,
		Code:     WorkflowLeaveJuniorRegional,
		IsActive: true,
		Steps: []*repository.WorkflowStep{
			roleStep(1, "REGIONAL_MANAGER"),
			roleStep(2, "HR_HO"),
		},
	})
	f.workflows.add(&repository.WorkflowDefinition{
		Module:   ModuleLeave,
		Code:     WorkflowLeaveSupervisor,
		IsActive: true,
		Steps: []*repository.WorkflowStep{
			roleStep(1, "CEO"),
			roleStep(2, "HR_HO"),
		},
	})
	f.workflows.add(&repository.WorkflowDefinition{
		Module:   ModuleLeave,
		Code:     WorkflowLeaveSenior,
		IsActive: true,
		Steps: []*repository.WorkflowStep{
			roleStep(1, "SUPERVISOR"),
			roleStep(2, "CEO"),
			roleStep(3, "HR_HO"),
		},
	})
}

// addEmployee registers an employee with an ACTIVE employment.
func (f *leaveFixture) addEmployee(id, category string, userID, supervisorID *string) {
	f.employees.employees[id] = &repository.Employee{
		ID:     id,
		UserID: userID,
		Status: repository.EmploymentStatusActive,
	}
	f.employees.employments[id] = &repository.Employment{
		ID:            uuid.NewString(),
		EmployeeID:    id,
		StaffCategory: category,
		SupervisorID:  supervisorID,
		Status:        repository.EmploymentStatusActive,
	}
}

func (f *leaveFixture) draftLeave(t *testing.T, employeeID string) *repository.LeaveRequest {
	t.Helper()
	lr, err := f.svc.CreateLeave(context.Background(), CreateLeaveInput{
		EmployeeID:    employeeID,
		LeaveType:     repository.LeaveTypeAnnual,
		StartDate:     "2026-09-01",
		EndDate:       "2026-09-05",
		DaysRequested: 5,
		Reason:        "family trip",
	})
	require.NoError(t, err)
	return lr
}

// ── Creation ──────────────────────────────────────────────────────────────────

func TestCreateLeaveStartsAsDraft(t *testing.T) {
	f := newLeaveFixture()
	f.addEmployee("emp-1", repository.StaffCategoryJunior, nil, nil)

	lr := f.draftLeave(t, "emp-1")

	assert.Equal(t, repository.LeaveStatusDraft, lr.Status)
	assert.Nil(t, lr.ApprovalRequestID)
	assert.NotEmpty(t, lr.ID)
}

func TestCreateLeaveValidation(t *testing.T) {
	f := newLeaveFixture()
	f.addEmployee("emp-1", repository.StaffCategoryJunior, nil, nil)

	cases := []struct {
		name string
		in   CreateLeaveInput
	}{
		{"bad leave type", CreateLeaveInput{EmployeeID: "emp-1", LeaveType: "SABBATICAL", StartDate: "2026-09-01", EndDate: "2026-09-05", DaysRequested: 5}},
		{"bad start date", CreateLeaveInput{EmployeeID: "emp-1", LeaveType: repository.LeaveTypeAnnual, StartDate: "01/09/2026", EndDate: "2026-09-05", DaysRequested: 5}},
		{"end before start", CreateLeaveInput{EmployeeID: "emp-1", LeaveType: repository.LeaveTypeAnnual, StartDate: "2026-09-05", EndDate: "2026-09-01", DaysRequested: 5}},
		{"non-positive days", CreateLeaveInput{EmployeeID: "emp-1", LeaveType: repository.LeaveTypeAnnual, StartDate: "2026-09-01", EndDate: "2026-09-05", DaysRequested: 0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateLeave(context.Background(), tc.in)
			require.Error(t, err)
			assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))
		})
	}
}

func TestCreateLeaveUnknownEmployee(t *testing.T) {
	f := newLeaveFixture()

	_, err := f.svc.CreateLeave(context.Background(), CreateLeaveInput{
		EmployeeID:    "ghost",
		LeaveType:     repository.LeaveTypeSick,
		StartDate:     "2026-09-01",
		EndDate:       "2026-09-02",
		DaysRequested: 2,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

// ── Submission and routing ────────────────────────────────────────────────────

func TestSubmitRoutesByStaffCategory(t *testing.T) {
	cases := []struct {
		category string
		wantCode string
	}{
		{repository.StaffCategoryJunior, WorkflowLeaveJuniorRegional},
		{repository.StaffCategorySupervisor, WorkflowLeaveSupervisor},
		{repository.StaffCategorySenior, WorkflowLeaveSenior},
		{"CONTRACTOR", WorkflowLeaveSenior}, // unknown categories use the senior chain
	}

	for _, tc := range cases {
		t.Run(tc.category, func(t *testing.T) {
			f := newLeaveFixture()
			f.seedLeaveWorkflows()
			supUser := "sup-user"
			f.addEmployee("sup-1", repository.StaffCategorySupervisor, &supUser, nil)
			supID := "sup-1"
			f.addEmployee("emp-1", tc.category, nil, &supID)

			lr := f.draftLeave(t, "emp-1")
			result, err := f.svc.Submit(context.Background(), lr.ID, "actor-1")
			require.NoError(t, err)
			assert.Equal(t, tc.wantCode, result.WorkflowCode)

			stored, err := f.svc.GetLeave(context.Background(), lr.ID)
			require.NoError(t, err)
			assert.Equal(t, repository.LeaveStatusSubmitted, stored.Status)
			require.NotNil(t, stored.ApprovalRequestID)
			assert.Equal(t, result.ApprovalRequestID, *stored.ApprovalRequestID)
		})
	}
}

func TestSubmitSeniorPinsSupervisorUser(t *testing.T) {
	f := newLeaveFixture()
	f.seedLeaveWorkflows()
	supUser := "sup-user"
	f.addEmployee("sup-1", repository.StaffCategorySupervisor, &supUser, nil)
	supID := "sup-1"
	f.addEmployee("emp-1", repository.StaffCategorySenior, nil, &supID)

	lr := f.draftLeave(t, "emp-1")
	result, err := f.svc.Submit(context.Background(), lr.ID, "actor-1")
	require.NoError(t, err)

	approval, err := f.approvals.GetByID(context.Background(), result.ApprovalRequestID)
	require.NoError(t, err)
	require.NotNil(t, approval.AssignedToUser)
	assert.Equal(t, supUser, *approval.AssignedToUser)

	// The submitted event goes to the pinned supervisor.
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, EventLeaveSubmitted, f.notifier.events[0].EventType)
	assert.Equal(t, []string{supUser}, f.notifier.events[0].Recipients)
}

func TestSubmitSeniorWithoutSupervisorFails(t *testing.T) {
	f := newLeaveFixture()
	f.seedLeaveWorkflows()
	f.addEmployee("emp-1", repository.StaffCategorySenior, nil, nil)

	lr := f.draftLeave(t, "emp-1")
	_, err := f.svc.Submit(context.Background(), lr.ID, "actor-1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
}

func TestSubmitSeniorSupervisorWithoutUserFails(t *testing.T) {
	f := newLeaveFixture()
	f.seedLeaveWorkflows()
	f.addEmployee("sup-1", repository.StaffCategorySupervisor, nil, nil)
	supID := "sup-1"
	f.addEmployee("emp-1", repository.StaffCategorySenior, nil, &supID)

	lr := f.draftLeave(t, "emp-1")
	_, err := f.svc.Submit(context.Background(), lr.ID, "actor-1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
}

func TestSubmitRequiresDraft(t *testing.T) {
	f := newLeaveFixture()
	f.seedLeaveWorkflows()
	f.addEmployee("emp-1", repository.StaffCategoryJunior, nil, nil)

	lr := f.draftLeave(t, "emp-1")
	_, err := f.svc.Submit(context.Background(), lr.ID, "actor-1")
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), lr.ID, "actor-1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
}

func TestSubmitWithoutActiveEmploymentFails(t *testing.T) {
	f := newLeaveFixture()
	f.seedLeaveWorkflows()
	f.employees.employees["emp-1"] = &repository.Employee{ID: "emp-1"}

	lr := f.draftLeave(t, "emp-1")
	_, err := f.svc.Submit(context.Background(), lr.ID, "actor-1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
}

func TestSubmitUsesEmploymentRegion(t *testing.T) {
	f := newLeaveFixture()
	regionR := "region-r"
	f.workflows.add(&repository.WorkflowDefinition{
		Module:   ModuleLeave,
		Code:     WorkflowLeaveJuniorRegional,
		RegionID: &regionR,
		IsActive: true,
		Steps:    []*repository.WorkflowStep{roleStep(1, "REGIONAL_MANAGER")},
	})
	f.addEmployee("emp-1", repository.StaffCategoryJunior, nil, nil)
	f.employees.employments["emp-1"].RegionID = &regionR

	lr := f.draftLeave(t, "emp-1")
	result, err := f.svc.Submit(context.Background(), lr.ID, "actor-1")
	require.NoError(t, err)

	approval, err := f.approvals.GetByID(context.Background(), result.ApprovalRequestID)
	require.NoError(t, err)
	require.NotNil(t, approval.RegionID)
	assert.Equal(t, regionR, *approval.RegionID)
}

func TestSubmitWritesAuditTrail(t *testing.T) {
	f := newLeaveFixture()
	f.seedLeaveWorkflows()
	f.addEmployee("emp-1", repository.StaffCategoryJunior, nil, nil)

	lr := f.draftLeave(t, "emp-1")
	_, err := f.svc.Submit(context.Background(), lr.ID, "actor-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"SUBMIT_LEAVE"}, f.audit.actionsFor(lr.ID))
}

// ── Acting on approvals ───────────────────────────────────────────────────────

// submitLeave creates and submits a junior leave, returning both IDs.
func submitJuniorLeave(t *testing.T, f *leaveFixture) (leaveID, approvalID string) {
	t.Helper()
	f.addEmployee("emp-1", repository.StaffCategoryJunior, nil, nil)
	lr := f.draftLeave(t, "emp-1")
	result, err := f.svc.Submit(context.Background(), lr.ID, "creator-user")
	require.NoError(t, err)
	return lr.ID, result.ApprovalRequestID
}

func TestActOnApprovalKeepsLeaveSubmittedMidChain(t *testing.T) {
	f := newLeaveFixture()
	f.seedLeaveWorkflows()
	f.roles.roles["rm-1"] = []string{"REGIONAL_MANAGER"}
	f.roles.roles["hr-1"] = []string{"HR_HO"}
	f.roles.roles["hr-2"] = []string{"HR_HO"}

	leaveID, approvalID := submitJuniorLeave(t, f)

	updated, err := f.svc.ActOnApproval(context.Background(), approvalID, "rm-1", "APPROVE", "looks fine")
	require.NoError(t, err)
	assert.Equal(t, repository.ApprovalStatusPending, updated.Status)

	stored, err := f.svc.GetLeave(context.Background(), leaveID)
	require.NoError(t, err)
	assert.Equal(t, repository.LeaveStatusSubmitted, stored.Status)

	// Mid-chain approval notifies the next step's role holders, not the
	// requester.
	last := f.notifier.events[len(f.notifier.events)-1]
	assert.Equal(t, EventApprovalRequired, last.EventType)
	assert.Equal(t, []string{"hr-1", "hr-2"}, last.Recipients)
}

func TestActOnApprovalNotifiesUserStepApprover(t *testing.T) {
	f := newLeaveFixture()
	userID := "designated-user"
	f.workflows.add(&repository.WorkflowDefinition{
		Module:   ModuleLeave,
		Code:     WorkflowLeaveJuniorRegional,
		IsActive: true,
		Steps: []*repository.WorkflowStep{
			roleStep(1, "REGIONAL_MANAGER"),
			userStep(2, userID),
		},
	})
	f.roles.roles["rm-1"] = []string{"REGIONAL_MANAGER"}

	_, approvalID := submitJuniorLeave(t, f)

	_, err := f.svc.ActOnApproval(context.Background(), approvalID, "rm-1", "APPROVE", "")
	require.NoError(t, err)

	last := f.notifier.events[len(f.notifier.events)-1]
	assert.Equal(t, EventApprovalRequired, last.EventType)
	assert.Equal(t, []string{userID}, last.Recipients)
}

func TestActOnApprovalSyncsFinalApprove(t *testing.T) {
	f := newLeaveFixture()
	f.seedLeaveWorkflows()
	f.roles.roles["rm-1"] = []string{"REGIONAL_MANAGER"}
	f.roles.roles["hr-1"] = []string{"HR_HO"}

	leaveID, approvalID := submitJuniorLeave(t, f)

	_, err := f.svc.ActOnApproval(context.Background(), approvalID, "rm-1", "APPROVE", "")
	require.NoError(t, err)
	updated, err := f.svc.ActOnApproval(context.Background(), approvalID, "hr-1", "APPROVE", "enjoy")
	require.NoError(t, err)
	assert.Equal(t, repository.ApprovalStatusApproved, updated.Status)

	stored, err := f.svc.GetLeave(context.Background(), leaveID)
	require.NoError(t, err)
	assert.Equal(t, repository.LeaveStatusApproved, stored.Status)
	assert.Equal(t, "enjoy", stored.LastActionNote)

	last := f.notifier.events[len(f.notifier.events)-1]
	assert.Equal(t, EventLeaveApproved, last.EventType)
	assert.Equal(t, []string{"creator-user"}, last.Recipients)
}

func TestActOnApprovalSyncsReject(t *testing.T) {
	f := newLeaveFixture()
	f.seedLeaveWorkflows()
	f.roles.roles["rm-1"] = []string{"REGIONAL_MANAGER"}

	leaveID, approvalID := submitJuniorLeave(t, f)

	_, err := f.svc.ActOnApproval(context.Background(), approvalID, "rm-1", "REJECT", "dates clash")
	require.NoError(t, err)

	stored, err := f.svc.GetLeave(context.Background(), leaveID)
	require.NoError(t, err)
	assert.Equal(t, repository.LeaveStatusRejected, stored.Status)
	assert.Equal(t, "dates clash", stored.LastActionNote)

	assert.Contains(t, f.audit.actionsFor(approvalID), "APPROVAL_ACTION")
	assert.Contains(t, f.audit.actionsFor(leaveID), "SYNC_STATUS")
}

func TestActOnApprovalSyncsReturn(t *testing.T) {
	f := newLeaveFixture()
	f.seedLeaveWorkflows()
	f.roles.roles["rm-1"] = []string{"REGIONAL_MANAGER"}

	leaveID, approvalID := submitJuniorLeave(t, f)

	_, err := f.svc.ActOnApproval(context.Background(), approvalID, "rm-1", "RETURN", "fill in the reason")
	require.NoError(t, err)

	stored, err := f.svc.GetLeave(context.Background(), leaveID)
	require.NoError(t, err)
	assert.Equal(t, repository.LeaveStatusReturned, stored.Status)

	last := f.notifier.events[len(f.notifier.events)-1]
	assert.Equal(t, EventLeaveReturned, last.EventType)
}

func TestActOnApprovalSkipsSyncForOtherModules(t *testing.T) {
	f := newLeaveFixture()
	f.workflows.add(&repository.WorkflowDefinition{
		Module:   "exit",
		Code:     "exit_standard",
		IsActive: true,
		Steps:    []*repository.WorkflowStep{roleStep(1, "HR_HO")},
	})
	f.roles.roles["hr-1"] = []string{"HR_HO"}

	engine := NewApprovalService(fakeTx{}, f.workflows, f.approvals, f.roles, newTestLogger())
	req, err := engine.CreateApproval(context.Background(), CreateApprovalInput{
		Module:       "exit",
		RequestType:  "exit_standard",
		RequestRefID: "exit-1",
	})
	require.NoError(t, err)

	updated, err := f.svc.ActOnApproval(context.Background(), req.ID, "hr-1", "APPROVE", "")
	require.NoError(t, err)
	assert.Equal(t, repository.ApprovalStatusApproved, updated.Status)

	// No leave record was touched and no leave event published.
	assert.Empty(t, f.leaves.leaves)
	assert.Empty(t, f.notifier.events)
}

func TestActOnApprovalUnauthorizedWritesNoAudit(t *testing.T) {
	f := newLeaveFixture()
	f.seedLeaveWorkflows()

	leaveID, approvalID := submitJuniorLeave(t, f)

	_, err := f.svc.ActOnApproval(context.Background(), approvalID, "stranger", "APPROVE", "")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))

	assert.Empty(t, f.audit.actionsFor(approvalID))

	stored, err := f.svc.GetLeave(context.Background(), leaveID)
	require.NoError(t, err)
	assert.Equal(t, repository.LeaveStatusSubmitted, stored.Status)
}
