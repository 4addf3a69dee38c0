package service

import (
	"context"
	"time"

	"github.com/geahr/be-hr-approvals/internal/platform/apperr"
	"github.com/geahr/be-hr-approvals/internal/platform/logger"
	"github.com/geahr/be-hr-approvals/internal/repository"
)

// ModuleLeave namespaces leave approvals in the workflow engine.
const ModuleLeave = "leave"

// Leave workflow codes.
const (
	WorkflowLeaveJuniorRegional = "leave_junior_regional"
	WorkflowLeaveSupervisor     = "leave_supervisor"
	WorkflowLeaveSenior         = "leave_senior"
)

// leaveWorkflowByCategory maps a staff category to its workflow code.
// Categories without an entry fall back to the senior workflow.
var leaveWorkflowByCategory = map[string]string{
	repository.StaffCategoryJunior:     WorkflowLeaveJuniorRegional,
	repository.StaffCategorySupervisor: WorkflowLeaveSupervisor,
}

// leaveWorkflowCodes is the set of codes whose approvals sync back onto
// leave requests.
var leaveWorkflowCodes = map[string]struct{}{
	WorkflowLeaveJuniorRegional: {},
	WorkflowLeaveSupervisor:     {},
	WorkflowLeaveSenior:         {},
}

var validLeaveTypes = map[string]struct{}{
	repository.LeaveTypeAnnual:        {},
	repository.LeaveTypeSick:          {},
	repository.LeaveTypeStudy:         {},
	repository.LeaveTypeMaternity:     {},
	repository.LeaveTypePaternity:     {},
	repository.LeaveTypeCompassionate: {},
	repository.LeaveTypeOther:         {},
}

// Notification event types published on leave transitions.
const (
	EventLeaveSubmitted   = "leave_submitted"
	EventApprovalRequired = "approval_required"
	EventLeaveApproved    = "leave_approved"
	EventLeaveRejected    = "leave_rejected"
	EventLeaveReturned    = "leave_returned"
)

// LeaveStore persists leave requests.
type LeaveStore interface {
	Create(ctx context.Context, lr *repository.LeaveRequest) error
	GetByID(ctx context.Context, id string) (*repository.LeaveRequest, error)
	List(ctx context.Context, employeeID, status *string) ([]*repository.LeaveRequest, error)
	MarkSubmitted(ctx context.Context, id, approvalRequestID string) error
	SyncStatus(ctx context.Context, id, status, lastActionNote string) error
}

// EmployeeStore reads the records the routing selector depends on.
type EmployeeStore interface {
	GetEmployee(ctx context.Context, id string) (*repository.Employee, error)
	GetActiveEmployment(ctx context.Context, employeeID string) (*repository.Employment, error)
}

// Auditor records audit events; implementations must never fail the caller.
type Auditor interface {
	Write(ctx context.Context, action, entityType, entityID string, actorID *string, before, after map[string]any, note string)
}

// Notifier publishes leave workflow events; implementations must never fail
// the caller.
type Notifier interface {
	PublishLeaveEvent(ctx context.Context, eventType, leaveID, actorID string, recipients []string, payload map[string]any)
}

// ApproverDirectory resolves the holders of a role code, used to address
// approval_required notifications at the next step's approvers.
type ApproverDirectory interface {
	UsersWithRole(ctx context.Context, roleCode string) ([]string, error)
}

// LeaveService is the leave module's integration with the approval engine:
// it selects the workflow, submits approvals and mirrors outcomes back onto
// leave records.
type LeaveService struct {
	leaves    LeaveStore
	employees EmployeeStore
	approvals *ApprovalService
	approvers ApproverDirectory
	audit     Auditor
	notifier  Notifier
	log       *logger.Logger
}

// NewLeaveService creates a new LeaveService.
func NewLeaveService(
	leaves LeaveStore,
	employees EmployeeStore,
	approvals *ApprovalService,
	approvers ApproverDirectory,
	audit Auditor,
	notifier Notifier,
	log *logger.Logger,
) *LeaveService {
	return &LeaveService{
		leaves:    leaves,
		employees: employees,
		approvals: approvals,
		approvers: approvers,
		audit:     audit,
		notifier:  notifier,
		log:       log,
	}
}

// ── Leave CRUD ────────────────────────────────────────────────────────────────

// CreateLeaveInput carries a new draft leave request.
type CreateLeaveInput struct {
	EmployeeID    string
	LeaveType     string
	StartDate     string // YYYY-MM-DD
	EndDate       string // YYYY-MM-DD
	DaysRequested int
	Reason        string
}

// CreateLeave validates and persists a DRAFT leave request.
func (s *LeaveService) CreateLeave(ctx context.Context, in CreateLeaveInput) (*repository.LeaveRequest, error) {
	if _, ok := validLeaveTypes[in.LeaveType]; !ok {
		return nil, apperr.InvalidInput("leave_type", "invalid leave type")
	}

	start, err := parseDate(in.StartDate)
	if err != nil {
		return nil, apperr.InvalidInput("start_date", "invalid date format, expected YYYY-MM-DD")
	}
	end, err := parseDate(in.EndDate)
	if err != nil {
		return nil, apperr.InvalidInput("end_date", "invalid date format, expected YYYY-MM-DD")
	}
	if end.Before(start) {
		return nil, apperr.InvalidInput("end_date", "end_date cannot be before start_date")
	}
	if in.DaysRequested <= 0 {
		return nil, apperr.InvalidInput("days_requested", "must be positive")
	}

	if _, err := s.employees.GetEmployee(ctx, in.EmployeeID); err != nil {
		return nil, err
	}

	lr := &repository.LeaveRequest{
		EmployeeID:    in.EmployeeID,
		LeaveType:     in.LeaveType,
		StartDate:     start,
		EndDate:       end,
		DaysRequested: in.DaysRequested,
		Reason:        in.Reason,
		Status:        repository.LeaveStatusDraft,
	}
	if err := s.leaves.Create(ctx, lr); err != nil {
		return nil, err
	}
	return lr, nil
}

// GetLeave retrieves a leave request.
func (s *LeaveService) GetLeave(ctx context.Context, id string) (*repository.LeaveRequest, error) {
	return s.leaves.GetByID(ctx, id)
}

// ListLeave returns leave requests filtered by optional employee and status.
func (s *LeaveService) ListLeave(ctx context.Context, employeeID, status *string) ([]*repository.LeaveRequest, error) {
	return s.leaves.List(ctx, employeeID, status)
}

// ── Routing selector ──────────────────────────────────────────────────────────

// pickWorkflowCode selects the leave workflow from the employee's current
// staff category, read off the most recently created ACTIVE employment.
func (s *LeaveService) pickWorkflowCode(ctx context.Context, employeeID string) (string, *repository.Employment, error) {
	active, err := s.employees.GetActiveEmployment(ctx, employeeID)
	if err != nil {
		return "", nil, err
	}
	if active == nil {
		return "", nil, apperr.Conflict("employee has no active employment record")
	}

	if code, ok := leaveWorkflowByCategory[active.StaffCategory]; ok {
		return code, active, nil
	}
	return WorkflowLeaveSenior, active, nil
}

// ── Submission ────────────────────────────────────────────────────────────────

// SubmitResult reports a successful submission.
type SubmitResult struct {
	LeaveRequestID    string `json:"leave_request_id"`
	ApprovalRequestID string `json:"approval_request_id"`
	WorkflowCode      string `json:"workflow_used"`
}

// Submit moves a DRAFT leave into approval: the workflow is selected from the
// employee's staff category and an approval request is opened with the
// employment's region. Senior leave is strictly assigned to the employee's
// own supervisor, bypassing the first step's role rule.
func (s *LeaveService) Submit(ctx context.Context, leaveID, actorID string) (*SubmitResult, error) {
	lr, err := s.leaves.GetByID(ctx, leaveID)
	if err != nil {
		return nil, err
	}
	if lr.Status != repository.LeaveStatusDraft {
		return nil, apperr.Conflict("only DRAFT leave can be submitted")
	}

	code, employment, err := s.pickWorkflowCode(ctx, lr.EmployeeID)
	if err != nil {
		return nil, err
	}

	var assignee *string
	if code == WorkflowLeaveSenior {
		if employment.SupervisorID == nil {
			return nil, apperr.Conflict("supervisor not set for this employee")
		}
		supervisor, err := s.employees.GetEmployee(ctx, *employment.SupervisorID)
		if err != nil {
			return nil, err
		}
		if supervisor.UserID == nil {
			return nil, apperr.Conflict("supervisor user not set for this employee")
		}
		assignee = supervisor.UserID
	}

	approval, err := s.approvals.CreateApproval(ctx, CreateApprovalInput{
		Module:         ModuleLeave,
		RequestType:    code,
		RequestRefID:   lr.ID,
		RegionID:       employment.RegionID,
		CreatedBy:      actorID,
		AssignedToUser: assignee,
	})
	if err != nil {
		return nil, err
	}

	if err := s.leaves.MarkSubmitted(ctx, lr.ID, approval.ID); err != nil {
		return nil, err
	}

	before := map[string]any{"status": lr.Status, "approval_request": lr.ApprovalRequestID}
	after := map[string]any{"status": repository.LeaveStatusSubmitted, "workflow": code}
	s.audit.Write(ctx, "SUBMIT_LEAVE", "LeaveRequest", lr.ID, &actorID, before, after, "")

	var recipients []string
	if assignee != nil {
		recipients = []string{*assignee}
	}
	s.notifier.PublishLeaveEvent(ctx, EventLeaveSubmitted, lr.ID, actorID, recipients, map[string]any{
		"workflow_code":       code,
		"approval_request_id": approval.ID,
	})

	s.log.Info().
		Str("leave_id", lr.ID).
		Str("approval_id", approval.ID).
		Str("workflow_code", code).
		Msg("Leave request submitted")

	return &SubmitResult{
		LeaveRequestID:    lr.ID,
		ApprovalRequestID: approval.ID,
		WorkflowCode:      code,
	}, nil
}

// ── Acting ────────────────────────────────────────────────────────────────────

// ActOnApproval runs the engine's transition and performs the module-side
// follow-ups: the APPROVAL_ACTION audit entry, status sync onto the leave
// record (with the action comment) and outcome notifications.
func (s *LeaveService) ActOnApproval(ctx context.Context, requestID, actorID, action, comment string) (*repository.ApprovalRequest, error) {
	prior, err := s.approvals.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	before := map[string]any{"status": prior.Status, "step": prior.CurrentStepOrder}

	updated, err := s.approvals.Act(ctx, requestID, actorID, action, comment)
	if err != nil {
		return nil, err
	}

	after := map[string]any{"status": updated.Status, "step": updated.CurrentStepOrder}
	s.audit.Write(ctx, "APPROVAL_ACTION", "ApprovalRequest", updated.ID, &actorID, before, after, comment)

	if updated.Module != ModuleLeave {
		return updated, nil
	}
	if _, ok := leaveWorkflowCodes[updated.RequestType]; !ok {
		return updated, nil
	}

	leaveStatus := leaveStatusFor(updated.Status)
	if err := s.leaves.SyncStatus(ctx, updated.RequestRefID, leaveStatus, comment); err != nil {
		return nil, err
	}
	s.audit.Write(ctx, "SYNC_STATUS", "LeaveRequest", updated.RequestRefID, &actorID,
		nil, map[string]any{"status": leaveStatus}, "")

	if event := eventFor(updated.Status); event != "" {
		s.notifier.PublishLeaveEvent(ctx, event, updated.RequestRefID, actorID, s.eventRecipients(ctx, prior, updated), map[string]any{
			"approval_request_id": updated.ID,
			"status":              updated.Status,
		})
	}

	return updated, nil
}

// eventRecipients picks the notification audience: terminal outcomes go back
// to the requester, a mid-chain advance (approval_required) goes to the next
// step's approvers. Resolution is best-effort; a failure leaves the event
// unaddressed rather than failing the action.
func (s *LeaveService) eventRecipients(ctx context.Context, prior, updated *repository.ApprovalRequest) []string {
	if updated.Status != repository.ApprovalStatusPending {
		if prior.CreatedBy != nil {
			return []string{*prior.CreatedBy}
		}
		return nil
	}

	wf, err := s.approvals.ResolveWorkflow(ctx, updated.Module, updated.RequestType, updated.RegionID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("approval_id", updated.ID).
			Msg("Could not resolve workflow for notification audience")
		return nil
	}
	step := stepAt(wf, updated.CurrentStepOrder)
	if step == nil {
		return nil
	}

	switch step.ApproverRule {
	case repository.RuleUser:
		if step.ApproverUserID != nil {
			return []string{*step.ApproverUserID}
		}
	case repository.RuleRole:
		users, err := s.approvers.UsersWithRole(ctx, step.ApproverRoleCode)
		if err != nil {
			s.log.Warn().Err(err).
				Str("approval_id", updated.ID).
				Str("role_code", step.ApproverRoleCode).
				Msg("Could not resolve role holders for notification audience")
			return nil
		}
		return users
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// leaveStatusFor maps an approval outcome onto the leave record's status.
// A still-pending approval keeps the leave SUBMITTED.
func leaveStatusFor(approvalStatus string) string {
	switch approvalStatus {
	case repository.ApprovalStatusApproved:
		return repository.LeaveStatusApproved
	case repository.ApprovalStatusRejected:
		return repository.LeaveStatusRejected
	case repository.ApprovalStatusReturned:
		return repository.LeaveStatusReturned
	default:
		return repository.LeaveStatusSubmitted
	}
}

// eventFor maps an approval status to its notification event, or "" when the
// approval merely advanced a step.
func eventFor(approvalStatus string) string {
	switch approvalStatus {
	case repository.ApprovalStatusApproved:
		return EventLeaveApproved
	case repository.ApprovalStatusRejected:
		return EventLeaveRejected
	case repository.ApprovalStatusReturned:
		return EventLeaveReturned
	case repository.ApprovalStatusPending:
		return EventApprovalRequired
	default:
		return ""
	}
}
