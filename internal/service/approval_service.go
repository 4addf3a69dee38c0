package service

import (
	"context"
	"strings"

	"github.com/geahr/be-hr-approvals/internal/platform/apperr"
	"github.com/geahr/be-hr-approvals/internal/platform/logger"
	"github.com/geahr/be-hr-approvals/internal/repository"
)

// WorkflowStore resolves workflow definitions from the catalog.
type WorkflowStore interface {
	// FindActive returns the active definition matching (module, code, region)
	// exactly, or nil when none exists.
	FindActive(ctx context.Context, module, code string, regionID *string) (*repository.WorkflowDefinition, error)
}

// ApprovalStore persists approval requests and their action records.
type ApprovalStore interface {
	Create(ctx context.Context, req *repository.ApprovalRequest) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalRequest, error)
	GetByIDForUpdate(ctx context.Context, id string) (*repository.ApprovalRequest, error)
	Update(ctx context.Context, req *repository.ApprovalRequest) error
	ListPendingAssignedTo(ctx context.Context, userID string) ([]*repository.ApprovalRequest, error)
	ListPending(ctx context.Context) ([]*repository.ApprovalRequest, error)
	List(ctx context.Context, status, module *string) ([]*repository.ApprovalRequest, error)
	AppendAction(ctx context.Context, action *repository.ApprovalAction) error
	ListActions(ctx context.Context, requestID string) ([]*repository.ApprovalAction, error)
}

// RoleDirectory answers role membership queries for authorization and inbox
// matching.
type RoleDirectory interface {
	RolesOf(ctx context.Context, userID string) ([]string, error)
}

// Transactor runs a function as one atomic unit against the database.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ApprovalService is the approval workflow engine: it creates requests,
// authorizes actors, executes state transitions and computes inboxes.
type ApprovalService struct {
	db        Transactor
	workflows WorkflowStore
	approvals ApprovalStore
	roles     RoleDirectory
	log       *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	db Transactor,
	workflows WorkflowStore,
	approvals ApprovalStore,
	roles RoleDirectory,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		db:        db,
		workflows: workflows,
		approvals: approvals,
		roles:     roles,
		log:       log,
	}
}

// ── Workflow resolution ───────────────────────────────────────────────────────

// resolveWorkflow finds the active definition for (module, code), preferring
// a region-scoped definition when a region is given and falling back to the
// global one (no region).
func (s *ApprovalService) resolveWorkflow(ctx context.Context, module, code string, regionID *string) (*repository.WorkflowDefinition, error) {
	if regionID != nil {
		wf, err := s.workflows.FindActive(ctx, module, code, regionID)
		if err != nil {
			return nil, err
		}
		if wf != nil {
			return wf, nil
		}
	}

	wf, err := s.workflows.FindActive(ctx, module, code, nil)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, apperr.Newf(apperr.CodeNotFound,
			"no active workflow found for module=%s code=%s", module, code)
	}
	return wf, nil
}

// ResolveWorkflow exposes catalog resolution to calling modules and the
// admin surface.
func (s *ApprovalService) ResolveWorkflow(ctx context.Context, module, code string, regionID *string) (*repository.WorkflowDefinition, error) {
	return s.resolveWorkflow(ctx, module, code, regionID)
}

// ── Creation ──────────────────────────────────────────────────────────────────

// CreateApprovalInput carries everything needed to open an approval request.
type CreateApprovalInput struct {
	Module         string
	RequestType    string // workflow code
	RequestRefID   string
	RegionID       *string
	CreatedBy      string
	AssignedToUser *string // optional strict assignee for the first step
}

// CreateApproval resolves the workflow and persists a PENDING request at the
// first step. The caller emits audit events at its own granularity.
func (s *ApprovalService) CreateApproval(ctx context.Context, in CreateApprovalInput) (*repository.ApprovalRequest, error) {
	wf, err := s.resolveWorkflow(ctx, in.Module, in.RequestType, in.RegionID)
	if err != nil {
		return nil, err
	}
	if len(wf.Steps) == 0 {
		return nil, apperr.Conflict("workflow has no steps")
	}

	var createdBy *string
	if in.CreatedBy != "" {
		createdBy = &in.CreatedBy
	}

	req := &repository.ApprovalRequest{
		Module:           in.Module,
		RequestType:      in.RequestType,
		RequestRefID:     in.RequestRefID,
		RegionID:         in.RegionID,
		CreatedBy:        createdBy,
		AssignedToUser:   in.AssignedToUser,
		Status:           repository.ApprovalStatusPending,
		CurrentStepOrder: wf.Steps[0].StepOrder,
	}

	if err := s.approvals.Create(ctx, req); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("approval_id", req.ID).
		Str("module", req.Module).
		Str("workflow_code", req.RequestType).
		Int("first_step", req.CurrentStepOrder).
		Msg("Approval request created")

	return req, nil
}

// ── Authorization ─────────────────────────────────────────────────────────────

// isApproverForStep decides whether actorID may act on the request's current
// step:
//  1. a strict assignee on the request overrides all step rules;
//  2. a USER step accepts only its designated user;
//  3. a ROLE step accepts any holder of its role code.
//
// An empty actor is never authorized.
func (s *ApprovalService) isApproverForStep(ctx context.Context, actorID string, req *repository.ApprovalRequest, step *repository.WorkflowStep) (bool, error) {
	if actorID == "" {
		return false, nil
	}

	if req.AssignedToUser != nil {
		return *req.AssignedToUser == actorID, nil
	}

	switch step.ApproverRule {
	case repository.RuleUser:
		return step.ApproverUserID != nil && *step.ApproverUserID == actorID, nil

	case repository.RuleRole:
		if step.ApproverRoleCode == "" {
			return false, nil
		}
		roles, err := s.roles.RolesOf(ctx, actorID)
		if err != nil {
			return false, err
		}
		for _, code := range roles {
			if code == step.ApproverRoleCode {
				return true, nil
			}
		}
	}

	return false, nil
}

// ── State transition ──────────────────────────────────────────────────────────

// Act performs APPROVE / REJECT / RETURN on an approval request as a single
// atomic unit: the request row is locked for the duration, so a concurrent
// actor observes the already-advanced state and fails the PENDING check.
//
// REJECT and RETURN are terminal. APPROVE advances to the smallest step_order
// strictly greater than the current one, or marks the request APPROVED when
// none exists; either way the strict assignee is cleared so later steps fall
// back to their own rules.
func (s *ApprovalService) Act(ctx context.Context, requestID, actorID, action, comment string) (*repository.ApprovalRequest, error) {
	var out *repository.ApprovalRequest

	err := s.db.InTransaction(ctx, func(ctx context.Context) error {
		req, err := s.approvals.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != repository.ApprovalStatusPending {
			return apperr.Conflict("this approval is not pending and cannot be acted on")
		}

		wf, err := s.resolveWorkflow(ctx, req.Module, req.RequestType, req.RegionID)
		if err != nil {
			return err
		}
		step := stepAt(wf, req.CurrentStepOrder)
		if step == nil {
			return apperr.Conflict("current workflow step not found")
		}

		ok, err := s.isApproverForStep(ctx, actorID, req, step)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Unauthorized("you are not allowed to act on this approval step")
		}

		kind := strings.ToUpper(strings.TrimSpace(action))
		switch kind {
		case repository.ActionApprove, repository.ActionReject, repository.ActionReturn:
		default:
			return apperr.InvalidInput("action", "invalid action, use APPROVE/REJECT/RETURN")
		}

		// Recorded for every outcome, terminal ones included.
		err = s.approvals.AppendAction(ctx, &repository.ApprovalAction{
			RequestID: req.ID,
			StepOrder: req.CurrentStepOrder,
			ActorID:   &actorID,
			Action:    kind,
			Comment:   comment,
		})
		if err != nil {
			return err
		}

		switch kind {
		case repository.ActionReject:
			req.Status = repository.ApprovalStatusRejected

		case repository.ActionReturn:
			req.Status = repository.ApprovalStatusReturned

		case repository.ActionApprove:
			next := stepAfter(wf, req.CurrentStepOrder)
			if next == nil {
				req.Status = repository.ApprovalStatusApproved
			} else {
				req.CurrentStepOrder = next.StepOrder
			}
			// Clear the strict assignee so the next step's own rule governs.
			req.AssignedToUser = nil
		}

		if err := s.approvals.Update(ctx, req); err != nil {
			return err
		}

		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("approval_id", out.ID).
		Str("actor_id", actorID).
		Str("status", out.Status).
		Int("current_step", out.CurrentStepOrder).
		Msg("Approval action applied")

	return out, nil
}

// ── Inbox ─────────────────────────────────────────────────────────────────────

// Inbox returns the pending requests actorID may act on, newest first.
// Strict assignments take total priority: when the actor is the assignee of
// at least one pending request, only those are returned. Otherwise pending
// requests are matched against their current step's rule; requests whose
// workflow or step can no longer be resolved are skipped, not fatal.
func (s *ApprovalService) Inbox(ctx context.Context, actorID string) ([]*repository.ApprovalRequest, error) {
	assigned, err := s.approvals.ListPendingAssignedTo(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if len(assigned) > 0 {
		return assigned, nil
	}

	roles, err := s.roles.RolesOf(ctx, actorID)
	if err != nil {
		return nil, err
	}
	roleSet := make(map[string]struct{}, len(roles))
	for _, code := range roles {
		roleSet[code] = struct{}{}
	}

	pending, err := s.approvals.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*repository.ApprovalRequest, 0, len(pending))
	for _, req := range pending {
		wf, err := s.resolveWorkflow(ctx, req.Module, req.RequestType, req.RegionID)
		if err != nil {
			// Best-effort visibility: report the gap, keep the inbox usable.
			s.log.Debug().
				Str("approval_id", req.ID).
				Str("module", req.Module).
				Str("workflow_code", req.RequestType).
				Err(err).
				Msg("Skipping approval with unresolvable workflow")
			continue
		}
		step := stepAt(wf, req.CurrentStepOrder)
		if step == nil {
			s.log.Debug().
				Str("approval_id", req.ID).
				Int("current_step", req.CurrentStepOrder).
				Msg("Skipping approval with missing workflow step")
			continue
		}

		switch step.ApproverRule {
		case repository.RuleUser:
			if step.ApproverUserID != nil && *step.ApproverUserID == actorID {
				matched = append(matched, req)
			}
		case repository.RuleRole:
			if step.ApproverRoleCode != "" {
				if _, ok := roleSet[step.ApproverRoleCode]; ok {
					matched = append(matched, req)
				}
			}
		}
	}
	return matched, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// Get retrieves an approval request.
func (s *ApprovalService) Get(ctx context.Context, requestID string) (*repository.ApprovalRequest, error) {
	return s.approvals.GetByID(ctx, requestID)
}

// List returns approval requests filtered by optional status and module.
func (s *ApprovalService) List(ctx context.Context, status, module *string) ([]*repository.ApprovalRequest, error) {
	return s.approvals.List(ctx, status, module)
}

// History returns the action trail of a request, oldest first.
func (s *ApprovalService) History(ctx context.Context, requestID string) ([]*repository.ApprovalAction, error) {
	if _, err := s.approvals.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	return s.approvals.ListActions(ctx, requestID)
}

// ── Step helpers ──────────────────────────────────────────────────────────────

// stepAt returns the step with the given order, or nil.
func stepAt(wf *repository.WorkflowDefinition, order int) *repository.WorkflowStep {
	for _, step := range wf.Steps {
		if step.StepOrder == order {
			return step
		}
	}
	return nil
}

// stepAfter returns the step with the smallest order strictly greater than
// the given one, or nil. Steps are stored ascending.
func stepAfter(wf *repository.WorkflowDefinition, order int) *repository.WorkflowStep {
	for _, step := range wf.Steps {
		if step.StepOrder > order {
			return step
		}
	}
	return nil
}
