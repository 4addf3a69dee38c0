package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/geahr/be-hr-approvals/internal/platform/apperr"
	"github.com/geahr/be-hr-approvals/internal/platform/logger"
	"github.com/geahr/be-hr-approvals/internal/repository"
)

// ── In-memory fakes shared by the service tests ───────────────────────────────

func newTestLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", ServiceName: "test"})
}

// fakeTx runs the function directly; atomicity is the database's concern.
type fakeTx struct{}

func (fakeTx) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeWorkflowStore struct {
	defs []*repository.WorkflowDefinition
}

func (s *fakeWorkflowStore) add(wf *repository.WorkflowDefinition) {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	s.defs = append(s.defs, wf)
}

func (s *fakeWorkflowStore) FindActive(ctx context.Context, module, code string, regionID *string) (*repository.WorkflowDefinition, error) {
	for _, wf := range s.defs {
		if !wf.IsActive || wf.Module != module || wf.Code != code {
			continue
		}
		if regionID == nil && wf.RegionID == nil {
			return wf, nil
		}
		if regionID != nil && wf.RegionID != nil && *regionID == *wf.RegionID {
			return wf, nil
		}
	}
	return nil, nil
}

func (s *fakeWorkflowStore) Create(ctx context.Context, wf *repository.WorkflowDefinition) error {
	s.add(wf)
	return nil
}

func (s *fakeWorkflowStore) GetByID(ctx context.Context, id string) (*repository.WorkflowDefinition, error) {
	for _, wf := range s.defs {
		if wf.ID == id {
			return wf, nil
		}
	}
	return nil, nil
}

func (s *fakeWorkflowStore) ListByModule(ctx context.Context, module string) ([]*repository.WorkflowDefinition, error) {
	var out []*repository.WorkflowDefinition
	for _, wf := range s.defs {
		if wf.Module == module {
			out = append(out, wf)
		}
	}
	return out, nil
}

type fakeApprovalStore struct {
	requests []*repository.ApprovalRequest
	actions  []*repository.ApprovalAction
}

func (s *fakeApprovalStore) Create(ctx context.Context, req *repository.ApprovalRequest) error {
	req.ID = uuid.NewString()
	req.CreatedAt = time.Now()
	req.UpdatedAt = req.CreatedAt
	s.requests = append(s.requests, req)
	return nil
}

func (s *fakeApprovalStore) find(id string) *repository.ApprovalRequest {
	for _, req := range s.requests {
		if req.ID == id {
			return req
		}
	}
	return nil
}

func (s *fakeApprovalStore) GetByID(ctx context.Context, id string) (*repository.ApprovalRequest, error) {
	if req := s.find(id); req != nil {
		copied := *req
		return &copied, nil
	}
	return nil, notFoundErr("approval_request", id)
}

func (s *fakeApprovalStore) GetByIDForUpdate(ctx context.Context, id string) (*repository.ApprovalRequest, error) {
	return s.GetByID(ctx, id)
}

func (s *fakeApprovalStore) Update(ctx context.Context, req *repository.ApprovalRequest) error {
	stored := s.find(req.ID)
	if stored == nil {
		return notFoundErr("approval_request", req.ID)
	}
	*stored = *req
	return nil
}

func (s *fakeApprovalStore) ListPendingAssignedTo(ctx context.Context, userID string) ([]*repository.ApprovalRequest, error) {
	var out []*repository.ApprovalRequest
	for i := len(s.requests) - 1; i >= 0; i-- {
		req := s.requests[i]
		if req.Status == repository.ApprovalStatusPending &&
			req.AssignedToUser != nil && *req.AssignedToUser == userID {
			copied := *req
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeApprovalStore) ListPending(ctx context.Context) ([]*repository.ApprovalRequest, error) {
	var out []*repository.ApprovalRequest
	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].Status == repository.ApprovalStatusPending {
			copied := *s.requests[i]
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeApprovalStore) List(ctx context.Context, status, module *string) ([]*repository.ApprovalRequest, error) {
	var out []*repository.ApprovalRequest
	for i := len(s.requests) - 1; i >= 0; i-- {
		req := s.requests[i]
		if status != nil && req.Status != *status {
			continue
		}
		if module != nil && req.Module != *module {
			continue
		}
		copied := *req
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakeApprovalStore) AppendAction(ctx context.Context, action *repository.ApprovalAction) error {
	action.ID = uuid.NewString()
	action.CreatedAt = time.Now()
	s.actions = append(s.actions, action)
	return nil
}

func (s *fakeApprovalStore) ListActions(ctx context.Context, requestID string) ([]*repository.ApprovalAction, error) {
	var out []*repository.ApprovalAction
	for _, a := range s.actions {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeRoleDirectory struct {
	roles map[string][]string
}

func (d *fakeRoleDirectory) RolesOf(ctx context.Context, userID string) ([]string, error) {
	return d.roles[userID], nil
}

func (d *fakeRoleDirectory) UsersWithRole(ctx context.Context, roleCode string) ([]string, error) {
	var out []string
	for userID, codes := range d.roles {
		for _, code := range codes {
			if code == roleCode {
				out = append(out, userID)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func notFoundErr(resource, id string) error {
	return apperr.NotFound(resource, id)
}
