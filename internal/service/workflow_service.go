package service

import (
	"context"

	"github.com/geahr/be-hr-approvals/internal/platform/apperr"
	"github.com/geahr/be-hr-approvals/internal/platform/logger"
	"github.com/geahr/be-hr-approvals/internal/repository"
)

// WorkflowCatalog is the administrative surface of the workflow store.
type WorkflowCatalog interface {
	Create(ctx context.Context, wf *repository.WorkflowDefinition) error
	FindActive(ctx context.Context, module, code string, regionID *string) (*repository.WorkflowDefinition, error)
	GetByID(ctx context.Context, id string) (*repository.WorkflowDefinition, error)
	ListByModule(ctx context.Context, module string) ([]*repository.WorkflowDefinition, error)
}

// WorkflowService manages workflow definitions.
type WorkflowService struct {
	catalog WorkflowCatalog
	log     *logger.Logger
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(catalog WorkflowCatalog, log *logger.Logger) *WorkflowService {
	return &WorkflowService{catalog: catalog, log: log}
}

// WorkflowStepInput defines one step of a new workflow.
type WorkflowStepInput struct {
	StepOrder        int     `json:"step_order"`
	ApproverRule     string  `json:"approver_rule"`
	ApproverRoleCode string  `json:"approver_role_code"`
	ApproverUserID   *string `json:"approver_user_id"`
	Required         bool    `json:"required"`
}

// CreateWorkflowInput defines a new workflow and its ordered steps.
type CreateWorkflowInput struct {
	Module   string              `json:"module"`
	Code     string              `json:"code"`
	Name     string              `json:"name"`
	RegionID *string             `json:"region_id"`
	Steps    []WorkflowStepInput `json:"steps"`
}

// CreateWorkflow validates and persists a definition with its steps.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, in CreateWorkflowInput) (*repository.WorkflowDefinition, error) {
	if in.Module == "" {
		return nil, apperr.InvalidInput("module", "is required")
	}
	if in.Code == "" {
		return nil, apperr.InvalidInput("code", "is required")
	}
	if len(in.Steps) == 0 {
		return nil, apperr.InvalidInput("steps", "at least one step is required")
	}

	// At most one active definition may exist per (module, code, region).
	existing, err := s.catalog.FindActive(ctx, in.Module, in.Code, in.RegionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("an active workflow already exists for this module, code and region")
	}

	steps := make([]*repository.WorkflowStep, 0, len(in.Steps))
	lastOrder := 0
	for _, def := range in.Steps {
		if def.StepOrder <= lastOrder {
			return nil, apperr.InvalidInput("steps", "step_order must be strictly increasing and start at 1 or above")
		}
		lastOrder = def.StepOrder

		switch def.ApproverRule {
		case repository.RuleRole:
			if def.ApproverRoleCode == "" {
				return nil, apperr.InvalidInput("steps", "ROLE steps require approver_role_code")
			}
		case repository.RuleUser:
			if def.ApproverUserID == nil {
				return nil, apperr.InvalidInput("steps", "USER steps require approver_user_id")
			}
		default:
			return nil, apperr.InvalidInput("steps", "approver_rule must be ROLE or USER")
		}

		steps = append(steps, &repository.WorkflowStep{
			StepOrder:        def.StepOrder,
			ApproverRule:     def.ApproverRule,
			ApproverRoleCode: def.ApproverRoleCode,
			ApproverUserID:   def.ApproverUserID,
			Required:         def.Required,
		})
	}

	wf := &repository.WorkflowDefinition{
		Module:   in.Module,
		Code:     in.Code,
		Name:     in.Name,
		RegionID: in.RegionID,
		IsActive: true,
		Steps:    steps,
	}
	if err := s.catalog.Create(ctx, wf); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("workflow_id", wf.ID).
		Str("module", wf.Module).
		Str("code", wf.Code).
		Int("steps", len(wf.Steps)).
		Msg("Workflow definition created")

	return wf, nil
}

// GetWorkflow retrieves a definition with its steps.
func (s *WorkflowService) GetWorkflow(ctx context.Context, id string) (*repository.WorkflowDefinition, error) {
	return s.catalog.GetByID(ctx, id)
}

// ListWorkflows returns all definitions for a module.
func (s *WorkflowService) ListWorkflows(ctx context.Context, module string) ([]*repository.WorkflowDefinition, error) {
	if module == "" {
		return nil, apperr.InvalidInput("module", "is required")
	}
	return s.catalog.ListByModule(ctx, module)
}
