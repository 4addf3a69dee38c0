package repository

import "time"

// ── Domain types for the approval workflow engine ────────────────────────────

// Approver rules. A ROLE step accepts any holder of the role code; a USER
// step accepts exactly the designated user.
const (
	RuleRole = "ROLE"
	RuleUser = "USER"
)

// Approval request statuses. PENDING is the only non-terminal status.
const (
	ApprovalStatusPending  = "PENDING"
	ApprovalStatusApproved = "APPROVED"
	ApprovalStatusRejected = "REJECTED"
	ApprovalStatusReturned = "RETURNED"
)

// Action kinds recorded on approval_actions.
const (
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
	ActionReturn  = "RETURN"
)

// WorkflowDefinition is an approval chain for a (module, code, region) key.
// region_id NULL means the global/default definition; at most one active
// definition exists per key. Steps are loaded ordered by step_order.
type WorkflowDefinition struct {
	ID        string
	Module    string // leave, exit, performance
	Code      string // leave_senior, leave_supervisor, leave_junior_regional
	Name      string
	RegionID  *string
	IsActive  bool
	Steps     []*WorkflowStep
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WorkflowStep is one ordered step of a workflow definition.
type WorkflowStep struct {
	ID               string
	WorkflowID       string
	StepOrder        int
	ApproverRule     string // ROLE | USER
	ApproverRoleCode string // set for ROLE steps
	ApproverUserID   *string
	Required         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ApprovalRequest tracks one in-flight business request through its workflow.
// The workflow is re-resolved by (module, request_type, region) on every
// action rather than stored as a foreign key.
type ApprovalRequest struct {
	ID               string
	Module           string
	RequestType      string // workflow code
	RequestRefID     string // originating business entity
	RegionID         *string
	CreatedBy        *string
	AssignedToUser   *string // strict assignment: if set, only this user may act
	Status           string
	CurrentStepOrder int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ApprovalAction is one immutable record of an action taken on a request.
type ApprovalAction struct {
	ID        string
	RequestID string
	StepOrder int
	ActorID   *string
	Action    string // APPROVE | REJECT | RETURN
	Comment   string
	CreatedAt time.Time
}
