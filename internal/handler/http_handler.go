package handler

import (
	"encoding/json"
	"net/http"

	"github.com/geahr/be-hr-approvals/internal/platform/apperr"
	"github.com/geahr/be-hr-approvals/internal/platform/auth"
	"github.com/geahr/be-hr-approvals/internal/platform/logger"
	"github.com/geahr/be-hr-approvals/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	approvals *service.ApprovalService
	leave     *service.LeaveService
	workflows *service.WorkflowService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	approvals *service.ApprovalService,
	leave *service.LeaveService,
	workflows *service.WorkflowService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		approvals: approvals,
		leave:     leave,
		workflows: workflows,
		log:       log,
	}
}

// ── Approvals ─────────────────────────────────────────────────────────────────

// ListApprovals handles list approval requests, filterable by status and module.
func (h *HTTPHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.actor(w, r); !ok {
		return
	}

	status := optionalQuery(r, "status")
	module := optionalQuery(r, "module")

	approvals, err := h.approvals.List(r.Context(), status, module)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"approvals": approvals})
}

// GetApproval handles get approval HTTP requests.
func (h *HTTPHandler) GetApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.actor(w, r); !ok {
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Approval ID is required", http.StatusBadRequest)
		return
	}

	approval, err := h.approvals.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, approval)
}

// Inbox returns the pending approvals the authenticated user may act on.
func (h *HTTPHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	approvals, err := h.approvals.Inbox(r.Context(), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"approvals": approvals})
}

// ApprovalHistory returns the action trail of an approval request.
func (h *HTTPHandler) ApprovalHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.actor(w, r); !ok {
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Approval ID is required", http.StatusBadRequest)
		return
	}

	actions, err := h.approvals.History(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

// Act applies APPROVE / REJECT / RETURN to an approval request on behalf of
// the authenticated user.
func (h *HTTPHandler) Act(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		ID      string `json:"id"`
		Action  string `json:"action"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "Approval ID is required", http.StatusBadRequest)
		return
	}

	updated, err := h.leave.ActOnApproval(r.Context(), req.ID, actor, req.Action, req.Comment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

// ── Leave ─────────────────────────────────────────────────────────────────────

// CreateLeave handles create leave request HTTP requests.
func (h *HTTPHandler) CreateLeave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.actor(w, r); !ok {
		return
	}

	var req service.CreateLeaveInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	lr, err := h.leave.CreateLeave(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, lr)
}

// GetLeave handles get leave request HTTP requests.
func (h *HTTPHandler) GetLeave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.actor(w, r); !ok {
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Leave request ID is required", http.StatusBadRequest)
		return
	}

	lr, err := h.leave.GetLeave(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lr)
}

// ListLeave handles list leave requests HTTP requests.
func (h *HTTPHandler) ListLeave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.actor(w, r); !ok {
		return
	}

	employeeID := optionalQuery(r, "employee_id")
	status := optionalQuery(r, "status")

	leaves, err := h.leave.ListLeave(r.Context(), employeeID, status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"leave_requests": leaves})
}

// SubmitLeave moves a DRAFT leave into the approval workflow.
func (h *HTTPHandler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "Leave request ID is required", http.StatusBadRequest)
		return
	}

	result, err := h.leave.Submit(r.Context(), req.ID, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ── Workflow administration ───────────────────────────────────────────────────

// CreateWorkflow handles create workflow definition HTTP requests.
func (h *HTTPHandler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}

	var req service.CreateWorkflowInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	wf, err := h.workflows.CreateWorkflow(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, wf)
}

// ListWorkflows handles list workflow definitions HTTP requests.
func (h *HTTPHandler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}

	module := r.URL.Query().Get("module")
	defs, err := h.workflows.ListWorkflows(r.Context(), module)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"workflows": defs})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// actor extracts the authenticated user id, writing a 401 when absent.
func (h *HTTPHandler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	uc, err := auth.GetUserContext(r.Context())
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return "", false
	}
	return uc.UserID, true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps a coded error onto its HTTP status.
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": apperr.MessageOf(err)})
}

func optionalQuery(r *http.Request, key string) *string {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	return &v
}
