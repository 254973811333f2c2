package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"north-backend/application/trees"
	"north-backend/domain/tree"
	apperrors "north-backend/pkg/errors"
)

// TreeHandler serves the tree index, the active tree and element edits.
type TreeHandler struct {
	base
	trees *trees.Service
}

// NewTreeHandler creates a new tree handler
func NewTreeHandler(svc *trees.Service, errs *apperrors.ErrorHandler, logger *zap.Logger) *TreeHandler {
	return &TreeHandler{
		base:  base{errors: errs, logger: logger},
		trees: svc,
	}
}

// CreateTreeRequest represents the request body for creating a tree
type CreateTreeRequest struct {
	Name string `json:"name" validate:"max=500"`
}

// GoalRequest replaces the active tree's goal text.
type GoalRequest struct {
	Content string `json:"content" validate:"required"`
}

// ElementRequest edits one element. Absent fields are left unchanged.
type ElementRequest struct {
	ID           string             `json:"id" validate:"required"`
	Type         tree.ElementType   `json:"type" validate:"required,oneof=goal ideal"`
	Content      *string            `json:"content,omitempty"`
	Condition    *string            `json:"condition,omitempty"`
	CurrentState *string            `json:"currentState,omitempty"`
	ResearchSpec *tree.ResearchSpec `json:"researchSpec,omitempty"`
}

// ElementRef names one element.
type ElementRef struct {
	ID   string           `json:"id" validate:"required"`
	Type tree.ElementType `json:"type" validate:"required,oneof=goal ideal"`
}

// AddElementRequest adds an ideal state under the active goal.
type AddElementRequest struct {
	ParentID     string `json:"parentId"`
	Content      string `json:"content"`
	Condition    string `json:"condition"`
	CurrentState string `json:"currentState"`
}

// PromoteRequest turns an ideal state into a new tree.
type PromoteRequest struct {
	IdealID string `json:"idealId" validate:"required"`
	TreeID  string `json:"treeId"`
}

// ListTrees handles GET /trees
func (h *TreeHandler) ListTrees(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	idx, err := h.trees.ListTrees(r.Context(), uid)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, idx)
}

// CreateTree handles POST /trees
func (h *TreeHandler) CreateTree(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req CreateTreeRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.trees.CreateTree(r.Context(), uid, req.Name)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, t)
}

// DeleteTree handles DELETE /trees/{id}
func (h *TreeHandler) DeleteTree(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	idx, err := h.trees.DeleteTree(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, idx)
}

// ActivateTree handles PUT /trees/{id}/active
func (h *TreeHandler) ActivateTree(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	idx, err := h.trees.SetActiveTree(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, idx)
}

// GetActiveTree handles GET /tree. A user without trees gets null.
func (h *TreeHandler) GetActiveTree(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	t, err := h.trees.ActiveTree(r.Context(), uid)
	if errors.Is(err, tree.ErrTreeNotFound) {
		h.respondJSON(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, t)
}

// SaveTree handles POST /tree
func (h *TreeHandler) SaveTree(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var t tree.Tree
	if !h.decode(w, r, &t) {
		return
	}
	if t.ID == "" {
		h.errors.HandleStatus(w, r, http.StatusBadRequest, "Validation error: id is required")
		return
	}
	if err := h.trees.SaveTree(r.Context(), uid, &t); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, &t)
}

// UpdateGoal handles POST /goal
func (h *TreeHandler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req GoalRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.trees.UpdateGoal(r.Context(), uid, req.Content)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, t)
}

// UpdateElement handles PUT /element
func (h *TreeHandler) UpdateElement(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req ElementRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.trees.UpdateElement(r.Context(), uid, trees.ElementUpdate{
		ID:           req.ID,
		Type:         req.Type,
		Content:      req.Content,
		Condition:    req.Condition,
		CurrentState: req.CurrentState,
		ResearchSpec: req.ResearchSpec,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, t)
}

// DeleteElement handles DELETE /element
func (h *TreeHandler) DeleteElement(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req ElementRef
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.trees.DeleteElement(r.Context(), uid, req.ID, req.Type)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, t)
}

// AddElement handles POST /add-element. New ideal states always go under
// the active goal; parentId is accepted for compatibility.
func (h *TreeHandler) AddElement(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req AddElementRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.trees.AddElement(r.Context(), uid, req.Content, req.Condition, req.CurrentState)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, t)
}

// Promote handles POST /promote
func (h *TreeHandler) Promote(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req PromoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.trees.Promote(r.Context(), uid, req.IdealID, req.TreeID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.logger.Info("Ideal state promoted",
		zap.String("userID", uid),
		zap.String("idealID", req.IdealID),
		zap.String("treeID", id),
	)
	h.respondJSON(w, http.StatusOK, map[string]string{"id": id})
}
