package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"north-backend/application/decomposition"
	"north-backend/application/refinement"
	"north-backend/domain/proposal"
	"north-backend/domain/tree"
	apperrors "north-backend/pkg/errors"
)

// ProposalHandler runs the model-backed engines and applies their proposals.
type ProposalHandler struct {
	base
	decomposer *decomposition.Engine
	refiner    *refinement.Engine
}

// NewProposalHandler creates a new proposal handler
func NewProposalHandler(
	decomposer *decomposition.Engine,
	refiner *refinement.Engine,
	errs *apperrors.ErrorHandler,
	logger *zap.Logger,
) *ProposalHandler {
	return &ProposalHandler{
		base:       base{errors: errs, logger: logger},
		decomposer: decomposer,
		refiner:    refiner,
	}
}

// DecomposeRequest asks for a decomposition of the goal.
type DecomposeRequest struct {
	ID       string           `json:"id" validate:"required"`
	Type     tree.ElementType `json:"type" validate:"required"`
	MaxItems int              `json:"maxItems" validate:"max=20"`
}

// ApplyDecompositionRequest carries an accepted, possibly edited, proposal.
type ApplyDecompositionRequest struct {
	ID       string                  `json:"id" validate:"required"`
	Proposal *proposal.Decomposition `json:"proposal" validate:"required"`
}

// SuggestRefineRequest asks for a rewrite of one element.
type SuggestRefineRequest struct {
	ID          string           `json:"id" validate:"required"`
	Type        tree.ElementType `json:"type" validate:"required,oneof=goal ideal"`
	Instruction string           `json:"instruction"`
}

// ApplyRefineRequest carries the accepted refinement. NewContent is either
// a plain string (the new content) or an object of field values.
type ApplyRefineRequest struct {
	ID         string           `json:"id" validate:"required"`
	Type       tree.ElementType `json:"type" validate:"required,oneof=goal ideal"`
	NewContent json.RawMessage  `json:"newContent"`
}

// Patch decodes NewContent.
func (r *ApplyRefineRequest) Patch() (refinement.Patch, error) {
	var patch refinement.Patch
	raw := bytes.TrimSpace(r.NewContent)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return patch, nil
	}
	if raw[0] == '"' {
		err := json.Unmarshal(raw, &patch.Content)
		return patch, err
	}
	err := json.Unmarshal(raw, &patch)
	return patch, err
}

// Decompose handles POST /decompose. Element types other than goal answer
// null.
func (h *ProposalHandler) Decompose(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req DecomposeRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.decomposer.Decompose(r.Context(), uid, req.ID, req.Type, req.MaxItems)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if result == nil {
		h.respondJSON(w, http.StatusOK, nil)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// ApplyDecomposition handles POST /apply-decomposition
func (h *ProposalHandler) ApplyDecomposition(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req ApplyDecompositionRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.decomposer.Apply(r.Context(), uid, req.ID, req.Proposal)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, t)
}

// SuggestRefine handles POST /suggest-refine
func (h *ProposalHandler) SuggestRefine(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req SuggestRefineRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.refiner.Suggest(r.Context(), uid, req.ID, req.Type, req.Instruction)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// ApplyRefine handles POST /apply-refine
func (h *ProposalHandler) ApplyRefine(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req ApplyRefineRequest
	if !h.decode(w, r, &req) {
		return
	}
	patch, err := req.Patch()
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusBadRequest, "Invalid newContent: "+err.Error())
		return
	}
	t, err := h.refiner.Apply(r.Context(), uid, req.ID, req.Type, patch)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, t)
}
