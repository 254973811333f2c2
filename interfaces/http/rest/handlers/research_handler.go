package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"north-backend/application/research"
	"north-backend/domain/tree"
	apperrors "north-backend/pkg/errors"
)

// ResearchHandler serves the research routes.
type ResearchHandler struct {
	base
	research *research.Service
}

// NewResearchHandler creates a new research handler
func NewResearchHandler(svc *research.Service, errs *apperrors.ErrorHandler, logger *zap.Logger) *ResearchHandler {
	return &ResearchHandler{
		base:     base{errors: errs, logger: logger},
		research: svc,
	}
}

// SpecRequest is the source and keywords to search with. Sources outside
// the known set are searched as site domains.
type SpecRequest struct {
	Source   tree.Source `json:"source" validate:"required,max=100"`
	Keywords []string    `json:"keywords" validate:"max=10,dive,max=200"`
}

func (s SpecRequest) spec() tree.ResearchSpec {
	return tree.ResearchSpec{Source: s.Source, Keywords: s.Keywords}
}

// CandidatesRequest asks for search candidates.
type CandidatesRequest struct {
	Spec SpecRequest `json:"spec"`
}

// ExecuteRequest summarizes one page for an ideal state.
type ExecuteRequest struct {
	NodeID string `json:"nodeId"`
	URL    string `json:"url" validate:"required,url"`
}

// AutoRequest stores the top candidates on an ideal state.
type AutoRequest struct {
	NodeID string      `json:"nodeId" validate:"required"`
	Spec   SpecRequest `json:"spec"`
}

// ManualRequest stores user-supplied results on an ideal state.
type ManualRequest struct {
	NodeID   string                  `json:"nodeId" validate:"required"`
	Source   string                  `json:"source"`
	Keywords []string                `json:"keywords"`
	Results  []tree.SearchResultItem `json:"results"`
}

// DeleteResearchRequest removes one stored result.
type DeleteResearchRequest struct {
	NodeID     string `json:"nodeId" validate:"required"`
	ResearchID string `json:"researchId" validate:"required"`
}

// Candidates handles POST /research/candidates
func (h *ResearchHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	var req CandidatesRequest
	if !h.decode(w, r, &req) {
		return
	}
	results := h.research.Candidates(r.Context(), req.Spec.spec())
	h.respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Execute handles POST /research/execute. Fetch and summary failures are
// reported inside the summary text.
func (h *ResearchHandler) Execute(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req ExecuteRequest
	if !h.decode(w, r, &req) {
		return
	}
	summary, err := h.research.Execute(r.Context(), uid, req.NodeID, req.URL)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

// Auto handles POST /research/auto
func (h *ResearchHandler) Auto(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req AutoRequest
	if !h.decode(w, r, &req) {
		return
	}
	results, err := h.research.Auto(r.Context(), uid, req.NodeID, req.Spec.spec())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if len(results) == 0 {
		h.respondJSON(w, http.StatusOK, map[string]any{"count": 0, "message": "No candidates found"})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"count": len(results), "results": results})
}

// Manual handles POST /research/manual
func (h *ResearchHandler) Manual(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req ManualRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.research.Manual(r.Context(), uid, req.NodeID, req.Source, req.Keywords, req.Results)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// Delete handles DELETE /research
func (h *ResearchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req DeleteResearchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.research.Delete(r.Context(), uid, req.NodeID, req.ResearchID); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
