package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"north-backend/application/limits"
	apperrors "north-backend/pkg/errors"
)

// LimitsHandler reports the caller's daily usage.
type LimitsHandler struct {
	base
	limits *limits.Service
}

// NewLimitsHandler creates a new limits handler
func NewLimitsHandler(svc *limits.Service, errs *apperrors.ErrorHandler, logger *zap.Logger) *LimitsHandler {
	return &LimitsHandler{
		base:   base{errors: errs, logger: logger},
		limits: svc,
	}
}

// Usage handles GET /user/limits
func (h *LimitsHandler) Usage(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	usage, err := h.limits.Usage(r.Context(), uid)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, usage)
}
