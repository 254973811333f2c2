// Package handlers holds the HTTP handlers of the REST API. Handlers decode
// and validate the request, call one application service and encode its
// result; error mapping is left to the shared ErrorHandler.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"north-backend/pkg/auth"
	apperrors "north-backend/pkg/errors"
	"north-backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// base carries what every handler needs to answer a request.
type base struct {
	errors *apperrors.ErrorHandler
	logger *zap.Logger
}

func (b *base) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		b.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// decode reads the JSON body into dst and validates it. On failure the 400
// response has already been written.
func (b *base) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		b.errors.HandleStatus(w, r, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		b.errors.HandleStatus(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return false
	}
	return true
}

// userID returns the authenticated caller, answering 401 when there is none.
func (b *base) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		b.errors.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return user.UserID, true
}
