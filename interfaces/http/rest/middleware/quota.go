package middleware

import (
	"net/http"

	"north-backend/application/limits"
	"north-backend/pkg/auth"
	apperrors "north-backend/pkg/errors"
)

// Quota consumes one daily use of action before the request is served.
// Requests over the cap get 429 with code DAILY_LIMIT_EXCEEDED.
func Quota(svc *limits.Service, action limits.Action, errs *apperrors.ErrorHandler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := auth.GetUserFromContext(r.Context())
			if err != nil {
				errs.HandleStatus(w, r, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if err := svc.Consume(r.Context(), user.UserID, action); err != nil {
				errs.Handle(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
