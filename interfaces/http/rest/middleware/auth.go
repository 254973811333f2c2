package middleware

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"north-backend/pkg/auth"
	apperrors "north-backend/pkg/errors"
)

// AuthConfig configures Authenticate.
type AuthConfig struct {
	// Validator checks token signatures. It may be nil only in emulator mode.
	Validator *auth.JWTValidator
	// Emulator accepts unsigned tokens from the local auth emulator.
	Emulator bool
	// Limiter bounds request bursts per user; nil disables it.
	Limiter auth.RateLimiter
	Errors  *apperrors.ErrorHandler
	Logger  *zap.Logger
}

// Authenticate requires a bearer token and puts the caller into the request
// context.
func Authenticate(cfg AuthConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				cfg.Errors.Handle(w, r, apperrors.NewUnauthorizedError("Unauthorized"))
				return
			}

			claims, err := validate(cfg, token)
			if err != nil {
				cfg.Logger.Warn("Invalid token",
					zap.Error(err),
					zap.String("ip", r.RemoteAddr),
					zap.String("path", r.URL.Path),
				)
				switch {
				case errors.Is(err, auth.ErrExpiredToken):
					cfg.Errors.Handle(w, r, apperrors.NewUnauthorizedError("Token has expired"))
				default:
					cfg.Errors.Handle(w, r, apperrors.NewUnauthorizedError("Invalid token"))
				}
				return
			}

			if cfg.Limiter != nil {
				allowed, err := cfg.Limiter.Allow(r.Context(), claims.UserID())
				if err != nil {
					cfg.Errors.Handle(w, r, err)
					return
				}
				if !allowed {
					cfg.Errors.HandleStatus(w, r, http.StatusTooManyRequests, "User rate limit exceeded")
					return
				}
			}

			ctx := auth.SetUserInContext(r.Context(), &auth.UserContext{
				UserID: claims.UserID(),
				Email:  claims.Email,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validate(cfg AuthConfig, token string) (*auth.Claims, error) {
	if cfg.Emulator {
		return auth.ParseUnverified(token)
	}
	if cfg.Validator == nil {
		return nil, errors.New("no token validator configured")
	}
	return cfg.Validator.ValidateToken(token)
}

// extractToken returns the bearer token of the Authorization header.
func extractToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
