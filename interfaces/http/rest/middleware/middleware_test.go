package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"north-backend/application/limits"
	"north-backend/infrastructure/persistence/memory"
	"north-backend/pkg/auth"
	apperrors "north-backend/pkg/errors"
)

func echoUser(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_, _ = w.Write([]byte(user.UserID))
}

func emulatorToken(t *testing.T, uid string) string {
	t.Helper()
	claims := jwt.MapClaims{"user_id": uid}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("anything"))
	require.NoError(t, err)
	return token
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate_Emulator(t *testing.T) {
	// Arrange
	cfg := AuthConfig{Emulator: true, Errors: apperrors.NewErrorHandler(zap.NewNop(), false), Logger: zap.NewNop()}
	h := Authenticate(cfg)(http.HandlerFunc(echoUser))

	// Act
	rec := serve(h, emulatorToken(t, "emu-user"))

	// Assert
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "emu-user", rec.Body.String())
}

func TestAuthenticate_NoValidatorRejects(t *testing.T) {
	cfg := AuthConfig{Errors: apperrors.NewErrorHandler(zap.NewNop(), false), Logger: zap.NewNop()}
	h := Authenticate(cfg)(http.HandlerFunc(echoUser))

	assert.Equal(t, http.StatusUnauthorized, serve(h, emulatorToken(t, "u")).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
}

func TestAuthenticate_BurstLimit(t *testing.T) {
	cfg := AuthConfig{
		Emulator: true,
		Limiter:  auth.NewSlidingWindowLimiter(1, time.Minute),
		Errors:   apperrors.NewErrorHandler(zap.NewNop(), false),
		Logger:   zap.NewNop(),
	}
	h := Authenticate(cfg)(http.HandlerFunc(echoUser))
	token := emulatorToken(t, "u1")

	assert.Equal(t, http.StatusOK, serve(h, token).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, token).Code)
}

func TestQuota(t *testing.T) {
	// Arrange
	logger := zap.NewNop()
	svc := limits.NewService(memory.NewUsageStore(), limits.StaticCaps{Research: 1}, nil, logger)
	errs := apperrors.NewErrorHandler(logger, false)
	h := Quota(svc, limits.ActionResearch, errs)(http.HandlerFunc(echoUser))
	call := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/research/execute", nil)
		req = req.WithContext(auth.SetUserInContext(context.Background(), &auth.UserContext{UserID: "u1"}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	// Act
	first := call()
	second := call()

	// Assert
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), apperrors.CodeDailyLimitExceeded)
}
