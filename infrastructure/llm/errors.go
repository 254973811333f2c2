package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrTimeout is returned when a model call exceeds its wall-clock budget.
var ErrTimeout = errors.New("completion timed out")

// StatusError is a provider failure carrying the upstream HTTP status.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient reports whether err is a rate-limit or unavailability response
// that is worth retrying.
func IsTransient(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusTooManyRequests || se.StatusCode == http.StatusServiceUnavailable
}

// IsQuota reports whether err means the provider refused for quota reasons.
func IsQuota(err error) bool {
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Quota exceeded") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

// StatusFromMessage recovers an HTTP status from SDK error text of the form
// "Error 429, Message: ...". It returns 0 when none is found.
func StatusFromMessage(msg string) int {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		if strings.Contains(msg, fmt.Sprintf("Error %d", code)) || strings.Contains(msg, fmt.Sprintf("status %d", code)) {
			return code
		}
	}
	if strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return http.StatusTooManyRequests
	}
	if strings.Contains(msg, "UNAVAILABLE") {
		return http.StatusServiceUnavailable
	}
	return 0
}
