package llm

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	apperrors "north-backend/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedProvider returns queued replies in order and records prompts.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	block   bool
}

type reply struct {
	text string
	err  error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(ctx context.Context, req Request) (string, error) {
	p.mu.Lock()
	p.calls++
	block := p.block
	var r reply
	if len(p.replies) > 0 {
		r = p.replies[0]
		p.replies = p.replies[1:]
	}
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return r.text, r.err
}

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestClient(p Provider, sleeps *[]time.Duration) *Client {
	cfg := DefaultConfig()
	cfg.Retry.Sleep = func(_ context.Context, d time.Duration) error {
		if sleeps != nil {
			*sleeps = append(*sleeps, d)
		}
		return nil
	}
	return NewClient(p, cfg, zap.NewNop(), nil)
}

func TestCompleteJSON_StripsFences(t *testing.T) {
	// Arrange
	p := &scriptedProvider{replies: []reply{{text: "```json\n{\"existing\":[]}\n```"}}}
	c := newTestClient(p, nil)

	// Act
	v, err := c.CompleteJSON(context.Background(), "prompt")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"existing": []any{}}, v)
}

func TestCompleteJSON_NonJSONYieldsNil(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{text: "I cannot help with that."}}}
	c := newTestClient(p, nil)

	v, err := c.CompleteJSON(context.Background(), "prompt")

	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestComplete_RetriesTransientWithBackoff(t *testing.T) {
	// Arrange
	busy := &StatusError{Provider: "scripted", StatusCode: http.StatusServiceUnavailable, Message: "overloaded"}
	p := &scriptedProvider{replies: []reply{{err: busy}, {err: busy}, {text: "ok"}}}
	var sleeps []time.Duration
	c := newTestClient(p, &sleeps)

	// Act
	text, err := c.CompleteText(context.Background(), "prompt")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, p.Calls())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps)
}

func TestComplete_QuotaAfterRetriesIsQuotaExceeded(t *testing.T) {
	// Arrange
	quota := &StatusError{Provider: "scripted", StatusCode: http.StatusTooManyRequests, Message: "Quota exceeded"}
	p := &scriptedProvider{replies: []reply{{err: quota}, {err: quota}, {err: quota}, {err: quota}}}
	c := newTestClient(p, nil)

	// Act
	_, err := c.CompleteText(context.Background(), "prompt")

	// Assert
	require.Error(t, err)
	assert.Equal(t, 4, p.Calls())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeQuotaExceeded))
	assert.Equal(t, http.StatusTooManyRequests, apperrors.GetAppError(err).HTTPStatus)
}

func TestComplete_NonTransientIsNotRetried(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{err: errors.New("invalid api key")}}}
	c := newTestClient(p, nil)

	_, err := c.CompleteText(context.Background(), "prompt")

	require.Error(t, err)
	assert.Equal(t, 1, p.Calls())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
}

func TestComplete_TimeoutIsNotRetried(t *testing.T) {
	// Arrange
	p := &scriptedProvider{block: true}
	c := newTestClient(p, nil)
	c.cfg.Timeout = 20 * time.Millisecond

	// Act
	_, err := c.CompleteText(context.Background(), "prompt")

	// Assert
	require.Error(t, err)
	assert.Equal(t, 1, p.Calls())
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTimeout))
}

func TestRetry_StopsWhenSleepFails(t *testing.T) {
	calls := 0
	policy := DefaultRetryPolicy()
	policy.Sleep = func(context.Context, time.Duration) error { return context.Canceled }

	_, err := Retry(context.Background(), policy, func(context.Context, int) (int, error) {
		calls++
		return 0, &StatusError{StatusCode: http.StatusTooManyRequests}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_DelayCapsAtMax(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 3 * time.Second}

	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 3*time.Second, p.Delay(2))
}

func TestDefaultConfig_ProductionBudget(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 300*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Retry.InitialDelay)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    any
		wantErr bool
	}{
		{"plain object", `{"a":1}`, map[string]any{"a": float64(1)}, false},
		{"fenced without tag", "```\n{\"a\":1}\n```", map[string]any{"a": float64(1)}, false},
		{"prose around object", `Here you go: {"a":1} hope it helps`, map[string]any{"a": float64(1)}, false},
		{"array", `[1,2]`, []any{float64(1), float64(2)}, false},
		{"no json", "nothing here", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotJSON)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusFromMessage(t *testing.T) {
	assert.Equal(t, 429, StatusFromMessage("Error 429, Message: Resource has been exhausted"))
	assert.Equal(t, 503, StatusFromMessage("Error 503, Message: The model is overloaded"))
	assert.Equal(t, 429, StatusFromMessage("rpc error: RESOURCE_EXHAUSTED"))
	assert.Equal(t, 0, StatusFromMessage("Error 400, Message: bad request"))
}
