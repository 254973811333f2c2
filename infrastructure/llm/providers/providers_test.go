package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"north-backend/infrastructure/llm"
)

func TestAnthropic_Generate(t *testing.T) {
	// Arrange
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":" {\"a\":1} "}]}`))
	}))
	defer srv.Close()
	a := NewAnthropic("key", "", srv.URL)

	// Act
	text, err := a.Generate(context.Background(), llm.Request{Prompt: "hello", JSON: true})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, text)
	assert.Equal(t, DefaultAnthropicModel, got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.NotEmpty(t, got.System)
}

func TestAnthropic_StatusErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	_, err := NewAnthropic("key", "", srv.URL).Generate(context.Background(), llm.Request{Prompt: "x"})

	var se *llm.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.True(t, llm.IsTransient(err))
}

func TestAnthropic_MissingKey(t *testing.T) {
	_, err := NewAnthropic("", "", "").Generate(context.Background(), llm.Request{Prompt: "x"})

	assert.Error(t, err)
}

func TestGemini_MissingKeyFailsLazily(t *testing.T) {
	g := NewGemini("", "")

	_, err := g.Generate(context.Background(), llm.Request{Prompt: "x"})

	assert.Error(t, err)
	assert.Equal(t, DefaultGeminiModel, g.model)
}

func TestNew_SelectsProvider(t *testing.T) {
	assert.Equal(t, "gemini", New("gemini", "k", "", "").Name())
	assert.Equal(t, "anthropic", New("anthropic", "k", "", "").Name())
	assert.Equal(t, "mock", New("", "", "", "").Name())
}

func TestMock_ReturnsDecodableJSON(t *testing.T) {
	text, err := NewMock().Generate(context.Background(), llm.Request{Prompt: "decompose", JSON: true})
	require.NoError(t, err)

	v, err := llm.ExtractJSON(text)

	require.NoError(t, err)
	assert.Contains(t, v, "additions")
}
