package providers

import (
	"context"
	"strings"

	"north-backend/infrastructure/llm"
)

// Mock answers without network access. JSON prompts get an empty
// decomposition; text prompts get a fixed summary. It backs local
// development when no API key is configured.
type Mock struct{}

// NewMock creates a mock provider.
func NewMock() *Mock { return &Mock{} }

// Name returns the provider name.
func (Mock) Name() string { return "mock" }

// Generate returns canned output shaped after the request.
func (Mock) Generate(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !req.JSON {
		return "Summary unavailable in offline mode.", nil
	}
	if strings.Contains(req.Prompt, "refinedIdealState") {
		return `{"refinedIdealState":"","refinedCurrentState":"","refinedCondition":"","reasonToKeep":"","reasonToChange":""}`, nil
	}
	return `{"existing":[],"additions":[]}`, nil
}

// New selects a provider by name. Unknown names fall back to the mock.
func New(name, apiKey, model, baseURL string) llm.Provider {
	switch name {
	case "gemini":
		return NewGemini(apiKey, model)
	case "anthropic":
		return NewAnthropic(apiKey, model, baseURL)
	default:
		return NewMock()
	}
}
