// Package providers holds the concrete model backends used by the
// completion client.
package providers

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"north-backend/infrastructure/llm"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini calls the Gemini API through the genai SDK. The SDK client is
// created on first use so that a missing key only fails the calls that
// need it.
type Gemini struct {
	apiKey string
	model  string

	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGemini creates a Gemini provider.
func NewGemini(apiKey, model string) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{apiKey: apiKey, model: model}
}

// Name returns the provider name.
func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) init(ctx context.Context) error {
	g.once.Do(func() {
		if g.apiKey == "" {
			g.initErr = fmt.Errorf("gemini: API key not configured")
			return
		}
		g.client, g.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return g.initErr
}

// Generate sends one prompt and returns the concatenated text parts.
func (g *Gemini) Generate(ctx context.Context, req llm.Request) (string, error) {
	if err := g.init(ctx); err != nil {
		return "", err
	}

	var cfg *genai.GenerateContentConfig
	if req.JSON {
		cfg = &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		if status := llm.StatusFromMessage(err.Error()); status != 0 {
			return "", &llm.StatusError{Provider: g.Name(), StatusCode: status, Message: err.Error()}
		}
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}
