// Package refinement rewords a goal or ideal state from a free-text user
// instruction and applies accepted rewrites.
package refinement

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"north-backend/application/ports"
	"north-backend/application/proposals"
	"north-backend/domain/proposal"
	"north-backend/domain/tree"
	"north-backend/pkg/observability"
)

// DefaultLanguage is the language refinement reasons are written in.
const DefaultLanguage = "Japanese"

// ErrUnusableOutput is returned when the model reply has no refinement in it.
var ErrUnusableOutput = errors.New("model returned no usable refinement")

// Engine runs refinements.
type Engine struct {
	store     ports.TreeStore
	completer ports.Completer
	tracker   *proposals.Tracker
	language  string
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewEngine creates a refinement engine.
func NewEngine(
	store ports.TreeStore,
	completer ports.Completer,
	tracker *proposals.Tracker,
	language string,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Engine {
	if language == "" {
		language = DefaultLanguage
	}
	return &Engine{
		store:     store,
		completer: completer,
		tracker:   tracker,
		language:  language,
		metrics:   metrics,
		logger:    logger,
	}
}

// Suggest asks the model to rewrite the element following instruction. Ideal
// states get a *proposal.HolisticRefinement, goals a
// *proposal.LegacyRefinement. Any failure after the element is marked
// processing marks it failed and is returned.
func (e *Engine) Suggest(ctx context.Context, userID, elementID string, elementType tree.ElementType, instruction string) (proposal.Payload, error) {
	t, err := e.store.ActiveTree(ctx, userID)
	if err != nil {
		return nil, err
	}

	var (
		prompt string
		parse  func(any) proposal.Payload
	)
	switch elementType {
	case tree.ElementIdeal:
		ideal := t.FindIdeal(elementID)
		if ideal == nil {
			return nil, fmt.Errorf("ideal state %s: %w", elementID, tree.ErrElementNotFound)
		}
		prompt = idealPrompt(ideal, instruction, e.language)
		parse = func(raw any) proposal.Payload {
			if h := proposal.ParseHolisticRefinement(raw); h != nil {
				return h
			}
			return nil
		}
	case tree.ElementGoal:
		if t.Goal.ID != elementID {
			return nil, fmt.Errorf("goal %s: %w", elementID, tree.ErrElementNotFound)
		}
		prompt = goalPrompt(&t.Goal, instruction, e.language)
		parse = func(raw any) proposal.Payload {
			if l := proposal.ParseLegacyRefinement(raw); l != nil {
				return l
			}
			return nil
		}
	default:
		return nil, fmt.Errorf("%w: %s", tree.ErrUnsupportedTarget, elementType)
	}

	target := proposals.Target{
		UserID:    userID,
		TreeID:    t.ID,
		ElementID: elementID,
		Kind:      proposal.KindRefinement,
	}
	// Detached so the suggestion is stored even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	if err := e.tracker.Begin(ctx, target); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "refinement.run",
		attribute.String("refinement.element_type", string(elementType)),
	)
	payload, err := e.complete(ctx, prompt, parse)
	observability.EndSpan(span, err)

	if err != nil {
		e.logger.Error("Refinement failed",
			zap.String("userID", userID),
			zap.String("elementID", elementID),
			zap.Error(err),
		)
		e.metrics.RecordEngineRun("refinement", "error")
		if ferr := e.tracker.Fail(ctx, target); ferr != nil {
			e.logger.Error("Failed to mark refinement failed", zap.Error(ferr))
		}
		return nil, err
	}

	if err := e.tracker.Complete(ctx, target, payload); err != nil {
		e.metrics.RecordEngineRun("refinement", "error")
		if ferr := e.tracker.Fail(ctx, target); ferr != nil {
			e.logger.Error("Failed to mark refinement failed", zap.Error(ferr))
		}
		return nil, err
	}
	e.metrics.RecordEngineRun("refinement", "success")
	return payload, nil
}

func (e *Engine) complete(ctx context.Context, prompt string, parse func(any) proposal.Payload) (proposal.Payload, error) {
	raw, err := e.completer.CompleteJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}
	payload := parse(raw)
	if payload == nil {
		return nil, ErrUnusableOutput
	}
	return payload, nil
}

// Patch is an accepted refinement. Empty fields are left unchanged.
type Patch struct {
	Content      string `json:"content,omitempty"`
	Condition    string `json:"condition,omitempty"`
	CurrentState string `json:"currentState,omitempty"`
}

// Apply writes patch onto the element and clears its pending proposal.
// Missing current state or condition nodes are created with fresh ids.
func (e *Engine) Apply(ctx context.Context, userID, elementID string, elementType tree.ElementType, patch Patch) (*tree.Tree, error) {
	t, err := e.store.ActiveTree(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch elementType {
	case tree.ElementGoal:
		if t.Goal.ID != elementID {
			return nil, fmt.Errorf("goal %s: %w", elementID, tree.ErrElementNotFound)
		}
		if patch.Content != "" {
			t.Goal.Content = patch.Content
		}
		t.Goal.PendingProposal = nil
	case tree.ElementIdeal:
		ideal := t.FindIdeal(elementID)
		if ideal == nil {
			return nil, fmt.Errorf("ideal state %s: %w", elementID, tree.ErrElementNotFound)
		}
		if patch.Content != "" {
			ideal.Content = patch.Content
		}
		if patch.Condition != "" {
			tree.SetText(&ideal.Condition, patch.Condition)
		}
		if patch.CurrentState != "" {
			tree.SetText(&ideal.CurrentState, patch.CurrentState)
		}
		ideal.PendingProposal = nil
	default:
		return nil, fmt.Errorf("%w: %s", tree.ErrUnsupportedTarget, elementType)
	}

	if err := e.store.SaveTree(ctx, userID, t); err != nil {
		return nil, err
	}
	return t, nil
}
