// Package decomposition breaks a goal into ideal states with a fixed number
// of model passes, and applies accepted proposals back onto the tree.
package decomposition

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"north-backend/application/ports"
	"north-backend/application/proposals"
	"north-backend/domain/proposal"
	"north-backend/domain/tree"
	"north-backend/pkg/observability"
)

const (
	// Passes is the number of model calls per decomposition run. Every pass
	// starts from the stored tree and the last usable one wins.
	Passes = 3

	// DefaultMaxItems is the ideal-state ceiling when the caller gives none.
	DefaultMaxItems = 5
)

// Engine runs goal decompositions.
type Engine struct {
	store     ports.TreeStore
	completer ports.Completer
	tracker   *proposals.Tracker
	language  string
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewEngine creates a decomposition engine. language is the natural
// language the model should answer in; empty leaves it to the model.
func NewEngine(
	store ports.TreeStore,
	completer ports.Completer,
	tracker *proposals.Tracker,
	language string,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		store:     store,
		completer: completer,
		tracker:   tracker,
		language:  language,
		metrics:   metrics,
		logger:    logger,
	}
}

// Decompose proposes keep/modify decisions for the goal's ideal states and
// new ideal states to add. It returns (nil, nil) when elementType is not a
// goal, when goalID is not the active tree's goal, or when no pass produced
// usable output. Model failures mark the goal failed and are returned.
func (e *Engine) Decompose(ctx context.Context, userID, goalID string, elementType tree.ElementType, maxItems int) (*proposal.Decomposition, error) {
	if elementType != tree.ElementGoal {
		e.logger.Info("Decomposition skipped for unsupported element type",
			zap.String("elementType", string(elementType)),
		)
		return nil, nil
	}
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}

	t, err := e.store.ActiveTree(ctx, userID)
	if err != nil {
		return nil, err
	}
	if t.Goal.ID != goalID {
		e.logger.Warn("Decomposition target is not the active goal",
			zap.String("userID", userID),
			zap.String("goalID", goalID),
		)
		return nil, nil
	}

	// The run outlives the request so a user who navigates away still gets
	// the result stored on the goal.
	ctx = context.WithoutCancel(ctx)
	ctx, span := observability.StartSpan(ctx, "decomposition.run",
		attribute.String("tree.id", t.ID),
		attribute.Int("decomposition.max_items", maxItems),
	)
	result, err := e.run(ctx, userID, t, maxItems)
	observability.EndSpan(span, err)
	return result, err
}

func (e *Engine) run(ctx context.Context, userID string, t *tree.Tree, maxItems int) (*proposal.Decomposition, error) {
	target := proposals.Target{
		UserID:    userID,
		TreeID:    t.ID,
		ElementID: t.Goal.ID,
		Kind:      proposal.KindDecomposition,
	}
	if err := e.tracker.Begin(ctx, target); err != nil {
		return nil, err
	}

	logger := e.logger.With(zap.String("userID", userID), zap.String("goalID", t.Goal.ID))
	logger.Info("Decomposition started", zap.Int("maxItems", maxItems))

	added := make(map[string]bool)
	var final *proposal.Decomposition

	for pass := 0; pass < Passes; pass++ {
		prompt := BuildPrompt(PromptInput{
			Goal:     &t.Goal,
			Added:    added,
			Slots:    SlotBudget(maxItems, len(t.Goal.IdealStates), len(added)),
			Pass:     pass,
			Language: e.language,
		})

		passCtx, span := observability.StartSpan(ctx, "decomposition.pass",
			attribute.String("decomposition.pass", strconv.Itoa(pass+1)),
		)
		raw, err := e.completer.CompleteJSON(passCtx, prompt)
		observability.EndSpan(span, err)

		if err != nil {
			logger.Error("Decomposition pass failed", zap.Int("pass", pass+1), zap.Error(err))
			e.metrics.RecordEngineRun("decomposition", "error")
			if ferr := e.tracker.Fail(ctx, target); ferr != nil {
				logger.Error("Failed to mark decomposition failed", zap.Error(ferr))
			}
			return nil, err
		}
		if raw == nil {
			logger.Warn("Decomposition pass returned no usable output", zap.Int("pass", pass+1))
			continue
		}

		final = proposal.ParseDecomposition(raw)
		logger.Debug("Decomposition pass parsed",
			zap.Int("pass", pass+1),
			zap.Int("existing", len(final.Existing)),
			zap.Int("additions", len(final.Additions)),
		)
	}

	if final == nil {
		logger.Warn("Decomposition produced no usable output")
		e.metrics.RecordEngineRun("decomposition", "empty")
		if err := e.tracker.Fail(ctx, target); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := e.tracker.Complete(ctx, target, final); err != nil {
		e.metrics.RecordEngineRun("decomposition", "error")
		if ferr := e.tracker.Fail(ctx, target); ferr != nil {
			logger.Error("Failed to mark decomposition failed", zap.Error(ferr))
		}
		return nil, err
	}
	e.metrics.RecordEngineRun("decomposition", "success")
	logger.Info("Decomposition completed",
		zap.Int("existing", len(final.Existing)),
		zap.Int("additions", len(final.Additions)),
	)
	return final, nil
}
