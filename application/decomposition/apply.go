package decomposition

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"north-backend/domain/proposal"
	"north-backend/domain/tree"
)

// Apply writes an accepted decomposition onto the active tree and clears the
// goal's pending proposal. Modifications that reference unknown ideal states
// are skipped. Research hints naming an unknown source are dropped.
func (e *Engine) Apply(ctx context.Context, userID, goalID string, p *proposal.Decomposition) (*tree.Tree, error) {
	t, err := e.store.ActiveTree(ctx, userID)
	if err != nil {
		return nil, err
	}
	if t.Goal.ID != goalID {
		return nil, fmt.Errorf("goal %s: %w", goalID, tree.ErrGoalMismatch)
	}
	if p == nil {
		p = &proposal.Decomposition{}
	}

	t.Goal.PendingProposal = nil

	modified := 0
	for _, ev := range p.Existing {
		if ev.Action != proposal.ActionModify || ev.NewContent == nil || *ev.NewContent == "" {
			continue
		}
		if ideal := t.FindIdeal(ev.ID); ideal != nil {
			ideal.Content = *ev.NewContent
			modified++
		}
	}

	for _, add := range p.Additions {
		ideal := tree.NewIdealState(add.Ideal, add.Current, add.Condition)
		if add.Research != nil && tree.IsKnownSource(add.Research.Source) {
			keywords := add.Research.Keywords
			if keywords == nil {
				keywords = []string{}
			}
			ideal.ResearchSpec = &tree.ResearchSpec{
				Source:   tree.Source(add.Research.Source),
				Keywords: keywords,
			}
		}
		t.Goal.IdealStates = append(t.Goal.IdealStates, ideal)
	}

	if err := e.store.SaveTree(ctx, userID, t); err != nil {
		return nil, err
	}

	e.logger.Info("Decomposition applied",
		zap.String("userID", userID),
		zap.String("goalID", goalID),
		zap.Int("modified", modified),
		zap.Int("added", len(p.Additions)),
	)
	return t, nil
}
