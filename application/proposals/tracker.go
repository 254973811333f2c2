// Package proposals records the lifecycle of engine runs on tree elements:
// processing while a run is outstanding, then completed or failed.
package proposals

import (
	"context"
	"time"

	"go.uber.org/zap"

	"north-backend/application/ports"
	"north-backend/domain/events"
	"north-backend/domain/proposal"
	"north-backend/domain/tree"
	"north-backend/pkg/observability"
	"north-backend/pkg/utils"
)

// failWriteTimeout bounds the failed-status write, which runs even after the
// request context is gone.
const failWriteTimeout = 10 * time.Second

// Target identifies the element a run reports on.
type Target struct {
	UserID    string
	TreeID    string
	ElementID string
	Kind      proposal.Kind
}

// Tracker writes proposal status transitions to the tree store.
type Tracker struct {
	store     ports.TreeStore
	publisher ports.EventPublisher
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewTracker creates a tracker.
func NewTracker(store ports.TreeStore, publisher ports.EventPublisher, metrics *observability.Metrics, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       utils.NowUTC,
	}
}

// Begin marks the element as processing.
func (t *Tracker) Begin(ctx context.Context, target Target) error {
	return t.set(ctx, target, tree.StatusProcessing, nil)
}

// Complete attaches data to the element with status completed.
func (t *Tracker) Complete(ctx context.Context, target Target, data proposal.Payload) error {
	return t.set(ctx, target, tree.StatusCompleted, data)
}

// Fail marks the element as failed. The write survives cancellation of ctx
// so an aborted request does not leave the element processing.
func (t *Tracker) Fail(ctx context.Context, target Target) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()
	return t.set(ctx, target, tree.StatusFailed, nil)
}

func (t *Tracker) set(ctx context.Context, target Target, status tree.ProposalStatus, data proposal.Payload) error {
	now := t.now()
	p := tree.NewElementProposal(target.Kind, status, data, now)
	if err := t.store.SetElementProposal(ctx, target.UserID, target.TreeID, target.ElementID, p); err != nil {
		t.logger.Error("Failed to write proposal status",
			zap.String("userID", target.UserID),
			zap.String("elementID", target.ElementID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return err
	}

	t.metrics.RecordProposalStatus(string(target.Kind), string(status))
	t.logger.Debug("Proposal status changed",
		zap.String("elementID", target.ElementID),
		zap.String("kind", string(target.Kind)),
		zap.String("status", string(status)),
	)

	if t.publisher != nil {
		event := events.NewProposalStatusChanged(target.UserID, target.TreeID, target.ElementID, target.Kind, status, now)
		if err := t.publisher.Publish(ctx, event); err != nil {
			t.logger.Warn("Failed to publish proposal event", zap.Error(err))
		}
	}
	return nil
}
