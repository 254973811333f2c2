// Package limits enforces per-user daily caps on model-backed actions.
package limits

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"north-backend/application/ports"
	apperrors "north-backend/pkg/errors"
	"north-backend/pkg/observability"
	"north-backend/pkg/utils"
)

// Action is a rate-limited operation kind.
type Action string

const (
	ActionDecompose Action = "decompose"
	ActionRefine    Action = "refine"
	ActionResearch  Action = "research"
)

// Caps holds the daily allowance per action.
type Caps struct {
	Decompose int `json:"decompose" yaml:"decompose"`
	Refine    int `json:"refine" yaml:"refine"`
	Research  int `json:"research" yaml:"research"`
}

// For returns the cap for action.
func (c Caps) For(action Action) int {
	switch action {
	case ActionDecompose:
		return c.Decompose
	case ActionRefine:
		return c.Refine
	case ActionResearch:
		return c.Research
	default:
		return 0
	}
}

// CapsSource supplies the current caps. Implementations may change their
// answer at runtime.
type CapsSource interface {
	Caps() Caps
}

// StaticCaps is a CapsSource that never changes.
type StaticCaps Caps

// Caps implements CapsSource.
func (s StaticCaps) Caps() Caps { return Caps(s) }

// Usage is a user's consumption for the current UTC day.
type Usage struct {
	Decompose int  `json:"decompose"`
	Refine    int  `json:"refine"`
	Research  int  `json:"research"`
	Limits    Caps `json:"limits"`
}

// Service checks and records daily usage.
type Service struct {
	store   ports.UsageStore
	caps    CapsSource
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a limits service.
func NewService(store ports.UsageStore, caps CapsSource, metrics *observability.Metrics, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		caps:    caps,
		metrics: metrics,
		logger:  logger,
		now:     utils.NowUTC,
	}
}

// Consume records one use of action, or returns a DAILY_LIMIT_EXCEEDED
// error once the day's cap is reached.
func (s *Service) Consume(ctx context.Context, userID string, action Action) error {
	limit := s.caps.Caps().For(action)
	day := utils.DayKey(s.now())

	ok, err := s.store.Increment(ctx, userID, day, string(action), limit)
	if err != nil {
		return fmt.Errorf("failed to record %s usage: %w", action, err)
	}
	if !ok {
		s.metrics.RecordQuotaRejection(string(action))
		s.logger.Info("Daily limit reached",
			zap.String("userID", userID),
			zap.String("action", string(action)),
			zap.Int("limit", limit),
		)
		return apperrors.NewDailyLimitError(string(action), limit)
	}
	return nil
}

// Usage returns today's counters; actions never used today read as zero.
func (s *Service) Usage(ctx context.Context, userID string) (*Usage, error) {
	counts, err := s.store.Usage(ctx, userID, utils.DayKey(s.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}
	return &Usage{
		Decompose: counts[string(ActionDecompose)],
		Refine:    counts[string(ActionRefine)],
		Research:  counts[string(ActionResearch)],
		Limits:    s.caps.Caps(),
	}, nil
}
