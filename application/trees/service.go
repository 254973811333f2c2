// Package trees implements the tree store: a user's index of trees, the
// active-tree pointer and element-level edits on the active tree.
package trees

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"north-backend/application/ports"
	"north-backend/domain/events"
	"north-backend/domain/tree"
	apperrors "north-backend/pkg/errors"
	"north-backend/pkg/utils"
)

// DefaultTreeName names trees created without one.
const DefaultTreeName = "New Goal"

// DefaultMaxTrees caps how many trees one user may hold.
const DefaultMaxTrees = 10

var errUnchanged = errors.New("unchanged")

// Service provides tree index and element operations for one user at a time.
type Service struct {
	repo      ports.TreeRepository
	publisher ports.EventPublisher
	maxTrees  int
	logger    *zap.Logger
	now       func() time.Time
}

var _ ports.TreeStore = (*Service)(nil)

// NewService creates a tree service. maxTrees <= 0 selects DefaultMaxTrees.
func NewService(repo ports.TreeRepository, publisher ports.EventPublisher, maxTrees int, logger *zap.Logger) *Service {
	if maxTrees <= 0 {
		maxTrees = DefaultMaxTrees
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		maxTrees:  maxTrees,
		logger:    logger,
		now:       utils.NowUTC,
	}
}

// ElementUpdate is a field-level edit of the goal or one ideal state. Nil
// pointers leave the field untouched.
type ElementUpdate struct {
	ID           string
	Type         tree.ElementType
	Content      *string
	Condition    *string
	CurrentState *string
	ResearchSpec *tree.ResearchSpec
}

// ListTrees returns the user's index, making the first tree active when no
// tree is.
func (s *Service) ListTrees(ctx context.Context, userID string) (*tree.Index, error) {
	idx, err := s.repo.GetIndex(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tree index: %w", err)
	}
	if idx.EnsureActive() {
		if err := s.repo.SaveIndex(ctx, userID, idx); err != nil {
			return nil, fmt.Errorf("failed to save tree index: %w", err)
		}
	}
	return idx, nil
}

// GetTree returns one of the user's trees by id.
func (s *Service) GetTree(ctx context.Context, userID, treeID string) (*tree.Tree, error) {
	t, err := s.repo.GetTree(ctx, userID, treeID)
	if err != nil {
		return nil, err
	}
	t.Normalize()
	return t, nil
}

// ActiveTree returns the tree the index points at. It returns
// tree.ErrTreeNotFound when the user has no active tree.
func (s *Service) ActiveTree(ctx context.Context, userID string) (*tree.Tree, error) {
	treeID, err := s.activeTreeID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.GetTree(ctx, userID, treeID)
}

func (s *Service) activeTreeID(ctx context.Context, userID string) (string, error) {
	idx, err := s.repo.GetIndex(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load tree index: %w", err)
	}
	if idx.ActiveTreeID == "" {
		return "", tree.ErrTreeNotFound
	}
	return idx.ActiveTreeID, nil
}

// SaveTree persists t and refreshes its index entry. A user without an
// active tree gets t as the active one.
func (s *Service) SaveTree(ctx context.Context, userID string, t *tree.Tree) error {
	t.Normalize()
	t.Touch(s.now())
	if err := s.repo.SaveTree(ctx, userID, t); err != nil {
		return fmt.Errorf("failed to save tree: %w", err)
	}
	return s.syncIndex(ctx, userID, t, false)
}

func (s *Service) syncIndex(ctx context.Context, userID string, t *tree.Tree, activate bool) error {
	idx, err := s.repo.GetIndex(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load tree index: %w", err)
	}
	idx.Upsert(t)
	if activate || idx.ActiveTreeID == "" {
		idx.ActiveTreeID = t.ID
	}
	if err := s.repo.SaveIndex(ctx, userID, idx); err != nil {
		return fmt.Errorf("failed to save tree index: %w", err)
	}
	return nil
}

// CreateTree starts a new tree whose goal text is name and makes it active.
func (s *Service) CreateTree(ctx context.Context, userID, name string) (*tree.Tree, error) {
	if name == "" {
		name = DefaultTreeName
	}

	idx, err := s.repo.GetIndex(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tree index: %w", err)
	}
	if len(idx.Trees) >= s.maxTrees {
		return nil, fmt.Errorf("%w: at most %d trees", tree.ErrTreeLimitReached, s.maxTrees)
	}

	t := tree.New(name, s.now())
	if err := s.repo.SaveTree(ctx, userID, t); err != nil {
		return nil, fmt.Errorf("failed to save tree: %w", err)
	}
	if err := s.syncIndex(ctx, userID, t, true); err != nil {
		return nil, err
	}

	s.logger.Info("Tree created",
		zap.String("userID", userID),
		zap.String("treeID", t.ID),
	)
	s.publish(ctx, events.NewTreeCreated(userID, t))
	return t, nil
}

// DeleteTree removes a tree. If it was active the first remaining tree
// becomes active.
func (s *Service) DeleteTree(ctx context.Context, userID, treeID string) (*tree.Index, error) {
	if err := s.repo.DeleteTree(ctx, userID, treeID); err != nil {
		return nil, fmt.Errorf("failed to delete tree: %w", err)
	}

	idx, err := s.repo.GetIndex(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tree index: %w", err)
	}
	idx.Remove(treeID)
	if err := s.repo.SaveIndex(ctx, userID, idx); err != nil {
		return nil, fmt.Errorf("failed to save tree index: %w", err)
	}

	s.publish(ctx, events.NewTreeDeleted(userID, treeID, s.now()))
	return idx, nil
}

// SetActiveTree points the index at treeID.
func (s *Service) SetActiveTree(ctx context.Context, userID, treeID string) (*tree.Index, error) {
	idx, err := s.repo.GetIndex(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tree index: %w", err)
	}
	if !idx.Contains(treeID) {
		return nil, tree.ErrTreeNotFound
	}
	idx.ActiveTreeID = treeID
	if err := s.repo.SaveIndex(ctx, userID, idx); err != nil {
		return nil, fmt.Errorf("failed to save tree index: %w", err)
	}
	return idx, nil
}

// UpdateGoal sets the active goal's text; the tree is renamed to match.
func (s *Service) UpdateGoal(ctx context.Context, userID, content string) (*tree.Tree, error) {
	t, err := s.ActiveTree(ctx, userID)
	if err != nil {
		return nil, err
	}
	t.Goal.Content = content
	t.Name = content
	if err := s.SaveTree(ctx, userID, t); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateElement applies a field-level edit to the active tree. Missing
// current state or condition nodes are created with fresh ids.
func (s *Service) UpdateElement(ctx context.Context, userID string, u ElementUpdate) (*tree.Tree, error) {
	t, err := s.ActiveTree(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch u.Type {
	case tree.ElementGoal:
		if u.Content != nil {
			t.Goal.Content = *u.Content
			t.Name = *u.Content
		}
	case tree.ElementIdeal:
		ideal := t.FindIdeal(u.ID)
		if ideal == nil {
			return nil, fmt.Errorf("ideal state %s: %w", u.ID, tree.ErrElementNotFound)
		}
		if u.Content != nil {
			ideal.Content = *u.Content
		}
		if u.Condition != nil {
			tree.SetText(&ideal.Condition, *u.Condition)
		}
		if u.CurrentState != nil {
			tree.SetText(&ideal.CurrentState, *u.CurrentState)
		}
		if u.ResearchSpec != nil {
			if !tree.IsKnownSource(string(u.ResearchSpec.Source)) {
				return nil, apperrors.NewValidationError(fmt.Sprintf("unknown research source %q", u.ResearchSpec.Source))
			}
			spec := *u.ResearchSpec
			ideal.ResearchSpec = &spec
		}
	default:
		return nil, fmt.Errorf("%w: %s", tree.ErrUnsupportedTarget, u.Type)
	}

	if err := s.SaveTree(ctx, userID, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteElement removes an ideal state from the active tree. Removing an id
// that is not present still saves the tree.
func (s *Service) DeleteElement(ctx context.Context, userID, elementID string, elementType tree.ElementType) (*tree.Tree, error) {
	if elementType != tree.ElementIdeal {
		return nil, fmt.Errorf("%w: %s", tree.ErrUnsupportedTarget, elementType)
	}
	t, err := s.ActiveTree(ctx, userID)
	if err != nil {
		return nil, err
	}
	t.RemoveIdeal(elementID)
	if err := s.SaveTree(ctx, userID, t); err != nil {
		return nil, err
	}
	return t, nil
}

// AddElement puts a new ideal state at the top of the active goal. Its
// current state and condition always exist, even when empty.
func (s *Service) AddElement(ctx context.Context, userID, content, condition, currentState string) (*tree.Tree, error) {
	t, err := s.ActiveTree(ctx, userID)
	if err != nil {
		return nil, err
	}

	ideal := tree.NewIdealState(content, "", "")
	tree.SetText(&ideal.CurrentState, currentState)
	tree.SetText(&ideal.Condition, condition)
	t.PrependIdeal(ideal)

	if err := s.SaveTree(ctx, userID, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Promote turns an ideal state into the goal of a new, active tree and
// returns the new tree's id. An empty treeID means the active tree.
func (s *Service) Promote(ctx context.Context, userID, idealID, treeID string) (string, error) {
	var (
		parent *tree.Tree
		err    error
	)
	if treeID == "" {
		parent, err = s.ActiveTree(ctx, userID)
	} else {
		parent, err = s.GetTree(ctx, userID, treeID)
	}
	if err != nil {
		return "", err
	}

	ideal := parent.FindIdeal(idealID)
	if ideal == nil {
		return "", fmt.Errorf("ideal state %s: %w", idealID, tree.ErrElementNotFound)
	}

	created, err := s.CreateTree(ctx, userID, ideal.Content)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// SetElementProposal replaces the proposal on one element inside a single
// transactional update of the tree.
func (s *Service) SetElementProposal(ctx context.Context, userID, treeID, elementID string, p *tree.ElementProposal) error {
	_, err := s.repo.UpdateTree(ctx, userID, treeID, func(t *tree.Tree) error {
		if err := t.SetProposal(elementID, p); err != nil {
			return err
		}
		t.Touch(s.now())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set proposal on %s: %w", elementID, err)
	}
	return nil
}

// AppendResearch adds a research result to an ideal state of the active tree
// without losing concurrent appends to the same list.
func (s *Service) AppendResearch(ctx context.Context, userID, idealID string, result tree.ResearchResult) (*tree.Tree, error) {
	treeID, err := s.activeTreeID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.UpdateTree(ctx, userID, treeID, func(t *tree.Tree) error {
		ideal := t.FindIdeal(idealID)
		if ideal == nil {
			return fmt.Errorf("ideal state %s: %w", idealID, tree.ErrElementNotFound)
		}
		ideal.ResearchResults = append(ideal.ResearchResults, result)
		t.Touch(s.now())
		return nil
	})
}

// DeleteResearch removes one research result. Unknown ideal or result ids
// are ignored.
func (s *Service) DeleteResearch(ctx context.Context, userID, idealID, researchID string) error {
	treeID, err := s.activeTreeID(ctx, userID)
	if err != nil {
		return err
	}
	_, err = s.repo.UpdateTree(ctx, userID, treeID, func(t *tree.Tree) error {
		ideal := t.FindIdeal(idealID)
		if ideal == nil {
			return errUnchanged
		}
		kept := ideal.ResearchResults[:0]
		for _, r := range ideal.ResearchResults {
			if r.ID != researchID {
				kept = append(kept, r)
			}
		}
		if len(kept) == len(ideal.ResearchResults) {
			return errUnchanged
		}
		ideal.ResearchResults = kept
		t.Touch(s.now())
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

func (s *Service) publish(ctx context.Context, event events.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("eventType", event.GetEventType()),
			zap.Error(err),
		)
	}
}
