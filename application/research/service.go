// Package research holds the research use cases: previewing candidates,
// summarizing a page, and attaching results to ideal states.
package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"north-backend/application/ports"
	"north-backend/domain/tree"
	apperrors "north-backend/pkg/errors"
)

const (
	// SummaryTitle titles the single item stored for an executed page.
	SummaryTitle = "Research Summary"
	// FallbackSource tags summaries of ideals without a research spec.
	FallbackSource = "web"
	// ManualSource tags user-supplied results that name no source.
	ManualSource = "manual"

	// AutoTopN is how many candidates an automatic search keeps.
	AutoTopN = 3
	// MaxManualItems caps user-supplied results per call.
	MaxManualItems = 5
)

// Store is the slice of tree persistence the research use cases need.
type Store interface {
	ActiveTree(ctx context.Context, userID string) (*tree.Tree, error)
	AppendResearch(ctx context.Context, userID, idealID string, result tree.ResearchResult) (*tree.Tree, error)
	DeleteResearch(ctx context.Context, userID, idealID, researchID string) error
}

// Service runs research operations against the active tree.
type Service struct {
	store      Store
	aggregator ports.ResearchAggregator
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a research service.
func NewService(store Store, aggregator ports.ResearchAggregator, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		aggregator: aggregator,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Candidates previews results for spec without persisting anything.
func (s *Service) Candidates(ctx context.Context, spec tree.ResearchSpec) []tree.SearchResultItem {
	return s.aggregator.Candidates(ctx, spec)
}

// Execute summarizes the page at url. When nodeID names an ideal in the
// active tree the summary is appended to it, tagged with the ideal's
// research spec. A failed load or summary is reported in the returned text
// and nothing is stored.
func (s *Service) Execute(ctx context.Context, userID, nodeID, url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", apperrors.NewValidationError("url is required")
	}

	summary, err := s.aggregator.Execute(ctx, url)
	if err != nil {
		s.logger.Warn("Research execution failed",
			zap.String("user_id", userID),
			zap.String("url", url),
			zap.Error(err))
		return fmt.Sprintf("Failed to execute research on %s. Error: %s", url, err.Error()), nil
	}

	t, err := s.store.ActiveTree(ctx, userID)
	if errors.Is(err, tree.ErrTreeNotFound) {
		return summary, nil
	}
	if err != nil {
		return "", err
	}
	ideal := t.FindIdeal(nodeID)
	if ideal == nil {
		return summary, nil
	}

	source, keywords := FallbackSource, []string{}
	if spec := ideal.ResearchSpec; spec != nil {
		if spec.Source != "" {
			source = string(spec.Source)
		}
		if spec.Keywords != nil {
			keywords = spec.Keywords
		}
	}

	result := tree.NewResearchResult(source, keywords, []tree.SearchResultItem{{
		Title:   SummaryTitle,
		URL:     url,
		Snippet: summary,
	}}, s.now())
	if _, err := s.store.AppendResearch(ctx, userID, nodeID, result); err != nil {
		if errors.Is(err, tree.ErrElementNotFound) {
			return summary, nil
		}
		return "", fmt.Errorf("save research summary: %w", err)
	}
	return summary, nil
}

// Auto searches spec and stores the top results on the ideal. It returns
// the stored items; an empty search stores nothing.
func (s *Service) Auto(ctx context.Context, userID, nodeID string, spec tree.ResearchSpec) ([]tree.SearchResultItem, error) {
	candidates := s.aggregator.Candidates(ctx, spec)
	if len(candidates) > AutoTopN {
		candidates = candidates[:AutoTopN]
	}
	if len(candidates) == 0 {
		return []tree.SearchResultItem{}, nil
	}

	result := tree.NewResearchResult(string(spec.Source), spec.Keywords, candidates, s.now())
	if _, err := s.store.AppendResearch(ctx, userID, nodeID, result); err != nil {
		return nil, err
	}

	s.logger.Info("Research results attached",
		zap.String("user_id", userID),
		zap.String("ideal_id", nodeID),
		zap.String("source", string(spec.Source)),
		zap.Int("count", len(candidates)))
	return candidates, nil
}

// Manual stores user-supplied results on the ideal. Items without a title
// are dropped and at most MaxManualItems are kept.
func (s *Service) Manual(ctx context.Context, userID, nodeID, source string, keywords []string, items []tree.SearchResultItem) (*tree.ResearchResult, error) {
	clean := make([]tree.SearchResultItem, 0, MaxManualItems)
	for _, item := range items {
		item.Title = strings.TrimSpace(item.Title)
		item.URL = strings.TrimSpace(item.URL)
		if item.Title == "" {
			continue
		}
		clean = append(clean, item)
		if len(clean) == MaxManualItems {
			break
		}
	}
	if len(clean) == 0 {
		return nil, apperrors.NewValidationError("at least one result with a title is required")
	}
	if source == "" {
		source = ManualSource
	}

	result := tree.NewResearchResult(source, keywords, clean, s.now())
	if _, err := s.store.AppendResearch(ctx, userID, nodeID, result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Delete removes one research result from an ideal. Unknown ids are
// ignored.
func (s *Service) Delete(ctx context.Context, userID, nodeID, researchID string) error {
	return s.store.DeleteResearch(ctx, userID, nodeID, researchID)
}
