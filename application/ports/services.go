package ports

import (
	"context"

	"north-backend/domain/events"
	"north-backend/domain/tree"
)

// Completer sends a prompt to a language model.
type Completer interface {
	// CompleteJSON returns the model's reply decoded as JSON. A reply that
	// is not JSON yields (nil, nil); transport and provider failures are
	// returned as errors.
	CompleteJSON(ctx context.Context, prompt string) (any, error)

	// CompleteText returns the model's reply as plain text.
	CompleteText(ctx context.Context, prompt string) (string, error)
}

// ResearchAggregator fetches research material for ideal states.
type ResearchAggregator interface {
	// Candidates returns up to five results for a research spec. Failures of any
	// kind produce an empty list.
	Candidates(ctx context.Context, spec tree.ResearchSpec) []tree.SearchResultItem

	// Execute loads the page at url and returns a summary of its text.
	Execute(ctx context.Context, url string) (string, error)
}

// EventPublisher publishes domain events to interested consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event events.DomainEvent) error
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}
