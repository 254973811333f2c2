package ports

import (
	"context"

	"north-backend/domain/tree"
)

// TreeRepository defines the persistence primitives for trees and the tree
// index. This is a port in hexagonal architecture - the domain doesn't know
// about the implementation.
type TreeRepository interface {
	// GetIndex returns the user's tree index, or an empty index when the
	// user has none yet.
	GetIndex(ctx context.Context, userID string) (*tree.Index, error)

	// SaveIndex replaces the user's tree index.
	SaveIndex(ctx context.Context, userID string, idx *tree.Index) error

	// GetTree retrieves a tree by id. It returns tree.ErrTreeNotFound when
	// the tree does not exist.
	GetTree(ctx context.Context, userID, treeID string) (*tree.Tree, error)

	// SaveTree persists a whole tree. Concurrent saves are last-writer-wins.
	SaveTree(ctx context.Context, userID string, t *tree.Tree) error

	// DeleteTree removes a tree. Deleting a missing tree is not an error.
	DeleteTree(ctx context.Context, userID, treeID string) error

	// UpdateTree applies fn to the stored tree and persists the result
	// atomically with respect to other UpdateTree calls on the same tree.
	// If fn returns an error nothing is written.
	UpdateTree(ctx context.Context, userID, treeID string, fn func(*tree.Tree) error) (*tree.Tree, error)

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}

// UsageStore keeps per-user, per-action counters for one UTC day.
type UsageStore interface {
	// Increment adds one use of action on day unless the counter already
	// reached limit. It reports whether the use was allowed.
	Increment(ctx context.Context, userID, day, action string, limit int) (bool, error)

	// Usage returns the counters recorded for day; missing actions are absent.
	Usage(ctx context.Context, userID, day string) (map[string]int, error)
}

// TreeStore is the view of the active tree the engines work against.
type TreeStore interface {
	// ActiveTree returns the user's active tree.
	ActiveTree(ctx context.Context, userID string) (*tree.Tree, error)

	// SaveTree persists the tree and refreshes its index entry.
	SaveTree(ctx context.Context, userID string, t *tree.Tree) error

	// SetElementProposal replaces the pending proposal on one element.
	SetElementProposal(ctx context.Context, userID, treeID, elementID string, p *tree.ElementProposal) error
}
