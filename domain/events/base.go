package events

import (
	"time"

	"north-backend/domain/proposal"
	"north-backend/domain/tree"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

const (
	TypeProposalStatusChanged = "proposal.status_changed"
	TypeTreeCreated           = "tree.created"
	TypeTreeDeleted           = "tree.deleted"
)

// ProposalStatusChanged is raised whenever an engine run moves an element's
// proposal between processing, completed and failed.
type ProposalStatusChanged struct {
	BaseEvent
	UserID    string              `json:"user_id"`
	TreeID    string              `json:"tree_id"`
	ElementID string              `json:"element_id"`
	Kind      proposal.Kind       `json:"kind"`
	Status    tree.ProposalStatus `json:"status"`
}

// NewProposalStatusChanged creates a ProposalStatusChanged event
func NewProposalStatusChanged(userID, treeID, elementID string, kind proposal.Kind, status tree.ProposalStatus, timestamp time.Time) ProposalStatusChanged {
	return ProposalStatusChanged{
		BaseEvent: BaseEvent{
			AggregateID: treeID,
			EventType:   TypeProposalStatusChanged,
			Timestamp:   timestamp,
			Version:     1,
		},
		UserID:    userID,
		TreeID:    treeID,
		ElementID: elementID,
		Kind:      kind,
		Status:    status,
	}
}

// TreeCreated is raised when a user creates or promotes a tree
type TreeCreated struct {
	BaseEvent
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// NewTreeCreated creates a TreeCreated event
func NewTreeCreated(userID string, t *tree.Tree) TreeCreated {
	return TreeCreated{
		BaseEvent: BaseEvent{
			AggregateID: t.ID,
			EventType:   TypeTreeCreated,
			Timestamp:   t.CreatedAt,
			Version:     1,
		},
		UserID: userID,
		Name:   t.Name,
	}
}

// TreeDeleted is raised when a user deletes a tree
type TreeDeleted struct {
	BaseEvent
	UserID string `json:"user_id"`
}

// NewTreeDeleted creates a TreeDeleted event
func NewTreeDeleted(userID, treeID string, timestamp time.Time) TreeDeleted {
	return TreeDeleted{
		BaseEvent: BaseEvent{
			AggregateID: treeID,
			EventType:   TypeTreeDeleted,
			Timestamp:   timestamp,
			Version:     1,
		},
		UserID: userID,
	}
}
