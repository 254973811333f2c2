// Package tree models a user's goal tree: one Goal broken down into ideal
// states, each with its current state, achievement condition and research.
package tree

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Domain errors. HTTP handlers do not distinguish them from other failures.
var (
	ErrTreeNotFound      = errors.New("tree not found")
	ErrElementNotFound   = errors.New("element not found")
	ErrGoalMismatch      = errors.New("goal ID mismatch")
	ErrTreeLimitReached  = errors.New("tree limit reached")
	ErrUnsupportedTarget = errors.New("unsupported element type")
)

// ElementType names the kind of tree element an operation targets.
type ElementType string

const (
	ElementGoal  ElementType = "goal"
	ElementIdeal ElementType = "ideal"
)

// Tree is the unit of persistence: one goal and everything under it.
type Tree struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Goal      Goal      `json:"goal"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Goal struct {
	ID              string           `json:"id"`
	Content         string           `json:"content"`
	IdealStates     []*IdealState    `json:"idealStates"`
	PendingProposal *ElementProposal `json:"pendingProposal"`
}

type IdealState struct {
	ID              string           `json:"id"`
	Content         string           `json:"content"`
	CurrentState    *TextNode        `json:"currentState"`
	Condition       *TextNode        `json:"condition"`
	ResearchSpec    *ResearchSpec    `json:"researchSpec"`
	ResearchResults []ResearchResult `json:"researchResults"`
	PendingProposal *ElementProposal `json:"pendingProposal"`
}

// TextNode is an identified piece of text; both CurrentState and Condition
// use it.
type TextNode struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type ResearchSpec struct {
	Source   Source   `json:"source"`
	Keywords []string `json:"keywords"`
}

type ResearchResult struct {
	ID        string             `json:"id"`
	Source    string             `json:"source"`
	Keywords  []string           `json:"keywords"`
	Results   []SearchResultItem `json:"results"`
	CreatedAt time.Time          `json:"createdAt"`
}

type SearchResultItem struct {
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Snippet       string   `json:"snippet,omitempty"`
	Authors       []string `json:"authors,omitempty"`
	PublishedDate string   `json:"publishedDate,omitempty"`
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// New creates a tree whose goal text equals its name.
func New(name string, now time.Time) *Tree {
	return &Tree{
		ID:   NewID(),
		Name: name,
		Goal: Goal{
			ID:          NewID(),
			Content:     name,
			IdealStates: []*IdealState{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewIdealState creates an ideal state. Current state and condition are
// attached only when their text is non-empty.
func NewIdealState(content, current, condition string) *IdealState {
	ideal := &IdealState{
		ID:              NewID(),
		Content:         content,
		ResearchResults: []ResearchResult{},
	}
	if current != "" {
		ideal.CurrentState = &TextNode{ID: NewID(), Content: current}
	}
	if condition != "" {
		ideal.Condition = &TextNode{ID: NewID(), Content: condition}
	}
	return ideal
}

// NewResearchResult stamps a batch of search items with a fresh id.
func NewResearchResult(source string, keywords []string, items []SearchResultItem, now time.Time) ResearchResult {
	if keywords == nil {
		keywords = []string{}
	}
	if items == nil {
		items = []SearchResultItem{}
	}
	return ResearchResult{
		ID:        NewID(),
		Source:    source,
		Keywords:  keywords,
		Results:   items,
		CreatedAt: now,
	}
}

// FindIdeal returns the ideal state with the given id, or nil.
func (t *Tree) FindIdeal(id string) *IdealState {
	for _, ideal := range t.Goal.IdealStates {
		if ideal.ID == id {
			return ideal
		}
	}
	return nil
}

// RemoveIdeal deletes the ideal state with the given id and reports whether
// one was removed.
func (t *Tree) RemoveIdeal(id string) bool {
	for i, ideal := range t.Goal.IdealStates {
		if ideal.ID == id {
			t.Goal.IdealStates = append(t.Goal.IdealStates[:i], t.Goal.IdealStates[i+1:]...)
			return true
		}
	}
	return false
}

// PrependIdeal inserts an ideal state at the top of the goal's list.
func (t *Tree) PrependIdeal(ideal *IdealState) {
	t.Goal.IdealStates = append([]*IdealState{ideal}, t.Goal.IdealStates...)
}

// SetProposal attaches p to the goal or ideal state with the given id,
// replacing any previous proposal. It returns ErrElementNotFound when no
// element carries that id.
func (t *Tree) SetProposal(elementID string, p *ElementProposal) error {
	if t.Goal.ID == elementID {
		t.Goal.PendingProposal = p
		return nil
	}
	if ideal := t.FindIdeal(elementID); ideal != nil {
		ideal.PendingProposal = p
		return nil
	}
	return ErrElementNotFound
}

// SetText sets the node's content, creating the node with a fresh id when
// it does not exist yet.
func SetText(node **TextNode, content string) {
	if *node == nil {
		*node = &TextNode{ID: NewID()}
	}
	(*node).Content = content
}

// Normalize replaces nil collections with empty ones so the tree always
// serializes with arrays, never nulls.
func (t *Tree) Normalize() {
	if t.Goal.IdealStates == nil {
		t.Goal.IdealStates = []*IdealState{}
	}
	kept := t.Goal.IdealStates[:0]
	for _, ideal := range t.Goal.IdealStates {
		if ideal == nil {
			continue
		}
		if ideal.ResearchResults == nil {
			ideal.ResearchResults = []ResearchResult{}
		}
		if ideal.ResearchSpec != nil && ideal.ResearchSpec.Keywords == nil {
			ideal.ResearchSpec.Keywords = []string{}
		}
		kept = append(kept, ideal)
	}
	t.Goal.IdealStates = kept
}

// Touch records a modification time.
func (t *Tree) Touch(now time.Time) {
	t.UpdatedAt = now
}
