package tree

import "time"

// IndexEntry summarizes one tree in a user's index.
type IndexEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Index lists a user's trees and points at the active one.
type Index struct {
	Trees        []IndexEntry `json:"trees"`
	ActiveTreeID string       `json:"activeTreeId"`
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{Trees: []IndexEntry{}}
}

// Contains reports whether the index lists a tree with the given id.
func (idx *Index) Contains(id string) bool {
	for _, e := range idx.Trees {
		if e.ID == id {
			return true
		}
	}
	return false
}

// Upsert records the tree's name and update time, appending a new entry if
// the tree is not listed yet.
func (idx *Index) Upsert(t *Tree) {
	for i := range idx.Trees {
		if idx.Trees[i].ID == t.ID {
			idx.Trees[i].Name = t.Name
			idx.Trees[i].UpdatedAt = t.UpdatedAt
			return
		}
	}
	idx.Trees = append(idx.Trees, IndexEntry{ID: t.ID, Name: t.Name, UpdatedAt: t.UpdatedAt})
}

// Remove drops the entry for id. When the active tree is removed, the first
// remaining tree becomes active, or none if the index is empty.
func (idx *Index) Remove(id string) {
	kept := idx.Trees[:0]
	for _, e := range idx.Trees {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	idx.Trees = kept
	if idx.ActiveTreeID == id {
		idx.ActiveTreeID = ""
		if len(idx.Trees) > 0 {
			idx.ActiveTreeID = idx.Trees[0].ID
		}
	}
}

// EnsureActive points the index at its first tree when nothing is active.
// It reports whether the pointer changed.
func (idx *Index) EnsureActive() bool {
	if idx.ActiveTreeID == "" && len(idx.Trees) > 0 {
		idx.ActiveTreeID = idx.Trees[0].ID
		return true
	}
	return false
}
