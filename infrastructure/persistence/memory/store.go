// Package memory provides process-local TreeRepository and UsageStore
// implementations for development and tests. Documents are stored as JSON so
// callers never share pointers with the store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"north-backend/application/ports"
	"north-backend/domain/tree"
)

// TreeRepository keeps trees and indexes in maps guarded by one mutex.
type TreeRepository struct {
	mu      sync.Mutex
	indexes map[string][]byte
	trees   map[string]map[string][]byte
}

var _ ports.TreeRepository = (*TreeRepository)(nil)

// NewTreeRepository creates an empty repository.
func NewTreeRepository() *TreeRepository {
	return &TreeRepository{
		indexes: make(map[string][]byte),
		trees:   make(map[string]map[string][]byte),
	}
}

func (r *TreeRepository) GetIndex(ctx context.Context, userID string) (*tree.Index, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, ok := r.indexes[userID]
	if !ok {
		return tree.NewIndex(), nil
	}
	idx := tree.NewIndex()
	if err := json.Unmarshal(raw, idx); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if idx.Trees == nil {
		idx.Trees = []tree.IndexEntry{}
	}
	return idx, nil
}

func (r *TreeRepository) SaveIndex(ctx context.Context, userID string, idx *tree.Index) error {
	raw, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexes[userID] = raw
	return nil
}

func (r *TreeRepository) GetTree(ctx context.Context, userID, treeID string) (*tree.Tree, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(userID, treeID)
}

func (r *TreeRepository) load(userID, treeID string) (*tree.Tree, error) {
	raw, ok := r.trees[userID][treeID]
	if !ok {
		return nil, tree.ErrTreeNotFound
	}
	var t tree.Tree
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	t.Normalize()
	return &t, nil
}

func (r *TreeRepository) SaveTree(ctx context.Context, userID string, t *tree.Tree) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store(userID, t)
}

func (r *TreeRepository) store(userID string, t *tree.Tree) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	if r.trees[userID] == nil {
		r.trees[userID] = make(map[string][]byte)
	}
	r.trees[userID][t.ID] = raw
	return nil
}

func (r *TreeRepository) DeleteTree(ctx context.Context, userID, treeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trees[userID], treeID)
	return nil
}

// UpdateTree holds the lock across load, fn and store.
func (r *TreeRepository) UpdateTree(ctx context.Context, userID, treeID string, fn func(*tree.Tree) error) (*tree.Tree, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.load(userID, treeID)
	if err != nil {
		return nil, err
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	if err := r.store(userID, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TreeRepository) Ping(ctx context.Context) error { return nil }

// UsageStore counts daily actions in memory.
type UsageStore struct {
	mu     sync.Mutex
	counts map[string]map[string]int
}

var _ ports.UsageStore = (*UsageStore)(nil)

// NewUsageStore creates an empty usage store.
func NewUsageStore() *UsageStore {
	return &UsageStore{counts: make(map[string]map[string]int)}
}

func usageKey(userID, day string) string { return userID + "/" + day }

func (s *UsageStore) Increment(ctx context.Context, userID, day, action string, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey(userID, day)
	if s.counts[key] == nil {
		s.counts[key] = make(map[string]int)
	}
	if s.counts[key][action] >= limit {
		return false, nil
	}
	s.counts[key][action]++
	return true, nil
}

func (s *UsageStore) Usage(ctx context.Context, userID, day string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int, len(s.counts[usageKey(userID, day)]))
	for k, v := range s.counts[usageKey(userID, day)] {
		out[k] = v
	}
	return out, nil
}
