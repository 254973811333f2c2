// Package sqlite persists trees and usage counters in a local SQLite file,
// for single-node deployments and development without AWS.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"north-backend/application/ports"
	"north-backend/domain/tree"
	apperrors "north-backend/pkg/errors"
)

var schema = []string{
	`PRAGMA busy_timeout = 5000`,
	`CREATE TABLE IF NOT EXISTS tree_index (
		user_id    TEXT PRIMARY KEY,
		document   TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trees (
		user_id    TEXT NOT NULL,
		tree_id    TEXT NOT NULL,
		document   TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, tree_id)
	)`,
	`CREATE TABLE IF NOT EXISTS daily_usage (
		user_id TEXT NOT NULL,
		day     TEXT NOT NULL,
		action  TEXT NOT NULL,
		count   INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, day, action)
	)`,
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers and keeps a :memory: database alive.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return db, nil
}

// TreeRepository implements ports.TreeRepository on SQLite.
type TreeRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ ports.TreeRepository = (*TreeRepository)(nil)

// NewTreeRepository creates a repository over an opened database.
func NewTreeRepository(db *sql.DB) *TreeRepository {
	return &TreeRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *TreeRepository) stamp() string { return r.now().Format(time.RFC3339Nano) }

func (r *TreeRepository) GetIndex(ctx context.Context, userID string) (*tree.Index, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, `SELECT document FROM tree_index WHERE user_id = ?`, userID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return tree.NewIndex(), nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get index", err)
	}
	idx := tree.NewIndex()
	if err := json.Unmarshal([]byte(doc), idx); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if idx.Trees == nil {
		idx.Trees = []tree.IndexEntry{}
	}
	return idx, nil
}

func (r *TreeRepository) SaveIndex(ctx context.Context, userID string, idx *tree.Index) error {
	doc, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tree_index (user_id, document, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		userID, string(doc), r.stamp())
	if err != nil {
		return apperrors.NewDatabaseError("save index", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func loadTree(ctx context.Context, q querier, userID, treeID string) (*tree.Tree, error) {
	var doc string
	err := q.QueryRowContext(ctx, `SELECT document FROM trees WHERE user_id = ? AND tree_id = ?`, userID, treeID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tree.ErrTreeNotFound
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get tree", err)
	}
	var t tree.Tree
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	t.Normalize()
	return &t, nil
}

func storeTree(ctx context.Context, q querier, userID string, t *tree.Tree, stamp string) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO trees (user_id, tree_id, document, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, tree_id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		userID, t.ID, string(doc), stamp)
	if err != nil {
		return apperrors.NewDatabaseError("save tree", err)
	}
	return nil
}

func (r *TreeRepository) GetTree(ctx context.Context, userID, treeID string) (*tree.Tree, error) {
	return loadTree(ctx, r.db, userID, treeID)
}

func (r *TreeRepository) SaveTree(ctx context.Context, userID string, t *tree.Tree) error {
	return storeTree(ctx, r.db, userID, t, r.stamp())
}

func (r *TreeRepository) DeleteTree(ctx context.Context, userID, treeID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM trees WHERE user_id = ? AND tree_id = ?`, userID, treeID); err != nil {
		return apperrors.NewDatabaseError("delete tree", err)
	}
	return nil
}

// UpdateTree runs the read-modify-write in one transaction.
func (r *TreeRepository) UpdateTree(ctx context.Context, userID, treeID string, fn func(*tree.Tree) error) (*tree.Tree, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewDatabaseError("begin", err)
	}
	defer tx.Rollback()

	t, err := loadTree(ctx, tx, userID, treeID)
	if err != nil {
		return nil, err
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	if err := storeTree(ctx, tx, userID, t, r.stamp()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewDatabaseError("commit", err)
	}
	return t, nil
}

func (r *TreeRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// UsageStore implements ports.UsageStore on SQLite.
type UsageStore struct {
	db *sql.DB
}

var _ ports.UsageStore = (*UsageStore)(nil)

// NewUsageStore creates a usage store over an opened database.
func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{db: db}
}

func (s *UsageStore) Increment(ctx context.Context, userID, day, action string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_usage (user_id, day, action, count) VALUES (?, ?, ?, 1)
		ON CONFLICT (user_id, day, action) DO UPDATE SET count = count + 1 WHERE count < ?`,
		userID, day, action, limit)
	if err != nil {
		return false, apperrors.NewDatabaseError("increment "+action, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewDatabaseError("increment "+action, err)
	}
	return n > 0, nil
}

func (s *UsageStore) Usage(ctx context.Context, userID, day string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT action, count FROM daily_usage WHERE user_id = ? AND day = ?`, userID, day)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get usage", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, apperrors.NewDatabaseError("scan usage", err)
		}
		counts[action] = count
	}
	return counts, rows.Err()
}
