package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"north-backend/domain/tree"
	apperrors "north-backend/pkg/errors"
)

func openMemory(t *testing.T) (*TreeRepository, *UsageStore) {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTreeRepository(db), NewUsageStore(db)
}

func TestTreeRoundTrip(t *testing.T) {
	// Arrange
	repo, _ := openMemory(t)
	ctx := context.Background()
	tr := tree.New("Goal", time.Now().UTC().Truncate(time.Millisecond))
	tr.PrependIdeal(tree.NewIdealState("I", "now", "when"))

	// Act
	require.NoError(t, repo.SaveTree(ctx, "u1", tr))
	got, err := repo.GetTree(ctx, "u1", tr.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, tr.ID, got.ID)
	require.Len(t, got.Goal.IdealStates, 1)
	assert.Equal(t, "when", got.Goal.IdealStates[0].Condition.Content)

	_, err = repo.GetTree(ctx, "u2", tr.ID)
	assert.ErrorIs(t, err, tree.ErrTreeNotFound)
}

func TestIndex_MissingThenSaved(t *testing.T) {
	repo, _ := openMemory(t)
	ctx := context.Background()

	empty, err := repo.GetIndex(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, tree.NewIndex(), empty)

	idx := &tree.Index{Trees: []tree.IndexEntry{{ID: "t1", Name: "n"}}, ActiveTreeID: "t1"}
	require.NoError(t, repo.SaveIndex(ctx, "u1", idx))
	idx.ActiveTreeID = ""
	require.NoError(t, repo.SaveIndex(ctx, "u1", idx))

	got, err := repo.GetIndex(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.ActiveTreeID)
	assert.Len(t, got.Trees, 1)
}

func TestDeleteTree(t *testing.T) {
	repo, _ := openMemory(t)
	ctx := context.Background()
	tr := tree.New("Goal", time.Now().UTC())
	require.NoError(t, repo.SaveTree(ctx, "u1", tr))

	require.NoError(t, repo.DeleteTree(ctx, "u1", tr.ID))
	require.NoError(t, repo.DeleteTree(ctx, "u1", tr.ID))

	_, err := repo.GetTree(ctx, "u1", tr.ID)
	assert.ErrorIs(t, err, tree.ErrTreeNotFound)
}

func TestUpdateTree_ConcurrentAppendsAreKept(t *testing.T) {
	// Arrange
	repo, _ := openMemory(t)
	ctx := context.Background()
	tr := tree.New("Goal", time.Now().UTC())
	ideal := tree.NewIdealState("I", "", "")
	tr.PrependIdeal(ideal)
	require.NoError(t, repo.SaveTree(ctx, "u1", tr))

	// Act
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.UpdateTree(ctx, "u1", tr.ID, func(t *tree.Tree) error {
				target := t.FindIdeal(ideal.ID)
				target.ResearchResults = append(target.ResearchResults, tree.NewResearchResult("web", nil, nil, time.Now().UTC()))
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Assert
	got, err := repo.GetTree(ctx, "u1", tr.ID)
	require.NoError(t, err)
	assert.Len(t, got.FindIdeal(ideal.ID).ResearchResults, 10)
}

func TestUpdateTree_ErrorRollsBack(t *testing.T) {
	repo, _ := openMemory(t)
	ctx := context.Background()
	tr := tree.New("Goal", time.Now().UTC())
	require.NoError(t, repo.SaveTree(ctx, "u1", tr))
	boom := errors.New("boom")

	_, err := repo.UpdateTree(ctx, "u1", tr.ID, func(t *tree.Tree) error {
		t.Goal.Content = "changed"
		return boom
	})

	assert.ErrorIs(t, err, boom)
	got, _ := repo.GetTree(ctx, "u1", tr.ID)
	assert.Equal(t, "Goal", got.Goal.Content)
}

func TestUsage_IncrementStopsAtLimit(t *testing.T) {
	// Arrange
	_, usage := openMemory(t)
	ctx := context.Background()

	// Act
	var allowed []bool
	for i := 0; i < 3; i++ {
		ok, err := usage.Increment(ctx, "u1", "2026-03-04", "refine", 2)
		require.NoError(t, err)
		allowed = append(allowed, ok)
	}
	other, err := usage.Increment(ctx, "u1", "2026-03-05", "refine", 2)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, []bool{true, true, false}, allowed)
	assert.True(t, other)
	counts, err := usage.Usage(ctx, "u1", "2026-03-04")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"refine": 2}, counts)
}

func TestUsage_EmptyDay(t *testing.T) {
	_, usage := openMemory(t)

	counts, err := usage.Usage(context.Background(), "u1", "2026-01-01")

	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "north.db")

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, NewTreeRepository(db).Ping(context.Background()))
	assert.FileExists(t, path)
}

func TestDriverFailuresAreDatabaseErrors(t *testing.T) {
	// Arrange
	db, err := Open(":memory:")
	require.NoError(t, err)
	repo, usage := NewTreeRepository(db), NewUsageStore(db)
	require.NoError(t, db.Close())

	// Act
	_, getErr := repo.GetTree(context.Background(), "u1", "t1")
	_, usageErr := usage.Usage(context.Background(), "u1", "2026-03-04")

	// Assert
	assert.True(t, apperrors.IsType(getErr, apperrors.ErrorTypeDatabase))
	assert.NotErrorIs(t, getErr, tree.ErrTreeNotFound)
	assert.True(t, apperrors.IsType(usageErr, apperrors.ErrorTypeDatabase))
}
