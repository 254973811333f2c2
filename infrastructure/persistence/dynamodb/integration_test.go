package dynamodb

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"north-backend/domain/tree"
)

// setupLocal connects to DynamoDB Local when DYNAMODB_ENDPOINT is set, for
// example http://localhost:8000, and creates a throwaway table.
func setupLocal(t *testing.T) (*TreeRepository, *UsageStore) {
	t.Helper()
	endpoint := os.Getenv("DYNAMODB_ENDPOINT")
	if endpoint == "" || testing.Short() {
		t.Skip("Skipping integration test: DYNAMODB_ENDPOINT not set")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, "us-east-1", endpoint)
	require.NoError(t, err)
	table := "north-test-" + uuid.NewString()[:8]
	require.NoError(t, CreateTable(ctx, client, table, zap.NewNop()))

	return NewTreeRepository(client, table, zap.NewNop()), NewUsageStore(client, table)
}

func TestIntegration_ConcurrentAppends(t *testing.T) {
	repo, _ := setupLocal(t)
	ctx := context.Background()
	tr := tree.New("Goal", time.Now().UTC())
	ideal := tree.NewIdealState("I", "", "")
	tr.PrependIdeal(ideal)
	require.NoError(t, repo.SaveTree(ctx, "u1", tr))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.UpdateTree(ctx, "u1", tr.ID, func(t *tree.Tree) error {
				t.FindIdeal(ideal.ID).ResearchResults = append(t.FindIdeal(ideal.ID).ResearchResults,
					tree.NewResearchResult("web", nil, nil, time.Now().UTC()))
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.GetTree(ctx, "u1", tr.ID)
	require.NoError(t, err)
	assert.Len(t, got.FindIdeal(ideal.ID).ResearchResults, 4)
}

func TestIntegration_UsageLimit(t *testing.T) {
	_, usage := setupLocal(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := usage.Increment(ctx, "u1", "2026-03-04", "decompose", 2)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := usage.Increment(ctx, "u1", "2026-03-04", "decompose", 2)
	require.NoError(t, err)
	assert.False(t, ok)

	counts, err := usage.Usage(ctx, "u1", "2026-03-04")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"decompose": 2}, counts)
}

func TestIntegration_IndexRoundTrip(t *testing.T) {
	repo, _ := setupLocal(t)
	ctx := context.Background()
	tr := tree.New("Goal", time.Now().UTC().Truncate(time.Millisecond))
	idx := tree.NewIndex()
	idx.Upsert(tr)
	idx.ActiveTreeID = tr.ID

	require.NoError(t, repo.SaveIndex(ctx, "u1", idx))
	got, err := repo.GetIndex(ctx, "u1")

	require.NoError(t, err)
	assert.Equal(t, tr.ID, got.ActiveTreeID)
	require.Len(t, got.Trees, 1)
	assert.True(t, tr.UpdatedAt.Equal(got.Trees[0].UpdatedAt))
}
