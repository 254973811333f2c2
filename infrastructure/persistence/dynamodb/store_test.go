package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"north-backend/domain/tree"
	apperrors "north-backend/pkg/errors"
)

// fakeAPI stores items by key. Conditional writes fail while conflicts is
// positive; expressions are recorded, not evaluated.
type fakeAPI struct {
	mu        sync.Mutex
	items     map[string]map[string]types.AttributeValue
	conflicts int
	puts      int
	updates   []*dynamodb.UpdateItemInput
	updateErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(k map[string]types.AttributeValue) string {
	return k[attrPK].(*types.AttributeValueMemberS).Value + "|" + k[attrSK].(*types.AttributeValueMemberS).Value
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if in.ConditionExpression != nil && f.conflicts > 0 {
		f.conflicts--
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("version changed")}
	}
	f.items[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, in)
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, itemKey(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeAPI) DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, nil
}

func seedTree(t *testing.T, api *fakeAPI, userID string, tr *tree.Tree, version int64) {
	t.Helper()
	doc, err := json.Marshal(tr)
	require.NoError(t, err)
	av, err := attributevalue.MarshalMap(documentItem{
		PK:         userPK(userID),
		SK:         treeSK(tr.ID),
		EntityType: entityTree,
		Document:   string(doc),
		Version:    version,
	})
	require.NoError(t, err)
	api.items[itemKey(av)] = av
}

func storedItem(t *testing.T, api *fakeAPI, userID, treeID string) documentItem {
	t.Helper()
	var item documentItem
	require.NoError(t, attributevalue.UnmarshalMap(api.items[userPK(userID)+"|"+treeSK(treeID)], &item))
	return item
}

func TestUpdateTree_RetriesOnConflict(t *testing.T) {
	// Arrange
	api := newFakeAPI()
	repo := NewTreeRepository(api, "north", zap.NewNop())
	tr := tree.New("Goal", time.Now().UTC())
	seedTree(t, api, "u1", tr, 3)
	api.conflicts = 2
	calls := 0

	// Act
	got, err := repo.UpdateTree(context.Background(), "u1", tr.ID, func(t *tree.Tree) error {
		calls++
		t.Goal.Content = "Changed"
		return nil
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, "Changed", got.Goal.Content)
	item := storedItem(t, api, "u1", tr.ID)
	assert.Equal(t, int64(4), item.Version)
	assert.Contains(t, item.Document, `"Changed"`)
}

func TestUpdateTree_GivesUp(t *testing.T) {
	api := newFakeAPI()
	repo := NewTreeRepository(api, "north", zap.NewNop())
	tr := tree.New("Goal", time.Now().UTC())
	seedTree(t, api, "u1", tr, 1)
	api.conflicts = maxUpdateAttempts

	_, err := repo.UpdateTree(context.Background(), "u1", tr.ID, func(*tree.Tree) error { return nil })

	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, maxUpdateAttempts, api.puts)
}

func TestUpdateTree_FnErrorWritesNothing(t *testing.T) {
	api := newFakeAPI()
	repo := NewTreeRepository(api, "north", zap.NewNop())
	tr := tree.New("Goal", time.Now().UTC())
	seedTree(t, api, "u1", tr, 1)
	boom := errors.New("boom")

	_, err := repo.UpdateTree(context.Background(), "u1", tr.ID, func(*tree.Tree) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Zero(t, api.puts)
}

func TestUpdateTree_Missing(t *testing.T) {
	repo := NewTreeRepository(newFakeAPI(), "north", zap.NewNop())

	_, err := repo.UpdateTree(context.Background(), "u1", "nope", func(*tree.Tree) error { return nil })

	assert.ErrorIs(t, err, tree.ErrTreeNotFound)
}

func TestGetTreeAndIndex_Missing(t *testing.T) {
	repo := NewTreeRepository(newFakeAPI(), "north", zap.NewNop())

	idx, err := repo.GetIndex(context.Background(), "u1")
	require.NoError(t, err)
	_, treeErr := repo.GetTree(context.Background(), "u1", "nope")

	assert.Equal(t, tree.NewIndex(), idx)
	assert.ErrorIs(t, treeErr, tree.ErrTreeNotFound)
}

func TestGetTree_Decodes(t *testing.T) {
	api := newFakeAPI()
	repo := NewTreeRepository(api, "north", zap.NewNop())
	tr := tree.New("Goal", time.Now().UTC().Truncate(time.Second))
	tr.PrependIdeal(tree.NewIdealState("I", "c", ""))
	seedTree(t, api, "u1", tr, 1)

	got, err := repo.GetTree(context.Background(), "u1", tr.ID)

	require.NoError(t, err)
	assert.Equal(t, tr.Goal.IdealStates[0].Content, got.Goal.IdealStates[0].Content)
	assert.Equal(t, tr.ID, got.ID)
}

func TestSaveTree_BumpsVersion(t *testing.T) {
	// Arrange
	api := newFakeAPI()
	repo := NewTreeRepository(api, "north", zap.NewNop())
	tr := tree.New("Goal", time.Now().UTC())

	// Act
	err := repo.SaveTree(context.Background(), "u1", tr)

	// Assert
	require.NoError(t, err)
	require.Len(t, api.updates, 1)
	in := api.updates[0]
	assert.Equal(t, "USER#u1|TREE#"+tr.ID, itemKey(in.Key))
	assert.Contains(t, *in.UpdateExpression, "ADD")
	assert.Contains(t, *in.UpdateExpression, "SET")
	var names []string
	for _, n := range in.ExpressionAttributeNames {
		names = append(names, n)
	}
	assert.ElementsMatch(t, []string{attrDocument, attrEntityType, attrUpdatedAt, attrVersion}, names)
}

func TestIncrement_ConditionFailureIsRejection(t *testing.T) {
	api := newFakeAPI()
	api.updateErr = &types.ConditionalCheckFailedException{Message: aws.String("limit")}
	store := NewUsageStore(api, "north")

	ok, err := store.Increment(context.Background(), "u1", "2026-03-04", "decompose", 3)

	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, api.updates, 1)
	assert.Equal(t, "USER#u1|LIMIT#2026-03-04", itemKey(api.updates[0].Key))
}

func TestIncrement_ZeroLimitSkipsWrite(t *testing.T) {
	api := newFakeAPI()

	ok, err := NewUsageStore(api, "north").Increment(context.Background(), "u1", "2026-03-04", "refine", 0)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, api.updates)
}

func TestIncrement_OtherErrorsPropagate(t *testing.T) {
	api := newFakeAPI()
	throttled := errors.New("throttled")
	api.updateErr = throttled

	_, err := NewUsageStore(api, "north").Increment(context.Background(), "u1", "2026-03-04", "refine", 1)

	assert.ErrorIs(t, err, throttled)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeDatabase))
}

func TestIncrementExpression(t *testing.T) {
	expr, err := incrementExpression("research", 7, time.Unix(1000, 0))

	require.NoError(t, err)
	assert.Contains(t, *expr.Update(), "if_not_exists")
	assert.True(t, strings.Contains(*expr.Condition(), "attribute_not_exists"))
	var limit bool
	for _, v := range expr.Values() {
		if n, ok := v.(*types.AttributeValueMemberN); ok && n.Value == "7" {
			limit = true
		}
	}
	assert.True(t, limit)
}

func TestCountersFromItem(t *testing.T) {
	got := countersFromItem(map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: "USER#u1"},
		"decompose": &types.AttributeValueMemberN{Value: "2"},
		"research":  &types.AttributeValueMemberN{Value: "1"},
		attrTTL:     &types.AttributeValueMemberN{Value: "99999"},
	})

	assert.Equal(t, map[string]int{"decompose": 2, "research": 1}, got)
	assert.Empty(t, countersFromItem(nil))
}
