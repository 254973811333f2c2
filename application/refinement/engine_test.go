package refinement

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"north-backend/application/proposals"
	"north-backend/application/trees"
	"north-backend/domain/proposal"
	"north-backend/domain/tree"
	"north-backend/infrastructure/persistence/memory"
)

type stubCompleter struct {
	reply  any
	err    error
	prompt string
	onCall func()
}

func (c *stubCompleter) CompleteJSON(ctx context.Context, prompt string) (any, error) {
	c.prompt = prompt
	if c.onCall != nil {
		c.onCall()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.reply, c.err
}

func (c *stubCompleter) CompleteText(context.Context, string) (string, error) {
	return "", errors.New("not used")
}

type recordingStore struct {
	*trees.Service
	statuses []tree.ProposalStatus
	reject   tree.ProposalStatus
}

var errConflict = errors.New("conflict")

func (s *recordingStore) SetElementProposal(ctx context.Context, userID, treeID, elementID string, p *tree.ElementProposal) error {
	s.statuses = append(s.statuses, p.Status)
	if s.reject != "" && p.Status == s.reject {
		return errConflict
	}
	return s.Service.SetElementProposal(ctx, userID, treeID, elementID, p)
}

func setup(t *testing.T, completer *stubCompleter) (*Engine, *recordingStore, *tree.Tree, *tree.IdealState) {
	t.Helper()
	ctx := context.Background()
	svc := trees.NewService(memory.NewTreeRepository(), nil, 0, zap.NewNop())
	tr, err := svc.CreateTree(ctx, "u1", "Goal")
	require.NoError(t, err)
	ideal := tree.NewIdealState("A", "current", "")
	tr.Goal.IdealStates = append(tr.Goal.IdealStates, ideal)
	require.NoError(t, svc.SaveTree(ctx, "u1", tr))

	store := &recordingStore{Service: svc}
	tracker := proposals.NewTracker(store, nil, nil, zap.NewNop())
	return NewEngine(store, completer, tracker, "", nil, zap.NewNop()), store, tr, ideal
}

func TestSuggest_IdealIsHolistic(t *testing.T) {
	// Arrange
	c := &stubCompleter{reply: map[string]any{
		"refinedIdealState":   "A2",
		"refinedCurrentState": "current",
		"refinedCondition":    "B2",
		"reasonToKeep":        "k",
		"reasonToChange":      "c",
	}}
	engine, store, _, ideal := setup(t, c)

	// Act
	got, err := engine.Suggest(context.Background(), "u1", ideal.ID, tree.ElementIdeal, "be concrete")

	// Assert
	require.NoError(t, err)
	holistic, ok := got.(*proposal.HolisticRefinement)
	require.True(t, ok)
	assert.Equal(t, "A2", holistic.RefinedIdealState)
	assert.Contains(t, c.prompt, `Condition: "(Unspecified)"`)
	assert.Contains(t, c.prompt, "in Japanese")
	assert.Equal(t, []tree.ProposalStatus{tree.StatusProcessing, tree.StatusCompleted}, store.statuses)

	stored, _ := store.ActiveTree(context.Background(), "u1")
	assert.Equal(t, got, stored.FindIdeal(ideal.ID).PendingProposal.Data)
}

func TestSuggest_GoalIsLegacy(t *testing.T) {
	c := &stubCompleter{reply: map[string]any{
		"suggestions": []any{map[string]any{"field": "content", "value": "Better goal"}},
	}}
	engine, _, tr, _ := setup(t, c)

	got, err := engine.Suggest(context.Background(), "u1", tr.Goal.ID, tree.ElementGoal, "shorter")

	require.NoError(t, err)
	legacy, ok := got.(*proposal.LegacyRefinement)
	require.True(t, ok)
	require.Len(t, legacy.Suggestions, 1)
	assert.Equal(t, "Better goal", legacy.Suggestions[0].Value)
}

func TestSuggest_ProviderErrorMarksFailedAndReturns(t *testing.T) {
	// Arrange
	boom := errors.New("quota")
	engine, store, _, ideal := setup(t, &stubCompleter{err: boom})

	// Act
	got, err := engine.Suggest(context.Background(), "u1", ideal.ID, tree.ElementIdeal, "x")

	// Assert
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, got)
	assert.Equal(t, []tree.ProposalStatus{tree.StatusProcessing, tree.StatusFailed}, store.statuses)
}

func TestSuggest_CompletedWriteFailureMarksFailed(t *testing.T) {
	// Arrange
	engine, store, _, ideal := setup(t, &stubCompleter{reply: map[string]any{"refinedIdealState": "A2"}})
	store.reject = tree.StatusCompleted

	// Act
	got, err := engine.Suggest(context.Background(), "u1", ideal.ID, tree.ElementIdeal, "x")

	// Assert
	assert.ErrorIs(t, err, errConflict)
	assert.Nil(t, got)
	assert.Equal(t, []tree.ProposalStatus{tree.StatusProcessing, tree.StatusCompleted, tree.StatusFailed}, store.statuses)

	stored, _ := store.ActiveTree(context.Background(), "u1")
	assert.Equal(t, tree.StatusFailed, stored.FindIdeal(ideal.ID).PendingProposal.Status)
}

func TestSuggest_SurvivesCallerCancellation(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &stubCompleter{reply: map[string]any{"refinedIdealState": "A2"}, onCall: cancel}
	engine, store, _, ideal := setup(t, c)

	// Act
	got, err := engine.Suggest(ctx, "u1", ideal.ID, tree.ElementIdeal, "x")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []tree.ProposalStatus{tree.StatusProcessing, tree.StatusCompleted}, store.statuses)

	stored, _ := store.ActiveTree(context.Background(), "u1")
	assert.Equal(t, tree.StatusCompleted, stored.FindIdeal(ideal.ID).PendingProposal.Status)
	assert.Equal(t, got, stored.FindIdeal(ideal.ID).PendingProposal.Data)
}

func TestSuggest_UnusableOutputFails(t *testing.T) {
	engine, store, _, ideal := setup(t, &stubCompleter{reply: map[string]any{"unrelated": true}})

	_, err := engine.Suggest(context.Background(), "u1", ideal.ID, tree.ElementIdeal, "x")

	assert.ErrorIs(t, err, ErrUnusableOutput)
	assert.Equal(t, []tree.ProposalStatus{tree.StatusProcessing, tree.StatusFailed}, store.statuses)
}

func TestSuggest_UnknownElementWritesNothing(t *testing.T) {
	engine, store, _, _ := setup(t, &stubCompleter{})

	_, err := engine.Suggest(context.Background(), "u1", "missing", tree.ElementIdeal, "x")

	assert.ErrorIs(t, err, tree.ErrElementNotFound)
	assert.Empty(t, store.statuses)
}

func TestApply_IdealCreatesConditionAndClearsProposal(t *testing.T) {
	// Arrange
	c := &stubCompleter{reply: map[string]any{"refinedIdealState": "A2"}}
	engine, store, _, ideal := setup(t, c)
	_, err := engine.Suggest(context.Background(), "u1", ideal.ID, tree.ElementIdeal, "x")
	require.NoError(t, err)

	// Act
	got, err := engine.Apply(context.Background(), "u1", ideal.ID, tree.ElementIdeal, Patch{Content: "A2", Condition: "B2"})

	// Assert
	require.NoError(t, err)
	updated := got.FindIdeal(ideal.ID)
	assert.Equal(t, "A2", updated.Content)
	require.NotNil(t, updated.Condition)
	assert.Equal(t, "B2", updated.Condition.Content)
	assert.NotEmpty(t, updated.Condition.ID)
	assert.Equal(t, ideal.CurrentState, updated.CurrentState)
	assert.Nil(t, updated.PendingProposal)

	stored, _ := store.ActiveTree(context.Background(), "u1")
	assert.Nil(t, stored.FindIdeal(ideal.ID).PendingProposal)
}

func TestApply_GoalContent(t *testing.T) {
	engine, _, tr, _ := setup(t, &stubCompleter{})

	got, err := engine.Apply(context.Background(), "u1", tr.Goal.ID, tree.ElementGoal, Patch{Content: "New goal"})

	require.NoError(t, err)
	assert.Equal(t, "New goal", got.Goal.Content)
}

func TestApply_UnknownElement(t *testing.T) {
	engine, _, _, _ := setup(t, &stubCompleter{})

	_, err := engine.Apply(context.Background(), "u1", "missing", tree.ElementIdeal, Patch{Content: "x"})

	assert.ErrorIs(t, err, tree.ErrElementNotFound)
}
