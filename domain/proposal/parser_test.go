package proposal

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func strPtr(s string) *string { return &s }

func TestParseDecomposition_NonObjectInput(t *testing.T) {
	inputs := map[string]any{
		"nil":    nil,
		"array":  []any{map[string]any{"existing": []any{}}},
		"string": "existing",
		"number": 42.0,
		"bool":   true,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			var got *Decomposition
			assert.NotPanics(t, func() { got = ParseDecomposition(input) })

			require.NotNil(t, got)
			assert.Empty(t, got.Existing)
			assert.Empty(t, got.Additions)
			assert.NotNil(t, got.Existing)
			assert.NotNil(t, got.Additions)
		})
	}
}

func TestParseDecomposition_DropsMalformedSiblings(t *testing.T) {
	// Arrange
	raw := decode(t, `{
		"existing": [
			{"id": "i1", "action": "modify", "newContent": "Y"},
			{"id": "i2"},
			"garbage",
			{"id": "i3", "action": "delete"},
			{"id": 7, "action": "keep", "newContent": null},
			null
		],
		"additions": [
			{"ideal": "Z", "current": "C", "condition": "D",
			 "research": {"source": "arxiv", "keywords": ["a", 1, true]}},
			{"current": "missing ideal"},
			{"ideal": "W", "research": "not an object"},
			{"ideal": "V", "research": {"keywords": "nope"}},
			[]
		]
	}`)

	// Act
	got := ParseDecomposition(raw)

	// Assert
	want := &Decomposition{
		Existing: []Evaluation{
			{ID: "i1", Action: ActionModify, NewContent: strPtr("Y")},
			{ID: "i3", Action: ActionKeep},
			{ID: "7", Action: ActionKeep},
		},
		Additions: []Addition{
			{Ideal: "Z", Current: "C", Condition: "D",
				Research: &ResearchHint{Source: "arxiv", Keywords: []string{"a", "1", "true"}}},
			{Ideal: "W"},
			{Ideal: "V", Research: &ResearchHint{Source: "", Keywords: []string{}}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseDecomposition mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDecomposition_ReparseKeepsCounts(t *testing.T) {
	raw := decode(t, `{
		"existing": [{"id": "a", "action": "keep"}, {"action": "modify"}, {"id": "b", "action": "modify", "newContent": "x"}],
		"additions": [{"ideal": "one"}, {"nope": 1}, {"ideal": "two", "research": {"source": "pubmed", "keywords": ["k"]}}]
	}`)

	first := ParseDecomposition(raw)
	encoded, err := json.Marshal(first)
	require.NoError(t, err)
	second := ParseDecomposition(decode(t, string(encoded)))

	assert.Len(t, first.Existing, 2)
	assert.Len(t, first.Additions, 2)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("reparse changed the proposal (-first +second):\n%s", diff)
	}
}

func TestParseHolisticRefinement(t *testing.T) {
	t.Run("complete object", func(t *testing.T) {
		got := ParseHolisticRefinement(decode(t, `{
			"refinedIdealState": "A2", "refinedCurrentState": "C2", "refinedCondition": "B2",
			"reasonToKeep": "keep", "reasonToChange": "change"}`))

		require.NotNil(t, got)
		assert.Equal(t, "A2", got.RefinedIdealState)
		assert.Equal(t, "C2", got.RefinedCurrentState)
		assert.Equal(t, "B2", got.RefinedCondition)
		assert.Equal(t, "keep", got.ReasonToKeep)
		assert.Equal(t, "change", got.ReasonToChange)
	})

	t.Run("partial object fills blanks", func(t *testing.T) {
		got := ParseHolisticRefinement(decode(t, `{"refinedCondition": null, "refinedIdealState": 3}`))

		require.NotNil(t, got)
		assert.Equal(t, "3", got.RefinedIdealState)
		assert.Empty(t, got.RefinedCondition)
	})

	t.Run("unusable", func(t *testing.T) {
		assert.Nil(t, ParseHolisticRefinement(nil))
		assert.Nil(t, ParseHolisticRefinement([]any{}))
		assert.Nil(t, ParseHolisticRefinement(decode(t, `{"suggestions": []}`)))
	})
}

func TestParseLegacyRefinement(t *testing.T) {
	got := ParseLegacyRefinement(decode(t, `{"suggestions": [
		{"field": "content", "value": "new goal", "keepReason": "k", "changeReason": "c"},
		{"field": "title", "value": "dropped"},
		{"field": "condition"},
		42
	]}`))

	require.NotNil(t, got)
	require.Len(t, got.Suggestions, 1)
	assert.Equal(t, Suggestion{Field: FieldContent, Value: "new goal", KeepReason: "k", ChangeReason: "c"}, got.Suggestions[0])

	assert.Nil(t, ParseLegacyRefinement("text"))
	assert.Empty(t, ParseLegacyRefinement(map[string]any{}).Suggestions)
}

func TestDecode(t *testing.T) {
	assert.IsType(t, &Decomposition{}, Decode(KindDecomposition, map[string]any{}))
	assert.Nil(t, Decode(KindDecomposition, nil))
	assert.IsType(t, &LegacyRefinement{}, Decode(KindRefinement, decode(t, `{"suggestions": []}`)))
	assert.IsType(t, &HolisticRefinement{}, Decode(KindRefinement, decode(t, `{"refinedIdealState": "x"}`)))
	assert.Nil(t, Decode(KindRefinement, decode(t, `{"other": "x"}`)))
	assert.Nil(t, Decode(Kind("bogus"), map[string]any{}))
}
