// Package proposal holds the payloads a model run can attach to a tree
// element and the parser that turns raw model output into them.
package proposal

// Kind discriminates the payload carried by an element proposal.
type Kind string

const (
	KindDecomposition Kind = "decomposition"
	KindRefinement    Kind = "refinement"
)

// Valid reports whether k is one of the known proposal kinds.
func (k Kind) Valid() bool {
	return k == KindDecomposition || k == KindRefinement
}

// Payload is the type-specific body of an element proposal. The concrete
// variants are *Decomposition, *HolisticRefinement and *LegacyRefinement;
// consumers type-switch on them.
type Payload interface {
	Kind() Kind
}

// Action is the model's verdict on an existing ideal state.
type Action string

const (
	ActionKeep   Action = "keep"
	ActionModify Action = "modify"
)

// Evaluation is a keep/modify decision about an existing ideal state.
type Evaluation struct {
	ID         string  `json:"id"`
	Action     Action  `json:"action"`
	NewContent *string `json:"newContent,omitempty"`
}

// ResearchHint is the research source and keywords suggested for an addition.
// Source is not validated here; callers check it against the known sources.
type ResearchHint struct {
	Source   string   `json:"source"`
	Keywords []string `json:"keywords"`
}

// Addition is a new ideal state proposed by the model.
type Addition struct {
	Ideal     string        `json:"ideal"`
	Current   string        `json:"current"`
	Condition string        `json:"condition"`
	Research  *ResearchHint `json:"research,omitempty"`
}

// Decomposition is the result of a goal decomposition run.
type Decomposition struct {
	Existing  []Evaluation `json:"existing"`
	Additions []Addition   `json:"additions"`
}

// Kind implements Payload.
func (*Decomposition) Kind() Kind { return KindDecomposition }

// HolisticRefinement rewrites all three fields of an ideal state at once.
type HolisticRefinement struct {
	RefinedIdealState   string `json:"refinedIdealState"`
	RefinedCurrentState string `json:"refinedCurrentState"`
	RefinedCondition    string `json:"refinedCondition"`
	ReasonToKeep        string `json:"reasonToKeep"`
	ReasonToChange      string `json:"reasonToChange"`
}

// Kind implements Payload.
func (*HolisticRefinement) Kind() Kind { return KindRefinement }

// Field names a single refinable field of an element.
type Field string

const (
	FieldContent      Field = "content"
	FieldCondition    Field = "condition"
	FieldCurrentState Field = "currentState"
)

func (f Field) valid() bool {
	return f == FieldContent || f == FieldCondition || f == FieldCurrentState
}

// Suggestion is one single-field rewrite in the legacy refinement shape.
type Suggestion struct {
	Field        Field  `json:"field"`
	Value        string `json:"value"`
	KeepReason   string `json:"keepReason"`
	ChangeReason string `json:"changeReason"`
}

// LegacyRefinement is the suggestions-list shape used for goal refinement.
type LegacyRefinement struct {
	Suggestions []Suggestion `json:"suggestions"`
}

// Kind implements Payload.
func (*LegacyRefinement) Kind() Kind { return KindRefinement }
