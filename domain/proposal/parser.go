package proposal

import (
	"encoding/json"
	"strconv"
)

// ParseDecomposition normalizes decoded model output into a Decomposition.
//
// It never fails: anything that is not a JSON object yields empty lists, and
// malformed entries are dropped individually so one bad element does not
// discard the rest of the response. Existing entries need both "id" and
// "action"; an action other than exactly "modify" becomes "keep". Additions
// need "ideal"; a research hint is kept only when "research" is an object.
func ParseDecomposition(raw any) *Decomposition {
	out := &Decomposition{
		Existing:  []Evaluation{},
		Additions: []Addition{},
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return out
	}

	if entries, ok := obj["existing"].([]any); ok {
		for _, entry := range entries {
			if eval, ok := parseEvaluation(entry); ok {
				out.Existing = append(out.Existing, eval)
			}
		}
	}

	if entries, ok := obj["additions"].([]any); ok {
		for _, entry := range entries {
			if add, ok := parseAddition(entry); ok {
				out.Additions = append(out.Additions, add)
			}
		}
	}

	return out
}

func parseEvaluation(entry any) (Evaluation, bool) {
	m, ok := entry.(map[string]any)
	if !ok {
		return Evaluation{}, false
	}
	id, hasID := m["id"]
	action, hasAction := m["action"]
	if !hasID || !hasAction {
		return Evaluation{}, false
	}

	eval := Evaluation{ID: coerceString(id), Action: ActionKeep}
	if s, ok := action.(string); ok && s == string(ActionModify) {
		eval.Action = ActionModify
	}
	if v, ok := m["newContent"]; ok && v != nil {
		content := coerceString(v)
		eval.NewContent = &content
	}
	return eval, true
}

func parseAddition(entry any) (Addition, bool) {
	m, ok := entry.(map[string]any)
	if !ok {
		return Addition{}, false
	}
	ideal, ok := m["ideal"]
	if !ok {
		return Addition{}, false
	}

	add := Addition{
		Ideal:     coerceString(ideal),
		Current:   stringField(m, "current"),
		Condition: stringField(m, "condition"),
	}
	if research, ok := m["research"].(map[string]any); ok {
		hint := &ResearchHint{
			Source:   stringField(research, "source"),
			Keywords: []string{},
		}
		if kws, ok := research["keywords"].([]any); ok {
			for _, kw := range kws {
				hint.Keywords = append(hint.Keywords, coerceString(kw))
			}
		}
		add.Research = hint
	}
	return add, true
}

var holisticKeys = []string{"refinedIdealState", "refinedCurrentState", "refinedCondition"}

// ParseHolisticRefinement normalizes model output for an ideal-state
// refinement. It returns nil when the output is not an object or carries none
// of the refined fields.
func ParseHolisticRefinement(raw any) *HolisticRefinement {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	found := false
	for _, key := range holisticKeys {
		if _, ok := m[key]; ok {
			found = true
			break
		}
	}
	if !found {
		return nil
	}
	return &HolisticRefinement{
		RefinedIdealState:   stringField(m, "refinedIdealState"),
		RefinedCurrentState: stringField(m, "refinedCurrentState"),
		RefinedCondition:    stringField(m, "refinedCondition"),
		ReasonToKeep:        stringField(m, "reasonToKeep"),
		ReasonToChange:      stringField(m, "reasonToChange"),
	}
}

// ParseLegacyRefinement normalizes model output in the suggestions-list shape.
// Suggestions with an unknown field or no value are dropped. It returns nil
// when the output is not an object.
func ParseLegacyRefinement(raw any) *LegacyRefinement {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	out := &LegacyRefinement{Suggestions: []Suggestion{}}
	entries, _ := m["suggestions"].([]any)
	for _, entry := range entries {
		s, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		field := Field(stringField(s, "field"))
		value, hasValue := s["value"]
		if !field.valid() || !hasValue {
			continue
		}
		out.Suggestions = append(out.Suggestions, Suggestion{
			Field:        field,
			Value:        coerceString(value),
			KeepReason:   stringField(s, "keepReason"),
			ChangeReason: stringField(s, "changeReason"),
		})
	}
	return out
}

// Decode rebuilds a typed payload from its decoded JSON form. Refinement
// payloads carrying a "suggestions" key decode as the legacy shape. It
// returns nil for unknown kinds or unusable data.
func Decode(kind Kind, raw any) Payload {
	switch kind {
	case KindDecomposition:
		if raw == nil {
			return nil
		}
		return ParseDecomposition(raw)
	case KindRefinement:
		if m, ok := raw.(map[string]any); ok {
			if _, legacy := m["suggestions"]; legacy {
				return ParseLegacyRefinement(raw)
			}
		}
		if h := ParseHolisticRefinement(raw); h != nil {
			return h
		}
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return coerceString(v)
}

// coerceString renders a decoded JSON value as text.
func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
