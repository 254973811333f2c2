package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNotJSON is returned when a reply contains no decodable JSON value.
var ErrNotJSON = errors.New("model reply is not JSON")

// ExtractJSON decodes a model reply that should be JSON. Markdown code fences
// are stripped first; if the remainder still does not decode, the outermost
// {...} span is tried.
func ExtractJSON(text string) (any, error) {
	cleaned := stripFences(text)

	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err == nil {
		return v, nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &v); err == nil {
			return v, nil
		}
	}
	return nil, ErrNotJSON
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the language tag line, e.g. ```json.
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
