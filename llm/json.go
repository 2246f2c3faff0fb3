package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON parses a model response into v, tolerating the decoration
// models add around JSON: markdown fences, leading prose, trailing text.
// It finds the first balanced JSON object in the response and unmarshals it.
//
// A failure here is never fatal to the pipeline; callers fall back to their
// heuristic defaults.
func DecodeJSON(raw string, v any) error {
	raw = strings.TrimSpace(raw)

	// Strip markdown fences.
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.LastIndex(raw, "```"); idx >= 0 {
			raw = raw[:idx]
		}
		raw = strings.TrimSpace(raw)
	}

	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}

	obj := firstJSONObject(raw)
	if obj == "" {
		return fmt.Errorf("llm: no JSON object in response")
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("llm: decode JSON: %w", err)
	}
	return nil
}

// firstJSONObject returns the first balanced {...} substring, respecting
// strings and escapes.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
