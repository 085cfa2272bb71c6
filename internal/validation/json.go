package validation

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls the JSON body out of a raw LLM response, tolerating
// markdown fences and surrounding prose. Returns false when no JSON
// object or array can be located.
func ExtractJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)

	// Strip a fenced block if the whole payload sits inside one.
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		rest = strings.TrimPrefix(rest, "JSON")
		if end := strings.Index(rest, "```"); end >= 0 {
			s = rest[:end]
		} else {
			s = rest
		}
		s = strings.TrimSpace(s)
	}

	// Slice from the first opening bracket to its matching closer.
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	open := s[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}
	end := strings.LastIndexByte(s, close)
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// DecodeJSON extracts and decodes the JSON body of raw into v. Returns a
// violation list instead of an error; nil means the decode succeeded.
func DecodeJSON(raw string, v any) []Violation {
	body, ok := ExtractJSON(raw)
	if !ok {
		return []Violation{{
			Rule:   RuleJSON,
			Detail: "no JSON object or array found in the response",
		}}
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return []Violation{{
			Rule:   RuleJSON,
			Detail: "response is not valid JSON: " + err.Error(),
		}}
	}
	return nil
}

// RequireNonEmpty returns a violation when value is empty.
func RequireNonEmpty(field, value string) *Violation {
	if strings.TrimSpace(value) == "" {
		return &Violation{Field: field, Rule: RuleRequired, Detail: "must not be empty"}
	}
	return nil
}

// RequireEnum returns a violation when value is not one of allowed.
func RequireEnum(field, value string, allowed []string) *Violation {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &Violation{
		Field:  field,
		Rule:   RuleEnum,
		Detail: `got "` + value + `", allowed: ` + strings.Join(allowed, ", "),
	}
}
