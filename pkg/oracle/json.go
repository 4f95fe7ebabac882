package oracle

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractJSON recovers a JSON object from model output that may be wrapped
// in prose or markdown code fences. It returns false when no valid object is
// found.
func ExtractJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if gjson.Valid(s) && strings.HasPrefix(s, "{") {
		return s, true
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	candidate := s[start : end+1]
	if !gjson.Valid(candidate) {
		return "", false
	}
	return candidate, true
}

// StringField returns the string at path in the JSON object embedded in raw.
func StringField(raw, path string) (string, bool) {
	obj, ok := ExtractJSON(raw)
	if !ok {
		return "", false
	}
	v := gjson.Get(obj, path)
	if v.Type != gjson.String {
		return "", false
	}
	return v.String(), true
}

// BoolField returns the boolean at path in the JSON object embedded in raw.
// The strings "true" and "false" are accepted as booleans.
func BoolField(raw, path string) (value, ok bool) {
	obj, found := ExtractJSON(raw)
	if !found {
		return false, false
	}
	v := gjson.Get(obj, path)
	switch v.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	}
	return false, false
}
