package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	tagPattern   = regexp.MustCompile(`(?s)<json>(.*?)</json>`)
	fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
)

// ParseOutput pulls the first JSON value out of a model reply. Tagged and
// fenced blocks are tried before a raw scan for the first object or array.
func ParseOutput(raw string) (interface{}, bool) {
	candidates := make([]string, 0, 3)
	if m := tagPattern.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, m[1])
	}
	candidates = append(candidates, raw)
	for _, c := range candidates {
		if v, ok := firstJSONValue(c); ok {
			return v, true
		}
	}
	return nil, false
}

func firstJSONValue(s string) (interface{}, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var v interface{}
		if err := dec.Decode(&v); err == nil {
			return v, true
		}
	}
	return nil, false
}

// schemaValue extracts the value stored under the schema id. Replies that
// skip the wrapping object are accepted as the value itself.
func schemaValue(s *Object, v interface{}) interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		if inner, ok := m[s.ID]; ok {
			return inner
		}
		if s.Many {
			return []interface{}{m}
		}
		return m
	}
	return v
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}
