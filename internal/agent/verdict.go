package agent

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Verdict is the JSON object an agent returns. Every field is optional.
type Verdict map[string]any

// Has reports whether the key is present and non-null.
func (v Verdict) Has(key string) bool {
	val, ok := v[key]
	return ok && val != nil
}

// Text returns a non-blank string field.
func (v Verdict) Text(key string) (string, bool) {
	s, ok := v[key].(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Is reports whether a string field equals the literal exactly.
func (v Verdict) Is(key, literal string) bool {
	s, ok := v[key].(string)
	return ok && s == literal
}

// Flag reports whether the field is the boolean true. Strings and numbers do not count.
func (v Verdict) Flag(key string) bool {
	b, ok := v[key].(bool)
	return ok && b
}

// Number returns a positive integer field, rounded. Numeric strings are
// accepted. Zero, negative, non-finite and out-of-range values count as absent.
func (v Verdict) Number(key string) (int, bool) {
	var f float64
	switch x := v[key].(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	r := math.Round(f)
	if r <= 0 || r > math.MaxInt32 {
		return 0, false
	}
	return int(r), true
}

// List returns the object elements of an array field. ok is false when the
// field is not an array; skipped counts elements that are not objects.
func (v Verdict) List(key string) (items []Verdict, skipped int, ok bool) {
	var raw []any
	switch x := v[key].(type) {
	case []any:
		raw = x
	case []map[string]any:
		for _, m := range x {
			items = append(items, Verdict(m))
		}
		return items, 0, true
	default:
		return nil, 0, false
	}
	for _, el := range raw {
		if m, isObj := el.(map[string]any); isObj {
			items = append(items, Verdict(m))
		} else {
			skipped++
		}
	}
	return items, skipped, true
}

// Missing lists the given keys that are absent or null.
func (v Verdict) Missing(keys ...string) []string {
	var out []string
	for _, k := range keys {
		if !v.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// TextRule resolves a display string from the first usable field, else Default.
type TextRule struct {
	Fields  []string
	Default string
}

// Resolve returns the value and the field it came from ("" when the default was used).
func (r TextRule) Resolve(v Verdict) (string, string) {
	for _, f := range r.Fields {
		if s, ok := v.Text(f); ok {
			return s, f
		}
	}
	return r.Default, ""
}

// NumberRule resolves an integer from the first positive field, else the caller's fallback.
type NumberRule struct {
	Fields []string
}

// Resolve returns the value and the field it came from ("" when fallback was used).
func (r NumberRule) Resolve(v Verdict, fallback int) (int, string) {
	for _, f := range r.Fields {
		if n, ok := v.Number(f); ok {
			return n, f
		}
	}
	return fallback, ""
}

// ParseVerdict decodes an agent result that may arrive as an object or as
// a JSON document embedded in text (optionally fenced in markdown).
func ParseVerdict(raw any) (Verdict, error) {
	switch x := raw.(type) {
	case nil:
		return nil, ErrEmptyVerdict
	case map[string]any:
		return Verdict(x), nil
	case Verdict:
		return x, nil
	case string:
		payload := extractJSONPayload(x)
		var m map[string]any
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return nil, fmt.Errorf("%w: result text is not a JSON object", ErrEmptyVerdict)
		}
		if m == nil {
			return nil, ErrEmptyVerdict
		}
		return Verdict(m), nil
	default:
		return nil, fmt.Errorf("%w: unexpected result type %T", ErrEmptyVerdict, raw)
	}
}

func extractJSONPayload(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "{}"
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end >= start {
		return trimmed[start : end+1]
	}
	return trimmed
}
