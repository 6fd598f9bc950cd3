package completion

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Completion output is never trusted to be well-formed JSON. Every call site
// goes through the same parse-or-default combinator instead of bespoke
// try/catch parsing: extract the JSON body if one exists, then read each
// field with a caller-supplied default.

// Result wraps a completion response for defensive field access.
type Result struct {
	doc gjson.Result
}

// ParseJSON extracts the first JSON object from raw completion text, coping
// with markdown fences and prose around the payload. The zero Result is
// returned when nothing parseable is found; all field reads then yield their
// defaults.
func ParseJSON(text string) Result {
	trimmed := strings.TrimSpace(text)

	if start := strings.Index(trimmed, "```"); start >= 0 {
		trimmed = trimmed[start+3:]
		trimmed = strings.TrimPrefix(trimmed, "json")

		if end := strings.Index(trimmed, "```"); end >= 0 {
			trimmed = trimmed[:end]
		}

		trimmed = strings.TrimSpace(trimmed)
	}

	if open := strings.Index(trimmed, "{"); open >= 0 {
		if close := strings.LastIndex(trimmed, "}"); close > open {
			trimmed = trimmed[open : close+1]
		}
	}

	if !gjson.Valid(trimmed) {
		return Result{}
	}

	return Result{doc: gjson.Parse(trimmed)}
}

// Valid reports whether a JSON body was extracted.
func (r Result) Valid() bool {
	return r.doc.Type != gjson.Null || r.doc.IsObject() || r.doc.IsArray()
}

// StringOr reads a string field, returning def when absent or not a string.
func (r Result) StringOr(path, def string) string {
	field := r.doc.Get(path)
	if field.Type != gjson.String {
		return def
	}

	return field.String()
}

// FloatOr reads a numeric field, returning def when absent or non-numeric.
func (r Result) FloatOr(path string, def float64) float64 {
	field := r.doc.Get(path)
	if field.Type != gjson.Number {
		return def
	}

	return field.Float()
}

// BoolOr reads a boolean field, returning def when absent or non-boolean.
func (r Result) BoolOr(path string, def bool) bool {
	field := r.doc.Get(path)
	if field.Type != gjson.True && field.Type != gjson.False {
		return def
	}

	return field.Bool()
}

// MapOr reads an object field as a generic map, returning def when absent or
// not an object. An empty path reads the whole document.
func (r Result) MapOr(path string, def map[string]any) map[string]any {
	field := r.doc
	if path != "" {
		field = r.doc.Get(path)
	}
	if !field.IsObject() {
		return def
	}

	out, ok := field.Value().(map[string]any)
	if !ok {
		return def
	}

	return out
}
