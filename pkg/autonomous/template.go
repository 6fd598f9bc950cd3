package autonomous

import (
	"fmt"
	"regexp"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

// Context is the data a workflow run resolves placeholders and records
// against. Data accumulates step outputs and extracted fields as the run
// progresses.
type Context struct {
	BusinessID string
	LocationID string
	CustomerID string
	SessionID  string
	Channel    string
	Date       string
	Time       string

	Data map[string]any
}

func (c *Context) lookup(name string) (string, bool) {
	switch name {
	case "businessId":
		return c.BusinessID, c.BusinessID != ""
	case "locationId":
		return c.LocationID, c.LocationID != ""
	case "customerId":
		return c.CustomerID, c.CustomerID != ""
	case "sessionId":
		return c.SessionID, c.SessionID != ""
	case "channel":
		return c.Channel, c.Channel != ""
	case "date":
		return c.Date, c.Date != ""
	case "time":
		return c.Time, c.Time != ""
	}

	if value, ok := c.Data[name]; ok {
		return fmt.Sprint(value), true
	}

	return "", false
}

// Substitute resolves {placeholder} occurrences by literal substitution
// against the workflow context. Unresolved placeholders stay verbatim: a
// data-quality defect to surface downstream, not a hard error.
func Substitute(input string, wctx *Context) string {
	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[1 : len(match)-1]

		if value, ok := wctx.lookup(name); ok {
			return value
		}

		return match
	})
}

// SubstituteMap resolves placeholders in every string value of a config map,
// recursing into nested maps. Non-string values pass through untouched.
func SubstituteMap(config map[string]any, wctx *Context) map[string]any {
	out := make(map[string]any, len(config))

	for key, value := range config {
		switch v := value.(type) {
		case string:
			out[key] = Substitute(v, wctx)
		case map[string]any:
			out[key] = SubstituteMap(v, wctx)
		default:
			out[key] = v
		}
	}

	return out
}
