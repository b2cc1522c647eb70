package adapter

import (
	"fmt"
	"strconv"
	"strings"
)

// Props is the untyped argument bag a host passes to an adapter function.
// Values come either from JSON decoding or from CLI flags, so getters accept both shapes.
type Props map[string]any

func (p Props) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func (p Props) Bool(key string) bool {
	switch t := p[key].(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	default:
		return false
	}
}

// Int returns the integer value for key. ok is false when the key is absent or not integral.
func (p Props) Int(key string) (int64, bool) {
	switch t := p[key].(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		if t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Strings accepts a JSON array or a comma separated string.
func (p Props) Strings(key string) []string {
	var raw []string
	switch t := p[key].(type) {
	case []string:
		raw = t
	case []any:
		for _, item := range t {
			raw = append(raw, fmt.Sprint(item))
		}
	case string:
		raw = strings.Split(t, ",")
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (p Props) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}
