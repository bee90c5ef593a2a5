package clauses

import (
	"fmt"
	"strconv"
	"strings"
)

// Render replaces every {{name}} in template with the string form of
// vars[name]. Names with no binding, or bound to nil, are left as the
// literal placeholder so missing data stays visible in the output.
func Render(template string, vars map[string]any) string {
	var out strings.Builder
	out.Grow(len(template))
	for _, tok := range Tokenize(template) {
		if tok.Kind != TokenPlaceholder {
			out.WriteString(tok.Raw)
			continue
		}
		v, ok := vars[tok.Value]
		if !ok || v == nil {
			out.WriteString(tok.Raw)
			continue
		}
		out.WriteString(Stringify(v))
	}
	return out.String()
}

// Unresolved lists the placeholder names still present in body, in
// first-seen order.
func Unresolved(body string) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, tok := range Tokenize(body) {
		if tok.Kind != TokenPlaceholder {
			continue
		}
		if _, ok := seen[tok.Value]; ok {
			continue
		}
		seen[tok.Value] = struct{}{}
		names = append(names, tok.Value)
	}
	return names
}

// Stringify converts a bound value to its rendered text. Integral floats
// print without a fractional part and lists join with ", ".
func Stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case []string:
		return strings.Join(v, ", ")
	case []any:
		parts := make([]string, len(v))
		for i, elem := range v {
			parts[i] = Stringify(elem)
		}
		return strings.Join(parts, ", ")
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
