// Package clauses binds clause bodies to variables.
//
// Two operations share one token grammar:
//
//   - Extraction (ingestion): "[Free text]" phrases become declared variables
//     and are rewritten to "{{snake_name}}" placeholders, then the known firm
//     aliases are rewritten to "{{firm.name}}".
//   - Rendering (generation): "{{name}}" placeholders are replaced with bound
//     values. Unbound placeholders stay in the output so gaps remain visible.
//
// Scanning goes through Tokenize. The one exception is Extract's literal
// pass, which rewrites further "[phrase]" occurrences of phrases already
// declared, such as markdown link text.
package clauses

import "strings"

// TokenKind classifies a token.
type TokenKind int

const (
	// TokenText is literal text.
	TokenText TokenKind = iota
	// TokenBracket is an ingestion-time "[phrase]" placeholder.
	TokenBracket
	// TokenPlaceholder is a render-time "{{name}}" placeholder.
	TokenPlaceholder
)

// Token is one element of a tokenized clause body. Raw is the exact source
// text; Value is the bracket phrase or the placeholder name.
type Token struct {
	Kind  TokenKind
	Raw   string
	Value string
}

// Tokenize splits s into text, bracket and placeholder tokens, left to right.
//
// A bracket token is "[" ... "]" with no nested "[" and not immediately
// followed by "(" (markdown link text is left to Extract). The phrase may
// span lines. A
// placeholder is "{{" name "}}" where name is made of letters, digits, "_"
// and "."; surrounding spaces inside the braces are tolerated. Anything else
// is text. Concatenating every Raw reproduces s exactly.
func Tokenize(s string) []Token {
	var tokens []Token
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			tokens = append(tokens, Token{Kind: TokenText, Raw: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "{{") {
			if end, name, ok := scanPlaceholder(s, i); ok {
				flush()
				tokens = append(tokens, Token{Kind: TokenPlaceholder, Raw: s[i:end], Value: name})
				i = end
				continue
			}
		}
		if s[i] == '[' {
			if end, phrase, ok := scanBracket(s, i); ok {
				flush()
				tokens = append(tokens, Token{Kind: TokenBracket, Raw: s[i:end], Value: phrase})
				i = end
				continue
			}
		}
		text.WriteByte(s[i])
		i++
	}
	flush()
	return tokens
}

// scanPlaceholder reads "{{name}}" starting at i.
func scanPlaceholder(s string, i int) (end int, name string, ok bool) {
	idx := strings.Index(s[i+2:], "}}")
	if idx < 0 {
		return 0, "", false
	}
	inner := strings.TrimSpace(s[i+2 : i+2+idx])
	if !isPlaceholderName(inner) {
		return 0, "", false
	}
	return i + 2 + idx + 2, inner, true
}

// scanBracket reads "[phrase]" starting at i.
func scanBracket(s string, i int) (end int, phrase string, ok bool) {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '[':
			return 0, "", false
		case ']':
			if j+1 < len(s) && s[j+1] == '(' {
				return 0, "", false
			}
			return j + 1, s[i+1 : j], true
		}
	}
	return 0, "", false
}

func isPlaceholderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// VariableName derives a variable name from a bracket phrase: lower-cased,
// runs of non-alphanumerics collapsed to "_", leading and trailing "_"
// trimmed. Returns "" when nothing alphanumeric remains.
func VariableName(phrase string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(phrase) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
