// Package reference parses and rewrites <name.path> cross-reference
// tokens embedded in block parameter values. Tokens are handled
// structurally rather than by raw text replacement, so renaming a block
// can never partially match a substring of an unrelated name.
package reference

import (
	"strings"

	"github.com/xde-mcp/sim-sub005/pkg/models"
)

// Token is one <name.path> occurrence inside a string value.
type Token struct {
	Name  string // Referenced block name segment, as written
	Path  string // Dotted path after the name, may be empty
	Start int    // Byte offset of '<'
	End   int    // Byte offset one past '>'
}

// Raw returns the token as written, including the angle brackets.
func (t Token) Raw(s string) string {
	return s[t.Start:t.End]
}

// Parse scans a string for <name.path> tokens. A token opens at '<',
// closes at the next '>', and must contain a non-empty name segment
// whose characters are limited to the identifier set (letters, digits,
// underscore, hyphen). Anything else, e.g. "a < b", is left alone.
func Parse(s string) []Token {
	var tokens []Token

	for i := 0; i < len(s); i++ {
		if s[i] != '<' {
			continue
		}

		end := strings.IndexByte(s[i+1:], '>')
		if end < 0 {
			break
		}

		end += i + 1
		inner := s[i+1 : end]

		name, path, ok := splitToken(inner)
		if ok {
			tokens = append(tokens, Token{Name: name, Path: path, Start: i, End: end + 1})
			i = end
		}
	}

	return tokens
}

func splitToken(inner string) (string, string, bool) {
	if inner == "" {
		return "", "", false
	}

	name := inner
	path := ""

	if dot := strings.IndexByte(inner, '.'); dot >= 0 {
		name = inner[:dot]
		path = inner[dot+1:]
	}

	if name == "" || !validName(name) {
		return "", "", false
	}

	return name, path, true
}

func validName(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}

	return true
}

// Rewrite replaces every token whose normalized name appears in renames
// with the mapped new name, keeping the path untouched. Names that only
// contain a renamed name as a substring are not affected.
func Rewrite(s string, renames map[string]string) string {
	tokens := Parse(s)
	if len(tokens) == 0 {
		return s
	}

	var out strings.Builder

	last := 0

	for _, token := range tokens {
		newName, ok := renames[models.NormalizeName(token.Name)]
		if !ok {
			continue
		}

		out.WriteString(s[last:token.Start])
		out.WriteByte('<')
		out.WriteString(models.NormalizeName(newName))

		if token.Path != "" {
			out.WriteByte('.')
			out.WriteString(token.Path)
		}

		out.WriteByte('>')

		last = token.End
	}

	out.WriteString(s[last:])

	return out.String()
}

// RewriteValue deep-walks maps and slices, rewriting every string leaf.
// Non-string scalars are returned untouched.
func RewriteValue(value any, renames map[string]string) any {
	switch typed := value.(type) {
	case string:
		return Rewrite(typed, renames)
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = RewriteValue(v, renames)
		}

		return out
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = RewriteValue(v, renames)
		}

		return out
	default:
		return value
	}
}
