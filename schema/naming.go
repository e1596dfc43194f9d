package schema

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// DefaultTable derives a table name from an entity kind: "TeamMember"
// becomes "team_members".
func DefaultTable(kind string) string {
	snake := toSnake(kind)
	if snake == "" {
		return ""
	}
	idx := strings.LastIndexByte(snake, '_')
	return snake[:idx+1] + inflection.Plural(snake[idx+1:])
}

// toSnake converts s to snake_case. Punctuation collapses into a single
// underscore so names stay usable as table names and cache key segments.
func toSnake(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	lastUnderscore := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if (unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower) && !lastUnderscore {
					b.WriteByte('_')
					lastUnderscore = true
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false

		case unicode.IsLower(r), unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false

		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	return strings.Trim(b.String(), "_")
}
