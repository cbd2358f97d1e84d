package router

import (
	"regexp"
	"strings"

	"github.com/fathomdata/fathom/pkg/fault"
)

var tableRefPattern = regexp.MustCompile(`(?i)\b(?:from|join)\s+([A-Za-z_][A-Za-z0-9_.]*)`)

// extractTableRefs returns the table names referenced in FROM and JOIN
// clauses, in order of appearance, with string literals masked out first.
func extractTableRefs(query string) []string {
	masked := maskStringLiterals(query)
	matches := tableRefPattern.FindAllStringSubmatch(masked, -1)
	refs := make([]string, 0, len(matches))
	seen := make(map[string]struct{})
	for _, m := range matches {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		refs = append(refs, name)
	}
	return refs
}

// rewriteQuery substitutes every logical table reference with its backend
// expression. References to tables missing from the mapping are a caller
// error, reported rather than swallowed.
func rewriteQuery(query string, mapping map[string]string) (string, error) {
	for _, ref := range extractTableRefs(query) {
		if _, ok := mapping[ref]; !ok {
			return "", fault.New(fault.KindDispatch, "unknown table %q in query", ref)
		}
	}

	result := query
	for logical, expr := range mapping {
		if logical == expr {
			continue
		}
		result = replaceIdent(result, logical, expr)
	}
	return result, nil
}

// replaceIdent replaces whole-word occurrences of ident outside of
// single-quoted string literals.
func replaceIdent(query, ident, replacement string) string {
	pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(ident) + `\b`)

	var sb strings.Builder
	for len(query) > 0 {
		quote := strings.IndexByte(query, '\'')
		if quote == -1 {
			sb.WriteString(pattern.ReplaceAllString(query, replacement))
			break
		}
		sb.WriteString(pattern.ReplaceAllString(query[:quote], replacement))

		// Copy the string literal untouched, honoring '' escapes.
		rest := query[quote+1:]
		end := 0
		for {
			next := strings.IndexByte(rest[end:], '\'')
			if next == -1 {
				end = len(rest)
				break
			}
			end += next + 1
			if end < len(rest) && rest[end] == '\'' {
				end++
				continue
			}
			break
		}
		sb.WriteByte('\'')
		sb.WriteString(rest[:end])
		query = rest[end:]
	}
	return sb.String()
}

// maskStringLiterals blanks out single-quoted literals so reference
// extraction cannot match inside them.
func maskStringLiterals(query string) string {
	var sb strings.Builder
	inString := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '\'' {
			inString = !inString
			sb.WriteByte(c)
			continue
		}
		if inString {
			sb.WriteByte(' ')
		} else {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
