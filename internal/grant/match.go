package grant

import "github.com/gobwas/glob"

// Covers reports whether the grant authorizes the given actor, tool, and
// scope string. Actor and tool match exactly or via "*"; the scope string
// matches the grant scope as a glob.
func (g Grant) Covers(actor, tool, scope string) bool {
	if g.Actor != actor && g.Actor != "*" {
		return false
	}
	if g.Tool != tool && g.Tool != "*" {
		return false
	}
	return MatchScope(g.Scope, scope)
}

// MatchScope matches s against a shell-style pattern where '*' matches any
// run of characters including separators, '?' one character, and '[...]' a
// class. A pattern that fails to compile matches only itself.
func MatchScope(pattern, s string) bool {
	g, err := glob.Compile(pattern)
	if err != nil {
		return pattern == s
	}
	return g.Match(s)
}
