// Package shellwords splits and joins command lines using POSIX shell
// quoting rules. It exists so that a command arriving as a string is parsed
// exactly the way the scope strings written into grants are rendered.
package shellwords

import (
	"fmt"
	"regexp"
	"strings"
)

// Split divides a command line into words. Single quotes preserve content
// literally; double quotes honor backslash escapes for \" \\ \$ and
// backticks; an unquoted backslash escapes the next byte. Unterminated
// quotes and a trailing backslash are errors.
func Split(s string) ([]string, error) {
	var words []string
	var cur strings.Builder
	inWord := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			inWord = true
			end := strings.IndexByte(s[i+1:], '\'')
			if end < 0 {
				return nil, fmt.Errorf("no closing single quote")
			}
			cur.WriteString(s[i+1 : i+1+end])
			i += end + 1

		case c == '"':
			inWord = true
			i++
			closed := false
			for ; i < len(s); i++ {
				c = s[i]
				if c == '\\' && i+1 < len(s) {
					switch s[i+1] {
					case '"', '\\', '$', '`':
						cur.WriteByte(s[i+1])
						i++
						continue
					}
					cur.WriteByte(c)
					continue
				}
				if c == '"' {
					closed = true
					break
				}
				cur.WriteByte(c)
			}
			if !closed {
				return nil, fmt.Errorf("no closing double quote")
			}

		case c == '\\':
			if i+1 >= len(s) {
				return nil, fmt.Errorf("no escaped character")
			}
			inWord = true
			cur.WriteByte(s[i+1])
			i++

		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}

		default:
			inWord = true
			cur.WriteByte(c)
		}
	}

	if inWord {
		words = append(words, cur.String())
	}
	return words, nil
}

var unsafeChars = regexp.MustCompile(`[^\w@%+=:,./-]`)

// Quote returns s in a form safe to paste into a shell command line.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if !unsafeChars.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Join quotes every word and joins them with single spaces. For well-formed
// input it is the inverse of Split.
func Join(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = Quote(w)
	}
	return strings.Join(quoted, " ")
}
