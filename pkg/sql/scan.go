package sql

import "strings"

// walkCode calls visit for every byte of q that is SQL code rather than a
// string literal, quoted identifier or comment. depth is the parenthesis
// nesting at that byte. Walking stops when visit returns false.
func walkCode(q string, visit func(i, depth int) bool) {
	depth := 0
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(q, i, c)
			continue
		case c == '[':
			i = skipQuoted(q, i, ']')
			continue
		case c == '-' && i+1 < len(q) && q[i+1] == '-':
			nl := strings.IndexByte(q[i:], '\n')
			if nl < 0 {
				return
			}
			i += nl
			continue
		case c == '/' && i+1 < len(q) && q[i+1] == '*':
			end := strings.Index(q[i+2:], "*/")
			if end < 0 {
				return
			}
			i += end + 3
			continue
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		}
		if !visit(i, depth) {
			return
		}
	}
}

// skipQuoted returns the index of the byte that closes the quoted run opened
// at open. A doubled closer stays inside the run, as does a backslash-escaped
// one in quote-delimited runs.
func skipQuoted(q string, open int, closer byte) int {
	for i := open + 1; i < len(q); i++ {
		switch q[i] {
		case '\\':
			if closer != ']' {
				i++
			}
		case closer:
			if i+1 < len(q) && q[i+1] == closer {
				i++
				continue
			}
			return i
		}
	}
	return len(q)
}

// topLevelWords lists the lowercased keywords and identifiers of q that sit
// outside parentheses, literals and comments.
func topLevelWords(q string) []string {
	var words []string
	start, prev := -1, -1
	flush := func(end int) {
		if start >= 0 {
			words = append(words, strings.ToLower(q[start:end]))
			start = -1
		}
	}
	walkCode(q, func(i, depth int) bool {
		if i != prev+1 {
			flush(prev + 1)
		}
		prev = i
		if depth == 0 && isWordChar(q[i]) {
			if start < 0 {
				start = i
			}
		} else {
			flush(i)
		}
		return true
	})
	flush(prev + 1)
	return words
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
