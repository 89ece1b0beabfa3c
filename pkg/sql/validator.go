// Package sql checks user-authored dashboard SQL before it reaches a
// relational source and caps how many rows it can return.
package sql

import (
	"errors"
	"strings"

	"github.com/ekaya-inc/ekaya-charts/pkg/apperrors"
)

var (
	ErrEmptyQuery         = errors.New("query is required")
	ErrMultipleStatements = errors.New("a dataset query must be a single statement")
	ErrNotReadOnly        = errors.New("a dataset query must be a SELECT or WITH statement")
)

// ValidateDashboardQuery returns the query with surrounding whitespace and a
// single trailing semicolon removed. Rejections are *apperrors.ValidationError
// on the "query" field wrapping one of the errors above.
func ValidateDashboardQuery(query string) (string, error) {
	q := strings.TrimSpace(query)

	if semi := firstSemicolon(q); semi >= 0 {
		// Only comments may follow the terminating semicolon.
		if stripLeadingComments(q[semi+1:]) != "" {
			return "", apperrors.InvalidInput("query", ErrMultipleStatements)
		}
		q = strings.TrimSpace(q[:semi])
	}

	if stripLeadingComments(q) == "" {
		return "", apperrors.InvalidInput("query", ErrEmptyQuery)
	}
	if !IsReadOnly(q) {
		return "", apperrors.InvalidInput("query", ErrNotReadOnly)
	}
	return q, nil
}

var readOnlyPrefixes = []string{"select", "with"}

// IsReadOnly reports whether the statement is a SELECT or a CTE. Leading
// comments and opening parentheses are skipped.
func IsReadOnly(query string) bool {
	q := strings.TrimLeft(stripLeadingComments(query), "( \t\r\n")
	lower := strings.ToLower(q)
	for _, p := range readOnlyPrefixes {
		if strings.HasPrefix(lower, p) {
			rest := lower[len(p):]
			if rest == "" || !isWordChar(rest[0]) {
				return true
			}
		}
	}
	return false
}

func firstSemicolon(q string) int {
	at := -1
	walkCode(q, func(i, _ int) bool {
		if q[i] == ';' {
			at = i
			return false
		}
		return true
	})
	return at
}

func stripLeadingComments(q string) string {
	for {
		q = strings.TrimSpace(q)
		switch {
		case strings.HasPrefix(q, "--"):
			idx := strings.IndexByte(q, '\n')
			if idx < 0 {
				return ""
			}
			q = q[idx+1:]
		case strings.HasPrefix(q, "/*"):
			idx := strings.Index(q, "*/")
			if idx < 0 {
				return ""
			}
			q = q[idx+2:]
		default:
			return q
		}
	}
}
