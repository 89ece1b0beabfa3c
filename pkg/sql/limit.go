package sql

import (
	"fmt"
	"slices"
	"strings"
)

// WrapWithRowLimit caps the rows a validated dashboard query can return.
// Most drivers get the query as a derived table with an outer LIMIT. The inner
// query sits on its own lines so a trailing line comment cannot swallow the
// closing parenthesis.
//
// SQL Server has no LIMIT and rejects ORDER BY and CTEs inside derived tables,
// so unless the query already carries TOP or OFFSET it is capped in place with
// OFFSET ... FETCH.
func WrapWithRowLimit(query, driver string, limit int) string {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return query
	}
	if driver != "mssql" {
		return fmt.Sprintf("SELECT * FROM (\n%s\n) AS _limited LIMIT %d", query, limit)
	}

	words := topLevelWords(query)
	switch {
	case slices.Contains(words, "top"), slices.Contains(words, "offset"):
		return fmt.Sprintf("SELECT TOP (%d) * FROM (\n%s\n) AS _limited", limit, query)
	case hasOrderBy(words):
		return fmt.Sprintf("%s\nOFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", query, limit)
	case slices.ContainsFunc(words, isSetOperator):
		// ORDER BY (SELECT NULL) is not allowed on a compound query.
		return fmt.Sprintf("SELECT TOP (%d) * FROM (\n%s\n) AS _limited", limit, query)
	default:
		return fmt.Sprintf("%s\nORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", query, limit)
	}
}

func hasOrderBy(words []string) bool {
	for i := 0; i+1 < len(words); i++ {
		if words[i] == "order" && words[i+1] == "by" {
			return true
		}
	}
	return false
}

func isSetOperator(w string) bool {
	return w == "union" || w == "except" || w == "intersect"
}
