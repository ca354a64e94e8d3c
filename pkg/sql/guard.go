package sql

import (
	"fmt"
	"regexp"
	"strings"
)

var limitPattern = regexp.MustCompile(`(?i)\blimit\s+\d+`)

// EnsureRowLimit appends a LIMIT clause when the statement has none, capping
// the result size. Statements that already carry any LIMIT are left alone
// even if their limit exceeds the cap.
func EnsureRowLimit(sqlQuery string, cap int) string {
	trimmed := strings.TrimRight(sqlQuery, " \t\n\r")
	if trimmed == "" {
		return trimmed
	}

	if limitPattern.MatchString(trimmed) {
		return trimmed
	}

	return fmt.Sprintf("%s\nLIMIT %d", trimmed, cap)
}

// selectPattern matches statements that begin with SELECT or WITH (CTEs).
var selectPattern = regexp.MustCompile(`(?is)^\s*(select|with)\b`)

// IsReadOnly reports whether the statement is a SELECT (possibly prefixed
// by a CTE).
func IsReadOnly(sqlQuery string) bool {
	return selectPattern.MatchString(sqlQuery)
}
