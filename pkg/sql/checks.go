package sql

import (
	"fmt"
	"regexp"
	"strings"
)

// CheckResult is the outcome of static checks on a generated statement.
// Errors block execution; warnings travel with the statement as hints.
type CheckResult struct {
	Errors   []string
	Warnings []string
}

// OK reports whether the statement passed all blocking checks.
func (r *CheckResult) OK() bool {
	return len(r.Errors) == 0
}

var dangerousPattern = regexp.MustCompile(`(?i)\b(drop|truncate|delete|insert|update|alter|create|grant|revoke)\b`)

// CheckGeneratedSQL runs the static checks applied to every generated
// statement before it is sent to the target database:
//
//   - single statement only
//   - must be a read-only SELECT (or CTE)
//   - no data-modifying keywords outside string literals
//   - balanced parentheses and quotes
//   - each expected table should appear in the text (warning only,
//     since aliases and quoting can hide a legitimate reference)
func CheckGeneratedSQL(sqlQuery string, expectedTables []string) CheckResult {
	var result CheckResult

	v := ValidateAndNormalize(sqlQuery)
	if v.Error != nil {
		result.Errors = append(result.Errors, v.Error.Error())
		return result
	}
	normalized := v.NormalizedSQL

	if strings.TrimSpace(normalized) == "" {
		result.Errors = append(result.Errors, "statement is empty")
		return result
	}

	if !IsReadOnly(normalized) {
		result.Errors = append(result.Errors, "statement must be a SELECT")
	}

	stripped := stripStringLiterals(normalized)

	if m := dangerousPattern.FindString(stripped); m != "" {
		result.Errors = append(result.Errors, fmt.Sprintf("statement contains forbidden keyword %q", strings.ToUpper(m)))
	}

	if !balancedParens(stripped) {
		result.Errors = append(result.Errors, "unbalanced parentheses")
	}
	if strings.Count(normalized, "'")%2 != 0 && !strings.Contains(normalized, "''") {
		result.Errors = append(result.Errors, "unbalanced single quotes")
	}

	if regexp.MustCompile(`(?is)^\s*select\b`).MatchString(normalized) &&
		!regexp.MustCompile(`(?i)\bfrom\b`).MatchString(stripped) &&
		!isExpressionOnlySelect(stripped) {
		result.Warnings = append(result.Warnings, "SELECT has no FROM clause")
	}

	lower := strings.ToLower(stripped)
	for _, tbl := range expectedTables {
		name := tbl
		if idx := strings.LastIndexByte(tbl, '.'); idx >= 0 {
			name = tbl[idx+1:]
		}
		if !strings.Contains(lower, strings.ToLower(name)) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("selected table %s does not appear in the statement", tbl))
		}
	}

	return result
}

// isExpressionOnlySelect recognizes bare expressions like SELECT 1 or
// SELECT now() which legitimately have no FROM.
func isExpressionOnlySelect(sqlQuery string) bool {
	return regexp.MustCompile(`(?is)^\s*select\s+[\w\s(),.*'+-]+$`).MatchString(sqlQuery) &&
		len(sqlQuery) < 120
}

// stripStringLiterals blanks out the contents of single-quoted strings so
// keyword checks don't fire on literal text.
func stripStringLiterals(sqlQuery string) string {
	var b strings.Builder
	inString := false
	for _, c := range sqlQuery {
		switch {
		case c == '\'':
			inString = !inString
			b.WriteRune(c)
		case inString:
			b.WriteRune(' ')
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

func balancedParens(sqlQuery string) bool {
	depth := 0
	for _, c := range sqlQuery {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
