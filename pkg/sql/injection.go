package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionFinding reports a string literal inside a generated statement
// that matches a known SQL injection pattern.
type InjectionFinding struct {
	Literal     string
	Fingerprint string
}

// CheckLiteralsForInjection extracts the single-quoted string literals from
// a generated statement and runs each through libinjection. Generated SQL
// embeds user-derived values as literals, so a value that smuggles a
// sub-expression shows up here.
func CheckLiteralsForInjection(sqlQuery string) []InjectionFinding {
	var findings []InjectionFinding
	for _, lit := range ExtractStringLiterals(sqlQuery) {
		if isSQLi, fingerprint := libinjection.IsSQLi(lit); isSQLi {
			findings = append(findings, InjectionFinding{
				Literal:     lit,
				Fingerprint: string(fingerprint),
			})
		}
	}
	return findings
}

// ExtractStringLiterals returns the contents of single-quoted literals.
// Doubled quotes ('') inside a literal are unescaped to a single quote.
func ExtractStringLiterals(sqlQuery string) []string {
	var literals []string
	runes := []rune(sqlQuery)

	for i := 0; i < len(runes); i++ {
		if runes[i] != '\'' {
			continue
		}

		var lit []rune
		j := i + 1
		for j < len(runes) {
			if runes[j] == '\'' {
				if j+1 < len(runes) && runes[j+1] == '\'' {
					lit = append(lit, '\'')
					j += 2
					continue
				}
				break
			}
			lit = append(lit, runes[j])
			j++
		}

		if j < len(runes) {
			literals = append(literals, string(lit))
		}
		i = j
	}

	return literals
}
