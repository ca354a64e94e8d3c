package prompts

import (
	"fmt"
	"strings"

	"github.com/kgraph-ai/kgraph-engine/pkg/models"
)

// ClassifySystemMessage primes the model for failure triage.
const ClassifySystemMessage = `You are a database error triage expert. You classify why a generated SQL query failed and decide whether retrying can help and where the fix belongs.`

// BuildClassifyPrompt asks the model to categorize a failure. The error
// history lets it detect thrash between the same two stages, and known
// recurring patterns for the graph bias it toward fixes that worked
// before.
func BuildClassifyPrompt(question string, failedSQL string, errorMessage string, selectedTables []string, history []models.ErrorRecord, knownPatterns []models.ErrorPattern) string {
	var b strings.Builder

	b.WriteString("# Classify Query Failure\n\n")
	fmt.Fprintf(&b, "Question: %s\n", question)
	if len(selectedTables) > 0 {
		fmt.Fprintf(&b, "Selected tables: %s\n", strings.Join(selectedTables, ", "))
	}
	if failedSQL != "" {
		fmt.Fprintf(&b, "\nFailed SQL:\n```sql\n%s\n```\n", failedSQL)
	}
	fmt.Fprintf(&b, "\nError: %s\n", errorMessage)

	if len(history) > 0 {
		b.WriteString("\n## Previous Attempts\n\n")
		for _, h := range history {
			fmt.Fprintf(&b, "- attempt %d at %s: %s (%s), routed to %s\n",
				h.Attempt, h.Stage, h.Message, h.Category, h.RoutedTo)
		}
	}

	if len(knownPatterns) > 0 {
		b.WriteString("\n## Known Recurring Failures On This Database\n\n")
		for _, p := range knownPatterns {
			fmt.Fprintf(&b, "- %s (%s, seen %d times", p.Description, p.Category, p.OccurrenceCount)
			if p.FixApplied != "" {
				fmt.Fprintf(&b, ", fixed by: %s", p.FixApplied)
			}
			b.WriteString(")\n")
		}
	}

	b.WriteString(`
## Categories

- missing_table: a needed table was not selected
- missing_column: the SQL references a column that does not exist
- wrong_join: tables joined on wrong columns or wrong direction
- sql_syntax: the statement is malformed for the dialect
- type_mismatch: comparison or function applied to the wrong type
- ambiguous_question: the question cannot be answered without user input (terminal)
- impossible_request: the schema cannot answer this question (terminal)
- permission_denied: the database rejected access (terminal)
- connection_failed: the database is unreachable (terminal)
- timeout: the query ran too long (terminal)
- empty_result: the query ran but returned nothing when results were expected

## Response Format

Respond with JSON only:

{
  "category": "<one of the categories above>",
  "is_schema_related": <true if the fix belongs in table selection>,
  "is_terminal": <true if no retry can fix this>,
  "explanation": "<one sentence>",
  "guidance": "<concrete instruction for the stage that retries, e.g. 'also select public.order_items'>"
}`)

	return b.String()
}

// ClassifyResponse is the JSON contract for failure triage.
type ClassifyResponse struct {
	Category        string `json:"category"`
	IsSchemaRelated bool   `json:"is_schema_related"`
	IsTerminal      bool   `json:"is_terminal"`
	Explanation     string `json:"explanation"`
	Guidance        string `json:"guidance"`
}
