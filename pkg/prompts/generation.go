package prompts

import (
	"fmt"
	"strings"

	"github.com/kgraph-ai/kgraph-engine/pkg/models"
)

// GenerationSystemMessage primes the model for SQL generation.
const GenerationSystemMessage = `You are an expert SQL developer. You write correct, efficient SQL for the exact dialect and schema given. You use only the tables and columns shown. You respond with a single SQL statement inside a ` + "```sql" + ` code fence and nothing else.`

// GenerationHardRules are appended to every generation and correction
// prompt.
const GenerationHardRules = `
## Hard Rules

- Use ONLY the tables and columns listed in the schema section.
- Produce exactly ONE SELECT statement. No DDL, no DML, no semicolons.
- Join tables only along the join conditions listed.
- Qualify column names with table names or aliases when more than one table is involved.
- Prefer explicit column lists over SELECT *.
- When aggregating, group by every non-aggregated selected column.`

// BuildGenerationPrompt asks the model to write SQL for the refined
// question over the selected tables. Similar past queries act as few-shot
// examples; SQL lessons steer it away from known dialect mistakes.
func BuildGenerationPrompt(question string, dialect string, contexts []models.TableContext, examples []models.SimilarQuery, sqlLessons string, guidance string) string {
	var b strings.Builder

	b.WriteString("# Write SQL\n\n")
	fmt.Fprintf(&b, "Dialect: %s\n", dialect)
	fmt.Fprintf(&b, "Question: %s\n", question)

	b.WriteString("\n## Schema\n\n")
	b.WriteString(BuildSchemaSection(contexts))

	if len(examples) > 0 {
		b.WriteString("## Similar Past Queries\n\n")
		for _, ex := range examples {
			fmt.Fprintf(&b, "Q: %s\n```sql\n%s\n```\n\n", ex.UserQuestion, ex.GeneratedSQL)
		}
	}

	if sqlLessons != "" {
		b.WriteString("## Lessons From Past Mistakes\n\n")
		b.WriteString(sqlLessons)
		b.WriteString("\n\n")
	}

	if guidance != "" {
		b.WriteString("## Guidance From Previous Attempt\n\n")
		b.WriteString(guidance)
		b.WriteString("\n")
	}

	b.WriteString(GenerationHardRules)
	b.WriteString("\n\nRespond with the SQL statement in a ```sql code fence.")

	return b.String()
}

// BuildCorrectionPrompt asks the model to fix a statement that failed
// validation or execution, keeping the original question and schema in
// view.
func BuildCorrectionPrompt(question string, dialect string, contexts []models.TableContext, failedSQL string, problems []string) string {
	var b strings.Builder

	b.WriteString("# Fix SQL\n\n")
	fmt.Fprintf(&b, "Dialect: %s\n", dialect)
	fmt.Fprintf(&b, "Question: %s\n", question)

	b.WriteString("\n## Schema\n\n")
	b.WriteString(BuildSchemaSection(contexts))

	b.WriteString("## Failed Statement\n\n```sql\n")
	b.WriteString(failedSQL)
	b.WriteString("\n```\n\n## Problems\n\n")
	for _, p := range problems {
		fmt.Fprintf(&b, "- %s\n", p)
	}

	b.WriteString(GenerationHardRules)
	b.WriteString("\n\nRespond with the corrected SQL statement in a ```sql code fence.")

	return b.String()
}
