package prompts

import (
	"fmt"
	"strings"

	"github.com/kgraph-ai/kgraph-engine/pkg/models"
)

// SelectionSystemMessage primes the model for table selection.
const SelectionSystemMessage = `You are a database schema expert. Given a question and candidate tables, you pick the minimal set of tables needed to answer it. You only pick from the candidates listed. You refine vague questions into precise, answerable ones.`

// CandidateTable is one vector-retrieval hit shown to the selector.
type CandidateTable struct {
	QualifiedName string
	Description   string
	Domain        string
	Similarity    float64
	// MatchedColumns lists column hits that pointed at this table.
	MatchedColumns []string
}

// BuildSelectionPrompt asks the model to choose tables for a question.
// Past schema lessons, when present, steer it away from known mistakes.
func BuildSelectionPrompt(question string, candidates []CandidateTable, schemaLessons string) string {
	var b strings.Builder

	b.WriteString("# Select Tables for Question\n\n")
	fmt.Fprintf(&b, "Question: %s\n", question)

	b.WriteString("\n## Candidate Tables\n\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s (similarity %.2f)", c.QualifiedName, c.Similarity)
		if c.Domain != "" {
			fmt.Fprintf(&b, " [%s]", c.Domain)
		}
		b.WriteString("\n")
		if c.Description != "" {
			fmt.Fprintf(&b, "  %s\n", c.Description)
		}
		if len(c.MatchedColumns) > 0 {
			fmt.Fprintf(&b, "  matched columns: %s\n", strings.Join(c.MatchedColumns, ", "))
		}
	}

	if schemaLessons != "" {
		b.WriteString("\n## Lessons From Past Mistakes\n\n")
		b.WriteString(schemaLessons)
		b.WriteString("\n")
	}

	b.WriteString(`
## Response Format

Respond with JSON only:

{
  "refined_question": "<the question restated precisely in terms of the selected tables>",
  "tables": [
    {"qualified_name": "<from candidates>", "reason": "<why this table is needed>"}
  ],
  "needs_clarification": <true only if the question cannot be answered from any candidate>,
  "clarification_prompt": "<what to ask the user, when needs_clarification is true>",
  "suggestions": ["<up to 3 rephrased questions that could be answered>"]
}

Pick the smallest table set that can answer the question.`)

	return b.String()
}

// SelectionResponse is the JSON contract for table selection.
type SelectionResponse struct {
	RefinedQuestion     string `json:"refined_question"`
	Tables              []struct {
		QualifiedName string `json:"qualified_name"`
		Reason        string `json:"reason"`
	} `json:"tables"`
	NeedsClarification  bool     `json:"needs_clarification"`
	ClarificationPrompt string   `json:"clarification_prompt"`
	Suggestions         []string `json:"suggestions"`
}

// BuildSchemaSection renders the selected tables with full column detail
// for the generation and correction prompts.
func BuildSchemaSection(contexts []models.TableContext) string {
	var b strings.Builder

	for _, tc := range contexts {
		t := tc.Table
		fmt.Fprintf(&b, "### %s\n", t.QualifiedName)
		if t.Description != "" {
			fmt.Fprintf(&b, "%s\n", t.Description)
		}
		if t.RowCountEstimate > 0 {
			fmt.Fprintf(&b, "~%d rows\n", t.RowCountEstimate)
		}
		b.WriteString("\nColumns:\n")
		for _, c := range t.Columns {
			fmt.Fprintf(&b, "- %s %s", c.Name, c.DataType)
			var notes []string
			if c.IsPrimaryKey {
				notes = append(notes, "PK")
			}
			if c.IsForeignKey {
				notes = append(notes, "FK")
			}
			if c.IsNullable {
				notes = append(notes, "nullable")
			}
			if len(notes) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(notes, ", "))
			}
			if c.Description != "" {
				fmt.Fprintf(&b, " -- %s", c.Description)
			}
			if len(c.EnumValues) > 0 {
				fmt.Fprintf(&b, " values: %s", strings.Join(c.EnumValues, ", "))
			}
			b.WriteString("\n")
		}
		if len(tc.Relationships) > 0 {
			b.WriteString("\nJoins:\n")
			for _, rel := range tc.Relationships {
				fmt.Fprintf(&b, "- %s (%s)\n", rel.JoinCondition, rel.Type)
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}
