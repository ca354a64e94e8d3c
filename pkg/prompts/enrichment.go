// Package prompts builds the LLM prompts used across the pipeline. Each
// builder returns plain text; response format contracts are spelled out
// inline so parsers in the services stay in sync with them.
package prompts

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/kgraph-ai/kgraph-engine/pkg/models"
)

// EnrichmentSystemMessage primes the model for schema documentation work.
const EnrichmentSystemMessage = `You are a database documentation expert. You write precise, factual descriptions of database tables and columns based on their names, types, and sample data. Never invent business context you cannot infer from the evidence given.`

// BuildTableEnrichmentPrompt asks the model to describe one table and its
// columns. The entity name hint is the singularized table name, which is
// usually the business entity the table stores.
func BuildTableEnrichmentPrompt(t *models.Table) string {
	var b strings.Builder

	b.WriteString("# Describe Database Table\n\n")
	fmt.Fprintf(&b, "Table: %s\n", t.QualifiedName)
	fmt.Fprintf(&b, "Likely entity: %s\n", inflection.Singular(t.Name))
	if t.RowCountEstimate > 0 {
		fmt.Fprintf(&b, "Approximate rows: %d\n", t.RowCountEstimate)
	}

	b.WriteString("\n## Columns\n\n")
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "- %s (%s", c.Name, c.DataType)
		if c.IsPrimaryKey {
			b.WriteString(", primary key")
		}
		if c.IsForeignKey {
			b.WriteString(", foreign key")
		}
		if c.IsNullable {
			b.WriteString(", nullable")
		}
		b.WriteString(")")
		if len(c.EnumValues) > 0 {
			fmt.Fprintf(&b, " values: %s", strings.Join(c.EnumValues, ", "))
		} else if len(c.SampleValues) > 0 {
			fmt.Fprintf(&b, " samples: %s", strings.Join(c.SampleValues, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString(`
## Response Format

Respond with JSON only:

{
  "description": "<one or two sentences describing what the table stores>",
  "business_domain": "<one short domain label, e.g. sales, billing, auth>",
  "typical_use_cases": ["<up to 3 short phrases>"],
  "columns": {
    "<column_name>": {
      "description": "<one sentence>",
      "is_pii": <true if the column holds personal data>
    }
  }
}

Include every column listed above in "columns".`)

	return b.String()
}

// TableEnrichmentResponse is the JSON contract for table enrichment.
type TableEnrichmentResponse struct {
	Description     string                              `json:"description"`
	BusinessDomain  string                              `json:"business_domain"`
	TypicalUseCases []string                            `json:"typical_use_cases"`
	Columns         map[string]ColumnEnrichmentResponse `json:"columns"`
}

// ColumnEnrichmentResponse is the per-column part of the contract.
type ColumnEnrichmentResponse struct {
	Description string `json:"description"`
	IsPII       bool   `json:"is_pii"`
}
