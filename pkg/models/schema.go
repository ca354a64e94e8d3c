package models

import (
	"strings"

	"github.com/google/uuid"
)

// Cardinality buckets the distinct-value profile of a column.
type Cardinality string

const (
	CardinalityLow    Cardinality = "low"
	CardinalityMedium Cardinality = "medium"
	CardinalityHigh   Cardinality = "high"
)

// RelationshipType describes the multiplicity of a foreign-key edge.
type RelationshipType string

const (
	RelationshipOneToOne  RelationshipType = "one-to-one"
	RelationshipManyToOne RelationshipType = "many-to-one"
)

// Table is an enriched table node in the knowledge graph.
type Table struct {
	ID               uuid.UUID `json:"table_id"`
	KGID             uuid.UUID `json:"kg_id"`
	Name             string    `json:"name"`
	SchemaNamespace  string    `json:"schema_namespace"`
	QualifiedName    string    `json:"qualified_name"`
	RowCountEstimate int64     `json:"row_count_estimate"`
	Description      string    `json:"description,omitempty"`
	BusinessDomain   string    `json:"business_domain,omitempty"`
	TypicalUseCases  []string  `json:"typical_use_cases,omitempty"`
	Columns          []Column  `json:"columns,omitempty"`
}

// Column is an enriched column node belonging to a table.
type Column struct {
	ID              uuid.UUID   `json:"column_id"`
	TableID         uuid.UUID   `json:"table_id"`
	Name            string      `json:"name"`
	QualifiedName   string      `json:"qualified_name"`
	DataType        string      `json:"data_type"`
	IsNullable      bool        `json:"is_nullable"`
	IsPrimaryKey    bool        `json:"is_primary_key"`
	IsUnique        bool        `json:"is_unique"`
	IsForeignKey    bool        `json:"is_foreign_key"`
	OrdinalPosition int         `json:"ordinal_position"`
	Description     string      `json:"description,omitempty"`
	BusinessMeaning string      `json:"business_meaning,omitempty"`
	SampleValues    []string    `json:"sample_values,omitempty"`
	EnumValues      []string    `json:"enum_values,omitempty"`
	Cardinality     Cardinality `json:"cardinality,omitempty"`
	NullPct         float64     `json:"null_pct"`
	IsPII           bool        `json:"is_pii"`
}

// Relationship is a foreign-key edge between two tables.
type Relationship struct {
	ID              uuid.UUID        `json:"rel_id"`
	KGID            uuid.UUID        `json:"kg_id"`
	FromTableID     uuid.UUID        `json:"from_table_id"`
	ToTableID       uuid.UUID        `json:"to_table_id"`
	FromTable       string           `json:"from_table"`
	ToTable         string           `json:"to_table"`
	FromColumn      string           `json:"from_column"`
	ToColumn        string           `json:"to_column"`
	Type            RelationshipType `json:"rel_type"`
	JoinCondition   string           `json:"join_condition"`
	IsSelfReference bool             `json:"is_self_reference"`
	ConstraintName  string           `json:"constraint_name,omitempty"`
}

// trivialColumnSuffixes are audit-style columns that carry no semantic
// signal for retrieval and are skipped when embedding.
var trivialColumnNames = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"deleted_at": true,
	"created_by": true,
	"updated_by": true,
}

// IsTrivial reports whether the column should be excluded from the vector
// index. Primary keys and audit timestamps match questions spuriously.
func (c *Column) IsTrivial() bool {
	if c.IsPrimaryKey && !c.IsForeignKey {
		return true
	}
	return trivialColumnNames[strings.ToLower(c.Name)]
}

// Document builds the canonical embedding text for a table. The bare name
// is used; the schema namespace would only dilute the embedding. Optional
// parts appear only when present so the text stays stable across rebuilds.
func (t *Table) Document() string {
	var b strings.Builder
	b.WriteString("Table: ")
	b.WriteString(t.Name)
	if t.Description != "" {
		b.WriteString("\nDescription: ")
		b.WriteString(t.Description)
	}
	if t.BusinessDomain != "" {
		b.WriteString("\nDomain: ")
		b.WriteString(t.BusinessDomain)
	}
	return b.String()
}

// Document builds the canonical embedding text for a column.
func (c *Column) Document() string {
	var b strings.Builder
	b.WriteString("Column: ")
	b.WriteString(c.QualifiedName)
	if c.Description != "" {
		b.WriteString("\nDescription: ")
		b.WriteString(c.Description)
	}
	return b.String()
}

// VectorID returns the stable vector-index identifier for a table.
func (t *Table) VectorID() string {
	return "table_" + t.Name
}

// VectorID returns the stable vector-index identifier for a column.
// Dots are replaced so IDs stay flat.
func (c *Column) VectorID() string {
	return "column_" + strings.ReplaceAll(c.QualifiedName, ".", "_")
}
