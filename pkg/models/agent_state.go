package models

import (
	"github.com/google/uuid"
)

// RouteTarget names the pipeline stage an error gets routed back to.
type RouteTarget string

const (
	RouteSchemaSelector    RouteTarget = "agent_1"
	RouteSQLGenerator      RouteTarget = "agent_2"
	RouteExecutorValidator RouteTarget = "agent_3"
	RouteComplete          RouteTarget = "complete"
)

// ErrorRecord captures one failed attempt inside a pipeline run.
type ErrorRecord struct {
	Attempt   int         `json:"attempt"`
	Stage     RouteTarget `json:"stage"`
	Category  string      `json:"category"`
	Message   string      `json:"message"`
	SQL       string      `json:"sql,omitempty"`
	RoutedTo  RouteTarget `json:"routed_to"`
	Guidance  string      `json:"guidance,omitempty"`
}

// TableContext is the focused schema slice handed to the SQL generator:
// one selected table with its columns and the join paths to other selected
// tables.
type TableContext struct {
	Table         Table          `json:"table"`
	Relationships []Relationship `json:"relationships,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}

// AgentState is the mutable blackboard shared by the three agents across a
// single question's pipeline run.
type AgentState struct {
	KGID            uuid.UUID      `json:"kg_id"`
	UserQuestion    string         `json:"user_question"`
	Clarifications  string         `json:"clarifications,omitempty"`
	RefinedQuestion string         `json:"refined_question,omitempty"`
	TableContexts   []TableContext `json:"table_contexts,omitempty"`
	GeneratedSQL    string         `json:"generated_sql,omitempty"`
	RetryCount      int            `json:"retry_count"`
	MaxRetries      int            `json:"max_retries"`
	Errors          []ErrorRecord  `json:"errors,omitempty"`
	RouteTo         RouteTarget    `json:"route_to"`
	Guidance        string         `json:"guidance,omitempty"`
	SchemaWarnings  []string       `json:"schema_warnings,omitempty"`
}

// SelectedTableNames returns the qualified names of the currently selected
// tables.
func (s *AgentState) SelectedTableNames() []string {
	names := make([]string, 0, len(s.TableContexts))
	for _, tc := range s.TableContexts {
		names = append(names, tc.Table.QualifiedName)
	}
	return names
}

// RetriesExhausted reports whether another retry is allowed.
func (s *AgentState) RetriesExhausted() bool {
	return s.RetryCount >= s.MaxRetries
}

// LastError returns the most recent error record, or nil.
func (s *AgentState) LastError() *ErrorRecord {
	if len(s.Errors) == 0 {
		return nil
	}
	return &s.Errors[len(s.Errors)-1]
}
