package models

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeKind discriminates the terminal states of a pipeline run.
type OutcomeKind string

const (
	OutcomeSuccess            OutcomeKind = "success"
	OutcomeNeedsClarification OutcomeKind = "needs_clarification"
	OutcomeFailure            OutcomeKind = "failure"
)

// ResultColumn describes one column of a result set.
type ResultColumn struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

// ResultSet holds the rows returned by a successful query.
type ResultSet struct {
	Columns  []ResultColumn   `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
	Elapsed  time.Duration    `json:"-"`
}

// QueryOutcome is the terminal result of processing one question.
type QueryOutcome struct {
	Kind       OutcomeKind `json:"kind"`
	QueryID    uuid.UUID   `json:"query_id,omitempty"`
	SQL        string      `json:"sql,omitempty"`
	Results    *ResultSet  `json:"results,omitempty"`
	Question   string      `json:"question,omitempty"`
	Attempts   int         `json:"attempts"`
	Confidence float64     `json:"confidence,omitempty"`

	// NeedsClarification fields.
	ClarificationPrompt string   `json:"clarification_prompt,omitempty"`
	Suggestions         []string `json:"suggestions,omitempty"`

	// Failure fields.
	ErrorMessage  string        `json:"error_message,omitempty"`
	ErrorCategory string        `json:"error_category,omitempty"`
	ErrorHistory  []ErrorRecord `json:"error_history,omitempty"`
}
