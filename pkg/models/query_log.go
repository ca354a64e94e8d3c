package models

import (
	"time"

	"github.com/google/uuid"
)

// QueryLogEntry records one completed pipeline run, successful or not.
// Successful entries with embeddings feed few-shot retrieval for later
// questions.
type QueryLogEntry struct {
	ID                uuid.UUID `json:"query_id"`
	KGID              uuid.UUID `json:"kg_id"`
	UserQuestion      string    `json:"user_question"`
	RefinedQuestion   string    `json:"refined_question,omitempty"`
	SelectedTables    []string  `json:"selected_tables,omitempty"`
	GeneratedSQL      string    `json:"generated_sql,omitempty"`
	Success           bool      `json:"success"`
	ExecutionTimeMs   int64     `json:"execution_time_ms"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	ErrorCategory     string    `json:"error_category,omitempty"`
	CorrectionSummary string    `json:"correction_summary,omitempty"`
	TablesUsed        []string  `json:"tables_used,omitempty"`
	Iterations        int       `json:"iterations"`
	Confidence        float64   `json:"confidence"`
	QueryEmbedding    []float32 `json:"-"`
	UserFeedback      string    `json:"user_feedback,omitempty"`
	UserRating        *int      `json:"user_rating,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// SimilarQuery is a past successful query retrieved by embedding similarity,
// used as a few-shot example during SQL generation.
type SimilarQuery struct {
	ID           uuid.UUID `json:"query_id"`
	UserQuestion string    `json:"user_question"`
	GeneratedSQL string    `json:"generated_sql"`
	TablesUsed   []string  `json:"tables_used,omitempty"`
	Similarity   float64   `json:"similarity"`
}
