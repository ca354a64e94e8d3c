package models

import (
	"time"

	"github.com/google/uuid"
)

// ErrorPattern is a deduplicated record of a recurring failure mode for one
// knowledge graph. Re-observing the same description bumps the occurrence
// count instead of inserting a new row.
type ErrorPattern struct {
	ID              uuid.UUID `json:"pattern_id"`
	KGID            uuid.UUID `json:"kg_id"`
	Category        string    `json:"category"`
	Description     string    `json:"description"`
	ExampleError    string    `json:"example_error,omitempty"`
	FixApplied      string    `json:"fix_applied,omitempty"`
	AffectedTables  []string  `json:"affected_tables,omitempty"`
	OccurrenceCount int       `json:"occurrence_count"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	IsActive        bool      `json:"is_active"`
}
