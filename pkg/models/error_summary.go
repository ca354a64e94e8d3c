package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultCompressionThreshold is the word count at which the accumulated
// lessons get compressed.
const DefaultCompressionThreshold = 500

// ErrorSummary accumulates short lessons learned from failed queries,
// partitioned by which agent should read them. When the combined word count
// crosses the threshold the lessons are compressed by the LLM.
type ErrorSummary struct {
	KGID                 uuid.UUID  `json:"kg_id"`
	SchemaLessons        string     `json:"schema_lessons"`
	SQLLessons           string     `json:"sql_lessons"`
	LessonCount          int        `json:"lesson_count"`
	WordCount            int        `json:"word_count"`
	CompressionThreshold int        `json:"compression_threshold"`
	LastCompressedAt     *time.Time `json:"last_compressed_at,omitempty"`
	Version              int        `json:"version"`
	LastUpdated          time.Time  `json:"last_updated"`
}

// CountWords counts whitespace-separated tokens.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// RecomputeWordCount refreshes the cached word count from both fields.
func (s *ErrorSummary) RecomputeWordCount() {
	s.WordCount = CountWords(s.SchemaLessons) + CountWords(s.SQLLessons)
}

// NeedsCompression reports whether the summary has grown past its threshold.
func (s *ErrorSummary) NeedsCompression() bool {
	return s.WordCount >= s.CompressionThreshold
}
