package prompts

import (
	"fmt"
	"strings"
)

// LessonSystemMessage primes the model for lesson extraction.
const LessonSystemMessage = `You distill database query failures into short, reusable lessons. Each lesson is one sentence of at most 30 words, phrased as an instruction that prevents the same mistake.`

// BuildLessonPrompt asks the model to turn one failure-and-fix pair into a
// single lesson.
func BuildLessonPrompt(category string, errorMessage string, failedSQL string, fixedSQL string) string {
	var b strings.Builder

	b.WriteString("# Extract Lesson\n\n")
	fmt.Fprintf(&b, "Failure category: %s\n", category)
	fmt.Fprintf(&b, "Error: %s\n", errorMessage)
	if failedSQL != "" {
		fmt.Fprintf(&b, "\nFailed SQL:\n```sql\n%s\n```\n", failedSQL)
	}
	if fixedSQL != "" {
		fmt.Fprintf(&b, "\nWorking SQL:\n```sql\n%s\n```\n", fixedSQL)
	}

	b.WriteString(`
Respond with JSON only:

{"lesson": "<one sentence, at most 30 words>"}`)

	return b.String()
}

// LessonResponse is the JSON contract for lesson extraction.
type LessonResponse struct {
	Lesson string `json:"lesson"`
}

// FeedbackLessonSystemMessage primes the model for turning user feedback
// into lessons.
const FeedbackLessonSystemMessage = `You turn user feedback on answered database questions into short, reusable lessons. Each lesson is one sentence of at most 30 words, phrased as an instruction that prevents the same mistake.`

// BuildFeedbackLessonPrompt asks the model to distill negative feedback on
// a past query into a single lesson.
func BuildFeedbackLessonPrompt(question string, generatedSQL string, feedback string, rating *int, success bool) string {
	var b strings.Builder

	b.WriteString("# Extract Lesson From Feedback\n\n")
	fmt.Fprintf(&b, "Question: %s\n", question)
	if generatedSQL != "" {
		fmt.Fprintf(&b, "\nGenerated SQL:\n```sql\n%s\n```\n", generatedSQL)
	}
	if !success {
		b.WriteString("\nThe query failed to produce an answer.\n")
	}
	if feedback != "" {
		fmt.Fprintf(&b, "\nUser feedback: %s\n", feedback)
	}
	if rating != nil {
		fmt.Fprintf(&b, "User rating: %d out of 5\n", *rating)
	}

	b.WriteString(`
Respond with JSON only:

{"lesson": "<one sentence, at most 30 words>"}`)

	return b.String()
}

// CompressionSystemMessage primes the model for lesson compression.
const CompressionSystemMessage = `You compress lists of database lessons. You merge duplicates, generalize overlapping lessons, and drop the least useful ones, keeping the most actionable knowledge within a strict word budget.`

// BuildCompressionPrompt asks the model to shrink both lesson lists under
// the given word budget.
func BuildCompressionPrompt(schemaLessons string, sqlLessons string, targetWords int) string {
	var b strings.Builder

	b.WriteString("# Compress Lessons\n\n")
	fmt.Fprintf(&b, "Compress each list below. The two lists combined must stay under %d words.\n", targetWords)

	b.WriteString("\n## Schema Selection Lessons\n\n")
	b.WriteString(schemaLessons)
	b.WriteString("\n\n## SQL Generation Lessons\n\n")
	b.WriteString(sqlLessons)

	b.WriteString(`

Respond with JSON only:

{
  "schema_lessons": "<numbered list, one lesson per line>",
  "sql_lessons": "<numbered list, one lesson per line>"
}`)

	return b.String()
}

// CompressionResponse is the JSON contract for lesson compression.
type CompressionResponse struct {
	SchemaLessons string `json:"schema_lessons"`
	SQLLessons    string `json:"sql_lessons"`
}
