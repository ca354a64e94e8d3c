package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/apperrors"
	"github.com/kgraph-ai/kgraph-engine/pkg/llm"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
	"github.com/kgraph-ai/kgraph-engine/pkg/prompts"
	"github.com/kgraph-ai/kgraph-engine/pkg/repositories"
	"github.com/kgraph-ai/kgraph-engine/pkg/services/workqueue"
)

const (
	// maxLessonWords truncates a single lesson before it is appended.
	maxLessonWords = 30

	// conflictRetries bounds optimistic-lock retries on concurrent writes.
	conflictRetries = 3
)

// ErrorSummaryService accumulates per-KG lessons from failed queries and
// compresses them in the background once they outgrow the word threshold.
type ErrorSummaryService struct {
	repo      repositories.ErrorSummaryRepository
	chat      llm.Client
	queue     *workqueue.Queue
	threshold int
	logger    *zap.Logger
}

// NewErrorSummaryService creates an ErrorSummaryService.
func NewErrorSummaryService(
	repo repositories.ErrorSummaryRepository,
	chat llm.Client,
	queue *workqueue.Queue,
	threshold int,
	logger *zap.Logger,
) *ErrorSummaryService {
	if threshold <= 0 {
		threshold = models.DefaultCompressionThreshold
	}
	return &ErrorSummaryService{
		repo:      repo,
		chat:      chat,
		queue:     queue,
		threshold: threshold,
		logger:    logger.Named("error-summary"),
	}
}

// Lessons returns the current lesson lists for a knowledge graph, creating
// an empty summary on first use.
func (s *ErrorSummaryService) Lessons(ctx context.Context, kgID uuid.UUID) (*models.ErrorSummary, error) {
	return s.repo.GetOrCreate(ctx, kgID, s.threshold)
}

// AddLesson appends one lesson to the schema or SQL list, depending on
// which stage the failure was routed back to. Writes are version-checked;
// a concurrent writer triggers a reread and retry. Crossing the word
// threshold schedules background compression.
func (s *ErrorSummaryService) AddLesson(ctx context.Context, kgID uuid.UUID, target models.RouteTarget, lesson string) error {
	lesson = truncateWords(strings.TrimSpace(lesson), maxLessonWords)
	if lesson == "" {
		return nil
	}

	var summary *models.ErrorSummary
	for attempt := 0; ; attempt++ {
		var err error
		summary, err = s.repo.GetOrCreate(ctx, kgID, s.threshold)
		if err != nil {
			return err
		}

		summary.LessonCount++
		numbered := fmt.Sprintf("%d. %s", summary.LessonCount, lesson)
		if target == models.RouteSchemaSelector {
			summary.SchemaLessons = appendLine(summary.SchemaLessons, numbered)
		} else {
			summary.SQLLessons = appendLine(summary.SQLLessons, numbered)
		}
		summary.RecomputeWordCount()

		err = s.repo.Update(ctx, summary)
		if err == nil {
			break
		}
		if err != apperrors.ErrConflict || attempt >= conflictRetries {
			return fmt.Errorf("record lesson: %w", err)
		}
	}

	if summary.NeedsCompression() {
		s.scheduleCompression(kgID)
	}
	return nil
}

// ExtractLesson distills a failure into one short lesson via the LLM.
// Returns an empty string when extraction fails; lessons are best effort.
func (s *ErrorSummaryService) ExtractLesson(ctx context.Context, category, errorMessage, failedSQL, fixedSQL string) string {
	resp, err := s.chat.GenerateResponse(ctx,
		prompts.BuildLessonPrompt(category, errorMessage, failedSQL, fixedSQL),
		prompts.LessonSystemMessage, 0.2)
	if err != nil {
		s.logger.Warn("lesson extraction failed", zap.Error(err))
		return ""
	}
	parsed, err := llm.ParseJSONResponse[prompts.LessonResponse](resp)
	if err != nil {
		s.logger.Warn("lesson extraction returned malformed response", zap.Error(err))
		return ""
	}
	return parsed.Lesson
}

// LearnFromFeedback distills negative feedback on a logged query into a
// SQL lesson. Feedback counts as negative when the rating is 2 or lower
// or when the query itself failed; praise teaches nothing new.
func (s *ErrorSummaryService) LearnFromFeedback(ctx context.Context, entry *models.QueryLogEntry, feedback string, rating *int) error {
	negative := (rating != nil && *rating <= 2) || !entry.Success
	if !negative {
		return nil
	}

	resp, err := s.chat.GenerateResponse(ctx,
		prompts.BuildFeedbackLessonPrompt(entry.UserQuestion, entry.GeneratedSQL, feedback, rating, entry.Success),
		prompts.FeedbackLessonSystemMessage, 0.2)
	if err != nil {
		s.logger.Warn("feedback lesson extraction failed", zap.Error(err))
		return nil
	}
	parsed, err := llm.ParseJSONResponse[prompts.LessonResponse](resp)
	if err != nil {
		s.logger.Warn("feedback lesson extraction returned malformed response", zap.Error(err))
		return nil
	}
	if parsed.Lesson == "" {
		return nil
	}
	return s.AddLesson(ctx, entry.KGID, models.RouteSQLGenerator, parsed.Lesson)
}

// scheduleCompression enqueues a background compression task. At most one
// compression per KG runs at a time; a duplicate submission is dropped.
func (s *ErrorSummaryService) scheduleCompression(kgID uuid.UUID) {
	task := workqueue.NewFuncTask("compress-lessons", "compress:"+kgID.String(), func(ctx context.Context) error {
		return s.Compress(ctx, kgID)
	})
	if err := s.queue.Enqueue(task); err != nil {
		s.logger.Debug("compression not scheduled",
			zap.String("kg_id", kgID.String()),
			zap.Error(err))
	}
}

// Compress rewrites both lesson lists to roughly half the threshold. A
// version conflict means new lessons landed mid-compression; the result is
// discarded and the next threshold crossing tries again.
func (s *ErrorSummaryService) Compress(ctx context.Context, kgID uuid.UUID) error {
	summary, err := s.repo.Get(ctx, kgID)
	if err != nil {
		return err
	}
	if !summary.NeedsCompression() {
		return nil
	}

	target := s.threshold / 2
	resp, err := s.chat.GenerateResponse(ctx,
		prompts.BuildCompressionPrompt(summary.SchemaLessons, summary.SQLLessons, target),
		prompts.CompressionSystemMessage, 0.2)
	if err != nil {
		return fmt.Errorf("compress lessons: %w", err)
	}
	parsed, err := llm.ParseJSONResponse[prompts.CompressionResponse](resp)
	if err != nil {
		return fmt.Errorf("parse compressed lessons: %w", err)
	}

	before := summary.WordCount
	summary.SchemaLessons = strings.TrimSpace(parsed.SchemaLessons)
	summary.SQLLessons = strings.TrimSpace(parsed.SQLLessons)
	summary.RecomputeWordCount()
	// Merging rules shrinks the list; later appends number from the
	// compacted count.
	summary.LessonCount = countLessonLines(summary.SchemaLessons, summary.SQLLessons)
	compressedAt := time.Now()
	summary.LastCompressedAt = &compressedAt

	if err := s.repo.Update(ctx, summary); err != nil {
		if err == apperrors.ErrConflict {
			s.logger.Info("compression discarded, summary changed mid-flight",
				zap.String("kg_id", kgID.String()))
			return nil
		}
		return fmt.Errorf("store compressed lessons: %w", err)
	}

	s.logger.Info("lessons compressed",
		zap.String("kg_id", kgID.String()),
		zap.Int("words_before", before),
		zap.Int("words_after", summary.WordCount))
	return nil
}

func appendLine(existing, line string) string {
	if existing == "" {
		return line
	}
	return existing + "\n" + line
}

// countLessonLines counts the non-empty lines across the lesson fields.
func countLessonLines(fields ...string) int {
	count := 0
	for _, field := range fields {
		for _, line := range strings.Split(field, "\n") {
			if strings.TrimSpace(line) != "" {
				count++
			}
		}
	}
	return count
}

func truncateWords(s string, max int) string {
	fields := strings.Fields(s)
	if len(fields) <= max {
		return s
	}
	return strings.Join(fields[:max], " ")
}
