package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"hr-testing-service/internal/domain"
)

// AttemptGrader turns a submitted answer sheet into a persisted attempt.
type AttemptGrader struct {
	catalog  Catalog
	store    AttemptStore
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewAttemptGrader(catalog Catalog, store AttemptStore, logger *slog.Logger) *AttemptGrader {
	return NewAttemptGraderWithClock(catalog, store, logger, time.Now)
}

// NewAttemptGraderWithClock allows deterministic timestamps in tests.
func NewAttemptGraderWithClock(catalog Catalog, store AttemptStore, logger *slog.Logger, now func() time.Time) *AttemptGrader {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttemptGrader{
		catalog:  catalog,
		store:    store,
		validate: validator.New(),
		logger:   logger,
		now:      now,
	}
}

// Submit grades the objective answers, queues the subjective ones for review and
// persists the attempt with all of its answers. Nothing is written on error.
func (g *AttemptGrader) Submit(ctx context.Context, sub domain.Submission) (domain.Attempt, error) {
	sub.FIO = strings.TrimSpace(sub.FIO)
	if err := g.validate.Struct(sub); err != nil {
		return domain.Attempt{}, fmt.Errorf("%w: %v", domain.ErrInvalidSubmission, err)
	}

	def, err := g.catalog.GetTest(ctx, sub.TestID)
	if err != nil {
		return domain.Attempt{}, err
	}

	answers, err := gradeSheet(def, sub.Answers)
	if err != nil {
		return domain.Attempt{}, err
	}

	now := g.now()
	attempt := domain.Attempt{
		TestID: def.Test.ID,
		FIO:    sub.FIO,
		Total:  len(answers),
		Status: domain.StatusPendingReview,
		Date:   now,
	}
	if !sub.StartTime.IsZero() && now.After(sub.StartTime) {
		spent := int(now.Sub(sub.StartTime) / time.Second)
		attempt.TimeSpent = &spent
	}

	score, pending := tally(answers)
	if pending == 0 {
		applyFinalScore(&attempt, score, def.Settings.PassingScore)
	}

	if err := g.store.CreateAttempt(ctx, &attempt, answers); err != nil {
		return domain.Attempt{}, fmt.Errorf("create attempt: %w", err)
	}

	g.logger.Info("attempt submitted",
		"attempt_id", attempt.ID,
		"test_id", attempt.TestID,
		"status", attempt.Status,
		"pending_answers", pending,
	)
	return attempt, nil
}

// gradeSheet checks the sheet covers the test and grades every answer.
func gradeSheet(def domain.TestDefinition, submitted []domain.SubmittedAnswer) ([]domain.Answer, error) {
	if len(def.Questions) == 0 {
		return nil, domain.ErrEmptyQuestionSet
	}

	seen := make(map[int64]struct{}, len(submitted))
	answers := make([]domain.Answer, 0, len(submitted))
	for _, sa := range submitted {
		q, ok := def.Question(sa.QuestionID)
		if !ok {
			return nil, fmt.Errorf("%w: %d", domain.ErrUnknownQuestion, sa.QuestionID)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("%w: %d", domain.ErrDuplicateQuestion, q.ID)
		}
		seen[q.ID] = struct{}{}

		answer, err := gradeAnswer(q, sa.Value)
		if err != nil {
			return nil, err
		}
		answers = append(answers, answer)
	}

	if required := def.RequiredAnswers(); len(answers) != required {
		return nil, fmt.Errorf("%w: got %d answers, want %d", domain.ErrIncompleteSubmission, len(answers), required)
	}
	return answers, nil
}

// tally counts correct answers and answers still waiting for review.
func tally(answers []domain.Answer) (score, pending int) {
	for _, a := range answers {
		if a.ReviewStatus == domain.ReviewPending {
			pending++
			continue
		}
		if a.IsCorrect != nil && *a.IsCorrect {
			score++
		}
	}
	return score, pending
}
