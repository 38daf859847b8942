package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"

	"hr-testing-service/internal/domain"
)

// ReviewCoordinator applies reviewer verdicts and finalizes attempts once
// nothing is left pending.
type ReviewCoordinator struct {
	catalog  Catalog
	store    AttemptStore
	locker   Locker
	notifier Notifier
	validate *validator.Validate
	logger   *slog.Logger
}

func NewReviewCoordinator(catalog Catalog, store AttemptStore, locker Locker, notifier Notifier, logger *slog.Logger) *ReviewCoordinator {
	if locker == nil {
		locker = NewKeyedLocker()
	}
	if notifier == nil {
		notifier = Notifiers{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewCoordinator{
		catalog:  catalog,
		store:    store,
		locker:   locker,
		notifier: notifier,
		validate: validator.New(),
		logger:   logger,
	}
}

// SubmitBatch applies each decision independently. Decisions for answers that are
// no longer pending are skipped, so redelivering a batch is safe. Failed decisions
// do not stop the rest of the batch; their errors are joined into the returned error.
func (c *ReviewCoordinator) SubmitBatch(ctx context.Context, decisions []domain.ReviewDecision) (domain.ReviewReport, error) {
	report := domain.ReviewReport{Finalized: []int64{}}
	var errs []error

	for _, d := range decisions {
		finalized, err := c.apply(ctx, d)
		switch {
		case errors.Is(err, domain.ErrAlreadyResolved):
			report.Skipped++
		case err != nil:
			report.Failed++
			errs = append(errs, fmt.Errorf("answer %d: %w", d.AnswerID, err))
		default:
			report.Applied++
			if finalized != nil {
				report.Finalized = append(report.Finalized, finalized.ID)
				c.notify(ctx, *finalized)
			}
		}
	}

	if report.Failed > 0 {
		c.logger.Warn("review batch had failures", "applied", report.Applied, "failed", report.Failed)
	}
	return report, errors.Join(errs...)
}

// PendingAnswers lists answers of a test waiting for a reviewer.
func (c *ReviewCoordinator) PendingAnswers(ctx context.Context, testID int64) ([]domain.Answer, error) {
	if _, err := c.catalog.GetTest(ctx, testID); err != nil {
		return nil, err
	}
	return c.store.ListPendingAnswers(ctx, testID)
}

// apply runs decision -> pending check -> finalization under the attempt lock
// and, inside the store unit, the attempt row lock. It returns the attempt when
// this decision finalized it.
func (c *ReviewCoordinator) apply(ctx context.Context, d domain.ReviewDecision) (*domain.Attempt, error) {
	if err := c.validate.Struct(d); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSubmission, err)
	}

	answer, err := c.store.GetAnswer(ctx, d.AnswerID)
	if err != nil {
		return nil, err
	}
	if answer.ReviewStatus != domain.ReviewPending {
		return nil, domain.ErrAlreadyResolved
	}

	unlock, err := c.locker.Lock(ctx, attemptLockKey(answer.ResultID))
	if err != nil {
		return nil, fmt.Errorf("lock attempt %d: %w", answer.ResultID, err)
	}
	defer unlock()

	var finalized *domain.Attempt
	err = c.store.InTx(ctx, func(ctx context.Context, tx AttemptTx) error {
		if _, err := tx.LockAttempt(ctx, answer.ResultID); err != nil {
			return err
		}
		current, err := tx.GetAnswer(ctx, d.AnswerID)
		if err != nil {
			return err
		}
		if current.ReviewStatus != domain.ReviewPending {
			return domain.ErrAlreadyResolved
		}

		verdict := d.IsCorrect
		current.IsCorrect = &verdict
		current.ReviewStatus = reviewStatusFor(verdict)
		if err := tx.UpdateAnswer(ctx, current); err != nil {
			return fmt.Errorf("update answer: %w", err)
		}

		attempt, done, err := c.finalize(ctx, tx, current.ResultID)
		if err != nil {
			return err
		}
		if done {
			finalized = &attempt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return finalized, nil
}

// finalize recomputes and completes the attempt when no answer is pending.
// An attempt that is already completed is left untouched.
func (c *ReviewCoordinator) finalize(ctx context.Context, tx AttemptTx, attemptID int64) (domain.Attempt, bool, error) {
	answers, err := tx.AttemptAnswers(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, false, err
	}
	score, pending := tally(answers)
	if pending > 0 {
		return domain.Attempt{}, false, nil
	}

	attempt, err := tx.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, false, err
	}
	if attempt.Status == domain.StatusCompleted {
		return attempt, false, nil
	}

	def, err := c.catalog.GetTest(ctx, attempt.TestID)
	if err != nil {
		return domain.Attempt{}, false, err
	}

	attempt.Total = len(answers)
	applyFinalScore(&attempt, score, def.Settings.PassingScore)
	if err := tx.UpdateAttempt(ctx, attempt); err != nil {
		return domain.Attempt{}, false, fmt.Errorf("update attempt: %w", err)
	}

	c.logger.Info("attempt finalized",
		"attempt_id", attempt.ID,
		"test_id", attempt.TestID,
		"score", attempt.Score,
		"percentage", attempt.Percentage,
		"passed", attempt.Passed,
	)
	return attempt, true, nil
}

// notify is fire-and-forget: the attempt is already committed.
func (c *ReviewCoordinator) notify(ctx context.Context, attempt domain.Attempt) {
	n := domain.Notification{
		Event: domain.EventResultReviewed,
		Payload: domain.ResultReviewed{
			ResultID: attempt.ID,
			FinalResultData: domain.FinalResult{
				TestID:     attempt.TestID,
				FIO:        attempt.FIO,
				Score:      attempt.Score,
				Total:      attempt.Total,
				Percentage: attempt.Percentage,
				Passed:     attempt.Passed,
				Status:     attempt.Status,
			},
		},
	}
	if err := c.notifier.Notify(ctx, n); err != nil {
		c.logger.Error("result notification failed", "attempt_id", attempt.ID, "error", err)
	}
}

func attemptLockKey(attemptID int64) string {
	return "attempt:" + strconv.FormatInt(attemptID, 10)
}
