package app

import (
	"context"

	"hr-testing-service/internal/domain"
)

// Catalog gives read-only access to test definitions (cache, backing store, etc).
type Catalog interface {
	GetTest(ctx context.Context, testID int64) (domain.TestDefinition, error)
	ListTests(ctx context.Context, activeOnly bool) ([]domain.Test, error)
}

// AttemptStore persists attempts and answers (in-memory, Postgres, etc).
type AttemptStore interface {
	// CreateAttempt writes the attempt and all its answers as one unit and
	// assigns ids to both; answers get ResultID set to the new attempt id.
	CreateAttempt(ctx context.Context, attempt *domain.Attempt, answers []domain.Answer) error
	GetAnswer(ctx context.Context, answerID int64) (domain.Answer, error)
	// InTx runs fn in a single atomic unit. Any error returned by fn discards its writes.
	InTx(ctx context.Context, fn func(ctx context.Context, tx AttemptTx) error) error
	ListAttempts(ctx context.Context, filter domain.AttemptFilter) ([]domain.Attempt, error)
	ListAnswers(ctx context.Context, attemptIDs []int64) ([]domain.Answer, error)
	ListPendingAnswers(ctx context.Context, testID int64) ([]domain.Answer, error)
}

// AttemptTx is the transactional view used by review finalization.
type AttemptTx interface {
	// LockAttempt takes the attempt row lock held until the unit ends. Every
	// decision on the attempt's answers goes through it first.
	LockAttempt(ctx context.Context, attemptID int64) (domain.Attempt, error)
	GetAnswer(ctx context.Context, answerID int64) (domain.Answer, error)
	UpdateAnswer(ctx context.Context, answer domain.Answer) error
	GetAttempt(ctx context.Context, attemptID int64) (domain.Attempt, error)
	AttemptAnswers(ctx context.Context, attemptID int64) ([]domain.Answer, error)
	// UpdateAttempt writes score, total, percentage, passed and status together.
	// Only a pending_review attempt is updated; a completed one yields ErrAlreadyResolved.
	UpdateAttempt(ctx context.Context, attempt domain.Attempt) error
}

// Locker provides mutual exclusion scoped by key. The returned unlock func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}
