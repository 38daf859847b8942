package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"hr-testing-service/internal/app"
	"hr-testing-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore.
// Readers only ever see committed state: writes are applied under the write lock.
type AttemptStore struct {
	mu            sync.RWMutex
	nextAttemptID int64
	nextAnswerID  int64
	attempts      map[int64]domain.Attempt
	answers       map[int64]domain.Answer
	byAttempt     map[int64][]int64
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:  make(map[int64]domain.Attempt),
		answers:   make(map[int64]domain.Answer),
		byAttempt: make(map[int64][]int64),
	}
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt *domain.Attempt, answers []domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAttemptID++
	attempt.ID = s.nextAttemptID
	s.attempts[attempt.ID] = cloneAttempt(*attempt)

	ids := make([]int64, 0, len(answers))
	for i := range answers {
		s.nextAnswerID++
		answers[i].ID = s.nextAnswerID
		answers[i].ResultID = attempt.ID
		s.answers[answers[i].ID] = cloneAnswer(answers[i])
		ids = append(ids, answers[i].ID)
	}
	s.byAttempt[attempt.ID] = ids
	return nil
}

func (s *AttemptStore) GetAnswer(_ context.Context, answerID int64) (domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answer, ok := s.answers[answerID]
	if !ok {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	return cloneAnswer(answer), nil
}

// InTx holds the write lock for the whole unit and applies staged writes only when fn succeeds.
func (s *AttemptStore) InTx(ctx context.Context, fn func(ctx context.Context, tx app.AttemptTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &attemptTx{
		store:    s,
		answers:  make(map[int64]domain.Answer),
		attempts: make(map[int64]domain.Attempt),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, answer := range tx.answers {
		s.answers[id] = answer
	}
	for id, attempt := range tx.attempts {
		s.attempts[id] = attempt
	}
	return nil
}

func (s *AttemptStore) ListAttempts(_ context.Context, filter domain.AttemptFilter) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var testIDs map[int64]struct{}
	if filter.TestIDs != nil {
		testIDs = make(map[int64]struct{}, len(filter.TestIDs))
		for _, id := range filter.TestIDs {
			testIDs[id] = struct{}{}
		}
	}

	out := make([]domain.Attempt, 0)
	for _, attempt := range s.attempts {
		if testIDs != nil {
			if _, ok := testIDs[attempt.TestID]; !ok {
				continue
			}
		}
		if filter.Status != "" && attempt.Status != filter.Status {
			continue
		}
		out = append(out, cloneAttempt(attempt))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *AttemptStore) ListAnswers(_ context.Context, attemptIDs []int64) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Answer, 0)
	for _, attemptID := range attemptIDs {
		for _, id := range s.byAttempt[attemptID] {
			out = append(out, cloneAnswer(s.answers[id]))
		}
	}
	return out, nil
}

func (s *AttemptStore) ListPendingAnswers(_ context.Context, testID int64) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Answer, 0)
	for _, answer := range s.answers {
		if answer.ReviewStatus != domain.ReviewPending {
			continue
		}
		if s.attempts[answer.ResultID].TestID != testID {
			continue
		}
		out = append(out, cloneAnswer(answer))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// attemptTx reads through its staged writes to the store. The store write lock is held.
type attemptTx struct {
	store    *AttemptStore
	answers  map[int64]domain.Answer
	attempts map[int64]domain.Attempt
}

// LockAttempt only checks the attempt exists: InTx already holds the store write lock.
func (tx *attemptTx) LockAttempt(ctx context.Context, attemptID int64) (domain.Attempt, error) {
	return tx.GetAttempt(ctx, attemptID)
}

func (tx *attemptTx) GetAnswer(_ context.Context, answerID int64) (domain.Answer, error) {
	if answer, ok := tx.answers[answerID]; ok {
		return cloneAnswer(answer), nil
	}
	answer, ok := tx.store.answers[answerID]
	if !ok {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	return cloneAnswer(answer), nil
}

func (tx *attemptTx) UpdateAnswer(ctx context.Context, answer domain.Answer) error {
	if _, err := tx.GetAnswer(ctx, answer.ID); err != nil {
		return err
	}
	tx.answers[answer.ID] = cloneAnswer(answer)
	return nil
}

func (tx *attemptTx) GetAttempt(_ context.Context, attemptID int64) (domain.Attempt, error) {
	if attempt, ok := tx.attempts[attemptID]; ok {
		return cloneAttempt(attempt), nil
	}
	attempt, ok := tx.store.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return cloneAttempt(attempt), nil
}

func (tx *attemptTx) AttemptAnswers(ctx context.Context, attemptID int64) ([]domain.Answer, error) {
	ids := tx.store.byAttempt[attemptID]
	out := make([]domain.Answer, 0, len(ids))
	for _, id := range ids {
		answer, err := tx.GetAnswer(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, answer)
	}
	return out, nil
}

func (tx *attemptTx) UpdateAttempt(ctx context.Context, attempt domain.Attempt) error {
	current, err := tx.GetAttempt(ctx, attempt.ID)
	if err != nil {
		return err
	}
	if current.Status != domain.StatusPendingReview {
		return fmt.Errorf("attempt %d: %w", attempt.ID, domain.ErrAlreadyResolved)
	}
	current.Score = attempt.Score
	current.Total = attempt.Total
	current.Percentage = attempt.Percentage
	current.Passed = attempt.Passed
	current.Status = attempt.Status
	tx.attempts[attempt.ID] = current
	return nil
}

func cloneAnswer(a domain.Answer) domain.Answer {
	if a.UserAnswer != nil {
		a.UserAnswer = append([]byte(nil), a.UserAnswer...)
	}
	if a.IsCorrect != nil {
		v := *a.IsCorrect
		a.IsCorrect = &v
	}
	return a
}

func cloneAttempt(a domain.Attempt) domain.Attempt {
	if a.TimeSpent != nil {
		v := *a.TimeSpent
		a.TimeSpent = &v
	}
	return a
}
