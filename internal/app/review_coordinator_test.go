package app_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hr-testing-service/internal/app"
	"hr-testing-service/internal/domain"
	"hr-testing-service/internal/infra/memory"
)

type reviewFixture struct {
	catalog  *memory.CatalogRepository
	store    *memory.AttemptStore
	notifier *recordingNotifier
	grader   *app.AttemptGrader
}

func newReviewFixture() *reviewFixture {
	catalog := newCatalog(onboardingTest(), securityTest())
	store := memory.NewAttemptStore()
	return &reviewFixture{
		catalog:  catalog,
		store:    store,
		notifier: &recordingNotifier{},
		grader:   app.NewAttemptGrader(catalog, store, nil),
	}
}

func (f *reviewFixture) coordinator(locker app.Locker) *app.ReviewCoordinator {
	return app.NewReviewCoordinator(f.catalog, f.store, locker, f.notifier, nil)
}

// submitPending creates an onboarding attempt with a correct checkbox answer and a
// pending text answer, returning the attempt and the pending answer id.
func (f *reviewFixture) submitPending(t *testing.T, fio string) (domain.Attempt, int64) {
	t.Helper()
	attempt, err := f.grader.Submit(context.Background(), domain.Submission{
		TestID: 1,
		FIO:    fio,
		Answers: []domain.SubmittedAnswer{
			{QuestionID: 11, Value: raw(`[111, 113]`)},
			{QuestionID: 12, Value: raw(`"Call the security desk"`)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPendingReview, attempt.Status)

	answers, err := f.store.ListAnswers(context.Background(), []int64{attempt.ID})
	require.NoError(t, err)
	for _, a := range answers {
		if a.ReviewStatus == domain.ReviewPending {
			return attempt, a.ID
		}
	}
	t.Fatalf("attempt %d has no pending answer", attempt.ID)
	return attempt, 0
}

func (f *reviewFixture) attempt(t *testing.T, id int64) domain.Attempt {
	t.Helper()
	attempts, err := f.store.ListAttempts(context.Background(), domain.AttemptFilter{})
	require.NoError(t, err)
	for _, a := range attempts {
		if a.ID == id {
			return a
		}
	}
	t.Fatalf("attempt %d not found", id)
	return domain.Attempt{}
}

func TestReviewFinalizesAttemptAndNotifiesOnce(t *testing.T) {
	f := newReviewFixture()
	attempt, answerID := f.submitPending(t, "Petrov Ivan")

	report, err := f.coordinator(nil).SubmitBatch(context.Background(), []domain.ReviewDecision{{AnswerID: answerID, IsCorrect: true}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, []int64{attempt.ID}, report.Finalized)

	final := f.attempt(t, attempt.ID)
	assert.Equal(t, domain.StatusCompleted, final.Status)
	assert.Equal(t, 2, final.Score)
	assert.Equal(t, 2, final.Total)
	assert.Equal(t, 100, final.Percentage)
	assert.True(t, final.Passed)

	calls := f.notifier.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.EventResultReviewed, calls[0].Event)
	assert.Equal(t, attempt.ID, calls[0].Payload.ResultID)
	assert.Equal(t, domain.FinalResult{
		TestID:     1,
		FIO:        "Petrov Ivan",
		Score:      2,
		Total:      2,
		Percentage: 100,
		Passed:     true,
		Status:     domain.StatusCompleted,
	}, calls[0].Payload.FinalResultData)
}

func TestReviewIncorrectVerdictFailsAttempt(t *testing.T) {
	f := newReviewFixture()
	attempt, answerID := f.submitPending(t, "Orlova Vera")

	_, err := f.coordinator(nil).SubmitBatch(context.Background(), []domain.ReviewDecision{{AnswerID: answerID, IsCorrect: false}})
	require.NoError(t, err)

	final := f.attempt(t, attempt.ID)
	assert.Equal(t, domain.StatusCompleted, final.Status)
	assert.Equal(t, 1, final.Score)
	assert.Equal(t, 50, final.Percentage)
	assert.False(t, final.Passed)

	answer, err := f.store.GetAnswer(context.Background(), answerID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewManualIncorrect, answer.ReviewStatus)
	require.NotNil(t, answer.IsCorrect)
	assert.False(t, *answer.IsCorrect)
}

func TestReviewRedeliveryIsNoOp(t *testing.T) {
	f := newReviewFixture()
	attempt, answerID := f.submitPending(t, "Petrov Ivan")
	coordinator := f.coordinator(nil)

	_, err := coordinator.SubmitBatch(context.Background(), []domain.ReviewDecision{{AnswerID: answerID, IsCorrect: true}})
	require.NoError(t, err)

	report, err := coordinator.SubmitBatch(context.Background(), []domain.ReviewDecision{{AnswerID: answerID, IsCorrect: false}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Applied)
	assert.Empty(t, report.Finalized)

	final := f.attempt(t, attempt.ID)
	assert.Equal(t, 2, final.Score)
	assert.True(t, final.Passed)
	assert.Len(t, f.notifier.Calls(), 1)
}

func TestReviewBatchSpansAttemptsAndReportsFailures(t *testing.T) {
	f := newReviewFixture()
	first, firstAnswer := f.submitPending(t, "First")
	second, secondAnswer := f.submitPending(t, "Second")

	report, err := f.coordinator(nil).SubmitBatch(context.Background(), []domain.ReviewDecision{
		{AnswerID: firstAnswer, IsCorrect: true},
		{AnswerID: 9999, IsCorrect: true},
		{AnswerID: secondAnswer, IsCorrect: false},
		{AnswerID: 0, IsCorrect: true},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAnswerNotFound)
	assert.ErrorIs(t, err, domain.ErrInvalidSubmission)
	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, 2, report.Failed)
	assert.ElementsMatch(t, []int64{first.ID, second.ID}, report.Finalized)

	assert.Equal(t, domain.StatusCompleted, f.attempt(t, first.ID).Status)
	assert.Equal(t, domain.StatusCompleted, f.attempt(t, second.ID).Status)
	assert.Len(t, f.notifier.Calls(), 2)
}

func TestReviewConcurrentDecisionsFinalizeOnce(t *testing.T) {
	f := newReviewFixture()
	attempt, answerID := f.submitPending(t, "Petrov Ivan")
	locker := app.NewKeyedLocker()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		finalized int
		applied   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(verdict bool) {
			defer wg.Done()
			report, err := f.coordinator(locker).SubmitBatch(context.Background(), []domain.ReviewDecision{{AnswerID: answerID, IsCorrect: verdict}})
			assert.NoError(t, err)
			mu.Lock()
			finalized += len(report.Finalized)
			applied += report.Applied
			mu.Unlock()
		}(i%2 == 0)
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, finalized)
	calls := f.notifier.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, attempt.ID, calls[0].Payload.ResultID)
	assert.Zero(t, locker.Len())
}

func TestReviewConcurrentLastTwoAnswersFinalizeOnce(t *testing.T) {
	def := onboardingTest()
	def.Questions = append(def.Questions, domain.Question{ID: 13, TestID: 1, Text: "Name your buddy", Type: domain.QuestionTextInput})
	catalog := newCatalog(def)
	store := memory.NewAttemptStore()
	notifier := &recordingNotifier{}
	grader := app.NewAttemptGrader(catalog, store, nil)
	locker := app.NewKeyedLocker()

	for round := 0; round < 20; round++ {
		attempt, err := grader.Submit(context.Background(), domain.Submission{
			TestID: 1,
			FIO:    "Candidate",
			Answers: []domain.SubmittedAnswer{
				{QuestionID: 11, Value: raw(`[111, 113]`)},
				{QuestionID: 12, Value: raw(`"one"`)},
				{QuestionID: 13, Value: raw(`"two"`)},
			},
		})
		require.NoError(t, err)

		answers, err := store.ListAnswers(context.Background(), []int64{attempt.ID})
		require.NoError(t, err)
		var pendingIDs []int64
		for _, a := range answers {
			if a.ReviewStatus == domain.ReviewPending {
				pendingIDs = append(pendingIDs, a.ID)
			}
		}
		require.Len(t, pendingIDs, 2)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			finalized []int64
			start     = make(chan struct{})
		)
		for _, id := range pendingIDs {
			wg.Add(1)
			go func(answerID int64) {
				defer wg.Done()
				coordinator := app.NewReviewCoordinator(catalog, store, locker, notifier, nil)
				<-start
				report, err := coordinator.SubmitBatch(context.Background(), []domain.ReviewDecision{{AnswerID: answerID, IsCorrect: true}})
				assert.NoError(t, err)
				mu.Lock()
				finalized = append(finalized, report.Finalized...)
				mu.Unlock()
			}(id)
		}
		close(start)
		wg.Wait()

		require.Equal(t, []int64{attempt.ID}, finalized, "round %d", round)
		var final domain.Attempt
		attempts, err := store.ListAttempts(context.Background(), domain.AttemptFilter{})
		require.NoError(t, err)
		for _, a := range attempts {
			if a.ID == attempt.ID {
				final = a
			}
		}
		assert.Equal(t, domain.StatusCompleted, final.Status)
		assert.Equal(t, 3, final.Score)
		assert.Equal(t, 100, final.Percentage)
	}
	assert.Len(t, notifier.Calls(), 20)
	assert.Zero(t, locker.Len())
}

func TestReviewSurvivesNotifierFailure(t *testing.T) {
	f := newReviewFixture()
	f.notifier.err = errNotifierDown
	attempt, answerID := f.submitPending(t, "Petrov Ivan")

	report, err := f.coordinator(nil).SubmitBatch(context.Background(), []domain.ReviewDecision{{AnswerID: answerID, IsCorrect: true}})
	require.NoError(t, err)
	assert.Equal(t, []int64{attempt.ID}, report.Finalized)
	assert.Equal(t, domain.StatusCompleted, f.attempt(t, attempt.ID).Status)
	assert.Len(t, f.notifier.Calls(), 1)
}

func TestReviewWithMultiplePendingAnswersWaitsForLast(t *testing.T) {
	def := onboardingTest()
	def.Questions = append(def.Questions, domain.Question{ID: 13, TestID: 1, Text: "Name your buddy", Type: domain.QuestionTextInput})
	catalog := newCatalog(def)
	store := memory.NewAttemptStore()
	notifier := &recordingNotifier{}
	grader := app.NewAttemptGrader(catalog, store, nil)
	coordinator := app.NewReviewCoordinator(catalog, store, nil, notifier, nil)

	attempt, err := grader.Submit(context.Background(), domain.Submission{
		TestID: 1,
		FIO:    "A",
		Answers: []domain.SubmittedAnswer{
			{QuestionID: 11, Value: raw(`[111]`)},
			{QuestionID: 12, Value: raw(`"one"`)},
			{QuestionID: 13, Value: raw(`"two"`)},
		},
	})
	require.NoError(t, err)

	pending, err := coordinator.PendingAnswers(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	report, err := coordinator.SubmitBatch(context.Background(), []domain.ReviewDecision{{AnswerID: pending[0].ID, IsCorrect: true}})
	require.NoError(t, err)
	assert.Empty(t, report.Finalized)
	assert.Empty(t, notifier.Calls())

	report, err = coordinator.SubmitBatch(context.Background(), []domain.ReviewDecision{{AnswerID: pending[1].ID, IsCorrect: true}})
	require.NoError(t, err)
	assert.Equal(t, []int64{attempt.ID}, report.Finalized)

	attempts, err := store.ListAttempts(context.Background(), domain.AttemptFilter{Status: domain.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, 2, attempts[0].Score)
	assert.Equal(t, 3, attempts[0].Total)
	assert.Equal(t, 67, attempts[0].Percentage)
	assert.True(t, attempts[0].Passed)
}

func TestPendingAnswersUnknownTest(t *testing.T) {
	f := newReviewFixture()
	_, err := f.coordinator(nil).PendingAnswers(context.Background(), 42)
	require.ErrorIs(t, err, domain.ErrTestNotFound)
}
