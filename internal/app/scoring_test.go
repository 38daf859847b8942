package app

import (
	"encoding/json"
	"errors"
	"testing"

	"hr-testing-service/internal/domain"
)

func TestRoundRatioHalfUp(t *testing.T) {
	cases := []struct {
		num, den, want int
	}{
		{0, 0, 0},
		{1, 2, 50},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13}, // 12.5
		{5, 7, 71},
		{3, 3, 100},
	}
	for _, tc := range cases {
		if got := RoundRatio(tc.num, tc.den); got != tc.want {
			t.Fatalf("RoundRatio(%d, %d) = %d, want %d", tc.num, tc.den, got, tc.want)
		}
	}
}

func TestRoundMeanHalfUp(t *testing.T) {
	cases := []struct {
		sum, n, want int
	}{
		{0, 0, 0},
		{140, 2, 70},
		{142, 2, 71},
		{141, 2, 71}, // 70.5
		{200, 3, 67},
	}
	for _, tc := range cases {
		if got := RoundMean(tc.sum, tc.n); got != tc.want {
			t.Fatalf("RoundMean(%d, %d) = %d, want %d", tc.sum, tc.n, got, tc.want)
		}
	}
}

func TestGradeCheckboxUsesExactSetEquality(t *testing.T) {
	q := domain.Question{
		ID:               1,
		Type:             domain.QuestionCheckbox,
		CorrectOptionIDs: []int64{10, 30},
		Options:          []domain.Option{{ID: 10}, {ID: 20}, {ID: 30}},
	}
	cases := map[string]struct {
		raw  string
		want bool
	}{
		"same set":          {`[10, 30]`, true},
		"different order":   {`[30, 10]`, true},
		"duplicates folded": {`[30, 10, 30]`, true},
		"missing selection": {`[10]`, false},
		"extra selection":   {`[10, 20, 30]`, false},
		"empty selection":   {`[]`, false},
	}
	for name, tc := range cases {
		answer, err := gradeAnswer(q, json.RawMessage(tc.raw))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if answer.ReviewStatus != domain.ReviewAuto || answer.IsCorrect == nil || *answer.IsCorrect != tc.want {
			t.Fatalf("%s: unexpected answer %+v", name, answer)
		}
	}

	answer, _ := gradeAnswer(q, json.RawMessage(`[30, 10, 30]`))
	if string(answer.UserAnswer) != `[10,30]` {
		t.Fatalf("expected normalized selection, got %s", answer.UserAnswer)
	}
}

func TestGradeCheckboxRejectsBadInput(t *testing.T) {
	q := domain.Question{ID: 1, Type: domain.QuestionCheckbox, Options: []domain.Option{{ID: 10}}}

	if _, err := gradeAnswer(q, json.RawMessage(`"10"`)); !errors.Is(err, domain.ErrInvalidSubmission) {
		t.Fatalf("expected invalid submission for a string answer, got %v", err)
	}
	if _, err := gradeAnswer(q, json.RawMessage(`[99]`)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for a foreign option, got %v", err)
	}
}

func TestGradeTextInputIsAlwaysPending(t *testing.T) {
	q := domain.Question{ID: 2, Type: domain.QuestionTextInput}

	answer, err := gradeAnswer(q, json.RawMessage(`"Escalate to security"`))
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if answer.ReviewStatus != domain.ReviewPending || answer.IsCorrect != nil {
		t.Fatalf("text answers must wait for review, got %+v", answer)
	}
	if _, err := gradeAnswer(q, json.RawMessage(`[1]`)); !errors.Is(err, domain.ErrAnswerShape) {
		t.Fatalf("expected answer shape error, got %v", err)
	}
}

func TestApplyFinalScore(t *testing.T) {
	attempt := domain.Attempt{Total: 3, Status: domain.StatusPendingReview}
	applyFinalScore(&attempt, 2, 2)
	if attempt.Score != 2 || attempt.Percentage != 67 || !attempt.Passed || attempt.Status != domain.StatusCompleted {
		t.Fatalf("unexpected attempt %+v", attempt)
	}
	applyFinalScore(&attempt, 1, 2)
	if attempt.Percentage != 33 || attempt.Passed {
		t.Fatalf("unexpected attempt %+v", attempt)
	}
}
