package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"hr-testing-service/internal/domain"
)

// RoundRatio returns num/den*100 rounded to the nearest integer, halves up.
// Computed in integers; zero when den is zero.
func RoundRatio(num, den int) int {
	if den <= 0 {
		return 0
	}
	return (200*num + den) / (2 * den)
}

// RoundMean returns sum/n rounded to the nearest integer, halves up.
func RoundMean(sum, n int) int {
	if n <= 0 {
		return 0
	}
	return (2*sum + n) / (2 * n)
}

// Percentage is the attempt percentage for score out of total.
func Percentage(score, total int) int {
	return RoundRatio(score, total)
}

// applyFinalScore sets every result field of a finalized attempt at once.
func applyFinalScore(attempt *domain.Attempt, score, passingScore int) {
	attempt.Score = score
	attempt.Percentage = Percentage(score, attempt.Total)
	attempt.Passed = score >= passingScore
	attempt.Status = domain.StatusCompleted
}

// gradeAnswer validates the raw answer against the question and grades it when possible.
func gradeAnswer(q domain.Question, raw json.RawMessage) (domain.Answer, error) {
	answer := domain.Answer{QuestionID: q.ID}
	if isNull(raw) {
		return domain.Answer{}, fmt.Errorf("%w: question %d has no answer value", domain.ErrAnswerShape, q.ID)
	}
	switch q.Type {
	case domain.QuestionCheckbox:
		selected, err := decodeSelection(raw)
		if err != nil {
			return domain.Answer{}, fmt.Errorf("%w: question %d expects a list of option ids", domain.ErrAnswerShape, q.ID)
		}
		for _, id := range selected {
			if !q.HasOption(id) {
				return domain.Answer{}, fmt.Errorf("%w: %d in question %d", domain.ErrOptionNotFound, id, q.ID)
			}
		}
		normalized, err := json.Marshal(selected)
		if err != nil {
			return domain.Answer{}, err
		}
		correct := sameOptionSet(selected, q.CorrectOptionIDs)
		answer.UserAnswer = normalized
		answer.IsCorrect = &correct
		answer.ReviewStatus = domain.ReviewAuto
	case domain.QuestionTextInput:
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return domain.Answer{}, fmt.Errorf("%w: question %d expects text", domain.ErrAnswerShape, q.ID)
		}
		normalized, err := json.Marshal(text)
		if err != nil {
			return domain.Answer{}, err
		}
		answer.UserAnswer = normalized
		answer.ReviewStatus = domain.ReviewPending
	default:
		return domain.Answer{}, fmt.Errorf("%w: unsupported question type %q", domain.ErrAnswerShape, q.Type)
	}
	return answer, nil
}

// decodeSelection parses a checkbox answer into sorted, de-duplicated option ids.
func decodeSelection(raw json.RawMessage) ([]int64, error) {
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	set := toSet(ids)
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// sameOptionSet is exact set equality: extra or missing selections do not match.
func sameOptionSet(selected, key []int64) bool {
	a, b := toSet(selected), toSet(key)
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

func isNull(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

func toSet(ids []int64) map[int64]struct{} {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func reviewStatusFor(correct bool) domain.ReviewStatus {
	if correct {
		return domain.ReviewManualCorrect
	}
	return domain.ReviewManualIncorrect
}
