package domain

import (
	"encoding/json"
	"time"
)

// QuestionType selects how an answer is graded.
type QuestionType string

const (
	// QuestionCheckbox is graded automatically against CorrectOptionIDs.
	QuestionCheckbox QuestionType = "checkbox"
	// QuestionTextInput always needs a reviewer.
	QuestionTextInput QuestionType = "text_input"
)

// AttemptStatus is the lifecycle state of an attempt. The only transition is
// pending_review -> completed.
type AttemptStatus string

const (
	StatusCompleted     AttemptStatus = "completed"
	StatusPendingReview AttemptStatus = "pending_review"
)

// ReviewStatus tracks how an answer got (or will get) its verdict.
type ReviewStatus string

const (
	ReviewAuto            ReviewStatus = "auto"
	ReviewPending         ReviewStatus = "pending"
	ReviewManualCorrect   ReviewStatus = "manual_correct"
	ReviewManualIncorrect ReviewStatus = "manual_incorrect"
)

// Test is the catalog header of a knowledge test.
type Test struct {
	ID       int64  `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	IsActive bool   `json:"isActive" yaml:"isActive"`
}

// TestSettings holds the per-test knobs. PassingScore is a raw score, not a percentage.
type TestSettings struct {
	TestID           int64 `json:"testId" yaml:"testId"`
	DurationMinutes  int   `json:"durationMinutes" yaml:"durationMinutes"`
	QuestionsPerTest int   `json:"questionsPerTest" yaml:"questionsPerTest"`
	PassingScore     int   `json:"passingScore" yaml:"passingScore"`
}

// Option represents a selectable answer of a checkbox question.
type Option struct {
	ID         int64  `json:"id" yaml:"id"`
	QuestionID int64  `json:"questionId" yaml:"questionId"`
	Text       string `json:"text" yaml:"text"`
}

// Question belongs to exactly one test. CorrectOptionIDs is an unordered set and
// is empty for text_input questions.
type Question struct {
	ID               int64        `json:"id" yaml:"id"`
	TestID           int64        `json:"testId" yaml:"testId"`
	Text             string       `json:"text" yaml:"text"`
	Type             QuestionType `json:"type" yaml:"type"`
	CorrectOptionIDs []int64      `json:"correctOptionKey,omitempty" yaml:"correctOptionKey"`
	Options          []Option     `json:"options,omitempty" yaml:"options"`
}

// HasOption reports whether optionID belongs to the question.
func (q Question) HasOption(optionID int64) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// TestDefinition is the catalog view the engine grades against.
type TestDefinition struct {
	Test      Test         `json:"test" yaml:"test"`
	Settings  TestSettings `json:"settings" yaml:"settings"`
	Questions []Question   `json:"questions" yaml:"questions"`
}

// Question looks up a question of the test by id.
func (d TestDefinition) Question(id int64) (Question, bool) {
	for _, q := range d.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// RequiredAnswers is the number of answers a complete submission carries.
func (d TestDefinition) RequiredAnswers() int {
	n := d.Settings.QuestionsPerTest
	if n > 0 && n < len(d.Questions) {
		return n
	}
	return len(d.Questions)
}

// Attempt is one test-taking session. Score, Percentage and Passed are
// provisional zeros while Status is pending_review.
type Attempt struct {
	ID         int64         `json:"id"`
	TestID     int64         `json:"testId"`
	FIO        string        `json:"fio"`
	Score      int           `json:"score"`
	Total      int           `json:"total"`
	Percentage int           `json:"percentage"`
	Status     AttemptStatus `json:"status"`
	Passed     bool          `json:"passed"`
	Date       time.Time     `json:"date"`
	TimeSpent  *int          `json:"timeSpent,omitempty"` // seconds
}

// IsFinal reports whether score fields can be surfaced as results.
func (a Attempt) IsFinal() bool {
	return a.Status == StatusCompleted
}

// Answer is the single answer of an attempt to one question.
// IsCorrect is nil while the answer waits for a reviewer.
type Answer struct {
	ID           int64           `json:"id"`
	ResultID     int64           `json:"resultId"`
	QuestionID   int64           `json:"questionId"`
	UserAnswer   json.RawMessage `json:"userAnswer"`
	IsCorrect    *bool           `json:"isCorrect"`
	ReviewStatus ReviewStatus    `json:"reviewStatus"`
}

// SubmittedAnswer is the raw answer posted by a test taker. Value is a JSON
// array of option ids for checkbox questions and a JSON string for text input.
type SubmittedAnswer struct {
	QuestionID int64           `json:"questionId" validate:"gt=0"`
	Value      json.RawMessage `json:"answerValue" validate:"required"`
}

// Submission is the full answer sheet of an attempt.
type Submission struct {
	TestID    int64             `json:"testId" validate:"gt=0"`
	FIO       string            `json:"fio" validate:"required,max=255"`
	StartTime time.Time         `json:"startTime"`
	Answers   []SubmittedAnswer `json:"answers" validate:"required,min=1,dive"`
}

// ReviewDecision is a reviewer verdict on a pending answer.
type ReviewDecision struct {
	AnswerID  int64 `json:"answerId" validate:"gt=0"`
	IsCorrect bool  `json:"isCorrect"`
}

// ReviewReport summarizes a processed review batch.
type ReviewReport struct {
	Applied   int     `json:"applied"`
	Skipped   int     `json:"skipped"`
	Failed    int     `json:"failed"`
	Finalized []int64 `json:"finalized"`
}

// EventResultReviewed is published once per finalized attempt.
const EventResultReviewed = "result-reviewed"

// FinalResult is the finalized attempt payload delivered to subscribers.
type FinalResult struct {
	TestID     int64         `json:"testId"`
	FIO        string        `json:"fio"`
	Score      int           `json:"score"`
	Total      int           `json:"total"`
	Percentage int           `json:"percentage"`
	Passed     bool          `json:"passed"`
	Status     AttemptStatus `json:"status"`
}

// ResultReviewed is the payload of EventResultReviewed.
type ResultReviewed struct {
	ResultID        int64       `json:"resultId"`
	FinalResultData FinalResult `json:"finalResultData"`
}

// Notification is a named event handed to notifiers.
type Notification struct {
	Event   string         `json:"event"`
	Payload ResultReviewed `json:"payload"`
}

// AttemptFilter narrows attempt listings. A nil TestIDs matches every test and an
// empty Status matches every status.
type AttemptFilter struct {
	TestIDs []int64
	Status  AttemptStatus
}

// LoggedEvent is a persisted notification as replayed from the event log.
type LoggedEvent struct {
	ID        int64           `json:"id"`
	Event     string          `json:"event"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
}
