package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Specific errors below wrap one of them so callers can branch with errors.Is.
var (
	// ErrNotFound marks a reference to a missing test, option, attempt or answer.
	ErrNotFound = errors.New("not found")
	// ErrInvalidSubmission marks a malformed answer sheet; the whole submission is rejected.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrAlreadyResolved marks a review decision for an answer that is no longer pending.
	ErrAlreadyResolved = errors.New("answer already resolved")
)

var (
	ErrTestNotFound    = fmt.Errorf("test %w", ErrNotFound)
	ErrOptionNotFound  = fmt.Errorf("option %w", ErrNotFound)
	ErrAttemptNotFound = fmt.Errorf("attempt %w", ErrNotFound)
	ErrAnswerNotFound  = fmt.Errorf("answer %w", ErrNotFound)

	ErrEmptyQuestionSet     = fmt.Errorf("%w: test has no questions", ErrInvalidSubmission)
	ErrUnknownQuestion      = fmt.Errorf("%w: question does not belong to test", ErrInvalidSubmission)
	ErrDuplicateQuestion    = fmt.Errorf("%w: question answered more than once", ErrInvalidSubmission)
	ErrAnswerShape          = fmt.Errorf("%w: answer does not match question type", ErrInvalidSubmission)
	ErrIncompleteSubmission = fmt.Errorf("%w: answers do not cover the test", ErrInvalidSubmission)
)
