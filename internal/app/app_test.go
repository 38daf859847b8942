package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"hr-testing-service/internal/domain"
	"hr-testing-service/internal/infra/memory"
)

// recordingNotifier remembers every notification; err, when set, is returned from Notify.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []domain.Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, n)
	return r.err
}

func (r *recordingNotifier) Calls() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notification(nil), r.calls...)
}

var errNotifierDown = errors.New("notifier down")

// onboardingTest has one checkbox question keyed {111, 113} and one text question.
func onboardingTest() domain.TestDefinition {
	return domain.TestDefinition{
		Test:     domain.Test{ID: 1, Name: "Onboarding", IsActive: true},
		Settings: domain.TestSettings{TestID: 1, DurationMinutes: 20, PassingScore: 2},
		Questions: []domain.Question{
			{
				ID:               11,
				TestID:           1,
				Text:             "Approved channels for customer data",
				Type:             domain.QuestionCheckbox,
				CorrectOptionIDs: []int64{111, 113},
				Options: []domain.Option{
					{ID: 111, QuestionID: 11, Text: "Corporate email"},
					{ID: 112, QuestionID: 11, Text: "Personal messenger"},
					{ID: 113, QuestionID: 11, Text: "Document storage"},
				},
			},
			{ID: 12, TestID: 1, Text: "How do you report an incident?", Type: domain.QuestionTextInput},
		},
	}
}

// securityTest has two checkbox questions only.
func securityTest() domain.TestDefinition {
	return domain.TestDefinition{
		Test:     domain.Test{ID: 2, Name: "Security", IsActive: true},
		Settings: domain.TestSettings{TestID: 2, PassingScore: 1},
		Questions: []domain.Question{
			{
				ID: 21, TestID: 2, Text: "Strong password", Type: domain.QuestionCheckbox,
				CorrectOptionIDs: []int64{212},
				Options:          []domain.Option{{ID: 211, QuestionID: 21}, {ID: 212, QuestionID: 21}},
			},
			{
				ID: 22, TestID: 2, Text: "Suspicious attachment", Type: domain.QuestionCheckbox,
				CorrectOptionIDs: []int64{222},
				Options:          []domain.Option{{ID: 221, QuestionID: 22}, {ID: 222, QuestionID: 22}},
			},
		},
	}
}

func newCatalog(defs ...domain.TestDefinition) *memory.CatalogRepository {
	return memory.NewCatalogRepository(memory.NewStaticCatalogLoader(defs...), time.Minute)
}

func raw(v string) json.RawMessage {
	return json.RawMessage(v)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
