package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hr-testing-service/internal/domain"
)

func TestCatalogRepositoryCaches(t *testing.T) {
	loader := &countingLoader{CatalogLoader: NewStaticCatalogLoader(sampleTest())}
	repo := NewCatalogRepository(loader, time.Minute)

	if _, err := repo.GetTest(context.Background(), 1); err != nil {
		t.Fatalf("get test: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	def, err := repo.GetTest(context.Background(), 1)
	if err != nil {
		t.Fatalf("get test 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
	if def.Settings.PassingScore != 2 || len(def.Questions) != 2 {
		t.Fatalf("unexpected definition %+v", def)
	}
}

func TestCatalogRepositoryExpires(t *testing.T) {
	loader := &countingLoader{CatalogLoader: NewStaticCatalogLoader(sampleTest())}
	repo := NewCatalogRepository(loader, time.Minute)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetTest(context.Background(), 1)
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetTest(context.Background(), 1)

	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls)
	}
}

func TestCatalogRepositoryUnknownTest(t *testing.T) {
	repo := NewCatalogRepository(NewStaticCatalogLoader(sampleTest()), time.Minute)

	_, err := repo.GetTest(context.Background(), 42)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStaticCatalogLoaderListsActiveTests(t *testing.T) {
	inactive := domain.TestDefinition{Test: domain.Test{ID: 2, Name: "Archived", IsActive: false}}
	loader := NewStaticCatalogLoader(sampleTest(), inactive)

	all, _ := loader.ListTests(context.Background(), false)
	if len(all) != 2 || all[0].ID != 1 || all[1].ID != 2 {
		t.Fatalf("expected both tests ordered by id, got %+v", all)
	}
	active, _ := loader.ListTests(context.Background(), true)
	if len(active) != 1 || active[0].ID != 1 {
		t.Fatalf("expected only the active test, got %+v", active)
	}
	if defs := loader.Definitions(); len(defs) != 2 || defs[1].Test.Name != "Archived" {
		t.Fatalf("unexpected definitions %+v", defs)
	}
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `
tests:
  - test: {id: 7, name: Safety basics, isActive: true}
    settings: {durationMinutes: 15, questionsPerTest: 2, passingScore: 1}
    questions:
      - id: 70
        text: Pick the fire exits
        type: checkbox
        correctOptionKey: [701, 703]
        options:
          - {id: 701, text: North}
          - {id: 702, text: Roof}
          - {id: 703, text: South}
      - id: 71
        text: Describe the evacuation route
        type: text_input
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	loader, err := LoadCatalogFile(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	def, err := loader.LoadTest(context.Background(), 7)
	if err != nil {
		t.Fatalf("load test: %v", err)
	}
	if def.Settings.TestID != 7 || def.Settings.PassingScore != 1 {
		t.Fatalf("settings not linked: %+v", def.Settings)
	}
	q, ok := def.Question(70)
	if !ok || q.TestID != 7 || q.Type != domain.QuestionCheckbox || len(q.CorrectOptionIDs) != 2 {
		t.Fatalf("unexpected question %+v", q)
	}
	if q.Options[1].QuestionID != 70 {
		t.Fatalf("option not linked to question: %+v", q.Options[1])
	}
}

func TestLoadCatalogFileRejectsDuplicateIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := "tests:\n  - test: {id: 1}\n  - test: {id: 1}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	if _, err := LoadCatalogFile(path); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

type countingLoader struct {
	CatalogLoader
	calls int
}

func (l *countingLoader) LoadTest(ctx context.Context, testID int64) (domain.TestDefinition, error) {
	l.calls++
	return l.CatalogLoader.LoadTest(ctx, testID)
}

func sampleTest() domain.TestDefinition {
	return domain.TestDefinition{
		Test:     domain.Test{ID: 1, Name: "Onboarding", IsActive: true},
		Settings: domain.TestSettings{TestID: 1, DurationMinutes: 10, QuestionsPerTest: 2, PassingScore: 2},
		Questions: []domain.Question{
			{
				ID:               11,
				TestID:           1,
				Text:             "Which documents are required?",
				Type:             domain.QuestionCheckbox,
				CorrectOptionIDs: []int64{111, 113},
				Options: []domain.Option{
					{ID: 111, QuestionID: 11, Text: "Passport"},
					{ID: 112, QuestionID: 11, Text: "Library card"},
					{ID: 113, QuestionID: 11, Text: "Tax number"},
				},
			},
			{ID: 12, TestID: 1, Text: "Describe the leave policy", Type: domain.QuestionTextInput},
		},
	}
}

func TestShippedCatalogLoads(t *testing.T) {
	loader, err := LoadCatalogFile(filepath.Join("..", "..", "..", "config", "catalog.yaml"))
	if err != nil {
		t.Fatalf("load shipped catalog: %v", err)
	}
	active, _ := loader.ListTests(context.Background(), true)
	all, _ := loader.ListTests(context.Background(), false)
	if len(active) != 2 || len(all) != 3 {
		t.Fatalf("unexpected catalog: active=%d all=%d", len(active), len(all))
	}
	for _, def := range loader.Definitions() {
		for _, q := range def.Questions {
			for _, id := range q.CorrectOptionIDs {
				if !q.HasOption(id) {
					t.Fatalf("question %d keys unknown option %d", q.ID, id)
				}
			}
		}
	}
}
