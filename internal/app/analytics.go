package app

import (
	"context"
	"fmt"
	"sort"

	"hr-testing-service/internal/domain"
)

// DefaultScoreBuckets are the histogram lower bounds: 0-59, 60-79, 80-100.
var DefaultScoreBuckets = []int{0, 60, 80}

// AnalyticsAggregator derives read-only statistics from persisted attempts.
// Every view goes through summarize so single-test and cross-test numbers agree:
// pass rate and average percentage count completed attempts only, attempt counts
// include every status.
type AnalyticsAggregator struct {
	catalog Catalog
	store   AttemptStore
	bounds  []int
}

func NewAnalyticsAggregator(catalog Catalog, store AttemptStore, bucketBounds []int) *AnalyticsAggregator {
	return &AnalyticsAggregator{
		catalog: catalog,
		store:   store,
		bounds:  normalizeBounds(bucketBounds),
	}
}

// TestingSummary rolls up attempts of every test in scope.
func (a *AnalyticsAggregator) TestingSummary(ctx context.Context, activeOnly bool) (domain.TestingSummary, error) {
	tests, err := a.catalog.ListTests(ctx, activeOnly)
	if err != nil {
		return domain.TestingSummary{}, err
	}
	summary := domain.TestingSummary{TotalTests: len(tests)}
	if len(tests) == 0 {
		return summary, nil
	}

	attempts, err := a.store.ListAttempts(ctx, domain.AttemptFilter{TestIDs: testIDs(tests)})
	if err != nil {
		return domain.TestingSummary{}, fmt.Errorf("list attempts: %w", err)
	}
	stats := summarize(attempts)
	summary.PassedTests = stats.passed
	summary.AvgResult = stats.averagePercentage()
	summary.NeedsReview = stats.pending
	return summary, nil
}

// TestAnalytics builds the detailed view of one test.
func (a *AnalyticsAggregator) TestAnalytics(ctx context.Context, testID int64) (domain.TestAnalytics, error) {
	def, err := a.catalog.GetTest(ctx, testID)
	if err != nil {
		return domain.TestAnalytics{}, err
	}

	attempts, err := a.store.ListAttempts(ctx, domain.AttemptFilter{TestIDs: []int64{testID}})
	if err != nil {
		return domain.TestAnalytics{}, fmt.Errorf("list attempts: %w", err)
	}
	stats := summarize(attempts)

	completedIDs := make([]int64, 0, stats.completed)
	percentages := make([]int, 0, stats.completed)
	for _, attempt := range attempts {
		if attempt.Status != domain.StatusCompleted {
			continue
		}
		completedIDs = append(completedIDs, attempt.ID)
		percentages = append(percentages, attempt.Percentage)
	}

	var answers []domain.Answer
	if len(completedIDs) > 0 {
		answers, err = a.store.ListAnswers(ctx, completedIDs)
		if err != nil {
			return domain.TestAnalytics{}, fmt.Errorf("list answers: %w", err)
		}
	}

	return domain.TestAnalytics{
		TestID:                 def.Test.ID,
		TestName:               def.Test.Name,
		SummaryStats:           stats.summaryStats(),
		MostDifficultQuestions: rankDifficulty(def, answers),
		ScoreDistribution:      a.distribution(percentages),
	}, nil
}

// AllTestsOverview returns one row per test in scope, in catalog order.
func (a *AnalyticsAggregator) AllTestsOverview(ctx context.Context, activeOnly bool) ([]domain.TestOverview, error) {
	tests, err := a.catalog.ListTests(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	rows := make([]domain.TestOverview, 0, len(tests))
	if len(tests) == 0 {
		return rows, nil
	}

	attempts, err := a.store.ListAttempts(ctx, domain.AttemptFilter{TestIDs: testIDs(tests)})
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	byTest := make(map[int64][]domain.Attempt, len(tests))
	for _, attempt := range attempts {
		byTest[attempt.TestID] = append(byTest[attempt.TestID], attempt)
	}

	for _, test := range tests {
		stats := summarize(byTest[test.ID]).summaryStats()
		rows = append(rows, domain.TestOverview{
			TestID:        test.ID,
			TestName:      test.Name,
			AttemptsCount: stats.TotalAttempts,
			PassRate:      stats.PassRate,
			AvgScore:      stats.AveragePercentage,
		})
	}
	return rows, nil
}

type attemptStats struct {
	total      int
	completed  int
	pending    int
	passed     int
	percentSum int
}

func summarize(attempts []domain.Attempt) attemptStats {
	var s attemptStats
	for _, attempt := range attempts {
		s.total++
		switch attempt.Status {
		case domain.StatusCompleted:
			s.completed++
			s.percentSum += attempt.Percentage
			if attempt.Passed {
				s.passed++
			}
		case domain.StatusPendingReview:
			s.pending++
		}
	}
	return s
}

func (s attemptStats) passRate() int {
	return RoundRatio(s.passed, s.completed)
}

// averagePercentage is rounded once over the completed attempts.
func (s attemptStats) averagePercentage() int {
	return RoundMean(s.percentSum, s.completed)
}

func (s attemptStats) summaryStats() domain.SummaryStats {
	return domain.SummaryStats{
		TotalAttempts:     s.total,
		CompletedAttempts: s.completed,
		PendingAttempts:   s.pending,
		PassRate:          s.passRate(),
		AveragePercentage: s.averagePercentage(),
	}
}

// rankDifficulty aggregates answers per question, hardest first.
func rankDifficulty(def domain.TestDefinition, answers []domain.Answer) []domain.QuestionDifficulty {
	byQuestion := make(map[int64]*domain.QuestionDifficulty)
	for _, answer := range answers {
		row, ok := byQuestion[answer.QuestionID]
		if !ok {
			row = &domain.QuestionDifficulty{QuestionID: answer.QuestionID}
			if q, found := def.Question(answer.QuestionID); found {
				row.Text = q.Text
			}
			byQuestion[answer.QuestionID] = row
		}
		row.TotalAnswers++
		if answer.IsCorrect == nil || !*answer.IsCorrect {
			row.IncorrectAnswers++
		}
	}

	rows := make([]domain.QuestionDifficulty, 0, len(byQuestion))
	for _, row := range byQuestion {
		row.Difficulty = RoundRatio(row.IncorrectAnswers, row.TotalAnswers)
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Difficulty != rows[j].Difficulty {
			return rows[i].Difficulty > rows[j].Difficulty
		}
		if rows[i].IncorrectAnswers != rows[j].IncorrectAnswers {
			return rows[i].IncorrectAnswers > rows[j].IncorrectAnswers
		}
		return rows[i].QuestionID < rows[j].QuestionID
	})
	return rows
}

// distribution counts percentages into the configured buckets; counts sum to len(percentages).
func (a *AnalyticsAggregator) distribution(percentages []int) []domain.ScoreBucket {
	buckets := make([]domain.ScoreBucket, len(a.bounds))
	for i, lo := range a.bounds {
		hi := 100
		if i+1 < len(a.bounds) {
			hi = a.bounds[i+1] - 1
		}
		buckets[i] = domain.ScoreBucket{Label: fmt.Sprintf("%d-%d", lo, hi), Min: lo, Max: hi}
	}
	for _, p := range percentages {
		p = min(max(p, 0), 100)
		idx := sort.Search(len(a.bounds), func(i int) bool { return a.bounds[i] > p }) - 1
		buckets[idx].Count++
	}
	return buckets
}

// normalizeBounds sorts and de-duplicates lower bounds within 0..100 and makes sure 0 is the first one.
func normalizeBounds(bounds []int) []int {
	if len(bounds) == 0 {
		bounds = DefaultScoreBuckets
	}
	set := map[int]struct{}{0: {}}
	for _, b := range bounds {
		if b > 0 && b <= 100 {
			set[b] = struct{}{}
		}
	}
	out := make([]int, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Ints(out)
	return out
}

func testIDs(tests []domain.Test) []int64 {
	ids := make([]int64, 0, len(tests))
	for _, t := range tests {
		ids = append(ids, t.ID)
	}
	return ids
}
