package domain

// TestingSummary is the dashboard rollup across tests in scope.
type TestingSummary struct {
	TotalTests  int `json:"totalTests"`
	PassedTests int `json:"passedTests"`
	AvgResult   int `json:"avgResult"`
	NeedsReview int `json:"needsReview"`
}

// SummaryStats is the attempt rollup of a single test.
type SummaryStats struct {
	TotalAttempts     int `json:"totalAttempts"`
	CompletedAttempts int `json:"completedAttempts"`
	PendingAttempts   int `json:"pendingAttempts"`
	PassRate          int `json:"passRate"`
	AveragePercentage int `json:"averagePercentage"`
}

// QuestionDifficulty aggregates answers to one question over finalized attempts.
type QuestionDifficulty struct {
	QuestionID       int64  `json:"questionId"`
	Text             string `json:"text"`
	TotalAnswers     int    `json:"totalAnswers"`
	IncorrectAnswers int    `json:"incorrectAnswers"`
	Difficulty       int    `json:"difficulty"` // percent of incorrect answers
}

// ScoreBucket is one histogram bin of attempt percentages, inclusive on both ends.
type ScoreBucket struct {
	Label string `json:"label"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Count int    `json:"count"`
}

// TestAnalytics is the single-test analytics view.
type TestAnalytics struct {
	TestID                 int64                `json:"testId"`
	TestName               string               `json:"testName"`
	SummaryStats           SummaryStats         `json:"summaryStats"`
	MostDifficultQuestions []QuestionDifficulty `json:"mostDifficultQuestions"`
	ScoreDistribution      []ScoreBucket        `json:"scoreDistribution"`
}

// TestOverview is one row of the cross-test view. AvgScore is an average
// percentage and matches SummaryStats.AveragePercentage.
type TestOverview struct {
	TestID        int64  `json:"testId"`
	TestName      string `json:"testName"`
	AttemptsCount int    `json:"attemptsCount"`
	PassRate      int    `json:"passRate"`
	AvgScore      int    `json:"avgScore"`
}
