package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"hr-testing-service/internal/app"
	"hr-testing-service/internal/domain"
)

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID         int64     `bun:"id,pk,autoincrement"`
	TestID     int64     `bun:"test_id,notnull"`
	FIO        string    `bun:"fio,notnull"`
	Score      int       `bun:"score,notnull"`
	Total      int       `bun:"total,notnull"`
	Percentage int       `bun:"percentage,notnull"`
	Status     string    `bun:"status,notnull"`
	Passed     bool      `bun:"passed,notnull"`
	Date       time.Time `bun:"date,notnull"`
	TimeSpent  *int      `bun:"time_spent"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:ans"`

	ID           int64  `bun:"id,pk,autoincrement"`
	ResultID     int64  `bun:"result_id,notnull"`
	QuestionID   int64  `bun:"question_id,notnull"`
	UserAnswer   string `bun:"user_answer,notnull"`
	IsCorrect    *bool  `bun:"is_correct"`
	ReviewStatus string `bun:"review_status,notnull"`
}

// AttemptStore is the bun-backed app.AttemptStore.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

// CreateAttempt inserts the attempt and its answers in one transaction.
func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt *domain.Attempt, answers []domain.Answer) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := toAttemptRow(*attempt)
		if _, err := tx.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		if len(answers) == 0 {
			attempt.ID = row.ID
			return nil
		}

		rows := make([]answerRow, 0, len(answers))
		for _, answer := range answers {
			answer.ResultID = row.ID
			rows = append(rows, toAnswerRow(answer))
		}
		if _, err := tx.NewInsert().Model(&rows).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("insert answers: %w", err)
		}

		attempt.ID = row.ID
		for i := range answers {
			answers[i].ID = rows[i].ID
			answers[i].ResultID = row.ID
		}
		return nil
	})
}

func (s *AttemptStore) GetAnswer(ctx context.Context, answerID int64) (domain.Answer, error) {
	return getAnswer(ctx, s.db, answerID)
}

func (s *AttemptStore) InTx(ctx context.Context, fn func(ctx context.Context, tx app.AttemptTx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, attemptTx{tx: tx})
	})
}

func (s *AttemptStore) ListAttempts(ctx context.Context, filter domain.AttemptFilter) ([]domain.Attempt, error) {
	if filter.TestIDs != nil && len(filter.TestIDs) == 0 {
		return []domain.Attempt{}, nil
	}

	var rows []attemptRow
	q := s.db.NewSelect().Model(&rows).OrderExpr("a.id ASC")
	if filter.TestIDs != nil {
		q = q.Where("a.test_id IN (?)", bun.In(filter.TestIDs))
	}
	if filter.Status != "" {
		q = q.Where("a.status = ?", string(filter.Status))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("select attempts: %w", err)
	}

	out := make([]domain.Attempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *AttemptStore) ListAnswers(ctx context.Context, attemptIDs []int64) ([]domain.Answer, error) {
	if len(attemptIDs) == 0 {
		return []domain.Answer{}, nil
	}
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).
		Where("ans.result_id IN (?)", bun.In(attemptIDs)).
		OrderExpr("ans.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	return answersToDomain(rows), nil
}

func (s *AttemptStore) ListPendingAnswers(ctx context.Context, testID int64) ([]domain.Answer, error) {
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).
		Join("JOIN attempts AS a ON a.id = ans.result_id").
		Where("a.test_id = ?", testID).
		Where("ans.review_status = ?", string(domain.ReviewPending)).
		OrderExpr("ans.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select pending answers: %w", err)
	}
	return answersToDomain(rows), nil
}

type attemptTx struct {
	tx bun.Tx
}

func (t attemptTx) GetAnswer(ctx context.Context, answerID int64) (domain.Answer, error) {
	return getAnswer(ctx, t.tx, answerID)
}

func (t attemptTx) UpdateAnswer(ctx context.Context, answer domain.Answer) error {
	row := toAnswerRow(answer)
	res, err := t.tx.NewUpdate().Model(&row).
		Column("is_correct", "review_status").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, domain.ErrAnswerNotFound)
}

// LockAttempt selects the attempt FOR UPDATE, so concurrent review units on the
// same attempt run one after another and each sees the previous one's answers.
func (t attemptTx) LockAttempt(ctx context.Context, attemptID int64) (domain.Attempt, error) {
	return t.selectAttempt(ctx, attemptID, true)
}

func (t attemptTx) GetAttempt(ctx context.Context, attemptID int64) (domain.Attempt, error) {
	return t.selectAttempt(ctx, attemptID, false)
}

func (t attemptTx) selectAttempt(ctx context.Context, attemptID int64, forUpdate bool) (domain.Attempt, error) {
	var row attemptRow
	q := t.tx.NewSelect().Model(&row).Where("a.id = ?", attemptID)
	if forUpdate {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	return row.toDomain(), nil
}

func (t attemptTx) AttemptAnswers(ctx context.Context, attemptID int64) ([]domain.Answer, error) {
	var rows []answerRow
	err := t.tx.NewSelect().Model(&rows).
		Where("ans.result_id = ?", attemptID).
		OrderExpr("ans.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return answersToDomain(rows), nil
}

func (t attemptTx) UpdateAttempt(ctx context.Context, attempt domain.Attempt) error {
	row := toAttemptRow(attempt)
	res, err := t.tx.NewUpdate().Model(&row).
		Column("score", "total", "percentage", "passed", "status").
		WherePK().
		Where("a.status = ?", string(domain.StatusPendingReview)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if err := expectRow(res, domain.ErrAttemptNotFound); err != nil {
		if _, getErr := t.GetAttempt(ctx, attempt.ID); getErr == nil {
			return fmt.Errorf("attempt %d: %w", attempt.ID, domain.ErrAlreadyResolved)
		}
		return err
	}
	return nil
}

func getAnswer(ctx context.Context, db bun.IDB, answerID int64) (domain.Answer, error) {
	var row answerRow
	err := db.NewSelect().Model(&row).Where("ans.id = ?", answerID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	if err != nil {
		return domain.Answer{}, fmt.Errorf("select answer: %w", err)
	}
	return row.toDomain(), nil
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func toAttemptRow(a domain.Attempt) attemptRow {
	return attemptRow{
		ID:         a.ID,
		TestID:     a.TestID,
		FIO:        a.FIO,
		Score:      a.Score,
		Total:      a.Total,
		Percentage: a.Percentage,
		Status:     string(a.Status),
		Passed:     a.Passed,
		Date:       a.Date,
		TimeSpent:  a.TimeSpent,
	}
}

func (r attemptRow) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:         r.ID,
		TestID:     r.TestID,
		FIO:        r.FIO,
		Score:      r.Score,
		Total:      r.Total,
		Percentage: r.Percentage,
		Status:     domain.AttemptStatus(r.Status),
		Passed:     r.Passed,
		Date:       r.Date,
		TimeSpent:  r.TimeSpent,
	}
}

func toAnswerRow(a domain.Answer) answerRow {
	return answerRow{
		ID:           a.ID,
		ResultID:     a.ResultID,
		QuestionID:   a.QuestionID,
		UserAnswer:   string(a.UserAnswer),
		IsCorrect:    a.IsCorrect,
		ReviewStatus: string(a.ReviewStatus),
	}
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		ID:           r.ID,
		ResultID:     r.ResultID,
		QuestionID:   r.QuestionID,
		UserAnswer:   json.RawMessage(r.UserAnswer),
		IsCorrect:    r.IsCorrect,
		ReviewStatus: domain.ReviewStatus(r.ReviewStatus),
	}
}

func answersToDomain(rows []answerRow) []domain.Answer {
	out := make([]domain.Answer, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}
