package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"hr-testing-service/internal/domain"
)

// CatalogLoader reads test definitions from the catalog tables.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadTest(ctx context.Context, testID int64) (domain.TestDefinition, error) {
	var def domain.TestDefinition
	err := l.pool.QueryRow(ctx, `
SELECT t.id, t.name, t.is_active,
       COALESCE(s.duration_minutes, 0), COALESCE(s.questions_per_test, 0), COALESCE(s.passing_score, 0)
FROM tests t
LEFT JOIN test_settings s ON s.test_id = t.id
WHERE t.id = $1`, testID).Scan(
		&def.Test.ID, &def.Test.Name, &def.Test.IsActive,
		&def.Settings.DurationMinutes, &def.Settings.QuestionsPerTest, &def.Settings.PassingScore,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TestDefinition{}, domain.ErrTestNotFound
	}
	if err != nil {
		return domain.TestDefinition{}, fmt.Errorf("load test: %w", err)
	}
	def.Settings.TestID = def.Test.ID

	rows, err := l.pool.Query(ctx, `
SELECT id, text, type, correct_option_ids
FROM questions
WHERE test_id = $1
ORDER BY id`, testID)
	if err != nil {
		return domain.TestDefinition{}, fmt.Errorf("load questions: %w", err)
	}
	index := make(map[int64]int)
	for rows.Next() {
		q := domain.Question{TestID: testID}
		var qtype string
		if err := rows.Scan(&q.ID, &q.Text, &qtype, &q.CorrectOptionIDs); err != nil {
			rows.Close()
			return domain.TestDefinition{}, fmt.Errorf("scan question: %w", err)
		}
		q.Type = domain.QuestionType(qtype)
		index[q.ID] = len(def.Questions)
		def.Questions = append(def.Questions, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.TestDefinition{}, fmt.Errorf("load questions: %w", err)
	}

	rows, err = l.pool.Query(ctx, `
SELECT o.id, o.question_id, o.text
FROM options o
JOIN questions q ON q.id = o.question_id
WHERE q.test_id = $1
ORDER BY o.id`, testID)
	if err != nil {
		return domain.TestDefinition{}, fmt.Errorf("load options: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var opt domain.Option
		if err := rows.Scan(&opt.ID, &opt.QuestionID, &opt.Text); err != nil {
			return domain.TestDefinition{}, fmt.Errorf("scan option: %w", err)
		}
		if i, ok := index[opt.QuestionID]; ok {
			def.Questions[i].Options = append(def.Questions[i].Options, opt)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.TestDefinition{}, fmt.Errorf("load options: %w", err)
	}
	return def, nil
}

func (l *CatalogLoader) ListTests(ctx context.Context, activeOnly bool) ([]domain.Test, error) {
	rows, err := l.pool.Query(ctx, `
SELECT id, name, is_active
FROM tests
WHERE is_active OR NOT $1
ORDER BY id`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	defer rows.Close()

	tests := []domain.Test{}
	for rows.Next() {
		var t domain.Test
		if err := rows.Scan(&t.ID, &t.Name, &t.IsActive); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// ImportCatalog upserts the given definitions by id. Rows missing from defs are left alone.
func (l *CatalogLoader) ImportCatalog(ctx context.Context, defs []domain.TestDefinition) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, def := range defs {
		if err := importTest(ctx, tx, def); err != nil {
			return fmt.Errorf("import test %d: %w", def.Test.ID, err)
		}
	}

	// Explicit ids bypass the sequences.
	for _, table := range []string{"tests", "questions", "options"} {
		_, err := tx.Exec(ctx, fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), GREATEST((SELECT COALESCE(MAX(id), 0) FROM %[1]s), 1))`, table))
		if err != nil {
			return fmt.Errorf("sync %s sequence: %w", table, err)
		}
	}
	return tx.Commit(ctx)
}

func importTest(ctx context.Context, tx pgx.Tx, def domain.TestDefinition) error {
	_, err := tx.Exec(ctx, `
INSERT INTO tests (id, name, is_active) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, is_active = EXCLUDED.is_active`,
		def.Test.ID, def.Test.Name, def.Test.IsActive)
	if err != nil {
		return err
	}

	s := def.Settings
	_, err = tx.Exec(ctx, `
INSERT INTO test_settings (test_id, duration_minutes, questions_per_test, passing_score) VALUES ($1, $2, $3, $4)
ON CONFLICT (test_id) DO UPDATE SET
  duration_minutes = EXCLUDED.duration_minutes,
  questions_per_test = EXCLUDED.questions_per_test,
  passing_score = EXCLUDED.passing_score`,
		def.Test.ID, s.DurationMinutes, s.QuestionsPerTest, s.PassingScore)
	if err != nil {
		return err
	}

	for _, q := range def.Questions {
		correct := q.CorrectOptionIDs
		if correct == nil {
			correct = []int64{}
		}
		_, err := tx.Exec(ctx, `
INSERT INTO questions (id, test_id, text, type, correct_option_ids) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
  test_id = EXCLUDED.test_id,
  text = EXCLUDED.text,
  type = EXCLUDED.type,
  correct_option_ids = EXCLUDED.correct_option_ids`,
			q.ID, def.Test.ID, q.Text, string(q.Type), correct)
		if err != nil {
			return err
		}
		for _, opt := range q.Options {
			_, err := tx.Exec(ctx, `
INSERT INTO options (id, question_id, text) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET question_id = EXCLUDED.question_id, text = EXCLUDED.text`,
				opt.ID, q.ID, opt.Text)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
