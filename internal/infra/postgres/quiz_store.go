package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"learnloop-service/internal/app"
	"learnloop-service/internal/domain"
)

// QuizStore keeps quizzes in one row each; questions live in a JSONB column
// and statistics in plain columns so they can be bumped in SQL.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

const quizColumns = `id, title, description, category, time_limit, passing_score, published,
	created_by, created_at, updated_at, questions, total_attempts, pass_count, average_score`

func (s *QuizStore) Create(ctx context.Context, quiz domain.Quiz) error {
	questions, err := marshalQuestions(quiz.Questions)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO quizzes (`+quizColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12, $13, $14)`,
		quiz.ID, quiz.Title, quiz.Description, string(quiz.Category), quiz.TimeLimit, quiz.PassingScore, quiz.Published,
		quiz.CreatedBy, quiz.CreatedAt, quiz.UpdatedAt, questions,
		quiz.Stats.TotalAttempts, quiz.Stats.PassCount, quiz.Stats.AverageScore)
	if err != nil {
		if uniqueConstraint(err) != "" {
			return domain.Wrap(domain.Errorf(domain.KindConflict, "quiz %s already exists", quiz.ID), err)
		}
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

func (s *QuizStore) Get(ctx context.Context, id string) (domain.Quiz, error) {
	quiz, err := scanQuiz(s.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return domain.Quiz{}, domain.ErrQuizNotFound
		}
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	return quiz, nil
}

func (s *QuizStore) Update(ctx context.Context, quiz domain.Quiz) error {
	questions, err := marshalQuestions(quiz.Questions)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE quizzes SET title = $2, description = $3, category = $4,
		time_limit = $5, passing_score = $6, published = $7, updated_at = $8, questions = $9::jsonb
		WHERE id = $1`,
		quiz.ID, quiz.Title, quiz.Description, string(quiz.Category), quiz.TimeLimit, quiz.PassingScore,
		quiz.Published, quiz.UpdatedAt, questions)
	if err != nil {
		return fmt.Errorf("update quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *QuizStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *QuizStore) List(ctx context.Context, filter app.QuizFilter) ([]domain.Quiz, error) {
	var w where
	if filter.CreatedBy != "" {
		w.eq("created_by", filter.CreatedBy)
	}
	if filter.Category != "" {
		w.eq("category", string(filter.Category))
	}
	if filter.PublishedOnly {
		w.raw("published")
	}
	rows, err := s.pool.Query(ctx, `SELECT `+quizColumns+` FROM quizzes`+w.String()+` ORDER BY created_at DESC, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Quiz, 0)
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		out = append(out, quiz)
	}
	return out, rows.Err()
}

func (s *QuizStore) IncrementStats(ctx context.Context, id string, score int, passed bool) (domain.QuizStats, error) {
	return incrementStats(ctx, s.pool, id, score, passed)
}

// incrementStats relies on every SET expression reading the pre-update row.
func incrementStats(ctx context.Context, q querier, id string, score int, passed bool) (domain.QuizStats, error) {
	var stats domain.QuizStats
	err := q.QueryRow(ctx, `UPDATE quizzes SET
			total_attempts = total_attempts + 1,
			pass_count = pass_count + CASE WHEN $3::boolean THEN 1 ELSE 0 END,
			average_score = (average_score * total_attempts + $2::double precision) / (total_attempts + 1)
		WHERE id = $1
		RETURNING total_attempts, pass_count, average_score`,
		id, float64(score), passed,
	).Scan(&stats.TotalAttempts, &stats.PassCount, &stats.AverageScore)
	if err != nil {
		if isNoRows(err) {
			return domain.QuizStats{}, domain.ErrQuizNotFound
		}
		return domain.QuizStats{}, fmt.Errorf("increment quiz stats: %w", err)
	}
	return stats, nil
}

func scanQuiz(row pgx.Row) (domain.Quiz, error) {
	var (
		quiz      domain.Quiz
		category  string
		questions []byte
	)
	err := row.Scan(&quiz.ID, &quiz.Title, &quiz.Description, &category, &quiz.TimeLimit, &quiz.PassingScore,
		&quiz.Published, &quiz.CreatedBy, &quiz.CreatedAt, &quiz.UpdatedAt, &questions,
		&quiz.Stats.TotalAttempts, &quiz.Stats.PassCount, &quiz.Stats.AverageScore)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.Category = domain.Category(category)
	if err := json.Unmarshal(questions, &quiz.Questions); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal questions: %w", err)
	}
	return quiz, nil
}

func marshalQuestions(questions []domain.Question) (string, error) {
	if questions == nil {
		questions = []domain.Question{}
	}
	raw, err := json.Marshal(questions)
	if err != nil {
		return "", fmt.Errorf("marshal questions: %w", err)
	}
	return string(raw), nil
}
