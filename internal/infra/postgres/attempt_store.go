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

type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

var _ app.AttemptRecorder = (*AttemptStore)(nil)

const attemptColumns = `id, quiz_id, user_id, started_at, completed_at, completed, score, passed, time_spent, responses`

func (s *AttemptStore) Create(ctx context.Context, attempt domain.QuizAttempt) error {
	responses, err := marshalResponses(attempt.Responses)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO quiz_attempts (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb)`,
		attempt.ID, attempt.QuizID, attempt.UserID, attempt.StartedAt, attempt.CompletedAt, attempt.Completed,
		attempt.Score, attempt.Passed, attempt.TimeSpent, responses)
	if err != nil {
		if uniqueConstraint(err) != "" {
			return domain.Wrap(domain.Errorf(domain.KindConflict, "attempt %s already exists", attempt.ID), err)
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, id string) (domain.QuizAttempt, error) {
	attempt, err := scanAttempt(s.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM quiz_attempts WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return domain.QuizAttempt{}, domain.ErrAttemptNotFound
		}
		return domain.QuizAttempt{}, fmt.Errorf("load attempt: %w", err)
	}
	return attempt, nil
}

func (s *AttemptStore) Complete(ctx context.Context, attempt domain.QuizAttempt) error {
	return completeAttempt(ctx, s.pool, attempt)
}

// CompleteAndRecord completes the attempt and updates its quiz statistics in
// one transaction, so a failed stats update leaves the attempt open.
func (s *AttemptStore) CompleteAndRecord(ctx context.Context, attempt domain.QuizAttempt) (domain.QuizStats, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.QuizStats{}, fmt.Errorf("begin submission: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := completeAttempt(ctx, tx, attempt); err != nil {
		return domain.QuizStats{}, err
	}
	stats, err := incrementStats(ctx, tx, attempt.QuizID, attempt.Score, attempt.Passed)
	if err != nil {
		return domain.QuizStats{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.QuizStats{}, fmt.Errorf("commit submission: %w", err)
	}
	return stats, nil
}

func completeAttempt(ctx context.Context, q querier, attempt domain.QuizAttempt) error {
	responses, err := marshalResponses(attempt.Responses)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `UPDATE quiz_attempts SET completed = TRUE, completed_at = $2,
		score = $3, passed = $4, time_spent = $5, responses = $6::jsonb
		WHERE id = $1 AND NOT completed`,
		attempt.ID, attempt.CompletedAt, attempt.Score, attempt.Passed, attempt.TimeSpent, responses)
	if err != nil {
		return fmt.Errorf("complete attempt: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	found, err := exists(ctx, q, "quiz_attempts", attempt.ID)
	if err != nil {
		return fmt.Errorf("check attempt: %w", err)
	}
	if !found {
		return domain.ErrAttemptNotFound
	}
	return domain.ErrAttemptCompleted
}

func (s *AttemptStore) List(ctx context.Context, filter app.AttemptFilter) ([]domain.QuizAttempt, error) {
	var w where
	if filter.UserID != "" {
		w.eq("user_id", filter.UserID)
	}
	if filter.QuizID != "" {
		w.eq("quiz_id", filter.QuizID)
	}
	if filter.CompletedOnly {
		w.raw("completed")
	}
	rows, err := s.pool.Query(ctx, `SELECT `+attemptColumns+` FROM quiz_attempts`+w.String()+`
		ORDER BY completed DESC, completed_at DESC NULLS LAST, started_at DESC, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.QuizAttempt, 0)
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, attempt)
	}
	return out, rows.Err()
}

func (s *AttemptStore) DeleteByQuiz(ctx context.Context, quizID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quiz_attempts WHERE quiz_id = $1`, quizID)
	if err != nil {
		return 0, fmt.Errorf("delete attempts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanAttempt(row pgx.Row) (domain.QuizAttempt, error) {
	var (
		attempt   domain.QuizAttempt
		responses []byte
	)
	err := row.Scan(&attempt.ID, &attempt.QuizID, &attempt.UserID, &attempt.StartedAt, &attempt.CompletedAt,
		&attempt.Completed, &attempt.Score, &attempt.Passed, &attempt.TimeSpent, &responses)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	if err := json.Unmarshal(responses, &attempt.Responses); err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("unmarshal responses: %w", err)
	}
	return attempt, nil
}

func marshalResponses(responses []domain.QuestionResponse) (string, error) {
	if responses == nil {
		responses = []domain.QuestionResponse{}
	}
	raw, err := json.Marshal(responses)
	if err != nil {
		return "", fmt.Errorf("marshal responses: %w", err)
	}
	return string(raw), nil
}
