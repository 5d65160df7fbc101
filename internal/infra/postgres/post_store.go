package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"learnloop-service/internal/domain"
)

type PostStore struct {
	pool *pgxpool.Pool
}

func NewPostStore(pool *pgxpool.Pool) *PostStore {
	return &PostStore{pool: pool}
}

func (s *PostStore) Create(ctx context.Context, post domain.Post) error {
	if post.Status == "" {
		post.Status = domain.PostActive
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO posts (id, user_id, title, status, report_count) VALUES ($1, $2, $3, $4, $5)`,
		post.ID, post.UserID, post.Title, string(post.Status), post.ReportCount)
	if err != nil {
		if uniqueConstraint(err) != "" {
			return domain.Wrap(domain.Errorf(domain.KindConflict, "post %s already exists", post.ID), err)
		}
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostStore) Get(ctx context.Context, id string) (domain.Post, error) {
	var (
		post   domain.Post
		status string
	)
	err := s.pool.QueryRow(ctx, `SELECT id, user_id, title, status, report_count FROM posts WHERE id = $1`, id).
		Scan(&post.ID, &post.UserID, &post.Title, &status, &post.ReportCount)
	if err != nil {
		if isNoRows(err) {
			return domain.Post{}, domain.ErrPostNotFound
		}
		return domain.Post{}, fmt.Errorf("load post: %w", err)
	}
	post.Status = domain.PostStatus(status)
	return post, nil
}

func (s *PostStore) SetStatus(ctx context.Context, id string, status domain.PostStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE posts SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("set post status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

func (s *PostStore) IncrementReportCount(ctx context.Context, id string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `UPDATE posts SET report_count = report_count + 1 WHERE id = $1 RETURNING report_count`, id).Scan(&count)
	if err != nil {
		if isNoRows(err) {
			return 0, domain.ErrPostNotFound
		}
		return 0, fmt.Errorf("increment report count: %w", err)
	}
	return count, nil
}
