package app

import (
	"context"
	"time"

	"learnloop-service/internal/domain"
)

// QuizFilter narrows QuizStore.List. Zero values match everything.
type QuizFilter struct {
	CreatedBy     string
	Category      domain.Category
	PublishedOnly bool
}

// QuizStore persists quizzes with their embedded questions.
//
// Update writes every authored field plus Published and UpdatedAt but never
// Stats, CreatedBy or CreatedAt, so it cannot race with IncrementStats.
type QuizStore interface {
	Create(ctx context.Context, quiz domain.Quiz) error
	Get(ctx context.Context, id string) (domain.Quiz, error)
	Update(ctx context.Context, quiz domain.Quiz) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter QuizFilter) ([]domain.Quiz, error)
	// IncrementStats folds one attempt into the quiz statistics as a single
	// atomic read-modify-write and returns the new statistics.
	IncrementStats(ctx context.Context, id string, score int, passed bool) (domain.QuizStats, error)
}

// AttemptFilter narrows AttemptStore.List. Zero values match everything.
type AttemptFilter struct {
	UserID        string
	QuizID        string
	CompletedOnly bool
}

// AttemptStore persists quiz attempts.
type AttemptStore interface {
	Create(ctx context.Context, attempt domain.QuizAttempt) error
	Get(ctx context.Context, id string) (domain.QuizAttempt, error)
	// Complete stores the scored attempt only if it is still in progress.
	// It returns domain.ErrAttemptCompleted when another submission won.
	Complete(ctx context.Context, attempt domain.QuizAttempt) error
	// List returns completed attempts newest-completed first, followed by
	// in-progress attempts newest-started first.
	List(ctx context.Context, filter AttemptFilter) ([]domain.QuizAttempt, error)
	// DeleteByQuiz removes every attempt of a quiz. Deleting none is not an error.
	DeleteByQuiz(ctx context.Context, quizID string) (int, error)
}

// ReportFilter narrows ReportStore.List. Zero values match everything.
type ReportFilter struct {
	PostID     string
	ReportedBy string
	Status     domain.ReportStatus
}

// ReportStore persists moderation reports.
type ReportStore interface {
	// Create returns domain.ErrDuplicateReport when the reporter already has
	// a pending report on the post.
	Create(ctx context.Context, report domain.Report) error
	Get(ctx context.Context, id string) (domain.Report, error)
	// Resolve applies the resolution only while the report is pending and
	// returns the updated report. It returns domain.ErrReportResolved otherwise.
	Resolve(ctx context.Context, id string, res domain.Resolution) (domain.Report, error)
	List(ctx context.Context, filter ReportFilter) ([]domain.Report, error)
	// FindPending returns the pending report of reporter on post, if any.
	FindPending(ctx context.Context, postID, reporter string) (domain.Report, bool, error)
}

// PostStore is the slice of the post collection moderation needs.
type PostStore interface {
	Create(ctx context.Context, post domain.Post) error
	Get(ctx context.Context, id string) (domain.Post, error)
	SetStatus(ctx context.Context, id string, status domain.PostStatus) error
	IncrementReportCount(ctx context.Context, id string) (int, error)
}

// AttemptRecorder is implemented by attempt stores that can complete an
// attempt and fold its score into the quiz statistics in one transaction.
// QuizService prefers it over Complete followed by IncrementStats.
type AttemptRecorder interface {
	CompleteAndRecord(ctx context.Context, attempt domain.QuizAttempt) (domain.QuizStats, error)
}

// CacheInvalidator is implemented by caching quiz stores. It is called when a
// quiz row changed without passing through the cache.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, quizID string)
}

// Locker serializes work on a single entity key.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Clock returns the current time.
type Clock func() time.Time

// IDGenerator returns a fresh unique identifier.
type IDGenerator func() string
