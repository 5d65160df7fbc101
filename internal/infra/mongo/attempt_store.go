package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"learnloop-service/internal/app"
	"learnloop-service/internal/domain"
)

type AttemptStore struct {
	col *mongo.Collection
}

func NewAttemptStore(db *mongo.Database) *AttemptStore {
	return &AttemptStore{col: db.Collection(attemptsCollection)}
}

func (s *AttemptStore) Create(ctx context.Context, attempt domain.QuizAttempt) error {
	if attempt.Responses == nil {
		attempt.Responses = []domain.QuestionResponse{}
	}
	if _, err := s.col.InsertOne(ctx, attempt); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Wrap(domain.Errorf(domain.KindConflict, "attempt %s already exists", attempt.ID), err)
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, id string) (domain.QuizAttempt, error) {
	var attempt domain.QuizAttempt
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&attempt); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.QuizAttempt{}, domain.ErrAttemptNotFound
		}
		return domain.QuizAttempt{}, fmt.Errorf("find attempt: %w", err)
	}
	return attempt, nil
}

func (s *AttemptStore) Complete(ctx context.Context, attempt domain.QuizAttempt) error {
	responses := attempt.Responses
	if responses == nil {
		responses = []domain.QuestionResponse{}
	}
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": attempt.ID, "completed": false},
		bson.M{"$set": bson.M{
			"completed":   true,
			"completedAt": attempt.CompletedAt,
			"score":       attempt.Score,
			"passed":      attempt.Passed,
			"timeSpent":   attempt.TimeSpent,
			"responses":   responses,
		}})
	if err != nil {
		return fmt.Errorf("complete attempt: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	found, err := exists(ctx, s.col, attempt.ID)
	if err != nil {
		return fmt.Errorf("check attempt: %w", err)
	}
	if !found {
		return domain.ErrAttemptNotFound
	}
	return domain.ErrAttemptCompleted
}

func (s *AttemptStore) List(ctx context.Context, filter app.AttemptFilter) ([]domain.QuizAttempt, error) {
	query := bson.M{}
	if filter.UserID != "" {
		query["userId"] = filter.UserID
	}
	if filter.QuizID != "" {
		query["quizId"] = filter.QuizID
	}
	if filter.CompletedOnly {
		query["completed"] = true
	}
	// missing completedAt sorts lowest, so in-progress attempts trail
	opts := options.Find().SetSort(bson.D{
		{Key: "completed", Value: -1},
		{Key: "completedAt", Value: -1},
		{Key: "startedAt", Value: -1},
		{Key: "_id", Value: 1},
	})
	cursor, err := s.col.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find attempts: %w", err)
	}
	out := make([]domain.QuizAttempt, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode attempts: %w", err)
	}
	return out, nil
}

func (s *AttemptStore) DeleteByQuiz(ctx context.Context, quizID string) (int, error) {
	res, err := s.col.DeleteMany(ctx, bson.M{"quizId": quizID})
	if err != nil {
		return 0, fmt.Errorf("delete attempts: %w", err)
	}
	return int(res.DeletedCount), nil
}
