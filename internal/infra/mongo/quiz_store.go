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

// QuizStore keeps each quiz as one document with embedded questions.
type QuizStore struct {
	col *mongo.Collection
}

func NewQuizStore(db *mongo.Database) *QuizStore {
	return &QuizStore{col: db.Collection(quizzesCollection)}
}

func (s *QuizStore) Create(ctx context.Context, quiz domain.Quiz) error {
	if quiz.Questions == nil {
		quiz.Questions = []domain.Question{}
	}
	if _, err := s.col.InsertOne(ctx, quiz); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Wrap(domain.Errorf(domain.KindConflict, "quiz %s already exists", quiz.ID), err)
		}
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

func (s *QuizStore) Get(ctx context.Context, id string) (domain.Quiz, error) {
	var quiz domain.Quiz
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&quiz); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Quiz{}, domain.ErrQuizNotFound
		}
		return domain.Quiz{}, fmt.Errorf("find quiz: %w", err)
	}
	return quiz, nil
}

func (s *QuizStore) Update(ctx context.Context, quiz domain.Quiz) error {
	questions := quiz.Questions
	if questions == nil {
		questions = []domain.Question{}
	}
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": quiz.ID}, bson.M{"$set": bson.M{
		"title":        quiz.Title,
		"description":  quiz.Description,
		"category":     quiz.Category,
		"timeLimit":    quiz.TimeLimit,
		"passingScore": quiz.PassingScore,
		"published":    quiz.Published,
		"updatedAt":    quiz.UpdatedAt,
		"questions":    questions,
	}})
	if err != nil {
		return fmt.Errorf("update quiz: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *QuizStore) Delete(ctx context.Context, id string) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *QuizStore) List(ctx context.Context, filter app.QuizFilter) ([]domain.Quiz, error) {
	query := bson.M{}
	if filter.CreatedBy != "" {
		query["createdBy"] = filter.CreatedBy
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.PublishedOnly {
		query["published"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.col.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find quizzes: %w", err)
	}
	out := make([]domain.Quiz, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode quizzes: %w", err)
	}
	return out, nil
}

// IncrementStats runs as a pipeline update; expressions inside one $set
// stage all see the document as it was before the stage.
func (s *QuizStore) IncrementStats(ctx context.Context, id string, score int, passed bool) (domain.QuizStats, error) {
	passInc := 0
	if passed {
		passInc = 1
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"stats.totalAttempts": bson.M{"$add": bson.A{"$stats.totalAttempts", 1}},
			"stats.passCount":     bson.M{"$add": bson.A{"$stats.passCount", passInc}},
			"stats.averageScore": bson.M{"$divide": bson.A{
				bson.M{"$add": bson.A{bson.M{"$multiply": bson.A{"$stats.averageScore", "$stats.totalAttempts"}}, score}},
				bson.M{"$add": bson.A{"$stats.totalAttempts", 1}},
			}},
		}}},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"stats": 1})

	var updated struct {
		Stats domain.QuizStats `bson:"stats"`
	}
	if err := s.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, pipeline, opts).Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.QuizStats{}, domain.ErrQuizNotFound
		}
		return domain.QuizStats{}, fmt.Errorf("increment quiz stats: %w", err)
	}
	return updated.Stats, nil
}
