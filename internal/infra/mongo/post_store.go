package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"learnloop-service/internal/domain"
)

type PostStore struct {
	col *mongo.Collection
}

func NewPostStore(db *mongo.Database) *PostStore {
	return &PostStore{col: db.Collection(postsCollection)}
}

func (s *PostStore) Create(ctx context.Context, post domain.Post) error {
	if post.Status == "" {
		post.Status = domain.PostActive
	}
	if _, err := s.col.InsertOne(ctx, post); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Wrap(domain.Errorf(domain.KindConflict, "post %s already exists", post.ID), err)
		}
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostStore) Get(ctx context.Context, id string) (domain.Post, error) {
	var post domain.Post
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&post); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Post{}, domain.ErrPostNotFound
		}
		return domain.Post{}, fmt.Errorf("find post: %w", err)
	}
	return post, nil
}

func (s *PostStore) SetStatus(ctx context.Context, id string, status domain.PostStatus) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return fmt.Errorf("set post status: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

func (s *PostStore) IncrementReportCount(ctx context.Context, id string) (int, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var post domain.Post
	err := s.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"reportCount": 1}}, opts).Decode(&post)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, domain.ErrPostNotFound
		}
		return 0, fmt.Errorf("increment report count: %w", err)
	}
	return post.ReportCount, nil
}
