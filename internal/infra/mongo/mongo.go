// Package mongo implements the app stores as MongoDB collections.
package mongo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	quizzesCollection  = "quizzes"
	attemptsCollection = "quiz_attempts"
	reportsCollection  = "reports"
	postsCollection    = "posts"

	pendingReportIndex = "reports_pending_unique"
)

// Connect dials uri and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the stores rely on. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		quizzesCollection: {
			{Keys: bson.D{{Key: "createdBy", Value: 1}}},
			{Keys: bson.D{{Key: "published", Value: 1}, {Key: "category", Value: 1}}},
		},
		attemptsCollection: {
			{Keys: bson.D{{Key: "quizId", Value: 1}}},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "completed", Value: -1}}},
		},
		reportsCollection: {
			{
				Keys: bson.D{{Key: "postId", Value: 1}, {Key: "reportedBy", Value: 1}},
				Options: options.Index().
					SetName(pendingReportIndex).
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": "PENDING"}),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "reportedAt", Value: -1}}},
		},
	}
	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

// isDuplicateOn reports whether err is a duplicate key error raised by the
// named index.
func isDuplicateOn(err error, index string) bool {
	return mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), index)
}

func exists(ctx context.Context, col *mongo.Collection, id string) (bool, error) {
	n, err := col.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	return n > 0, err
}
