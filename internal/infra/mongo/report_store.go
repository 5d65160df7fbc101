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

// ReportStore needs the partial unique index from EnsureIndexes to reject a
// second pending report by the same reporter.
type ReportStore struct {
	col *mongo.Collection
}

func NewReportStore(db *mongo.Database) *ReportStore {
	return &ReportStore{col: db.Collection(reportsCollection)}
}

func (s *ReportStore) Create(ctx context.Context, report domain.Report) error {
	_, err := s.col.InsertOne(ctx, report)
	switch {
	case err == nil:
		return nil
	case isDuplicateOn(err, pendingReportIndex):
		return domain.Wrap(domain.ErrDuplicateReport, err)
	case mongo.IsDuplicateKeyError(err):
		return domain.Wrap(domain.Errorf(domain.KindConflict, "report %s already exists", report.ID), err)
	default:
		return fmt.Errorf("insert report: %w", err)
	}
}

func (s *ReportStore) Get(ctx context.Context, id string) (domain.Report, error) {
	var report domain.Report
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&report); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Report{}, domain.ErrReportNotFound
		}
		return domain.Report{}, fmt.Errorf("find report: %w", err)
	}
	return report, nil
}

func (s *ReportStore) Resolve(ctx context.Context, id string, res domain.Resolution) (domain.Report, error) {
	update := bson.M{"$set": bson.M{
		"status":       res.Status,
		"adminComment": res.AdminComment,
		"reviewedAt":   res.ReviewedAt,
		"reviewedBy":   res.ReviewedBy,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var report domain.Report
	err := s.col.FindOneAndUpdate(ctx, bson.M{"_id": id, "status": domain.ReportPending}, update, opts).Decode(&report)
	if err == nil {
		return report, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Report{}, fmt.Errorf("resolve report: %w", err)
	}
	found, err := exists(ctx, s.col, id)
	if err != nil {
		return domain.Report{}, fmt.Errorf("check report: %w", err)
	}
	if !found {
		return domain.Report{}, domain.ErrReportNotFound
	}
	return domain.Report{}, domain.ErrReportResolved
}

func (s *ReportStore) List(ctx context.Context, filter app.ReportFilter) ([]domain.Report, error) {
	query := bson.M{}
	if filter.PostID != "" {
		query["postId"] = filter.PostID
	}
	if filter.ReportedBy != "" {
		query["reportedBy"] = filter.ReportedBy
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	opts := options.Find().SetSort(bson.D{{Key: "reportedAt", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.col.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find reports: %w", err)
	}
	out := make([]domain.Report, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode reports: %w", err)
	}
	return out, nil
}

func (s *ReportStore) FindPending(ctx context.Context, postID, reporter string) (domain.Report, bool, error) {
	var report domain.Report
	err := s.col.FindOne(ctx, bson.M{"postId": postID, "reportedBy": reporter, "status": domain.ReportPending}).Decode(&report)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Report{}, false, nil
		}
		return domain.Report{}, false, fmt.Errorf("find pending report: %w", err)
	}
	return report, true, nil
}
