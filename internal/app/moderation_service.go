package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"learnloop-service/internal/domain"
)

// ModerationService owns the report lifecycle and its effect on posts.
type ModerationService struct {
	reports ReportStore
	posts   PostStore
	rt      runtime
}

func NewModerationService(reports ReportStore, posts PostStore, opts ...Option) *ModerationService {
	return &ModerationService{
		reports: reports,
		posts:   posts,
		rt:      newRuntime("moderation_service", opts),
	}
}

// ReportInput is a user's complaint about a post.
type ReportInput struct {
	PostID      string `json:"postId" validate:"required"`
	Reason      string `json:"reason" validate:"required,min=5,max=100"`
	Description string `json:"description" validate:"required,min=10,max=500"`
}

// FileReport records a pending report by caller and bumps the post's
// report count. A reporter may hold one pending report per post.
func (s *ModerationService) FileReport(ctx context.Context, caller domain.Caller, in ReportInput) (domain.Report, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateStruct(in); err != nil {
		return domain.Report{}, err
	}

	if _, err := s.posts.Get(ctx, in.PostID); err != nil {
		return domain.Report{}, err
	}
	if _, pending, err := s.reports.FindPending(ctx, in.PostID, caller.UserID); err != nil {
		return domain.Report{}, fmt.Errorf("find pending report: %w", err)
	} else if pending {
		return domain.Report{}, domain.ErrDuplicateReport
	}

	report := domain.Report{
		ID:          s.rt.newID(),
		PostID:      in.PostID,
		ReportedBy:  caller.UserID,
		Reason:      in.Reason,
		Description: in.Description,
		ReportedAt:  s.rt.now(),
		Status:      domain.ReportPending,
	}
	// the store's pending-uniqueness check is authoritative under concurrency
	if err := s.reports.Create(ctx, report); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.Report{}, err
		}
		return domain.Report{}, fmt.Errorf("create report: %w", err)
	}

	count, err := s.posts.IncrementReportCount(ctx, in.PostID)
	if err != nil {
		s.rt.log.Error().Err(err).Str("report_id", report.ID).Str("post_id", in.PostID).Msg("report count not incremented")
		return domain.Report{}, fmt.Errorf("increment report count: %w", err)
	}

	s.rt.log.Info().Str("report_id", report.ID).Str("post_id", in.PostID).Int("report_count", count).Msg("report filed")
	s.rt.publish(ctx, Event{Type: EventReportFiled, EntityID: report.ID, ActorID: caller.UserID,
		Payload: map[string]any{"postId": in.PostID, "reportCount": count}})
	return report, nil
}

// ResolveReport applies an admin decision to a pending report. Approval
// removes the reported post.
func (s *ModerationService) ResolveReport(ctx context.Context, caller domain.Caller, reportID string, decision domain.Decision, comment string) (domain.Report, error) {
	if !caller.IsAdmin() {
		return domain.Report{}, domain.ErrAdminRequired
	}

	unlock, err := s.rt.locker.Lock(ctx, reportKey(reportID))
	if err != nil {
		return domain.Report{}, fmt.Errorf("lock report: %w", err)
	}
	defer unlock()

	report, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return domain.Report{}, err
	}
	if report.Status != domain.ReportPending {
		return domain.Report{}, domain.ErrReportResolved
	}
	status, ok := decision.Status()
	if !ok {
		return domain.Report{}, domain.ErrInvalidDecision
	}

	var post domain.Post
	if status == domain.ReportApproved {
		// check before resolving so a vanished post leaves the report pending
		post, err = s.posts.Get(ctx, report.PostID)
		if err != nil {
			return domain.Report{}, err
		}
	}

	resolved, err := s.reports.Resolve(ctx, reportID, domain.Resolution{
		Status:       status,
		AdminComment: strings.TrimSpace(comment),
		ReviewedAt:   s.rt.now(),
		ReviewedBy:   caller.UserID,
	})
	if err != nil {
		return domain.Report{}, err
	}

	if status == domain.ReportApproved {
		if err := s.posts.SetStatus(ctx, post.ID, domain.PostRemoved); err != nil {
			s.rt.log.Error().Err(err).Str("report_id", reportID).Str("post_id", post.ID).Msg("post removal failed after approval")
			return domain.Report{}, fmt.Errorf("remove post: %w", err)
		}
		s.rt.publish(ctx, Event{Type: EventPostRemoved, EntityID: post.ID, ActorID: caller.UserID,
			Payload: map[string]any{"reportId": reportID, "ownerId": post.UserID}})
	}

	s.rt.log.Info().Str("report_id", reportID).Str("status", string(status)).Str("reviewed_by", caller.UserID).Msg("report resolved")
	s.rt.publish(ctx, Event{Type: EventReportResolved, EntityID: reportID, ActorID: caller.UserID,
		Payload: map[string]any{"postId": report.PostID, "status": string(status), "reportedBy": report.ReportedBy}})
	return resolved, nil
}

// GetReport returns a report to an admin or to its reporter.
func (s *ModerationService) GetReport(ctx context.Context, caller domain.Caller, id string) (domain.Report, error) {
	report, err := s.reports.Get(ctx, id)
	if err != nil {
		return domain.Report{}, err
	}
	if !caller.IsAdmin() && report.ReportedBy != caller.UserID {
		return domain.Report{}, domain.ErrReportNotFound
	}
	return report, nil
}

// ListReports lists reports for admins, optionally by status.
func (s *ModerationService) ListReports(ctx context.Context, caller domain.Caller, status domain.ReportStatus) ([]domain.Report, error) {
	if !caller.IsAdmin() {
		return nil, domain.ErrAdminRequired
	}
	if status != "" && !status.Valid() {
		return nil, domain.Errorf(domain.KindInvalidInput, "unknown report status %q", status)
	}
	return s.list(ctx, ReportFilter{Status: status})
}

// ListMyReports lists the reports caller has filed.
func (s *ModerationService) ListMyReports(ctx context.Context, caller domain.Caller) ([]domain.Report, error) {
	return s.list(ctx, ReportFilter{ReportedBy: caller.UserID})
}

// ListReportsForPost lists reports on a post for admins and the post owner.
func (s *ModerationService) ListReportsForPost(ctx context.Context, caller domain.Caller, postID string) ([]domain.Report, error) {
	post, err := s.posts.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && post.UserID != caller.UserID {
		return nil, domain.E(domain.KindPermissionDenied, "only admins and the post owner may list its reports")
	}
	return s.list(ctx, ReportFilter{PostID: postID})
}

func (s *ModerationService) list(ctx context.Context, filter ReportFilter) ([]domain.Report, error) {
	reports, err := s.reports.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

func reportKey(id string) string { return "report:" + id }
