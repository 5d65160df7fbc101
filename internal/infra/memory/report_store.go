package memory

import (
	"context"
	"sort"
	"sync"

	"learnloop-service/internal/app"
	"learnloop-service/internal/domain"
)

// ReportStore is an in-memory implementation of app.ReportStore. Creation
// and resolution are checked under the store mutex, which makes the
// pending-uniqueness and resolve-once rules atomic.
type ReportStore struct {
	mu      sync.RWMutex
	reports map[string]domain.Report
}

func NewReportStore() *ReportStore {
	return &ReportStore{reports: make(map[string]domain.Report)}
}

func (s *ReportStore) Create(_ context.Context, report domain.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[report.ID]; ok {
		return domain.Errorf(domain.KindConflict, "report %s already exists", report.ID)
	}
	if report.Status == domain.ReportPending {
		if _, ok := s.pendingLocked(report.PostID, report.ReportedBy); ok {
			return domain.ErrDuplicateReport
		}
	}
	s.reports[report.ID] = cloneReport(report)
	return nil
}

func (s *ReportStore) Get(_ context.Context, id string) (domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.reports[id]
	if !ok {
		return domain.Report{}, domain.ErrReportNotFound
	}
	return cloneReport(report), nil
}

func (s *ReportStore) Resolve(_ context.Context, id string, res domain.Resolution) (domain.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report, ok := s.reports[id]
	if !ok {
		return domain.Report{}, domain.ErrReportNotFound
	}
	if report.Status != domain.ReportPending {
		return domain.Report{}, domain.ErrReportResolved
	}
	reviewedAt := res.ReviewedAt
	report.Status = res.Status
	report.AdminComment = res.AdminComment
	report.ReviewedAt = &reviewedAt
	report.ReviewedBy = res.ReviewedBy
	s.reports[id] = report
	return cloneReport(report), nil
}

func (s *ReportStore) List(_ context.Context, filter app.ReportFilter) ([]domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Report, 0)
	for _, report := range s.reports {
		if filter.PostID != "" && report.PostID != filter.PostID {
			continue
		}
		if filter.ReportedBy != "" && report.ReportedBy != filter.ReportedBy {
			continue
		}
		if filter.Status != "" && report.Status != filter.Status {
			continue
		}
		out = append(out, cloneReport(report))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReportedAt.Equal(out[j].ReportedAt) {
			return out[i].ReportedAt.After(out[j].ReportedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *ReportStore) FindPending(_ context.Context, postID, reporter string) (domain.Report, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.pendingLocked(postID, reporter)
	return report, ok, nil
}

func (s *ReportStore) pendingLocked(postID, reporter string) (domain.Report, bool) {
	for _, report := range s.reports {
		if report.PostID == postID && report.ReportedBy == reporter && report.Status == domain.ReportPending {
			return cloneReport(report), true
		}
	}
	return domain.Report{}, false
}

func cloneReport(r domain.Report) domain.Report {
	out := r
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		out.ReviewedAt = &t
	}
	return out
}
