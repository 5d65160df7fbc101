package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"learnloop-service/internal/app"
	"learnloop-service/internal/domain"
)

// ReportStore leans on the reports_pending_unique partial index for the
// one-pending-report-per-reporter rule.
type ReportStore struct {
	pool *pgxpool.Pool
}

func NewReportStore(pool *pgxpool.Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

const reportColumns = `id, post_id, reported_by, reason, description, reported_at, status,
	admin_comment, reviewed_at, reviewed_by`

func (s *ReportStore) Create(ctx context.Context, report domain.Report) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		report.ID, report.PostID, report.ReportedBy, report.Reason, report.Description, report.ReportedAt,
		string(report.Status), report.AdminComment, report.ReviewedAt, report.ReviewedBy)
	switch constraint := uniqueConstraint(err); {
	case err == nil:
		return nil
	case constraint == "reports_pending_unique":
		return domain.Wrap(domain.ErrDuplicateReport, err)
	case constraint != "":
		return domain.Wrap(domain.Errorf(domain.KindConflict, "report %s already exists", report.ID), err)
	default:
		return fmt.Errorf("insert report: %w", err)
	}
}

func (s *ReportStore) Get(ctx context.Context, id string) (domain.Report, error) {
	report, err := scanReport(s.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return domain.Report{}, domain.ErrReportNotFound
		}
		return domain.Report{}, fmt.Errorf("load report: %w", err)
	}
	return report, nil
}

func (s *ReportStore) Resolve(ctx context.Context, id string, res domain.Resolution) (domain.Report, error) {
	report, err := scanReport(s.pool.QueryRow(ctx, `UPDATE reports
		SET status = $2, admin_comment = $3, reviewed_at = $4, reviewed_by = $5
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+reportColumns,
		id, string(res.Status), res.AdminComment, res.ReviewedAt, res.ReviewedBy))
	if err == nil {
		return report, nil
	}
	if !isNoRows(err) {
		return domain.Report{}, fmt.Errorf("resolve report: %w", err)
	}
	found, err := exists(ctx, s.pool, "reports", id)
	if err != nil {
		return domain.Report{}, fmt.Errorf("check report: %w", err)
	}
	if !found {
		return domain.Report{}, domain.ErrReportNotFound
	}
	return domain.Report{}, domain.ErrReportResolved
}

func (s *ReportStore) List(ctx context.Context, filter app.ReportFilter) ([]domain.Report, error) {
	var w where
	if filter.PostID != "" {
		w.eq("post_id", filter.PostID)
	}
	if filter.ReportedBy != "" {
		w.eq("reported_by", filter.ReportedBy)
	}
	if filter.Status != "" {
		w.eq("status", string(filter.Status))
	}
	return s.query(ctx, `SELECT `+reportColumns+` FROM reports`+w.String()+` ORDER BY reported_at DESC, id`, w.args...)
}

func (s *ReportStore) FindPending(ctx context.Context, postID, reporter string) (domain.Report, bool, error) {
	report, err := scanReport(s.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports
		WHERE post_id = $1 AND reported_by = $2 AND status = 'PENDING'`, postID, reporter))
	if err != nil {
		if isNoRows(err) {
			return domain.Report{}, false, nil
		}
		return domain.Report{}, false, fmt.Errorf("find pending report: %w", err)
	}
	return report, true, nil
}

func (s *ReportStore) query(ctx context.Context, sql string, args ...any) ([]domain.Report, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Report, 0)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, report)
	}
	return out, rows.Err()
}

func scanReport(row pgx.Row) (domain.Report, error) {
	var (
		report domain.Report
		status string
	)
	err := row.Scan(&report.ID, &report.PostID, &report.ReportedBy, &report.Reason, &report.Description,
		&report.ReportedAt, &status, &report.AdminComment, &report.ReviewedAt, &report.ReviewedBy)
	if err != nil {
		return domain.Report{}, err
	}
	report.Status = domain.ReportStatus(status)
	return report, nil
}
