package repo

import (
	"context"
	"fmt"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/infra"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/sqlinline"
)

// JobRepositoryPG answers status queries from the generation_jobs table the
// worker pool writes to.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a job status repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Status fetches the authoritative status of jobID.
func (r *JobRepositoryPG) Status(ctx context.Context, jobID string) (domain.StatusReport, error) {
	var (
		status   string
		progress int
		report   domain.StatusReport
	)
	row := r.sql.QueryRow(ctx, sqlinline.QSelectGenerationJobStatus, jobID)
	if err := row.Scan(&status, &progress, &report.ErrorMessage, &report.ImageID, &report.VideoID); err != nil {
		if infra.IsNoRows(err) {
			return domain.StatusReport{}, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
		}
		return domain.StatusReport{}, fmt.Errorf("select job status: %w", err)
	}
	report.Status = domain.ParseJobStatus(status)
	report.Progress = progress
	return report, nil
}

// InstallStatusNotify creates the trigger that feeds the realtime listener.
func (r *JobRepositoryPG) InstallStatusNotify(ctx context.Context) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QInstallStatusNotify); err != nil {
		return fmt.Errorf("install status notify trigger: %w", err)
	}
	return nil
}

var _ domain.StatusSource = (*JobRepositoryPG)(nil)
