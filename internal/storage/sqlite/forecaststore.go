package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/interfaces"
	"github.com/bobmcallan/sitecast/internal/models"
	"github.com/google/uuid"
)

const jobColumns = "j.id, j.portfolio_id, COALESCE(p.name, ''), j.status, j.forecast_horizon, j.created_at, j.started_at, j.completed_at, j.error_message"

const jobFrom = " FROM forecast_jobs j LEFT JOIN portfolios p ON p.id = j.portfolio_id"

const resultColumns = "id, job_id, site_id, forecast_datetime, predicted_generation_mwh, confidence_interval_lower, confidence_interval_upper, created_at"

// ForecastStore implements interfaces.ForecastStore using SQLite.
type ForecastStore struct {
	db     *sql.DB
	logger *common.Logger
}

// NewForecastStore creates a new ForecastStore.
func NewForecastStore(db *sql.DB, logger *common.Logger) *ForecastStore {
	return &ForecastStore{db: db, logger: logger}
}

func scanJob(row rowScanner) (*models.ForecastJob, error) {
	var (
		j                  models.ForecastJob
		status, created    string
		started, completed sql.NullString
	)
	if err := row.Scan(&j.ID, &j.PortfolioID, &j.PortfolioName, &status, &j.ForecastHorizon,
		&created, &started, &completed, &j.ErrorMessage); err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	j.CreatedAt = parseTime(created)
	j.StartedAt = timePtr(started)
	j.CompletedAt = timePtr(completed)
	return &j, nil
}

func (s *ForecastStore) queryJobs(ctx context.Context, query string, args ...any) ([]models.ForecastJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.ForecastJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *ForecastStore) CreateJob(ctx context.Context, job *models.ForecastJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.ForecastHorizon == 0 {
		job.ForecastHorizon = models.DefaultForecastHorizon
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO forecast_jobs (id, portfolio_id, status, forecast_horizon, created_at, started_at, completed_at, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.PortfolioID, string(job.Status), job.ForecastHorizon, formatTime(job.CreatedAt),
		nullTime(job.StartedAt), nullTime(job.CompletedAt), job.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *ForecastStore) GetJob(ctx context.Context, id string) (*models.ForecastJob, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+jobFrom+" WHERE j.id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("forecast job", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *ForecastStore) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.ForecastJob, error) {
	var (
		where []string
		args  []any
	)
	if filter.PortfolioID != 0 {
		where = append(where, "j.portfolio_id = ?")
		args = append(args, filter.PortfolioID)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "j.status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if !filter.CreatedBefore.IsZero() {
		where = append(where, "j.created_at < ?")
		args = append(args, formatTime(filter.CreatedBefore))
	}

	query := "SELECT " + jobColumns + jobFrom
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if filter.OrderNewestLast {
		query += " ORDER BY j.created_at ASC"
	} else {
		query += " ORDER BY j.created_at DESC"
	}
	return s.queryJobs(ctx, query, args...)
}

func (s *ForecastStore) TransitionJob(ctx context.Context, id string, from []models.JobStatus, to models.JobStatus, errMsg string) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition to %s needs at least one source status", to)
	}

	now := formatTime(time.Now())
	set := []string{"status = ?"}
	args := []any{string(to)}
	switch {
	case to == models.JobStatusRunning:
		set = append(set, "started_at = ?")
		args = append(args, now)
	case to.IsTerminal():
		set = append(set, "completed_at = ?")
		args = append(args, now)
	case to == models.JobStatusPending:
		set = append(set, "started_at = NULL")
	}
	if errMsg != "" {
		set = append(set, "error_message = ?")
		args = append(args, errMsg)
	}

	query := "UPDATE forecast_jobs SET " + strings.Join(set, ", ") +
		" WHERE id = ? AND status IN (" + placeholders(len(from)) + ")"
	args = append(args, id)
	for _, st := range from {
		args = append(args, string(st))
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition job: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return true, nil
	}
	if _, err := s.GetJob(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *ForecastStore) ResetRunningJobs(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE forecast_jobs SET status = ?, started_at = NULL WHERE status = ?",
		string(models.JobStatusPending), string(models.JobStatusRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to reset running jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *ForecastStore) DeleteJob(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM forecast_results WHERE job_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete job results: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM forecast_jobs WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return tx.Commit()
}

func (s *ForecastStore) LatestCompletedJob(ctx context.Context, portfolioID, siteID int64) (*models.ForecastJob, error) {
	query := "SELECT " + jobColumns + jobFrom + " WHERE j.status = ?"
	args := []any{string(models.JobStatusCompleted)}
	if portfolioID != 0 {
		query += " AND j.portfolio_id = ?"
		args = append(args, portfolioID)
	}
	if siteID != 0 {
		query += " AND EXISTS (SELECT 1 FROM forecast_results r WHERE r.job_id = j.id AND r.site_id = ?)"
		args = append(args, siteID)
	}
	query += " ORDER BY j.completed_at DESC, j.created_at DESC LIMIT 1"

	job, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "completed forecast"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest job: %w", err)
	}
	return job, nil
}

func (s *ForecastStore) SaveResults(ctx context.Context, results []models.ForecastResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO forecast_results (job_id, site_id, forecast_datetime, predicted_generation_mwh,
			confidence_interval_lower, confidence_interval_upper, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (job_id, site_id, forecast_datetime) DO UPDATE SET
			predicted_generation_mwh = excluded.predicted_generation_mwh,
			confidence_interval_lower = excluded.confidence_interval_lower,
			confidence_interval_upper = excluded.confidence_interval_upper`)
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range results {
		r := &results[i]
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx, r.JobID, r.SiteID, formatTime(r.ForecastDatetime),
			float64(r.PredictedGenerationMWh), capacityArg(r.ConfidenceIntervalLower),
			capacityArg(r.ConfidenceIntervalUpper), formatTime(r.CreatedAt)); err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
	}
	return tx.Commit()
}

func resultWhere(filter models.ResultFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.JobID != "" {
		where = append(where, "job_id = ?")
		args = append(args, filter.JobID)
	}
	if filter.SiteID != 0 {
		where = append(where, "site_id = ?")
		args = append(args, filter.SiteID)
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func (s *ForecastStore) ListResults(ctx context.Context, filter models.ResultFilter) ([]models.ForecastResult, error) {
	where, args := resultWhere(filter)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+resultColumns+" FROM forecast_results"+where+" ORDER BY site_id, forecast_datetime", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	results := []models.ForecastResult{}
	for rows.Next() {
		var (
			r            models.ForecastResult
			at, created  string
			predicted    float64
			lower, upper sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.JobID, &r.SiteID, &at, &predicted, &lower, &upper, &created); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.ForecastDatetime = parseTime(at)
		r.PredictedGenerationMWh = models.Number(predicted)
		if lower.Valid {
			r.ConfidenceIntervalLower = models.NumberPtr(lower.Float64)
		}
		if upper.Valid {
			r.ConfidenceIntervalUpper = models.NumberPtr(upper.Float64)
		}
		r.CreatedAt = parseTime(created)
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *ForecastStore) CountResults(ctx context.Context, filter models.ResultFilter) (int, error) {
	where, args := resultWhere(filter)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM forecast_results"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return n, nil
}

func (s *ForecastStore) SiteHasResults(ctx context.Context, siteID int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM forecast_results WHERE site_id = ? LIMIT 1", siteID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check site results: %w", err)
	}
	return true, nil
}

// Compile-time check
var _ interfaces.ForecastStore = (*ForecastStore)(nil)
