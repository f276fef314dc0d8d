package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/interfaces"
	"github.com/bobmcallan/sitecast/internal/models"
	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// jobSelectFields aliases job_id to id for struct mapping.
const jobSelectFields = "job_id AS id, portfolio_id, status, forecast_horizon, created_at, started_at, completed_at, error_message"

const resultSelectFields = "result_id AS id, job_id, site_id, forecast_datetime, predicted_generation_mwh, confidence_interval_lower, confidence_interval_upper, created_at"

// ForecastStore implements interfaces.ForecastStore using SurrealDB.
type ForecastStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewForecastStore creates a new ForecastStore.
func NewForecastStore(db *surrealdb.DB, logger *common.Logger) *ForecastStore {
	return &ForecastStore{db: db, logger: logger}
}

func jobRID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("forecast_job", id)
}

func resultRID(r *models.ForecastResult) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("forecast_result",
		fmt.Sprintf("%s_%d_%d", r.JobID, r.SiteID, r.ForecastDatetime.Unix()))
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

	sql := `UPSERT $rid SET
		job_id = $job_id, portfolio_id = $portfolio_id, status = $status,
		forecast_horizon = $forecast_horizon, created_at = $created_at,
		started_at = $started_at, completed_at = $completed_at, error_message = $error_message`
	vars := map[string]any{
		"rid":              jobRID(job.ID),
		"job_id":           job.ID,
		"portfolio_id":     job.PortfolioID,
		"status":           string(job.Status),
		"forecast_horizon": job.ForecastHorizon,
		"created_at":       job.CreatedAt,
		"started_at":       job.StartedAt,
		"completed_at":     job.CompletedAt,
		"error_message":    job.ErrorMessage,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// queryJobs runs a job query and fills in portfolio names.
func (s *ForecastStore) queryJobs(ctx context.Context, sql string, vars map[string]any) ([]models.ForecastJob, error) {
	results, err := surrealdb.Query[[]models.ForecastJob](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	jobs := []models.ForecastJob{}
	if results != nil && len(*results) > 0 {
		jobs = append(jobs, (*results)[0].Result...)
	}
	if len(jobs) == 0 {
		return jobs, nil
	}

	type nameResult struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	var ids []int64
	for _, j := range jobs {
		ids = append(ids, j.PortfolioID)
	}
	names, err := surrealdb.Query[[]nameResult](ctx, s.db,
		"SELECT portfolio_id AS id, name FROM portfolio WHERE portfolio_id IN $ids", map[string]any{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve portfolio names: %w", err)
	}
	byID := make(map[int64]string)
	if names != nil && len(*names) > 0 {
		for _, n := range (*names)[0].Result {
			byID[n.ID] = n.Name
		}
	}
	for i := range jobs {
		jobs[i].PortfolioName = byID[jobs[i].PortfolioID]
	}
	return jobs, nil
}

func (s *ForecastStore) GetJob(ctx context.Context, id string) (*models.ForecastJob, error) {
	jobs, err := s.queryJobs(ctx, "SELECT "+jobSelectFields+" FROM $rid", map[string]any{"rid": jobRID(id)})
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, models.NotFound("forecast job", id)
	}
	return &jobs[0], nil
}

func (s *ForecastStore) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.ForecastJob, error) {
	var where []string
	vars := map[string]any{}
	if filter.PortfolioID != 0 {
		where = append(where, "portfolio_id = $portfolio_id")
		vars["portfolio_id"] = filter.PortfolioID
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "status IN $statuses")
		vars["statuses"] = statuses
	}
	if !filter.CreatedBefore.IsZero() {
		where = append(where, "created_at < $before")
		vars["before"] = filter.CreatedBefore.UTC()
	}

	sql := "SELECT " + jobSelectFields + " FROM forecast_job"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	if filter.OrderNewestLast {
		sql += " ORDER BY created_at ASC"
	} else {
		sql += " ORDER BY created_at DESC"
	}
	return s.queryJobs(ctx, sql, vars)
}

func (s *ForecastStore) TransitionJob(ctx context.Context, id string, from []models.JobStatus, to models.JobStatus, errMsg string) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition to %s needs at least one source status", to)
	}

	now := time.Now().UTC()
	set := []string{"status = $to"}
	switch {
	case to == models.JobStatusRunning:
		set = append(set, "started_at = $now")
	case to.IsTerminal():
		set = append(set, "completed_at = $now")
	case to == models.JobStatusPending:
		set = append(set, "started_at = NONE")
	}
	if errMsg != "" {
		set = append(set, "error_message = $error_message")
	}

	statuses := make([]string, len(from))
	for i, st := range from {
		statuses[i] = string(st)
	}

	// Conditional update: only applies while the job is still in a source state
	sql := "UPDATE $rid SET " + strings.Join(set, ", ") + " WHERE status IN $from"
	vars := map[string]any{
		"rid":           jobRID(id),
		"to":            string(to),
		"now":           now,
		"error_message": errMsg,
		"from":          statuses,
	}

	results, err := surrealdb.Query[[]map[string]any](ctx, s.db, sql, vars)
	if err != nil {
		return false, fmt.Errorf("failed to transition job: %w", err)
	}
	if affected(results) > 0 {
		return true, nil
	}
	if _, err := s.GetJob(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// ResetRunningJobs resets all jobs with status "running" back to "pending".
func (s *ForecastStore) ResetRunningJobs(ctx context.Context) (int, error) {
	sql := "UPDATE forecast_job SET status = $pending, started_at = NONE WHERE status = $running"
	results, err := surrealdb.Query[[]map[string]any](ctx, s.db, sql, map[string]any{
		"pending": string(models.JobStatusPending),
		"running": string(models.JobStatusRunning),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reset running jobs: %w", err)
	}
	return affected(results), nil
}

func (s *ForecastStore) DeleteJob(ctx context.Context, id string) error {
	sql := "DELETE forecast_result WHERE job_id = $id; DELETE $rid"
	if _, err := surrealdb.Query[any](ctx, s.db, sql, map[string]any{"id": id, "rid": jobRID(id)}); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (s *ForecastStore) LatestCompletedJob(ctx context.Context, portfolioID, siteID int64) (*models.ForecastJob, error) {
	sql := "SELECT " + jobSelectFields + " FROM forecast_job WHERE status = $completed"
	vars := map[string]any{"completed": string(models.JobStatusCompleted)}
	if portfolioID != 0 {
		sql += " AND portfolio_id = $portfolio_id"
		vars["portfolio_id"] = portfolioID
	}
	if siteID != 0 {
		sql += " AND job_id IN (SELECT VALUE job_id FROM forecast_result WHERE site_id = $site_id)"
		vars["site_id"] = siteID
	}
	sql += " ORDER BY completed_at DESC, created_at DESC LIMIT 1"

	jobs, err := s.queryJobs(ctx, sql, vars)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, &models.NotFoundError{Resource: "completed forecast"}
	}
	return &jobs[0], nil
}

func (s *ForecastStore) SaveResults(ctx context.Context, results []models.ForecastResult) error {
	if len(results) == 0 {
		return nil
	}
	first, err := nextID(ctx, s.db, "forecast_result", len(results))
	if err != nil {
		return err
	}

	// Existing rows keep their id and created_at on upsert
	sql := `UPSERT $rid SET
		result_id = result_id ?? $result_id, job_id = $job_id, site_id = $site_id,
		forecast_datetime = $forecast_datetime, predicted_generation_mwh = $predicted,
		confidence_interval_lower = $lower, confidence_interval_upper = $upper,
		created_at = created_at ?? $created_at`

	now := time.Now().UTC()
	for i := range results {
		r := &results[i]
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.ID = first + int64(i)
		vars := map[string]any{
			"rid":               resultRID(r),
			"result_id":         r.ID,
			"job_id":            r.JobID,
			"site_id":           r.SiteID,
			"forecast_datetime": r.ForecastDatetime.UTC(),
			"predicted":         float64(r.PredictedGenerationMWh),
			"lower":             capacityVar(r.ConfidenceIntervalLower),
			"upper":             capacityVar(r.ConfidenceIntervalUpper),
			"created_at":        r.CreatedAt,
		}
		if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
			return fmt.Errorf("failed to save result: %w", err)
		}
	}
	return nil
}

func resultWhere(filter models.ResultFilter) (string, map[string]any) {
	var where []string
	vars := map[string]any{}
	if filter.JobID != "" {
		where = append(where, "job_id = $job_id")
		vars["job_id"] = filter.JobID
	}
	if filter.SiteID != 0 {
		where = append(where, "site_id = $site_id")
		vars["site_id"] = filter.SiteID
	}
	if len(where) == 0 {
		return "", vars
	}
	return " WHERE " + strings.Join(where, " AND "), vars
}

func (s *ForecastStore) ListResults(ctx context.Context, filter models.ResultFilter) ([]models.ForecastResult, error) {
	where, vars := resultWhere(filter)
	sql := "SELECT " + resultSelectFields + " FROM forecast_result" + where + " ORDER BY site_id, forecast_datetime"

	results, err := surrealdb.Query[[]models.ForecastResult](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	out := []models.ForecastResult{}
	if results != nil && len(*results) > 0 {
		out = append(out, (*results)[0].Result...)
	}
	return out, nil
}

func (s *ForecastStore) CountResults(ctx context.Context, filter models.ResultFilter) (int, error) {
	where, vars := resultWhere(filter)
	sql := "SELECT count() AS cnt FROM forecast_result" + where + " GROUP ALL"

	type countResult struct {
		Cnt int `json:"cnt"`
	}

	results, err := surrealdb.Query[[]countResult](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].Cnt, nil
	}
	return 0, nil
}

func (s *ForecastStore) SiteHasResults(ctx context.Context, siteID int64) (bool, error) {
	n, err := s.CountResults(ctx, models.ResultFilter{SiteID: siteID})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Compile-time check
var _ interfaces.ForecastStore = (*ForecastStore)(nil)
