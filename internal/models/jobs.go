package models

import "time"

// JobStatus is the lifecycle state of a forecast job.
type JobStatus string

// Job status constants. Transitions only move forward:
// pending -> running -> completed|failed, or pending -> failed.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions can occur.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsActive reports whether the job is queued or executing.
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusRunning
}

// DefaultForecastHorizon is used when a trigger omits forecast_horizon.
const DefaultForecastHorizon = 24

// CancelledMessage is recorded on jobs cancelled through the API.
const CancelledMessage = "Job cancelled by user"

// ForecastJob is an asynchronous request to forecast every site of a portfolio.
type ForecastJob struct {
	ID              string     `json:"id"`
	PortfolioID     int64      `json:"portfolio_id"`
	PortfolioName   string     `json:"portfolio_name,omitempty"`
	Status          JobStatus  `json:"status"`
	ForecastHorizon int        `json:"forecast_horizon"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// IsComplete reports whether the job reached a terminal state.
func (j *ForecastJob) IsComplete() bool {
	return j.Status.IsTerminal()
}

// IsSuccessful reports whether the job completed without error.
func (j *ForecastJob) IsSuccessful() bool {
	return j.Status == JobStatusCompleted
}

// JobFilter narrows job listings. Zero values match everything.
type JobFilter struct {
	PortfolioID     int64
	Statuses        []JobStatus
	CreatedBefore   time.Time
	OrderNewestLast bool
}

// ForecastResult is one predicted-generation point for a job and site.
// SiteID 0 denotes a synthetic portfolio aggregate row.
type ForecastResult struct {
	ID                      int64     `json:"id"`
	JobID                   string    `json:"job_id"`
	SiteID                  int64     `json:"site_id"`
	ForecastDatetime        time.Time `json:"forecast_datetime"`
	PredictedGenerationMWh  Number    `json:"predicted_generation_mwh"`
	ConfidenceIntervalLower *Number   `json:"confidence_interval_lower,omitempty"`
	ConfidenceIntervalUpper *Number   `json:"confidence_interval_upper,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
}

// ResultFilter narrows result listings. SiteID 0 matches every site.
type ResultFilter struct {
	JobID  string
	SiteID int64
}

// TriggerRequest is the optional body of a forecast trigger.
type TriggerRequest struct {
	ForecastHorizon *int `json:"forecast_horizon,omitempty"`
}

// TriggerResponse is returned when a forecast job is accepted.
type TriggerResponse struct {
	JobID           string    `json:"job_id"`
	PortfolioID     int64     `json:"portfolio_id"`
	PortfolioName   string    `json:"portfolio_name"`
	Status          JobStatus `json:"status"`
	ForecastHorizon int       `json:"forecast_horizon"`
	CreatedAt       time.Time `json:"created_at"`
	Message         string    `json:"message"`
}

// JobStatusResponse is the payload of the job status endpoint. The result
// counters are only populated once the job completed.
type JobStatusResponse struct {
	JobID           string     `json:"job_id"`
	PortfolioID     int64      `json:"portfolio_id"`
	PortfolioName   string     `json:"portfolio_name"`
	Status          JobStatus  `json:"status"`
	ForecastHorizon int        `json:"forecast_horizon"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	IsComplete      bool       `json:"is_complete"`
	IsSuccessful    bool       `json:"is_successful"`
	ResultCount     *int       `json:"result_count,omitempty"`
	SiteCount       *int       `json:"site_count,omitempty"`
	ExpectedResults *int       `json:"expected_results,omitempty"`
	ResultsComplete *bool      `json:"results_complete,omitempty"`
}

// ForecastPoint is one hourly prediction in a results payload.
type ForecastPoint struct {
	Datetime                time.Time `json:"datetime"`
	PredictedGenerationMWh  Number    `json:"predicted_generation_mwh"`
	ConfidenceIntervalLower *Number   `json:"confidence_interval_lower"`
	ConfidenceIntervalUpper *Number   `json:"confidence_interval_upper"`
}

// SiteForecast groups the points of one site.
type SiteForecast struct {
	SiteID     int64           `json:"site_id"`
	SiteName   string          `json:"site_name"`
	SiteType   SiteType        `json:"site_type"`
	CapacityMW *Number         `json:"capacity_mw"`
	Forecasts  []ForecastPoint `json:"forecasts"`
}

// PortfolioTotal aggregates every site at one timestamp.
type PortfolioTotal struct {
	Datetime             time.Time `json:"datetime"`
	TotalPredictedMWh    Number    `json:"total_predicted_mwh"`
	TotalConfidenceLower Number    `json:"total_confidence_lower"`
	TotalConfidenceUpper Number    `json:"total_confidence_upper"`
}

// PortfolioResults is the payload of the portfolio results endpoint.
type PortfolioResults struct {
	JobID               string           `json:"job_id"`
	PortfolioID         int64            `json:"portfolio_id"`
	PortfolioName       string           `json:"portfolio_name"`
	ForecastGeneratedAt *time.Time       `json:"forecast_generated_at"`
	SiteCount           int              `json:"site_count"`
	TotalCapacityMW     Number           `json:"total_capacity_mw"`
	SiteForecasts       []SiteForecast   `json:"site_forecasts"`
	PortfolioTotals     []PortfolioTotal `json:"portfolio_totals"`
}

// SiteResults is the payload of the site results endpoint.
type SiteResults struct {
	SiteID        int64           `json:"site_id"`
	SiteName      string          `json:"site_name"`
	SiteType      SiteType        `json:"site_type"`
	CapacityMW    *Number         `json:"capacity_mw"`
	JobID         string          `json:"job_id"`
	ForecastCount int             `json:"forecast_count"`
	Forecasts     []ForecastPoint `json:"forecasts"`
}

// Job event types broadcast over the job WebSocket.
const (
	JobEventQueued    = "job_queued"
	JobEventStarted   = "job_started"
	JobEventCompleted = "job_completed"
	JobEventFailed    = "job_failed"
	JobEventCancelled = "job_cancelled"
)

// JobEvent is a job lifecycle notification.
type JobEvent struct {
	Type      string      `json:"type"`
	Job       ForecastJob `json:"job"`
	Timestamp time.Time   `json:"timestamp"`
	QueueSize int         `json:"queue_size"`
}
