package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bobmcallan/sitecast/internal/models"
)

// ForecastsService wraps the /forecasts endpoints.
type ForecastsService struct {
	c *Client
}

// Trigger queues a forecast job. A horizon of zero uses the server default.
func (f *ForecastsService) Trigger(ctx context.Context, portfolioID int64, horizon int) (*models.TriggerResponse, error) {
	req := models.TriggerRequest{}
	if horizon != 0 {
		req.ForecastHorizon = &horizon
	}
	var resp models.TriggerResponse
	if err := f.c.do(ctx, http.MethodPost, fmt.Sprintf("/forecasts/portfolio/%d/trigger", portfolioID), nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (f *ForecastsService) JobStatus(ctx context.Context, jobID string) (*models.JobStatusResponse, error) {
	var resp models.JobStatusResponse
	if err := f.c.do(ctx, http.MethodGet, "/forecasts/jobs/"+url.PathEscape(jobID)+"/status", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PortfolioResults returns the results of jobID, or of the latest completed
// job when jobID is empty.
func (f *ForecastsService) PortfolioResults(ctx context.Context, portfolioID int64, jobID string) (*models.PortfolioResults, error) {
	var resp models.PortfolioResults
	if err := f.c.do(ctx, http.MethodGet, fmt.Sprintf("/forecasts/portfolio/%d/results", portfolioID), jobQuery(jobID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (f *ForecastsService) SiteResults(ctx context.Context, siteID int64, jobID string) (*models.SiteResults, error) {
	var resp models.SiteResults
	if err := f.c.do(ctx, http.MethodGet, fmt.Sprintf("/forecasts/site/%d/results", siteID), jobQuery(jobID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (f *ForecastsService) Cancel(ctx context.Context, jobID string) (*models.ForecastJob, error) {
	var job models.ForecastJob
	if err := f.c.do(ctx, http.MethodPost, "/forecasts/jobs/"+url.PathEscape(jobID)+"/cancel", nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Poller returns a poller using the client's interval and ceiling.
func (f *ForecastsService) Poller(opts ...PollOption) *Poller {
	base := []PollOption{WithInterval(f.c.pollInterval), WithCeiling(f.c.pollCeiling)}
	return NewPoller(f.JobStatus, append(base, opts...)...)
}

// RunForecast triggers a job, waits for it and fetches its results once.
func (f *ForecastsService) RunForecast(ctx context.Context, portfolioID int64, horizon int, opts ...PollOption) (*models.PortfolioResults, error) {
	trig, err := f.Trigger(ctx, portfolioID, horizon)
	if err != nil {
		return nil, err
	}
	f.c.logger.Info().Str("job_id", trig.JobID).Int64("portfolio_id", portfolioID).Msg("Forecast job triggered")

	if _, err := f.Poller(opts...).Wait(ctx, trig.JobID); err != nil {
		return nil, err
	}
	return f.PortfolioResults(ctx, portfolioID, trig.JobID)
}

func jobQuery(jobID string) url.Values {
	if jobID == "" {
		return nil
	}
	return url.Values{"job_id": {jobID}}
}

// FlattenPortfolioResults turns nested site forecasts and portfolio totals
// into result rows. Totals are emitted with SiteID 0, and only when more
// than one site contributes; a single site's totals repeat its own series.
func FlattenPortfolioResults(res *models.PortfolioResults) []models.ForecastResult {
	if res == nil {
		return nil
	}
	var rows []models.ForecastResult
	for _, sf := range res.SiteForecasts {
		for _, pt := range sf.Forecasts {
			rows = append(rows, models.ForecastResult{
				JobID:                   res.JobID,
				SiteID:                  sf.SiteID,
				ForecastDatetime:        pt.Datetime,
				PredictedGenerationMWh:  pt.PredictedGenerationMWh,
				ConfidenceIntervalLower: pt.ConfidenceIntervalLower,
				ConfidenceIntervalUpper: pt.ConfidenceIntervalUpper,
			})
		}
	}
	if len(res.SiteForecasts) < 2 {
		return rows
	}
	for _, t := range res.PortfolioTotals {
		lower, upper := t.TotalConfidenceLower, t.TotalConfidenceUpper
		rows = append(rows, models.ForecastResult{
			JobID:                   res.JobID,
			SiteID:                  0,
			ForecastDatetime:        t.Datetime,
			PredictedGenerationMWh:  t.TotalPredictedMWh,
			ConfidenceIntervalLower: &lower,
			ConfidenceIntervalUpper: &upper,
		})
	}
	return rows
}
