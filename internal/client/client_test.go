package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/sitecast/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) (*Client, *MemoryTokenStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tokens := NewMemoryTokenStore()
	base := []ClientOption{WithBaseURL(srv.URL + "/api"), WithTokenStore(tokens), WithRateLimit(1000)}
	return NewClient(append(base, opts...)...), tokens
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNewClient_BaseURLFromEnv(t *testing.T) {
	t.Setenv(EnvBaseURL, "https://forecast.example.com/api/")
	assert.Equal(t, "https://forecast.example.com/api", NewClient().BaseURL())

	t.Setenv(EnvBaseURL, "")
	assert.Equal(t, DefaultBaseURL, NewClient().BaseURL())
	assert.Equal(t, "http://other/api", NewClient(WithBaseURL("http://other/api/")).BaseURL())
}

func TestLoadEnv_ReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SITECAST_API_URL=http://from-dotenv:9000/api\n"), 0o600))
	t.Setenv(EnvBaseURL, "")
	os.Unsetenv(EnvBaseURL)

	require.NoError(t, LoadEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "http://from-dotenv:9000/api", NewClient().BaseURL())
}

func TestSitesList_UnwrapsEnvelopeAndCoercesNumbers(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sites", r.URL.Path)
		assert.Equal(t, "solar", r.URL.Query().Get("site_type"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"count":2,"next":null,"previous":null,"results":[
			{"id":1,"name":"Sunny","site_type":"solar","latitude":"35.100000","longitude":"-117.2","capacity_mw":"12.500"},
			{"id":2,"name":"Shade","site_type":"solar","latitude":1,"longitude":2,"capacity_mw":null}]}`))
	})
	require.NoError(t, tokens.Save("tok"))

	sites, err := c.Sites.List(context.Background(), models.SiteTypeSolar)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, 35.1, sites[0].Latitude.Float())
	require.NotNil(t, sites[0].CapacityMW)
	assert.Equal(t, 12.5, sites[0].CapacityMW.Float())
	assert.Nil(t, sites[1].CapacityMW)
}

func TestPortfolioSites_AcceptsBareArray(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/portfolios/3/sites", r.URL.Path)
		w.Write([]byte(`[{"id":7,"name":"Gusty","site_type":"wind","latitude":1,"longitude":1}]`))
	})

	sites, err := c.Portfolios.Sites(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, int64(7), sites[0].ID)
}

func TestUnwrapList_EmptyShapes(t *testing.T) {
	for _, body := range []string{``, `null`, `[]`, `{"results":[]}`, `{"count":0}`} {
		items, err := unwrapList[models.Site](json.RawMessage(body))
		require.NoError(t, err, body)
		assert.NotNil(t, items, body)
		assert.Empty(t, items, body)
	}
}

func TestRequest_UnauthorizedClearsToken(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid or expired token", "code": "unauthorized"})
	})
	require.NoError(t, tokens.Save("stale"))

	_, err := c.Portfolios.List(context.Background())
	require.Error(t, err)
	assert.Equal(t, CodeSessionExpired, CodeOf(err))
	assert.False(t, IsRetryable(err))

	token, _ := tokens.Load()
	assert.Empty(t, token)
	assert.ErrorIs(t, c.RequireToken(), ErrNotSignedIn)
}

func TestRequest_ValidationErrorCarriesFields(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "X", in["name"])
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "Invalid site data",
			"code":   "validation_error",
			"fields": map[string][]string{"name": {"Site name must be at least 2 characters long."}},
		})
	})

	name := "X"
	_, err := c.Sites.Create(context.Background(), models.SiteInput{Name: &name})
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeValidation, apiErr.Code)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, []string{"Site name must be at least 2 characters long."}, apiErr.Fields["name"])
}

func TestRequest_ServerErrorIsRetryable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	})
	_, err := c.Sites.Get(context.Background(), 1)
	assert.Equal(t, CodeServer, CodeOf(err))
	assert.True(t, IsRetryable(err))
}

func TestRequest_NetworkAndTimeoutErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(WithBaseURL(url), WithRateLimit(1000))
	_, err := c.Sites.List(context.Background(), "")
	assert.Equal(t, CodeNetwork, CodeOf(err))
	assert.True(t, IsRetryable(err))

	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	c = NewClient(WithBaseURL(slow.URL), WithRateLimit(1000), WithTimeout(50*time.Millisecond))
	_, err = c.Sites.List(context.Background(), "")
	assert.Equal(t, CodeTimeout, CodeOf(err))
}

func TestRequest_RateLimitPastDeadlineIsTimeout(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[]`))
	}, WithRateLimit(1))

	// The burst token goes to the first request
	_, err := c.Sites.List(context.Background(), "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Sites.List(ctx, "")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeTimeout, apiErr.Code)
	assert.NoError(t, ctx.Err(), "limiter gives up before the deadline passes")
	assert.EqualValues(t, 1, calls.Load())
}

func TestWithTimeout_LeavesCallerClientAlone(t *testing.T) {
	hc := &http.Client{Timeout: time.Minute}
	c := NewClient(WithHTTPClient(hc), WithTimeout(2*time.Second))
	assert.Equal(t, time.Minute, hc.Timeout)
	assert.Equal(t, 2*time.Second, c.httpClient.Timeout)
	assert.NotSame(t, hc, c.httpClient)

	// Option order does not matter and a nil client falls back to the default
	assert.NotPanics(t, func() {
		c = NewClient(WithTimeout(time.Second), WithHTTPClient(nil))
	})
	require.NotNil(t, c.httpClient)
	assert.Equal(t, time.Second, c.httpClient.Timeout)

	c = NewClient(WithHTTPClient(hc))
	assert.Same(t, hc, c.httpClient)
}

func TestWithRateLimit_NonPositiveIsUnlimited(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}, WithRateLimit(0))

	for i := 0; i < 5; i++ {
		_, err := c.Sites.List(context.Background(), "")
		require.NoError(t, err)
	}
}

func TestLogin_StoresTokenAndReadsExpiry(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "admin", "exp": exp.Unix()}).
		SignedString([]byte("server-only-secret"))
	require.NoError(t, err)

	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			assert.Empty(t, r.Header.Get("Authorization"))
			var req models.LoginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "ops@example.com", req.Email)
			writeJSON(w, http.StatusOK, models.LoginResponse{Token: signed, ExpiresAt: exp, User: models.Profile{UserID: "admin", Email: req.Email}})
		case "/api/me":
			assert.Equal(t, "Bearer "+signed, r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, models.Profile{UserID: "admin"})
		}
	})

	_, ok := c.TokenExpiry()
	assert.False(t, ok)

	resp, err := c.Login(context.Background(), "ops@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, signed, resp.Token)
	stored, _ := tokens.Load()
	assert.Equal(t, signed, stored)

	got, ok := c.TokenExpiry()
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin", me.UserID)

	require.NoError(t, c.Logout())
	assert.ErrorIs(t, c.RequireToken(), ErrNotSignedIn)
}

func TestFileTokenStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	store, err := NewFileTokenStore(path)
	require.NoError(t, err)

	tok, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, store.Save("abc"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	tok, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	tok, _ = store.Load()
	assert.Empty(t, tok)
}

func TestDefaultTokenPath_UsesXDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	store, err := NewFileTokenStore("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sitecast", "token"), store.Path())
}

func TestRunForecast_TriggerPollFetchOnce(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var statusCalls, resultCalls atomic.Int32

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/forecasts/portfolio/1/trigger":
			assert.Equal(t, http.MethodPost, r.Method)
			var req models.TriggerRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Nil(t, req.ForecastHorizon)
			writeJSON(w, http.StatusCreated, models.TriggerResponse{JobID: "job-1", PortfolioID: 1, Status: models.JobStatusPending})
		case "/api/forecasts/jobs/job-1/status":
			statusCalls.Add(1)
			writeJSON(w, http.StatusOK, models.JobStatusResponse{JobID: "job-1", Status: models.JobStatusCompleted, IsComplete: true, IsSuccessful: true})
		case "/api/forecasts/portfolio/1/results":
			resultCalls.Add(1)
			assert.Equal(t, "job-1", r.URL.Query().Get("job_id"))
			w.Write([]byte(`{"job_id":"job-1","portfolio_id":1,"site_forecasts":[{"site_id":5,"site_name":"Sunny","site_type":"solar",
				"forecasts":[{"datetime":"2025-06-01T12:00:00Z","predicted_generation_mwh":"2.125","confidence_interval_lower":1.7,"confidence_interval_upper":2.55}]}],
				"portfolio_totals":[]}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}, WithPollInterval(5*time.Millisecond), WithPollCeiling(time.Second))

	var updates []models.JobStatus
	res, err := c.Forecasts.RunForecast(context.Background(), 1, 0,
		WithOnUpdate(func(s *models.JobStatusResponse) { updates = append(updates, s.Status) }))
	require.NoError(t, err)
	assert.EqualValues(t, 1, statusCalls.Load())
	assert.EqualValues(t, 1, resultCalls.Load())
	assert.Equal(t, []models.JobStatus{models.JobStatusCompleted}, updates)

	want := []models.ForecastResult{{
		JobID:                   "job-1",
		SiteID:                  5,
		ForecastDatetime:        now,
		PredictedGenerationMWh:  2.125,
		ConfidenceIntervalLower: models.NumberPtr(1.7),
		ConfidenceIntervalUpper: models.NumberPtr(2.55),
	}}
	if diff := cmp.Diff(want, FlattenPortfolioResults(res)); diff != "" {
		t.Errorf("FlattenPortfolioResults mismatch (-want +got):\n%s", diff)
	}
}

func TestRunForecast_FailedJobSkipsResults(t *testing.T) {
	var resultCalls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/forecasts/portfolio/2/trigger":
			writeJSON(w, http.StatusCreated, models.TriggerResponse{JobID: "job-2", Status: models.JobStatusPending})
		case "/api/forecasts/jobs/job-2/status":
			writeJSON(w, http.StatusOK, models.JobStatusResponse{JobID: "job-2", Status: models.JobStatusFailed, ErrorMessage: models.CancelledMessage})
		default:
			resultCalls.Add(1)
		}
	}, WithPollInterval(5*time.Millisecond))

	_, err := c.Forecasts.RunForecast(context.Background(), 2, 12)
	var failed *JobFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, models.CancelledMessage, failed.Message)
	assert.Zero(t, resultCalls.Load())
}

func TestFlattenPortfolioResults_IncludesTotalsAsSiteZero(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	res := &models.PortfolioResults{
		JobID: "j",
		SiteForecasts: []models.SiteForecast{
			{SiteID: 1, Forecasts: []models.ForecastPoint{{Datetime: ts, PredictedGenerationMWh: 1}}},
			{SiteID: 2, Forecasts: []models.ForecastPoint{{Datetime: ts, PredictedGenerationMWh: 2}}},
		},
		PortfolioTotals: []models.PortfolioTotal{{Datetime: ts, TotalPredictedMWh: 3, TotalConfidenceLower: 2.4, TotalConfidenceUpper: 3.6}},
	}

	rows := FlattenPortfolioResults(res)
	require.Len(t, rows, 3)
	total := rows[2]
	assert.Equal(t, int64(0), total.SiteID)
	assert.Equal(t, 3.0, total.PredictedGenerationMWh.Float())
	require.NotNil(t, total.ConfidenceIntervalLower)
	assert.Equal(t, 2.4, total.ConfidenceIntervalLower.Float())
	assert.Nil(t, FlattenPortfolioResults(nil))
}

func TestFlattenPortfolioResults_SingleSiteOmitsTotals(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	res := &models.PortfolioResults{
		JobID:           "j",
		SiteForecasts:   []models.SiteForecast{{SiteID: 7, Forecasts: []models.ForecastPoint{{Datetime: ts, PredictedGenerationMWh: 4}}}},
		PortfolioTotals: []models.PortfolioTotal{{Datetime: ts, TotalPredictedMWh: 4, TotalConfidenceLower: 3.2, TotalConfidenceUpper: 4.8}},
	}

	rows := FlattenPortfolioResults(res)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0].SiteID)
}
