package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bobmcallan/sitecast/internal/app"
	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAdminEmail    = "admin@sitecast.local"
	testAdminPassword = "test-password-123"
)

type testEnv struct {
	app     *app.App
	handler http.Handler
	token   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = "sqlite"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "server.db")
	cfg.Forecast.Seed = 7
	cfg.Forecast.Workers = 1
	cfg.Auth.JWTSecret = "server-test-secret"
	cfg.Auth.AdminEmail = testAdminEmail
	cfg.Auth.AdminPassword = testAdminPassword

	a, err := app.New(cfg, common.NewSilentLogger())
	require.NoError(t, err)
	a.Start()
	t.Cleanup(a.Close)

	env := &testEnv{app: a, handler: NewServer(a).Handler()}
	env.token = env.login(t, testAdminEmail, testAdminPassword)
	return env
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := e.request(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// do issues an authenticated request.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return e.request(t, method, path, e.token, body)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) createSite(t *testing.T, name string, siteType string, lat, lon float64, capacity any) models.Site {
	t.Helper()
	body := map[string]any{"name": name, "site_type": siteType, "latitude": lat, "longitude": lon}
	if capacity != nil {
		body["capacity_mw"] = capacity
	}
	rec := e.do(t, http.MethodPost, "/api/sites", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.Site](t, rec)
}

// --- JWT helpers ---

func TestSignAndValidateJWT_RoundTrip(t *testing.T) {
	cfg := &common.AuthConfig{JWTSecret: "test-secret-key", TokenExpiry: "1h"}
	user := &models.User{UserID: "alice", Email: "alice@example.com", Name: "Alice"}

	token, expiresAt, err := signJWT(user, cfg)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	parsed, claims, err := validateJWT(token, []byte(cfg.JWTSecret))
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "alice", claims["sub"])
	assert.Equal(t, "alice@example.com", claims["email"])
	assert.Equal(t, "sitecast-server", claims["iss"])
}

func TestValidateJWT_RejectsExpiredAndForeignTokens(t *testing.T) {
	user := &models.User{UserID: "alice"}

	expired, _, err := signJWT(user, &common.AuthConfig{JWTSecret: "s", TokenExpiry: "-1h"})
	require.NoError(t, err)
	_, _, err = validateJWT(expired, []byte("s"))
	assert.Error(t, err)

	valid, _, err := signJWT(user, &common.AuthConfig{JWTSecret: "s", TokenExpiry: "1h"})
	require.NoError(t, err)
	_, _, err = validateJWT(valid, []byte("other"))
	assert.Error(t, err)
}

// --- public routes ---

func TestHealthAndVersion_Public(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "sqlite", health["storage"])

	rec = env.request(t, http.MethodGet, "/api/version", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec), "version")

	rec = env.request(t, http.MethodGet, "/api/openapi.yaml", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/forecasts/portfolio/{id}/trigger")
}

func TestUnknownRoute_ReturnsJSON404(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", decode[map[string]any](t, rec)["error"])
}

// --- auth ---

func TestProtectedRoutes_RequireBearer(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/sites", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_request"`)
	assert.Equal(t, CodeUnauthorized, decode[map[string]any](t, rec)["code"])

	rec = env.request(t, http.MethodGet, "/api/sites", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)

	// Query parameter token is accepted for WebSocket clients
	rec = env.request(t, http.MethodGet, "/api/me?access_token="+env.token, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_RejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: testAdminEmail, Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password", decode[map[string]any](t, rec)["error"])

	rec = env.request(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: "nobody@example.com", Password: "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Contains(t, body.Fields, "email")
	assert.Contains(t, body.Fields, "password")
}

func TestLogin_EmailIsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "  ADMIN@Sitecast.Local ", testAdminPassword)

	rec := env.request(t, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[models.Profile](t, rec)
	assert.Equal(t, app.AdminUserID, profile.UserID)
	assert.Equal(t, testAdminEmail, profile.Email)
	assert.NotContains(t, rec.Body.String(), "password_hash")
}

// --- sites ---

func TestSites_CRUD(t *testing.T) {
	env := newTestEnv(t)

	solar := env.createSite(t, "  Sunny Ridge ", "solar", 35.1, -117.2, "12.500")
	assert.Equal(t, "Sunny Ridge", solar.Name)
	require.NotNil(t, solar.CapacityMW)
	assert.Equal(t, 12.5, solar.CapacityMW.Float())
	env.createSite(t, "Gusty Point", "wind", 41.0, -70.5, nil)

	rec := env.do(t, http.MethodGet, "/api/sites", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[models.Page[models.Site]](t, rec)
	assert.Equal(t, 2, page.Count)
	assert.Equal(t, "Gusty Point", page.Results[0].Name)
	assert.Nil(t, page.Results[0].CapacityMW)

	rec = env.do(t, http.MethodGet, "/api/sites?site_type=wind", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[models.Page[models.Site]](t, rec).Count)

	rec = env.do(t, http.MethodPatch, fmt.Sprintf("/api/sites/%d", solar.ID), map[string]any{"name": "Sunny Ridge II"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patched := decode[models.Site](t, rec)
	assert.Equal(t, "Sunny Ridge II", patched.Name)
	require.NotNil(t, patched.CapacityMW, "partial update keeps capacity")

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/sites/%d", solar.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/sites/%d", solar.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/sites/%d", solar.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decode[map[string]any](t, rec)["code"])

	rec = env.do(t, http.MethodGet, "/api/sites/abc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSites_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/sites?site_type=nuclear", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "Invalid site_type parameter", body["error"])
	assert.Equal(t, []any{"solar", "wind", "hydro"}, body["valid_types"])

	rec = env.do(t, http.MethodPost, "/api/sites", map[string]any{"name": "X", "site_type": "geothermal", "latitude": 95, "longitude": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	verr := decode[ErrorResponse](t, rec)
	assert.Equal(t, CodeValidation, verr.Code)
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "site_type")
	assert.Contains(t, verr.Fields, "latitude")
	assert.NotContains(t, verr.Fields, "longitude")

	rec = env.request(t, http.MethodPost, "/api/sites", env.token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSites_ProximityConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.createSite(t, "Alpha", "hydro", 10.0, 20.0, 5)

	rec := env.do(t, http.MethodPost, "/api/sites", map[string]any{"name": "Beta", "site_type": "hydro", "latitude": 10.0, "longitude": 20.0})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Duplicate coordinates", decode[map[string]any](t, rec)["error"])

	rec = env.do(t, http.MethodPost, "/api/sites", map[string]any{"name": "Gamma", "site_type": "hydro", "latitude": 10.00005, "longitude": 20.0})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, CodeConflict, body["code"])
	conflicting, ok := body["conflicting_sites"].([]any)
	require.True(t, ok, rec.Body.String())
	require.Len(t, conflicting, 1)
	assert.Equal(t, "Alpha", conflicting[0].(map[string]any)["name"])
}

// --- portfolios ---

func TestPortfolios_Membership(t *testing.T) {
	env := newTestEnv(t)
	a := env.createSite(t, "Alpha", "solar", 1, 1, 10)
	b := env.createSite(t, "Bravo", "wind", 2, 2, 4)

	rec := env.do(t, http.MethodPost, "/api/portfolios", map[string]any{"name": "West", "site_ids": []int64{a.ID}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[models.Portfolio](t, rec)
	assert.Equal(t, 1, p.SiteCount)
	assert.Equal(t, 10.0, p.TotalCapacity.Float())

	path := fmt.Sprintf("/api/portfolios/%d", p.ID)

	rec = env.do(t, http.MethodPost, path+"/add_site", models.SiteRef{SiteID: b.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[models.Portfolio](t, rec).SiteCount)

	rec = env.do(t, http.MethodPost, path+"/add_site", models.SiteRef{SiteID: b.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, path+"/add_site", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, path+"/add_site", models.SiteRef{SiteID: 9999})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, path+"/sites", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sites := decode[[]models.Site](t, rec)
	require.Len(t, sites, 2)
	assert.Equal(t, "Alpha", sites[0].Name)

	// A site inside a portfolio cannot be deleted
	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/sites/%d", a.ID), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, []any{"West"}, decode[map[string]any](t, rec)["portfolios"])

	rec = env.do(t, http.MethodDelete, path+"/remove_site", models.SiteRef{SiteID: a.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[models.Portfolio](t, rec).SiteCount)

	rec = env.do(t, http.MethodDelete, path+"/remove_site", models.SiteRef{SiteID: a.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, path, map[string]any{"description": "Western assets"})
	require.Equal(t, http.StatusOK, rec.Code)
	patched := decode[models.Portfolio](t, rec)
	assert.Equal(t, "West", patched.Name)
	assert.Equal(t, 1, patched.SiteCount)

	rec = env.do(t, http.MethodGet, "/api/portfolios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[models.Page[models.Portfolio]](t, rec).Count)

	rec = env.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPortfolios_RejectUnknownSiteIDs(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/portfolios", map[string]any{"name": "East", "site_ids": []int64{41, 42}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[ErrorResponse](t, rec)
	require.Contains(t, body.Fields, "site_ids")
	assert.Contains(t, body.Fields["site_ids"][0], "41, 42")
}

// --- forecasts ---

func waitForStatus(t *testing.T, env *testEnv, jobID string, want models.JobStatus) models.JobStatusResponse {
	t.Helper()
	var status models.JobStatusResponse
	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/api/forecasts/jobs/"+jobID+"/status", nil)
		if rec.Code != http.StatusOK {
			return false
		}
		status = decode[models.JobStatusResponse](t, rec)
		return status.Status == want
	}, 10*time.Second, 20*time.Millisecond)
	return status
}

func TestForecast_TriggerToResults(t *testing.T) {
	env := newTestEnv(t)
	a := env.createSite(t, "Alpha", "solar", 1, 1, 10)
	b := env.createSite(t, "Bravo", "wind", 2, 2, nil)

	rec := env.do(t, http.MethodPost, "/api/portfolios", map[string]any{"name": "Mixed", "site_ids": []int64{a.ID, b.ID}})
	require.Equal(t, http.StatusCreated, rec.Code)
	p := decode[models.Portfolio](t, rec)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/forecasts/portfolio/%d/trigger", p.ID), models.TriggerRequest{ForecastHorizon: intPtr(6)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	trig := decode[models.TriggerResponse](t, rec)
	assert.Equal(t, models.JobStatusPending, trig.Status)
	assert.Equal(t, 6, trig.ForecastHorizon)
	assert.Equal(t, "Mixed", trig.PortfolioName)

	status := waitForStatus(t, env, trig.JobID, models.JobStatusCompleted)
	assert.True(t, status.IsComplete)
	assert.True(t, status.IsSuccessful)
	require.NotNil(t, status.ResultCount)
	assert.Equal(t, 12, *status.ResultCount)
	require.NotNil(t, status.ResultsComplete)
	assert.True(t, *status.ResultsComplete)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/forecasts/portfolio/%d/results", p.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	results := decode[models.PortfolioResults](t, rec)
	assert.Equal(t, trig.JobID, results.JobID)
	require.Len(t, results.SiteForecasts, 2)
	assert.Equal(t, "Alpha", results.SiteForecasts[0].SiteName)
	assert.Len(t, results.SiteForecasts[0].Forecasts, 6)
	assert.Len(t, results.PortfolioTotals, 6)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/forecasts/site/%d/results?job_id=%s", b.ID, trig.JobID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	siteRes := decode[models.SiteResults](t, rec)
	assert.Equal(t, 6, siteRes.ForecastCount)
	assert.Nil(t, siteRes.CapacityMW)

	// Completed jobs cannot be cancelled
	rec = env.do(t, http.MethodPost, "/api/forecasts/jobs/"+trig.JobID+"/cancel", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Cannot cancel job", decode[map[string]any](t, rec)["error"])

	// Sites with results cannot be deleted once released from the portfolio
	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/portfolios/%d/remove_site", p.ID), models.SiteRef{SiteID: b.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/sites/%d", b.ID), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.EqualValues(t, 6, decode[map[string]any](t, rec)["forecast_results_count"])
}

func TestForecast_TriggerValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/forecasts/portfolio/404/trigger", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/portfolios", map[string]any{"name": "Empty"})
	require.Equal(t, http.StatusCreated, rec.Code)
	p := decode[models.Portfolio](t, rec)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/forecasts/portfolio/%d/trigger", p.ID), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Empty portfolio", decode[map[string]any](t, rec)["error"])

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/forecasts/portfolio/%d/trigger", p.ID), models.TriggerRequest{ForecastHorizon: intPtr(0)})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid forecast horizon", decode[map[string]any](t, rec)["error"])

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/forecasts/portfolio/%d/results", p.ID), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.HasPrefix(decode[map[string]any](t, rec)["details"].(string), "Completed forecast jobs"))

	rec = env.do(t, http.MethodGet, "/api/forecasts/jobs/00000000-0000-0000-0000-000000000000/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func intPtr(v int) *int { return &v }
