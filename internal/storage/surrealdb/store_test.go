package surrealdb

import (
	"context"
	"testing"
	"time"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	addr := startSurrealDB(t)

	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = "surrealdb"
	cfg.Storage.Address = addr
	cfg.Storage.Namespace = "sitecast_test"
	cfg.Storage.Database = testDatabase(t)
	cfg.Storage.Username = "root"
	cfg.Storage.Password = "root"

	mgr, err := NewManager(testLogger(), cfg)
	require.NoError(t, err)
	defer mgr.Close()

	assert.Equal(t, "surrealdb", mgr.Backend())
	assert.NotNil(t, mgr.SiteStore())
	assert.NotNil(t, mgr.PortfolioStore())
	assert.NotNil(t, mgr.ForecastStore())
	assert.NotNil(t, mgr.UserStore())
}

func TestSiteStore_CRUD(t *testing.T) {
	m := testManager(t)
	store := m.SiteStore()
	ctx := context.Background()

	site := &models.Site{Name: "Ridge", SiteType: models.SiteTypeWind, Latitude: 51.5, Longitude: -0.12, CapacityMW: models.NumberPtr(12.5)}
	require.NoError(t, store.Create(ctx, site))
	assert.Equal(t, int64(1), site.ID)

	other := &models.Site{Name: "Alpine", SiteType: models.SiteTypeHydro, Latitude: 46.5, Longitude: 8.1}
	require.NoError(t, store.Create(ctx, other))
	assert.Equal(t, int64(2), other.ID)

	got, err := store.Get(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ridge", got.Name)
	c, ok := got.Capacity()
	require.True(t, ok)
	assert.InDelta(t, 12.5, c, 1e-9)

	all, err := store.List(ctx, models.SiteFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Alpine", all[0].Name)

	hydro, err := store.List(ctx, models.SiteFilter{SiteType: models.SiteTypeHydro})
	require.NoError(t, err)
	require.Len(t, hydro, 1)
	_, ok = hydro[0].Capacity()
	assert.False(t, ok)

	got.Name = "Ridge North"
	require.NoError(t, store.Update(ctx, got))
	got, err = store.Get(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ridge North", got.Name)

	near, err := store.FindNear(ctx, 51.50005, -0.12, 0.0001, 0)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, site.ID, near[0].ID)

	require.NoError(t, store.Delete(ctx, site.ID))
	_, err = store.Get(ctx, site.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, site.ID), models.ErrNotFound)
	assert.ErrorIs(t, store.Update(ctx, &models.Site{ID: 99, Name: "x"}), models.ErrNotFound)
}

func TestPortfolioStore_Membership(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	store := m.PortfolioStore()

	p := &models.Portfolio{Name: "Coastal"}
	require.NoError(t, store.Create(ctx, p))
	require.NoError(t, store.SetSites(ctx, p.ID, []int64{3, 1}))

	ids, err := store.SiteIDs(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)

	require.NoError(t, store.AddSite(ctx, p.ID, 2))
	require.NoError(t, store.RemoveSite(ctx, p.ID, 1))
	ids, err = store.SiteIDs(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, ids)

	owners, err := store.PortfoliosForSite(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{p.ID}, owners)

	require.NoError(t, store.Delete(ctx, p.ID))
	owners, err = store.PortfoliosForSite(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, owners)
	assert.ErrorIs(t, store.Delete(ctx, p.ID), models.ErrNotFound)
}

func TestForecastStore_JobsAndResults(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	p := &models.Portfolio{Name: "Inland"}
	require.NoError(t, m.PortfolioStore().Create(ctx, p))

	store := m.ForecastStore()
	job := &models.ForecastJob{PortfolioID: p.ID, ForecastHorizon: 2}
	require.NoError(t, store.CreateJob(ctx, job))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, "Inland", got.PortfolioName)

	ok, err := store.TransitionJob(ctx, job.ID, []models.JobStatus{models.JobStatusPending}, models.JobStatusRunning, "")
	require.NoError(t, err)
	assert.True(t, ok)

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveResults(ctx, []models.ForecastResult{
		{JobID: job.ID, SiteID: 5, ForecastDatetime: at, PredictedGenerationMWh: 1.5},
		{JobID: job.ID, SiteID: 5, ForecastDatetime: at.Add(time.Hour), PredictedGenerationMWh: 2.5},
	}))

	ok, err = store.TransitionJob(ctx, job.ID, []models.JobStatus{models.JobStatusRunning}, models.JobStatusCompleted, "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.TransitionJob(ctx, job.ID, []models.JobStatus{models.JobStatusPending, models.JobStatusRunning}, models.JobStatusFailed, models.CancelledMessage)
	require.NoError(t, err)
	assert.False(t, ok)

	count, err := store.CountResults(ctx, models.ResultFilter{JobID: job.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := store.ListResults(ctx, models.ResultFilter{JobID: job.ID, SiteID: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].ForecastDatetime.Equal(at))

	latest, err := store.LatestCompletedJob(ctx, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, job.ID, latest.ID)

	has, err := store.SiteHasResults(ctx, 5)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, store.DeleteJob(ctx, job.ID))
	_, err = store.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	has, err = store.SiteHasResults(ctx, 5)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestUserStore(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	store := m.UserStore()

	require.NoError(t, store.SaveUser(ctx, &models.User{UserID: "admin", Email: "Admin@Sitecast.local", PasswordHash: "h"}))

	u, err := store.GetUserByEmail(ctx, "admin@sitecast.local")
	require.NoError(t, err)
	assert.Equal(t, "admin", u.UserID)

	u, err = store.GetUser(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin@sitecast.local", u.Email)

	_, err = store.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
