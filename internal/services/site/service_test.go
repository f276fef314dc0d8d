package site

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/interfaces"
	"github.com/bobmcallan/sitecast/internal/models"
	"github.com/bobmcallan/sitecast/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, interfaces.StorageManager) {
	t.Helper()
	logger := common.NewSilentLogger()
	mgr, err := sqlite.Open(logger, filepath.Join(t.TempDir(), "site.db"))
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return NewService(mgr, logger), mgr
}

func strPtr(s string) *string { return &s }

func typePtr(t models.SiteType) *models.SiteType { return &t }

func siteInput(name string, siteType models.SiteType, lat, lon float64) models.SiteInput {
	return models.SiteInput{
		Name:      strPtr(name),
		SiteType:  typePtr(siteType),
		Latitude:  models.NumberPtr(lat),
		Longitude: models.NumberPtr(lon),
	}
}

func TestCreateSite_Valid(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	in := siteInput("  Solar Farm  ", models.SiteTypeSolar, -33.8688, 151.2093)
	in.CapacityMW = models.NumberPtr(50)

	site, err := svc.CreateSite(ctx, in)
	require.NoError(t, err)
	assert.NotZero(t, site.ID)
	assert.Equal(t, "Solar Farm", site.Name)
	c, ok := site.Capacity()
	assert.True(t, ok)
	assert.Equal(t, 50.0, c)
}

func TestCreateSite_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input models.SiteInput
		field string
	}{
		{"short name", siteInput("A", models.SiteTypeWind, 0, 0), "name"},
		{"bad type", siteInput("Plant", models.SiteType("nuclear"), 0, 0), "site_type"},
		{"latitude range", siteInput("Plant", models.SiteTypeWind, 91, 0), "latitude"},
		{"longitude range", siteInput("Plant", models.SiteTypeWind, 0, -181), "longitude"},
		{"missing name", models.SiteInput{SiteType: typePtr(models.SiteTypeHydro), Latitude: models.NumberPtr(1), Longitude: models.NumberPtr(1)}, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSite(ctx, tt.input)
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	in := siteInput("Plant", models.SiteTypeWind, 0, 0)
	in.CapacityMW = models.NumberPtr(0)
	_, err := svc.CreateSite(ctx, in)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "capacity_mw")
}

func TestCreateSite_Proximity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateSite(ctx, siteInput("Origin", models.SiteTypeWind, 10, 10))
	require.NoError(t, err)

	_, err = svc.CreateSite(ctx, siteInput("Close", models.SiteTypeWind, 10.00005, 10.00005))
	var conflict *models.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Site too close to existing site", conflict.Message)
	sites, ok := conflict.Data["conflicting_sites"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, sites, 1)
	assert.Equal(t, first.ID, sites[0]["id"])

	_, err = svc.CreateSite(ctx, siteInput("Same", models.SiteTypeSolar, 10, 10))
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Duplicate coordinates", conflict.Message)

	_, err = svc.CreateSite(ctx, siteInput("Far", models.SiteTypeSolar, 10.001, 10))
	assert.NoError(t, err)
}

func TestUpdateSite_PartialAndFull(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	in := siteInput("Hydro One", models.SiteTypeHydro, 45, 7)
	in.CapacityMW = models.NumberPtr(20)
	site, err := svc.CreateSite(ctx, in)
	require.NoError(t, err)

	updated, err := svc.UpdateSite(ctx, site.ID, models.SiteInput{Name: strPtr("Hydro Prime")}, true)
	require.NoError(t, err)
	assert.Equal(t, "Hydro Prime", updated.Name)
	_, ok := updated.Capacity()
	assert.True(t, ok, "partial update keeps capacity")

	updated, err = svc.UpdateSite(ctx, site.ID, siteInput("Hydro Prime", models.SiteTypeHydro, 45, 7), false)
	require.NoError(t, err)
	_, ok = updated.Capacity()
	assert.False(t, ok, "full update without capacity clears it")

	_, err = svc.UpdateSite(ctx, site.ID, models.SiteInput{Name: strPtr("X")}, true)
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.UpdateSite(ctx, 999, models.SiteInput{Name: strPtr("Nope")}, true)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateSite_ProximityExcludesSelf(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateSite(ctx, siteInput("Alpha", models.SiteTypeWind, 1, 1))
	require.NoError(t, err)
	_, err = svc.CreateSite(ctx, siteInput("Beta", models.SiteTypeWind, 2, 2))
	require.NoError(t, err)

	_, err = svc.UpdateSite(ctx, a.ID, models.SiteInput{Latitude: models.NumberPtr(1.00001)}, true)
	assert.NoError(t, err)

	_, err = svc.UpdateSite(ctx, a.ID, models.SiteInput{Latitude: models.NumberPtr(2), Longitude: models.NumberPtr(2)}, true)
	var conflict *models.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestListSites_TypeFilter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateSite(ctx, siteInput("Sun", models.SiteTypeSolar, 1, 1))
	require.NoError(t, err)
	_, err = svc.CreateSite(ctx, siteInput("Gust", models.SiteTypeWind, 2, 2))
	require.NoError(t, err)

	solar, err := svc.ListSites(ctx, "solar")
	require.NoError(t, err)
	require.Len(t, solar, 1)
	assert.Equal(t, "Sun", solar[0].Name)

	all, err := svc.ListSites(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.ListSites(ctx, "geothermal")
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"solar", "wind", "hydro"}, verr.Data["valid_types"])
}

func TestDeleteSite_Guards(t *testing.T) {
	svc, mgr := newTestService(t)
	ctx := context.Background()

	member, err := svc.CreateSite(ctx, siteInput("Member", models.SiteTypeSolar, 1, 1))
	require.NoError(t, err)
	forecasted, err := svc.CreateSite(ctx, siteInput("Forecasted", models.SiteTypeSolar, 2, 2))
	require.NoError(t, err)
	free, err := svc.CreateSite(ctx, siteInput("Free", models.SiteTypeSolar, 3, 3))
	require.NoError(t, err)

	p := &models.Portfolio{Name: "Holder"}
	require.NoError(t, mgr.PortfolioStore().Create(ctx, p))
	require.NoError(t, mgr.PortfolioStore().AddSite(ctx, p.ID, member.ID))

	require.NoError(t, mgr.ForecastStore().SaveResults(ctx, []models.ForecastResult{
		{JobID: "job-1", SiteID: forecasted.ID, ForecastDatetime: time.Now().Truncate(time.Hour), PredictedGenerationMWh: 1},
	}))

	err = svc.DeleteSite(ctx, member.ID)
	var conflict *models.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Cannot delete site", conflict.Message)
	assert.Equal(t, []string{"Holder"}, conflict.Data["portfolios"])

	err = svc.DeleteSite(ctx, forecasted.ID)
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 1, conflict.Data["forecast_results_count"])

	require.NoError(t, svc.DeleteSite(ctx, free.ID))
	assert.ErrorIs(t, svc.DeleteSite(ctx, free.ID), models.ErrNotFound)
}
