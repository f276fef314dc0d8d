package forecast

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/bobmcallan/sitecast/internal/models"
)

// DefaultCapacityMW is assumed for sites without a recorded capacity.
const DefaultCapacityMW = 10.0

// confidenceSpread is the relative half-width of the confidence interval.
const confidenceSpread = 0.2

// Model produces hourly generation predictions for a site.
type Model interface {
	Name() string
	// Predict returns horizon hourly points starting at start.
	Predict(site models.Site, horizon int, start time.Time) ([]models.ForecastPoint, error)
}

// Registry maps site types to forecasting models, falling back to a default.
type Registry struct {
	mu       sync.RWMutex
	models   map[string]Model
	fallback Model
}

// NewRegistry returns a registry with a RandomModel for solar and wind and
// as the default. A zero seed derives the seed from the clock.
func NewRegistry(seed int64) *Registry {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := &Registry{models: make(map[string]Model)}
	r.fallback = NewRandomModel(seed)
	r.Register(models.SiteTypeSolar, NewRandomModel(seed+1))
	r.Register(models.SiteTypeWind, NewRandomModel(seed+2))
	return r
}

// Register binds a model to a site type.
func (r *Registry) Register(siteType models.SiteType, m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[strings.ToLower(string(siteType))] = m
}

// Unregister removes the model for siteType and reports whether one was bound.
func (r *Registry) Unregister(siteType models.SiteType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(string(siteType))
	if _, ok := r.models[key]; !ok {
		return false
	}
	delete(r.models, key)
	return true
}

// SetDefault replaces the fallback model.
func (r *Registry) SetDefault(m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = m
}

// Model returns the model for siteType or the default.
func (r *Registry) Model(siteType models.SiteType) Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.models[strings.ToLower(string(siteType))]; ok {
		return m
	}
	return r.fallback
}

// SiteTypes lists the site types with a dedicated model.
func (r *Registry) SiteTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.models))
	for t := range r.models {
		types = append(types, t)
	}
	return types
}

// RandomModel generates plausible random forecasts with a diurnal solar
// curve and a winter uplift for wind.
type RandomModel struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomModel returns a RandomModel seeded with seed.
func NewRandomModel(seed int64) *RandomModel {
	return &RandomModel{rng: rand.New(rand.NewSource(seed))}
}

func (m *RandomModel) Name() string {
	return "Random Generator v1.0"
}

func (m *RandomModel) Predict(site models.Site, horizon int, start time.Time) ([]models.ForecastPoint, error) {
	if horizon <= 0 {
		return nil, errors.New("forecast horizon must be positive")
	}
	capacity, ok := site.Capacity()
	if !ok || capacity <= 0 {
		capacity = DefaultCapacityMW
	}
	start = start.UTC().Truncate(time.Hour)

	m.mu.Lock()
	defer m.mu.Unlock()

	points := make([]models.ForecastPoint, 0, horizon)
	for h := 0; h < horizon; h++ {
		at := start.Add(time.Duration(h) * time.Hour)

		var predicted float64
		switch site.SiteType {
		case models.SiteTypeSolar:
			predicted = m.solar(capacity, at)
		case models.SiteTypeWind:
			predicted = m.wind(capacity, at)
		default:
			predicted = models.Round3(capacity * 0.20 * m.rng.Float64())
		}

		spread := predicted * confidenceSpread
		points = append(points, models.ForecastPoint{
			Datetime:                at,
			PredictedGenerationMWh:  models.Number(predicted),
			ConfidenceIntervalLower: models.NumberPtr(models.Round3(math.Max(0, predicted-spread))),
			ConfidenceIntervalUpper: models.NumberPtr(models.Round3(predicted + spread)),
		})
	}
	return points, nil
}

// solar follows a sine curve between 06:00 and 18:00 at a 25% capacity factor, +/-30%.
func (m *RandomModel) solar(capacity float64, at time.Time) float64 {
	hour := at.Hour()
	if hour < 6 || hour > 18 {
		return 0
	}
	pattern := math.Sin(math.Pi * float64(hour-6) / 12)
	factor := 1 + (m.rng.Float64()-0.5)*0.6
	return models.Round3(math.Max(0, capacity*pattern*0.25*factor))
}

// wind runs at a 30% capacity factor, +/-50%, with a 1.2x uplift from November to March.
func (m *RandomModel) wind(capacity float64, at time.Time) float64 {
	factor := 1 + (m.rng.Float64() - 0.5)
	seasonal := 1.0
	switch at.Month() {
	case time.November, time.December, time.January, time.February, time.March:
		seasonal = 1.2
	}
	return models.Round3(math.Max(0, capacity*0.30*factor*seasonal))
}
