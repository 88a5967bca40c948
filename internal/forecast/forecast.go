// Package forecast derives flat-level water forecasts from stored
// submissions using single exponential smoothing.
package forecast

import (
	"fmt"

	"hydrogauge/internal/models"
)

// windowLimit caps the ascending history window fed into smoothing
const windowLimit = 100

// Config holds the smoothing parameters, fixed per process
type Config struct {
	Alpha   float64 // smoothing factor in (0,1]
	Horizon int     // number of projected points
}

// Smooth applies single exponential smoothing over levels, left to right,
// seeded with the first element. Returns the final smoothed value, the
// current best flat-level estimate. An empty input returns 0.
func Smooth(levels []float64, alpha float64) float64 {
	if len(levels) == 0 {
		return 0
	}
	s := levels[0]
	for _, level := range levels[1:] {
		s = alpha*level + (1-alpha)*s
	}
	return s
}

// Project produces a flat-line forecast of horizon points: t = 0..horizon-1,
// y = smoothed for every point. The model has no trend or seasonality term;
// the constant projection is the intended behavior.
func Project(smoothed float64, horizon int) []models.ForecastPoint {
	points := make([]models.ForecastPoint, horizon)
	for i := range points {
		points[i] = models.ForecastPoint{T: i, Y: smoothed}
	}
	return points
}

// Store is the submission history the engine reads from
type Store interface {
	GetSubmissionsBySite(siteID string, ascending bool, limit int) ([]models.Submission, error)
}

// Engine computes on-demand forecasts for a site
type Engine struct {
	store Store
	cfg   Config
}

// NewEngine creates a forecast engine with explicit configuration
func NewEngine(store Store, cfg Config) *Engine {
	return &Engine{store: store, cfg: cfg}
}

// ForSite fetches the earliest-first window for a site and returns the
// projected points plus the number of readings used. A site with no data
// returns an empty forecast and zero data points, not an error.
func (e *Engine) ForSite(siteID string) ([]models.ForecastPoint, int, error) {
	submissions, err := e.store.GetSubmissionsBySite(siteID, true, windowLimit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch window for site %s: %w", siteID, err)
	}
	if len(submissions) == 0 {
		return []models.ForecastPoint{}, 0, nil
	}

	levels := make([]float64, len(submissions))
	for i, s := range submissions {
		levels[i] = s.WaterLevelMeters
	}

	smoothed := Smooth(levels, e.cfg.Alpha)
	return Project(smoothed, e.cfg.Horizon), len(levels), nil
}
