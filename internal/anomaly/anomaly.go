// Package anomaly flags water-level readings that deviate sharply from a
// site's recent history, using a trailing-window z-score.
package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"hydrogauge/internal/metrics"
	"hydrogauge/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Risk thresholds are fixed policy: |z| >= 3 is high, |z| >= 2 is med.
const (
	highRiskThreshold = 3.0
	medRiskThreshold  = 2.0
)

// Stats is the z-score summary for a window
type Stats struct {
	Z    float64
	Mean float64
	SD   float64
}

// ZScore computes the z-score of the chronologically last value against
// the whole window, using the population standard deviation. Fewer than 2
// values means insufficient data, which is "no anomaly": all zeros. A
// constant series (sd == 0) also yields z = 0. The z-score is rounded to
// 2 decimal places for reporting.
func ZScore(values []float64) Stats {
	if len(values) < 2 {
		return Stats{}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(sq / float64(len(values)))

	latest := values[len(values)-1]
	z := 0.0
	if sd != 0 {
		z = (latest - mean) / sd
	}

	return Stats{Z: math.Round(z*100) / 100, Mean: mean, SD: sd}
}

// Classify maps a z-score to a risk level
func Classify(z float64) string {
	absZ := math.Abs(z)
	if absZ >= highRiskThreshold {
		return "high"
	}
	if absZ >= medRiskThreshold {
		return "med"
	}
	return "low"
}

// Report is the result of an on-demand anomaly evaluation for a site
type Report struct {
	SiteID     string  `json:"siteId"`
	Z          float64 `json:"z"`
	Risk       string  `json:"risk"`
	Mean       float64 `json:"mean"`
	SD         float64 `json:"sd"`
	DataPoints int     `json:"dataPoints"`
}

// Store is the store surface the engine needs: history windows in and
// detections out.
type Store interface {
	GetSubmissionsBySite(siteID string, ascending bool, limit int) ([]models.Submission, error)
	StoreAnomaly(*models.Anomaly) error
}

// Engine evaluates sites for anomalies and persists qualifying detections
type Engine struct {
	store  Store
	window int
	events *redis.Client
	stream string
}

// NewEngine creates an anomaly engine. window is the trailing window size
// (>= 2). events may be nil, in which case detections are not published.
func NewEngine(store Store, window int, events *redis.Client, stream string) *Engine {
	return &Engine{
		store:  store,
		window: window,
		events: events,
		stream: stream,
	}
}

// Evaluate fetches the trailing window for a site, computes the z-score of
// the most recent reading, and classifies the risk. When risk is not low,
// one Anomaly record referencing the most recent submission is persisted.
// Repeated evaluations over an unchanged window persist repeated records;
// the write policy is at-least-once by design.
func (e *Engine) Evaluate(ctx context.Context, siteID string) (Report, error) {
	docs, err := e.store.GetSubmissionsBySite(siteID, false, e.window)
	if err != nil {
		return Report{}, fmt.Errorf("failed to fetch window for site %s: %w", siteID, err)
	}

	// No data yet is a valid terminal case, reported as low risk.
	if len(docs) == 0 {
		return Report{SiteID: siteID, Risk: "low"}, nil
	}

	// The window arrives most-recent-first; reverse to chronological order
	// before computing statistics.
	values := make([]float64, len(docs))
	for i, d := range docs {
		values[len(docs)-1-i] = d.WaterLevelMeters
	}

	stats := ZScore(values)
	risk := Classify(stats.Z)

	report := Report{
		SiteID:     siteID,
		Z:          stats.Z,
		Risk:       risk,
		Mean:       stats.Mean,
		SD:         stats.SD,
		DataPoints: len(values),
	}

	if risk == "low" {
		return report, nil
	}

	record := &models.Anomaly{
		ID:           "anomaly_" + uuid.NewString(),
		SiteID:       siteID,
		SubmissionID: docs[0].ID,
		ZScore:       stats.Z,
		Risk:         risk,
		DetectedAt:   time.Now().UTC(),
	}
	if err := e.store.StoreAnomaly(record); err != nil {
		return Report{}, fmt.Errorf("failed to store anomaly for site %s: %w", siteID, err)
	}
	metrics.RecordAnomaly(risk)
	e.publish(ctx, record)

	return report, nil
}

// publish pushes the detection onto the anomaly event stream for
// downstream alert consumers. Best effort: a stream failure is logged and
// never fails the evaluation.
func (e *Engine) publish(ctx context.Context, record *models.Anomaly) {
	if e.events == nil {
		return
	}

	data, err := json.Marshal(record)
	if err != nil {
		log.Printf("failed to marshal anomaly event: %v", err)
		return
	}

	err = e.events.XAdd(ctx, &redis.XAddArgs{
		Stream: e.stream,
		Values: map[string]interface{}{"data": string(data)},
	}).Err()
	if err != nil {
		log.Printf("failed to publish anomaly event: %v", err)
		return
	}

	// Trim the stream to prevent unbounded growth (keep last 500 messages)
	e.events.XTrimMaxLen(ctx, e.stream, 500)
}
