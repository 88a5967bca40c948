package forecast

import (
	"log"
	"time"

	"hydrogauge/internal/metrics"
	"hydrogauge/internal/models"
)

// BatchStore is the store surface the batch job needs: site enumeration,
// history windows, and the snapshot upsert.
type BatchStore interface {
	Store
	GetDistinctSiteIDs() ([]string, error)
	UpsertForecastSnapshot(*models.ForecastSnapshot) error
}

// BatchJob recomputes the forecast snapshot for every site that has
// submissions. Invocations are expected to be serialized by the external
// scheduler.
type BatchJob struct {
	store  BatchStore
	engine *Engine
}

// NewBatchJob creates a batch job over the given store and config
func NewBatchJob(store BatchStore, cfg Config) *BatchJob {
	return &BatchJob{
		store:  store,
		engine: NewEngine(store, cfg),
	}
}

// Run processes every known site sequentially. Each site is isolated:
// a failed computation or upsert is logged and counted, and the loop
// continues, so one bad site cannot block fresh snapshots for the rest.
// Returns the number of sites that failed.
func (j *BatchJob) Run() (int, error) {
	siteIDs, err := j.store.GetDistinctSiteIDs()
	if err != nil {
		return 0, err
	}

	failures := 0
	for _, siteID := range siteIDs {
		if err := j.runSite(siteID); err != nil {
			log.Printf("forecast batch: site %s failed: %v", siteID, err)
			metrics.ForecastBatchSiteFailuresTotal.Inc()
			failures++
		}
	}

	metrics.ForecastBatchRunsTotal.Inc()
	log.Printf("forecast batch complete: %d sites, %d failures", len(siteIDs), failures)
	return failures, nil
}

func (j *BatchJob) runSite(siteID string) error {
	points, dataPoints, err := j.engine.ForSite(siteID)
	if err != nil {
		return err
	}
	// Sites with zero submissions are skipped, no snapshot written.
	if dataPoints == 0 {
		return nil
	}

	return j.store.UpsertForecastSnapshot(&models.ForecastSnapshot{
		SiteID:    siteID,
		Points:    points,
		CreatedAt: time.Now().UTC(),
	})
}
