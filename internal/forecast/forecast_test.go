package forecast

import (
	"math"
	"testing"

	"hydrogauge/internal/models"
)

func TestSmooth(t *testing.T) {
	tests := []struct {
		name   string
		levels []float64
		alpha  float64
		want   float64
	}{
		{
			name:   "single value is its own estimate",
			levels: []float64{10},
			alpha:  0.3,
			want:   10,
		},
		{
			name:   "single value independent of alpha",
			levels: []float64{10},
			alpha:  1.0,
			want:   10,
		},
		{
			name:   "constant series",
			levels: []float64{10, 10, 10},
			alpha:  0.7,
			want:   10,
		},
		{
			name:   "alpha 1.0 tracks the latest value",
			levels: []float64{0, 10},
			alpha:  1.0,
			want:   10,
		},
		{
			name:   "alpha 0.0 keeps the seed",
			levels: []float64{0, 10},
			alpha:  0.0,
			want:   0,
		},
		{
			name:   "empty series",
			levels: []float64{},
			alpha:  0.3,
			want:   0,
		},
		{
			name:   "default alpha blend",
			levels: []float64{2.0, 3.0},
			alpha:  0.3,
			want:   2.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Smooth(tt.levels, tt.alpha)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Smooth(%v, %v) = %v, want %v", tt.levels, tt.alpha, got, tt.want)
			}
		})
	}
}

func TestProject(t *testing.T) {
	points := Project(5, 3)

	want := []models.ForecastPoint{{T: 0, Y: 5}, {T: 1, Y: 5}, {T: 2, Y: 5}}
	if len(points) != len(want) {
		t.Fatalf("Project(5, 3) returned %d points, want %d", len(points), len(want))
	}
	for i := range want {
		if points[i] != want[i] {
			t.Errorf("Project(5, 3)[%d] = %+v, want %+v", i, points[i], want[i])
		}
	}
}

type fakeStore struct {
	submissions map[string][]models.Submission
	snapshots   map[string]*models.ForecastSnapshot
	failSites   map[string]bool
	asc         []bool
	limits      []int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		submissions: make(map[string][]models.Submission),
		snapshots:   make(map[string]*models.ForecastSnapshot),
		failSites:   make(map[string]bool),
	}
}

type failErr struct{}

func (failErr) Error() string { return "induced failure" }

func (f *fakeStore) GetSubmissionsBySite(siteID string, ascending bool, limit int) ([]models.Submission, error) {
	f.asc = append(f.asc, ascending)
	f.limits = append(f.limits, limit)
	if f.failSites[siteID] {
		return nil, failErr{}
	}
	return f.submissions[siteID], nil
}

func (f *fakeStore) GetDistinctSiteIDs() ([]string, error) {
	var ids []string
	for id := range f.submissions {
		ids = append(ids, id)
	}
	for id := range f.failSites {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) UpsertForecastSnapshot(s *models.ForecastSnapshot) error {
	f.snapshots[s.SiteID] = s
	return nil
}

func levelsToSubmissions(levels []float64) []models.Submission {
	subs := make([]models.Submission, len(levels))
	for i, l := range levels {
		subs[i] = models.Submission{WaterLevelMeters: l}
	}
	return subs
}

func TestEngineForSite(t *testing.T) {
	store := newFakeStore()
	store.submissions["site_a"] = levelsToSubmissions([]float64{10, 10, 10})

	engine := NewEngine(store, Config{Alpha: 0.3, Horizon: 4})

	points, dataPoints, err := engine.ForSite("site_a")
	if err != nil {
		t.Fatalf("ForSite() error = %v", err)
	}
	if dataPoints != 3 {
		t.Errorf("ForSite() dataPoints = %d, want 3", dataPoints)
	}
	if len(points) != 4 {
		t.Fatalf("ForSite() returned %d points, want horizon 4", len(points))
	}
	for i, p := range points {
		if p.T != i || p.Y != 10 {
			t.Errorf("point %d = %+v, want {T:%d Y:10}", i, p, i)
		}
	}

	// The forecast window is earliest-first and capped at 100
	if len(store.asc) != 1 || !store.asc[0] {
		t.Error("ForSite() should fetch the window in ascending order")
	}
	if store.limits[0] != 100 {
		t.Errorf("ForSite() window limit = %d, want 100", store.limits[0])
	}
}

func TestEngineForSite_NoData(t *testing.T) {
	engine := NewEngine(newFakeStore(), Config{Alpha: 0.3, Horizon: 12})

	points, dataPoints, err := engine.ForSite("empty_site")
	if err != nil {
		t.Fatalf("ForSite() error = %v", err)
	}
	if dataPoints != 0 {
		t.Errorf("ForSite() dataPoints = %d, want 0", dataPoints)
	}
	if len(points) != 0 {
		t.Errorf("ForSite() returned %d points for an empty site, want 0", len(points))
	}
}

func TestBatchJobRun(t *testing.T) {
	store := newFakeStore()
	store.submissions["site_a"] = levelsToSubmissions([]float64{1, 2, 3})
	store.submissions["site_b"] = levelsToSubmissions([]float64{5})

	job := NewBatchJob(store, Config{Alpha: 0.5, Horizon: 2})

	failures, err := job.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if failures != 0 {
		t.Errorf("Run() failures = %d, want 0", failures)
	}

	if len(store.snapshots) != 2 {
		t.Fatalf("Run() wrote %d snapshots, want 2", len(store.snapshots))
	}
	for _, siteID := range []string{"site_a", "site_b"} {
		snap := store.snapshots[siteID]
		if snap == nil {
			t.Fatalf("no snapshot written for %s", siteID)
		}
		if len(snap.Points) != 2 {
			t.Errorf("snapshot for %s has %d points, want horizon 2", siteID, len(snap.Points))
		}
	}
}

func TestBatchJobRun_ContinuesOnSiteFailure(t *testing.T) {
	store := newFakeStore()
	store.failSites["bad_site"] = true
	store.submissions["good_site"] = levelsToSubmissions([]float64{4, 4, 4})

	job := NewBatchJob(store, Config{Alpha: 0.3, Horizon: 3})

	failures, err := job.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if failures != 1 {
		t.Errorf("Run() failures = %d, want 1", failures)
	}

	// The failing site must not block the healthy one
	if store.snapshots["good_site"] == nil {
		t.Error("snapshot for healthy site missing after another site failed")
	}
	if store.snapshots["bad_site"] != nil {
		t.Error("snapshot written for failing site")
	}
}

func TestBatchJobRun_SkipsEmptySites(t *testing.T) {
	store := newFakeStore()
	store.submissions["empty_site"] = nil

	job := NewBatchJob(store, Config{Alpha: 0.3, Horizon: 3})

	failures, err := job.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if failures != 0 {
		t.Errorf("Run() failures = %d, want 0", failures)
	}
	if len(store.snapshots) != 0 {
		t.Errorf("Run() wrote %d snapshots for empty sites, want 0", len(store.snapshots))
	}
}
