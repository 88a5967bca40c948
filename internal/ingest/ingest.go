// Package ingest implements the authenticated write path for device
// submissions: signature check, field validation, idempotent insert.
package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"hydrogauge/internal/database"
	"hydrogauge/internal/metrics"
	"hydrogauge/internal/models"
	"hydrogauge/internal/signature"
)

// ErrUnauthorized is returned when the payload signature does not verify.
// Nothing is persisted in that case.
var ErrUnauthorized = errors.New("invalid signature")

// ValidationError reports the required fields that were missing or
// malformed in a payload.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "Missing required fields: " + strings.Join(e.Fields, ", ")
}

// StorageError wraps an unexpected store failure. The underlying detail is
// logged server-side, never exposed to the caller.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage failure: %v", e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// Payload is the raw submission body as sent by a device. Pointer fields
// distinguish absent/null from zero values during validation. CapturedAt
// is kept as the raw string the device signed; it is parsed only after the
// signature verifies.
type Payload struct {
	ID               *string  `json:"id"`
	SiteID           *string  `json:"siteId"`
	SiteName         *string  `json:"siteName"`
	WaterLevelMeters *float64 `json:"waterLevelMeters"`
	Lat              *float64 `json:"lat"`
	Lng              *float64 `json:"lng"`
	CapturedAt       *string  `json:"capturedAt"`
	ImageURL         *string  `json:"imageUrl"`
	DeviceID         string   `json:"deviceId"`
	Status           string   `json:"status"`
}

// Result is the outcome of a successful ingest. Duplicate is set when the
// submission id already existed; devices retrying after network loss get
// the same success without double-counting.
type Result struct {
	Duplicate bool
}

// Store is the durable submission collection the ingestor writes to
type Store interface {
	InsertSubmission(*models.Submission) error
}

// Ingestor validates and persists incoming submissions
type Ingestor struct {
	store  Store
	secret []byte
}

// NewIngestor creates an ingestor bound to a store and the shared device
// secret
func NewIngestor(store Store, deviceSecret string) *Ingestor {
	return &Ingestor{
		store:  store,
		secret: []byte(deviceSecret),
	}
}

// requiredFields lists every field a payload must carry, in reporting order
var requiredFields = []string{"id", "siteId", "siteName", "waterLevelMeters", "lat", "lng", "capturedAt", "imageUrl"}

func missingFields(p *Payload) []string {
	present := map[string]bool{
		"id":               p.ID != nil,
		"siteId":           p.SiteID != nil,
		"siteName":         p.SiteName != nil,
		"waterLevelMeters": p.WaterLevelMeters != nil,
		"lat":              p.Lat != nil,
		"lng":              p.Lng != nil,
		"capturedAt":       p.CapturedAt != nil,
		"imageUrl":         p.ImageURL != nil,
	}

	var missing []string
	for _, f := range requiredFields {
		if !present[f] {
			missing = append(missing, f)
		}
	}
	return missing
}

func parseCapturedAt(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("capturedAt %q is not a valid timestamp", raw)
}

// Ingest runs the full submission pipeline: verify the HMAC over the
// signed fields, validate required fields, attach caller identity and
// defaults, then attempt a unique insert. A unique-key conflict is an
// idempotent success, not an error.
func (i *Ingestor) Ingest(p *Payload, sig string, caller *models.Identity) (Result, error) {
	var id, capturedAt string
	if p.ID != nil {
		id = *p.ID
	}
	if p.CapturedAt != nil {
		capturedAt = *p.CapturedAt
	}

	// Signature first: an unsigned or tampered payload is rejected before
	// anything else is looked at.
	if !signature.Verify(id, capturedAt, p.DeviceID, sig, i.secret) {
		metrics.RecordSubmission("rejected_signature")
		return Result{}, ErrUnauthorized
	}

	if missing := missingFields(p); len(missing) > 0 {
		metrics.RecordSubmission("rejected_validation")
		return Result{}, &ValidationError{Fields: missing}
	}

	captured, err := parseCapturedAt(capturedAt)
	if err != nil {
		metrics.RecordSubmission("rejected_validation")
		return Result{}, &ValidationError{Fields: []string{"capturedAt"}}
	}

	submission := &models.Submission{
		ID:               *p.ID,
		SiteID:           *p.SiteID,
		SiteName:         *p.SiteName,
		WaterLevelMeters: *p.WaterLevelMeters,
		Lat:              *p.Lat,
		Lng:              *p.Lng,
		CapturedAt:       captured,
		ImageURL:         *p.ImageURL,
		DeviceID:         p.DeviceID,
		Status:           p.Status,
		CreatedAt:        time.Now().UTC(),
	}
	if submission.DeviceID == "" {
		submission.DeviceID = "unknown"
	}
	if submission.Status == "" {
		submission.Status = "synced"
	}
	if caller != nil {
		username := caller.Username
		submission.UserID = &username
	}

	if err := i.store.InsertSubmission(submission); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			metrics.RecordSubmission("duplicate")
			return Result{Duplicate: true}, nil
		}
		metrics.RecordSubmission("error")
		return Result{}, &StorageError{Err: err}
	}

	metrics.RecordSubmission("accepted")
	return Result{}, nil
}
