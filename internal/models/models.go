package models

import "time"

// Submission is a single water-level reading pushed by a field device.
// Immutable once accepted; ID is the device-generated primary key.
type Submission struct {
	ID               string    `json:"id"`
	SiteID           string    `json:"siteId"`
	SiteName         string    `json:"siteName"`
	WaterLevelMeters float64   `json:"waterLevelMeters"`
	Lat              float64   `json:"lat"`
	Lng              float64   `json:"lng"`
	CapturedAt       time.Time `json:"capturedAt"`
	ImageURL         string    `json:"imageUrl"`
	DeviceID         string    `json:"deviceId"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	UserID           *string   `json:"userId"`
}

// ForecastPoint is one projected step of a site forecast.
type ForecastPoint struct {
	T int     `json:"t"`
	Y float64 `json:"y"`
}

// ForecastSnapshot is the derived forecast for a site, fully replaced on
// every computation.
type ForecastSnapshot struct {
	SiteID    string          `json:"siteId"`
	Points    []ForecastPoint `json:"points"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Anomaly represents a detected water-level anomaly
type Anomaly struct {
	ID             string    `json:"id"`
	SiteID         string    `json:"siteId"`
	SubmissionID   string    `json:"submissionId"`
	ZScore         float64   `json:"zScore"`
	Risk           string    `json:"risk"` // "low", "med", "high"
	DetectedAt     time.Time `json:"detectedAt"`
	Acknowledged   bool      `json:"acknowledged"`
	AcknowledgedBy *string   `json:"acknowledgedBy"`
}

// Site is a monitored location
type Site struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Visit is a scheduled field visit to a site
type Visit struct {
	ID            string     `json:"id"`
	SiteID        string     `json:"siteId"`
	SiteName      string     `json:"siteName"`
	ScheduledDate time.Time  `json:"scheduledDate"`
	AssignedTo    string     `json:"assignedTo"`
	Status        string     `json:"status"` // "scheduled", "in-progress", "completed", "cancelled"
	Notes         string     `json:"notes"`
	CreatedBy     string     `json:"createdBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt"`
}

// User is a staff account
type User struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"` // "Supervisor", "Analyst", "Employee"
	CreatedAt time.Time `json:"createdAt"`
}

// Identity is the authenticated caller attached to a request
type Identity struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Name     string `json:"name"`
}
