package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hydrogauge/internal/metrics"
	"hydrogauge/internal/models"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrDuplicate is returned when a unique-keyed insert collides with an
	// existing row. Callers decide the policy; for submissions a duplicate
	// is a success, not an error.
	ErrDuplicate = errors.New("duplicate key")

	// ErrNotFound is returned when a lookup by key misses.
	ErrNotFound = errors.New("not found")
)

// DB represents the database connection
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema
// dsn format: "username:password@tcp(host:port)/dbname?parseTime=true"
func NewDB(dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	// MySQL doesn't support multiple statements in one Exec, so we need to split them
	statements := []string{
		`CREATE TABLE IF NOT EXISTS submissions (
			id VARCHAR(191) PRIMARY KEY,
			site_id VARCHAR(191) NOT NULL,
			site_name VARCHAR(255) NOT NULL,
			water_level_meters DOUBLE NOT NULL,
			lat DOUBLE NOT NULL,
			lng DOUBLE NOT NULL,
			captured_at DATETIME(6) NOT NULL,
			image_url TEXT NOT NULL,
			device_id VARCHAR(191) NOT NULL DEFAULT 'unknown',
			status VARCHAR(50) NOT NULL DEFAULT 'synced',
			created_at DATETIME(6) NOT NULL,
			user_id VARCHAR(191) NULL,
			INDEX idx_submissions_site (site_id),
			INDEX idx_submissions_captured_at (captured_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS anomalies (
			id VARCHAR(191) PRIMARY KEY,
			site_id VARCHAR(191) NOT NULL,
			submission_id VARCHAR(191) NOT NULL,
			z_score DOUBLE NOT NULL,
			risk VARCHAR(10) NOT NULL,
			detected_at DATETIME(6) NOT NULL,
			acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
			acknowledged_by VARCHAR(191) NULL,
			INDEX idx_anomalies_site (site_id),
			INDEX idx_anomalies_detected_at (detected_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS forecasts (
			site_id VARCHAR(191) PRIMARY KEY,
			points JSON NOT NULL,
			created_at DATETIME(6) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS sites (
			id VARCHAR(191) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			location VARCHAR(255) NOT NULL DEFAULT '',
			lat DOUBLE NOT NULL,
			lng DOUBLE NOT NULL,
			description TEXT NOT NULL,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS visits (
			id VARCHAR(191) PRIMARY KEY,
			site_id VARCHAR(191) NOT NULL,
			site_name VARCHAR(255) NOT NULL,
			scheduled_date DATETIME(6) NOT NULL,
			assigned_to VARCHAR(191) NOT NULL DEFAULT '',
			status VARCHAR(50) NOT NULL DEFAULT 'scheduled',
			notes TEXT NOT NULL,
			created_by VARCHAR(191) NOT NULL DEFAULT '',
			created_at DATETIME(6) NOT NULL,
			completed_at DATETIME(6) NULL,
			INDEX idx_visits_site (site_id),
			INDEX idx_visits_status (status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS users (
			username VARCHAR(191) PRIMARY KEY,
			password VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			phone VARCHAR(50) NOT NULL DEFAULT '',
			role VARCHAR(50) NOT NULL DEFAULT 'Employee',
			created_at DATETIME(6) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// isDuplicateKey reports whether err is a MySQL unique-key violation (1062)
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// InsertSubmission stores a new submission. The submissions primary key
// enforces the unique-id invariant atomically; a second insert with the
// same id returns ErrDuplicate and leaves the first row untouched.
func (db *DB) InsertSubmission(s *models.Submission) error {
	queryStart := time.Now()
	defer func() {
		stats := db.conn.Stats()
		metrics.UpdateDBConnectionStats(stats.OpenConnections, stats.InUse, stats.Idle)
	}()

	query := `INSERT INTO submissions
		(id, site_id, site_name, water_level_meters, lat, lng, captured_at, image_url, device_id, status, created_at, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.conn.Exec(query, s.ID, s.SiteID, s.SiteName, s.WaterLevelMeters,
		s.Lat, s.Lng, s.CapturedAt, s.ImageURL, s.DeviceID, s.Status, s.CreatedAt, s.UserID)
	metrics.RecordDBQuery("INSERT", "submissions", time.Since(queryStart), err)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	return nil
}

// GetSubmissionByID retrieves a single submission by its id
func (db *DB) GetSubmissionByID(id string) (*models.Submission, error) {
	query := `SELECT id, site_id, site_name, water_level_meters, lat, lng, captured_at, image_url, device_id, status, created_at, user_id
		FROM submissions WHERE id = ? LIMIT 1`
	row := db.conn.QueryRow(query, id)

	var s models.Submission
	err := row.Scan(&s.ID, &s.SiteID, &s.SiteName, &s.WaterLevelMeters, &s.Lat, &s.Lng,
		&s.CapturedAt, &s.ImageURL, &s.DeviceID, &s.Status, &s.CreatedAt, &s.UserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan submission: %w", err)
	}
	return &s, nil
}

// GetSubmissionsBySite retrieves up to limit submissions for a site ordered
// by capture time. Ascending order is used for forecasting (earliest
// first), descending for anomaly windows (most recent first). An empty
// result is a valid terminal case for a site with no data.
func (db *DB) GetSubmissionsBySite(siteID string, ascending bool, limit int) ([]models.Submission, error) {
	dir := "DESC"
	if ascending {
		dir = "ASC"
	}
	query := fmt.Sprintf(`SELECT id, site_id, site_name, water_level_meters, lat, lng, captured_at, image_url, device_id, status, created_at, user_id
		FROM submissions WHERE site_id = ? ORDER BY captured_at %s LIMIT ?`, dir)

	queryStart := time.Now()
	rows, err := db.conn.Query(query, siteID, limit)
	metrics.RecordDBQuery("SELECT", "submissions", time.Since(queryStart), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var submissions []models.Submission
	for rows.Next() {
		var s models.Submission
		if err := rows.Scan(&s.ID, &s.SiteID, &s.SiteName, &s.WaterLevelMeters, &s.Lat, &s.Lng,
			&s.CapturedAt, &s.ImageURL, &s.DeviceID, &s.Status, &s.CreatedAt, &s.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		submissions = append(submissions, s)
	}

	return submissions, rows.Err()
}

// GetSubmissions retrieves recent submissions across all sites, or for a
// single site when siteID is non-empty, newest first
func (db *DB) GetSubmissions(siteID string, limit int) ([]models.Submission, error) {
	if siteID != "" {
		return db.GetSubmissionsBySite(siteID, false, limit)
	}

	query := `SELECT id, site_id, site_name, water_level_meters, lat, lng, captured_at, image_url, device_id, status, created_at, user_id
		FROM submissions ORDER BY captured_at DESC LIMIT ?`
	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var submissions []models.Submission
	for rows.Next() {
		var s models.Submission
		if err := rows.Scan(&s.ID, &s.SiteID, &s.SiteName, &s.WaterLevelMeters, &s.Lat, &s.Lng,
			&s.CapturedAt, &s.ImageURL, &s.DeviceID, &s.Status, &s.CreatedAt, &s.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		submissions = append(submissions, s)
	}

	return submissions, rows.Err()
}

// GetDistinctSiteIDs returns every site id that has at least one submission
func (db *DB) GetDistinctSiteIDs() ([]string, error) {
	query := `SELECT DISTINCT site_id FROM submissions`
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get distinct site ids: %w", err)
	}
	defer rows.Close()

	var siteIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan site id: %w", err)
		}
		siteIDs = append(siteIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating site ids: %w", err)
	}

	return siteIDs, nil
}

// StoreAnomaly stores a detected anomaly
func (db *DB) StoreAnomaly(a *models.Anomaly) error {
	queryStart := time.Now()
	defer func() {
		stats := db.conn.Stats()
		metrics.UpdateDBConnectionStats(stats.OpenConnections, stats.InUse, stats.Idle)
	}()

	query := `INSERT INTO anomalies (id, site_id, submission_id, z_score, risk, detected_at, acknowledged, acknowledged_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.conn.Exec(query, a.ID, a.SiteID, a.SubmissionID, a.ZScore, a.Risk,
		a.DetectedAt, a.Acknowledged, a.AcknowledgedBy)
	metrics.RecordDBQuery("INSERT", "anomalies", time.Since(queryStart), err)
	if err != nil {
		return fmt.Errorf("failed to store anomaly: %w", err)
	}
	return nil
}

// GetAnomalies retrieves recent anomalies, newest first. acknowledged
// filters on the flag when non-nil.
func (db *DB) GetAnomalies(acknowledged *bool, limit int) ([]models.Anomaly, error) {
	query := `SELECT id, site_id, submission_id, z_score, risk, detected_at, acknowledged, acknowledged_by
		FROM anomalies ORDER BY detected_at DESC LIMIT ?`
	args := []interface{}{limit}
	if acknowledged != nil {
		query = `SELECT id, site_id, submission_id, z_score, risk, detected_at, acknowledged, acknowledged_by
			FROM anomalies WHERE acknowledged = ? ORDER BY detected_at DESC LIMIT ?`
		args = []interface{}{*acknowledged, limit}
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []models.Anomaly
	for rows.Next() {
		var a models.Anomaly
		if err := rows.Scan(&a.ID, &a.SiteID, &a.SubmissionID, &a.ZScore, &a.Risk,
			&a.DetectedAt, &a.Acknowledged, &a.AcknowledgedBy); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		anomalies = append(anomalies, a)
	}

	return anomalies, rows.Err()
}

// AcknowledgeAnomaly marks an anomaly as acknowledged by the given user
func (db *DB) AcknowledgeAnomaly(id, username string) error {
	query := `UPDATE anomalies SET acknowledged = TRUE, acknowledged_by = ? WHERE id = ?`
	res, err := db.conn.Exec(query, username, id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge anomaly: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertForecastSnapshot fully replaces the forecast for a site. The
// previous snapshot is not retained.
func (db *DB) UpsertForecastSnapshot(snapshot *models.ForecastSnapshot) error {
	points, err := json.Marshal(snapshot.Points)
	if err != nil {
		return fmt.Errorf("failed to marshal forecast points: %w", err)
	}

	queryStart := time.Now()
	query := `INSERT INTO forecasts (site_id, points, created_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE points = VALUES(points), created_at = VALUES(created_at)`
	_, err = db.conn.Exec(query, snapshot.SiteID, points, snapshot.CreatedAt)
	metrics.RecordDBQuery("UPSERT", "forecasts", time.Since(queryStart), err)
	if err != nil {
		return fmt.Errorf("failed to upsert forecast: %w", err)
	}
	return nil
}

// GetForecastSnapshot retrieves the stored forecast for a site
func (db *DB) GetForecastSnapshot(siteID string) (*models.ForecastSnapshot, error) {
	query := `SELECT site_id, points, created_at FROM forecasts WHERE site_id = ? LIMIT 1`
	row := db.conn.QueryRow(query, siteID)

	var snapshot models.ForecastSnapshot
	var points []byte
	if err := row.Scan(&snapshot.SiteID, &points, &snapshot.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan forecast: %w", err)
	}
	if err := json.Unmarshal(points, &snapshot.Points); err != nil {
		return nil, fmt.Errorf("failed to unmarshal forecast points: %w", err)
	}
	return &snapshot, nil
}

// InsertSite inserts a new monitoring site
func (db *DB) InsertSite(site *models.Site) error {
	query := `INSERT INTO sites (id, name, location, lat, lng, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.conn.Exec(query, site.ID, site.Name, site.Location, site.Lat, site.Lng,
		site.Description, site.CreatedAt, site.UpdatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert site: %w", err)
	}
	return nil
}

// GetAllSites retrieves all sites ordered by name
func (db *DB) GetAllSites() ([]models.Site, error) {
	query := `SELECT id, name, location, lat, lng, description, created_at, updated_at FROM sites ORDER BY name`
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sites: %w", err)
	}
	defer rows.Close()

	var sites []models.Site
	for rows.Next() {
		var s models.Site
		if err := rows.Scan(&s.ID, &s.Name, &s.Location, &s.Lat, &s.Lng, &s.Description,
			&s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, s)
	}

	return sites, rows.Err()
}

// GetSiteByID retrieves a specific site
func (db *DB) GetSiteByID(id string) (*models.Site, error) {
	query := `SELECT id, name, location, lat, lng, description, created_at, updated_at FROM sites WHERE id = ? LIMIT 1`
	row := db.conn.QueryRow(query, id)

	var s models.Site
	if err := row.Scan(&s.ID, &s.Name, &s.Location, &s.Lat, &s.Lng, &s.Description,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan site: %w", err)
	}
	return &s, nil
}

// UpdateSite updates a site's mutable fields
func (db *DB) UpdateSite(site *models.Site) error {
	query := `UPDATE sites SET name = ?, location = ?, lat = ?, lng = ?, description = ?, updated_at = ? WHERE id = ?`
	res, err := db.conn.Exec(query, site.Name, site.Location, site.Lat, site.Lng,
		site.Description, site.UpdatedAt, site.ID)
	if err != nil {
		return fmt.Errorf("failed to update site: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSite removes a site by id
func (db *DB) DeleteSite(id string) error {
	res, err := db.conn.Exec(`DELETE FROM sites WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete site: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertVisit stores a scheduled visit
func (db *DB) InsertVisit(v *models.Visit) error {
	query := `INSERT INTO visits (id, site_id, site_name, scheduled_date, assigned_to, status, notes, created_by, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.conn.Exec(query, v.ID, v.SiteID, v.SiteName, v.ScheduledDate, v.AssignedTo,
		v.Status, v.Notes, v.CreatedBy, v.CreatedAt, v.CompletedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert visit: %w", err)
	}
	return nil
}

// GetVisits retrieves visits, optionally filtered by status and site,
// most recently scheduled first
func (db *DB) GetVisits(status, siteID string) ([]models.Visit, error) {
	query := `SELECT id, site_id, site_name, scheduled_date, assigned_to, status, notes, created_by, created_at, completed_at
		FROM visits WHERE 1=1`
	var args []interface{}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if siteID != "" {
		query += ` AND site_id = ?`
		args = append(args, siteID)
	}
	query += ` ORDER BY scheduled_date DESC`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query visits: %w", err)
	}
	defer rows.Close()

	var visits []models.Visit
	for rows.Next() {
		var v models.Visit
		if err := rows.Scan(&v.ID, &v.SiteID, &v.SiteName, &v.ScheduledDate, &v.AssignedTo,
			&v.Status, &v.Notes, &v.CreatedBy, &v.CreatedAt, &v.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		visits = append(visits, v)
	}

	return visits, rows.Err()
}

// GetVisitByID retrieves a single visit
func (db *DB) GetVisitByID(id string) (*models.Visit, error) {
	query := `SELECT id, site_id, site_name, scheduled_date, assigned_to, status, notes, created_by, created_at, completed_at
		FROM visits WHERE id = ? LIMIT 1`
	row := db.conn.QueryRow(query, id)

	var v models.Visit
	if err := row.Scan(&v.ID, &v.SiteID, &v.SiteName, &v.ScheduledDate, &v.AssignedTo,
		&v.Status, &v.Notes, &v.CreatedBy, &v.CreatedAt, &v.CompletedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan visit: %w", err)
	}
	return &v, nil
}

// UpdateVisit updates the status, notes and completion time of a visit
func (db *DB) UpdateVisit(id string, status, notes string, completedAt *time.Time) error {
	query := `UPDATE visits SET
		status = COALESCE(NULLIF(?, ''), status),
		notes = COALESCE(NULLIF(?, ''), notes),
		completed_at = COALESCE(?, completed_at)
		WHERE id = ?`
	res, err := db.conn.Exec(query, status, notes, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update visit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertUser creates a staff account. The password must already be hashed.
func (db *DB) InsertUser(u *models.User) error {
	query := `INSERT INTO users (username, password, name, phone, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.conn.Exec(query, u.Username, u.Password, u.Name, u.Phone, u.Role, u.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUserByUsername retrieves a user including the password hash
func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	query := `SELECT username, password, name, phone, role, created_at FROM users WHERE username = ? LIMIT 1`
	row := db.conn.QueryRow(query, username)

	var u models.User
	if err := row.Scan(&u.Username, &u.Password, &u.Name, &u.Phone, &u.Role, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// UpdateUserProfile updates the mutable profile fields of a user
func (db *DB) UpdateUserProfile(username, name, phone string) error {
	query := `UPDATE users SET
		name = COALESCE(NULLIF(?, ''), name),
		phone = COALESCE(NULLIF(?, ''), phone)
		WHERE username = ?`
	res, err := db.conn.Exec(query, name, phone, username)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserPassword replaces a user's password hash
func (db *DB) UpdateUserPassword(username, passwordHash string) error {
	res, err := db.conn.Exec(`UPDATE users SET password = ? WHERE username = ?`, passwordHash, username)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
