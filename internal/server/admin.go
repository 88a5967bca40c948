package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"hydrogauge/internal/auth"
	"hydrogauge/internal/database"
	"hydrogauge/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

// handleRegister creates a staff account and issues a token
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var errs []string
	if len(strings.TrimSpace(req.Username)) < 3 {
		errs = append(errs, "Username must be at least 3 characters")
	}
	if len(req.Password) < 6 {
		errs = append(errs, "Password must be at least 6 characters")
	}
	if req.Role != "" && !auth.IsValidRole(req.Role) {
		errs = append(errs, "Invalid role. Must be Supervisor, Analyst, or Employee")
	}
	if len(errs) > 0 {
		writeError(w, http.StatusBadRequest, strings.Join(errs, ", "))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("hash password error: %v", err)
		writeError(w, http.StatusInternalServerError, "Server error during registration")
		return
	}

	user := &models.User{
		Username:  req.Username,
		Password:  hash,
		Name:      req.Name,
		Phone:     req.Phone,
		Role:      req.Role,
		CreatedAt: time.Now().UTC(),
	}
	if user.Role == "" {
		user.Role = "Employee"
	}

	if err := s.db.InsertUser(user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			writeError(w, http.StatusBadRequest, "Username already exists")
			return
		}
		log.Printf("register error: %v", err)
		writeError(w, http.StatusInternalServerError, "Server error during registration")
		return
	}

	token, err := s.tokens.IssueToken(user)
	if err != nil {
		log.Printf("issue token error: %v", err)
		writeError(w, http.StatusInternalServerError, "Server error during registration")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ok":      true,
		"message": "User registered successfully",
		"token":   token,
		"user":    user,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin verifies credentials and issues a token
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := s.db.GetUserByUsername(req.Username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		log.Printf("login error: %v", err)
		writeError(w, http.StatusInternalServerError, "Server error during login")
		return
	}

	if !auth.CheckPassword(req.Password, user.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := s.tokens.IssueToken(user)
	if err != nil {
		log.Printf("issue token error: %v", err)
		writeError(w, http.StatusInternalServerError, "Server error during login")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": "Login successful",
		"token":   token,
		"user":    user,
	})
}

type siteRequest struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Location    string   `json:"location"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	Description string   `json:"description"`
}

func (req *siteRequest) validate() []string {
	var errs []string
	if strings.TrimSpace(req.ID) == "" {
		errs = append(errs, "Site ID is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		errs = append(errs, "Site name is required")
	}
	if req.Lat == nil || req.Lng == nil {
		errs = append(errs, "Latitude and longitude are required")
	}
	return errs
}

// handleListSites returns all sites ordered by name
func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request, _ *models.Identity) {
	sites, err := s.db.GetAllSites()
	if err != nil {
		log.Printf("get sites error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch sites")
		return
	}
	if sites == nil {
		sites = []models.Site{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"sites": sites,
	})
}

// handleGetSite returns a single site
func (s *Server) handleGetSite(w http.ResponseWriter, r *http.Request, _ *models.Identity) {
	site, err := s.db.GetSiteByID(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Site not found")
			return
		}
		log.Printf("get site error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch site")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"site": site,
	})
}

// handleCreateSite registers a new monitoring site
func (s *Server) handleCreateSite(w http.ResponseWriter, r *http.Request, _ *models.Identity) {
	var req siteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if errs := req.validate(); len(errs) > 0 {
		writeError(w, http.StatusBadRequest, strings.Join(errs, ", "))
		return
	}

	now := time.Now().UTC()
	site := &models.Site{
		ID:          req.ID,
		Name:        req.Name,
		Location:    req.Location,
		Lat:         *req.Lat,
		Lng:         *req.Lng,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.InsertSite(site); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			writeError(w, http.StatusBadRequest, "Site already exists")
			return
		}
		log.Printf("create site error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create site")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ok":      true,
		"message": "Site created successfully",
		"site":    site,
	})
}

// handleUpdateSite replaces a site's mutable fields
func (s *Server) handleUpdateSite(w http.ResponseWriter, r *http.Request, _ *models.Identity) {
	var req siteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.ID = mux.Vars(r)["id"]
	if errs := req.validate(); len(errs) > 0 {
		writeError(w, http.StatusBadRequest, strings.Join(errs, ", "))
		return
	}

	site := &models.Site{
		ID:          req.ID,
		Name:        req.Name,
		Location:    req.Location,
		Lat:         *req.Lat,
		Lng:         *req.Lng,
		Description: req.Description,
		UpdatedAt:   time.Now().UTC(),
	}

	if err := s.db.UpdateSite(site); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Site not found")
			return
		}
		log.Printf("update site error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update site")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": "Site updated successfully",
	})
}

// handleDeleteSite removes a site
func (s *Server) handleDeleteSite(w http.ResponseWriter, r *http.Request, _ *models.Identity) {
	if err := s.db.DeleteSite(mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Site not found")
			return
		}
		log.Printf("delete site error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete site")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": "Site deleted successfully",
	})
}

var validVisitStatuses = map[string]bool{
	"scheduled":   true,
	"in-progress": true,
	"completed":   true,
	"cancelled":   true,
}

type visitRequest struct {
	SiteID        string `json:"siteId"`
	SiteName      string `json:"siteName"`
	ScheduledDate string `json:"scheduledDate"`
	AssignedTo    string `json:"assignedTo"`
	Status        string `json:"status"`
	Notes         string `json:"notes"`
}

// handleScheduleVisit creates a scheduled field visit
func (s *Server) handleScheduleVisit(w http.ResponseWriter, r *http.Request, identity *models.Identity) {
	var req visitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var errs []string
	if req.SiteID == "" {
		errs = append(errs, "Site ID is required")
	}
	if req.ScheduledDate == "" {
		errs = append(errs, "Scheduled date is required")
	}
	if req.Status != "" && !validVisitStatuses[req.Status] {
		errs = append(errs, "Invalid status")
	}
	if len(errs) > 0 {
		writeError(w, http.StatusBadRequest, strings.Join(errs, ", "))
		return
	}

	scheduledDate, err := time.Parse(time.RFC3339, req.ScheduledDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Scheduled date must be an RFC3339 timestamp")
		return
	}

	visit := &models.Visit{
		ID:            "visit_" + uuid.NewString(),
		SiteID:        req.SiteID,
		SiteName:      req.SiteName,
		ScheduledDate: scheduledDate,
		AssignedTo:    req.AssignedTo,
		Status:        req.Status,
		Notes:         req.Notes,
		CreatedBy:     identity.Username,
		CreatedAt:     time.Now().UTC(),
	}
	if visit.Status == "" {
		visit.Status = "scheduled"
	}

	if err := s.db.InsertVisit(visit); err != nil {
		log.Printf("schedule visit error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to schedule visit")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ok":      true,
		"message": "Visit scheduled successfully",
		"visit":   visit,
	})
}

// handleListVisits returns visits filtered by status and/or site
func (s *Server) handleListVisits(w http.ResponseWriter, r *http.Request, _ *models.Identity) {
	status := r.URL.Query().Get("status")
	siteID := r.URL.Query().Get("siteId")

	visits, err := s.db.GetVisits(status, siteID)
	if err != nil {
		log.Printf("get visits error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch visits")
		return
	}
	if visits == nil {
		visits = []models.Visit{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"visits": visits,
	})
}

// handleGetVisit returns a single visit
func (s *Server) handleGetVisit(w http.ResponseWriter, r *http.Request, _ *models.Identity) {
	visit, err := s.db.GetVisitByID(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Visit not found")
			return
		}
		log.Printf("get visit error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch visit")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"visit": visit,
	})
}

type visitUpdateRequest struct {
	Status      string `json:"status"`
	Notes       string `json:"notes"`
	CompletedAt string `json:"completedAt"`
}

// handleUpdateVisit updates a visit's status, notes or completion time
func (s *Server) handleUpdateVisit(w http.ResponseWriter, r *http.Request, _ *models.Identity) {
	var req visitUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Status != "" && !validVisitStatuses[req.Status] {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	var completedAt *time.Time
	if req.CompletedAt != "" {
		t, err := time.Parse(time.RFC3339, req.CompletedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Completed date must be an RFC3339 timestamp")
			return
		}
		completedAt = &t
	}

	if err := s.db.UpdateVisit(mux.Vars(r)["id"], req.Status, req.Notes, completedAt); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Visit not found")
			return
		}
		log.Printf("update visit error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update visit")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": "Visit updated successfully",
	})
}

// handleGetProfile returns the caller's own account
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request, identity *models.Identity) {
	user, err := s.db.GetUserByUsername(identity.Username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.Printf("get profile error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch profile")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"user": user,
	})
}

type profileUpdateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// handleUpdateProfile updates the caller's name and phone
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, identity *models.Identity) {
	var req profileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.db.UpdateUserProfile(identity.Username, req.Name, req.Phone); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.Printf("update profile error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": "Profile updated successfully",
	})
}

type passwordUpdateRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// handleUpdatePassword rotates the caller's password after verifying the
// current one
func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request, identity *models.Identity) {
	var req passwordUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "Current and new password are required")
		return
	}
	if len(req.NewPassword) < 6 {
		writeError(w, http.StatusBadRequest, "New password must be at least 6 characters")
		return
	}

	user, err := s.db.GetUserByUsername(identity.Username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.Printf("update password error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update password")
		return
	}

	if !auth.CheckPassword(req.CurrentPassword, user.Password) {
		writeError(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		log.Printf("hash password error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update password")
		return
	}

	if err := s.db.UpdateUserPassword(identity.Username, hash); err != nil {
		log.Printf("update password error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": "Password updated successfully",
	})
}
