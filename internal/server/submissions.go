package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"hydrogauge/internal/database"
	"hydrogauge/internal/ingest"
	"hydrogauge/internal/models"

	"github.com/gorilla/mux"
)

// handleCreateSubmission ingests a signed device reading. The signature
// travels in the X-Signature header; a session token is optional and only
// attributes the relaying user.
func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	var payload ingest.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sig := r.Header.Get("X-Signature")
	result, err := s.ingestor.Ingest(&payload, sig, s.callerIdentity(r))
	if err != nil {
		var validationErr *ingest.ValidationError
		switch {
		case errors.Is(err, ingest.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "Invalid signature")
		case errors.As(err, &validationErr):
			writeError(w, http.StatusBadRequest, validationErr.Error())
		default:
			log.Printf("submission ingest error: %v", err)
			writeError(w, http.StatusInternalServerError, "Server error")
		}
		return
	}

	if result.Duplicate {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":        true,
			"message":   "Submission already exists",
			"duplicate": true,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": "Submission saved successfully",
	})
}

// handleListSubmissions returns recent submissions, newest first,
// optionally filtered by site
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request, _ *models.Identity) {
	siteID := r.URL.Query().Get("siteId")
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	submissions, err := s.db.GetSubmissions(siteID, limit)
	if err != nil {
		log.Printf("get submissions error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch submissions")
		return
	}
	if submissions == nil {
		submissions = []models.Submission{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"submissions": submissions,
	})
}

// handleGetSubmission returns a single submission by id
func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request, _ *models.Identity) {
	submission, err := s.db.GetSubmissionByID(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Submission not found")
			return
		}
		log.Printf("get submission error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch submission")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":         true,
		"submission": submission,
	})
}

// handleSiteForecast computes an on-demand forecast over the site's
// earliest-first window
func (s *Server) handleSiteForecast(w http.ResponseWriter, r *http.Request, _ *models.Identity) {
	siteID := mux.Vars(r)["siteId"]

	points, dataPoints, err := s.forecasts.ForSite(siteID)
	if err != nil {
		log.Printf("forecast error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to compute forecast")
		return
	}

	if dataPoints == 0 {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":       true,
			"forecast": []models.ForecastPoint{},
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":         true,
		"forecast":   points,
		"siteId":     siteID,
		"dataPoints": dataPoints,
	})
}

// handleSiteAnomaly evaluates the site's trailing window; a detection with
// risk above low is persisted as a side effect
func (s *Server) handleSiteAnomaly(w http.ResponseWriter, r *http.Request, _ *models.Identity) {
	siteID := mux.Vars(r)["siteId"]

	report, err := s.anomalies.Evaluate(r.Context(), siteID)
	if err != nil {
		log.Printf("anomaly detection error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to compute anomaly")
		return
	}

	if report.DataPoints == 0 {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":   true,
			"z":    0,
			"risk": "low",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":         true,
		"z":          report.Z,
		"risk":       report.Risk,
		"mean":       report.Mean,
		"sd":         report.SD,
		"siteId":     report.SiteID,
		"dataPoints": report.DataPoints,
	})
}

// handleListAnomalies returns recent detections, optionally filtered by
// the acknowledged flag
func (s *Server) handleListAnomalies(w http.ResponseWriter, r *http.Request, _ *models.Identity) {
	var acknowledged *bool
	if ackStr := r.URL.Query().Get("acknowledged"); ackStr != "" {
		ack := ackStr == "true"
		acknowledged = &ack
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	anomalies, err := s.db.GetAnomalies(acknowledged, limit)
	if err != nil {
		log.Printf("get anomalies error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch anomalies")
		return
	}
	if anomalies == nil {
		anomalies = []models.Anomaly{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"anomalies": anomalies,
	})
}

// handleAcknowledgeAnomaly marks a detection as acknowledged by the caller
func (s *Server) handleAcknowledgeAnomaly(w http.ResponseWriter, r *http.Request, identity *models.Identity) {
	id := mux.Vars(r)["id"]

	if err := s.db.AcknowledgeAnomaly(id, identity.Username); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Anomaly not found")
			return
		}
		log.Printf("acknowledge anomaly error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to acknowledge anomaly")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": "Anomaly acknowledged",
	})
}
