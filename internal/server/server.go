package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"hydrogauge/internal/anomaly"
	"hydrogauge/internal/auth"
	"hydrogauge/internal/database"
	"hydrogauge/internal/forecast"
	"hydrogauge/internal/ingest"
	"hydrogauge/internal/models"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server
type Server struct {
	db        *database.DB
	ingestor  *ingest.Ingestor
	forecasts *forecast.Engine
	anomalies *anomaly.Engine
	tokens    *auth.Manager
	router    *mux.Router
}

// NewServer creates a new HTTP server with all routes registered
func NewServer(db *database.DB, ingestor *ingest.Ingestor, forecasts *forecast.Engine, anomalies *anomaly.Engine, tokens *auth.Manager) *Server {
	s := &Server{
		db:        db,
		ingestor:  ingestor,
		forecasts: forecasts,
		anomalies: anomalies,
		tokens:    tokens,
		router:    mux.NewRouter(),
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.router

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	// Submission ingestion is signature-authenticated, not session-authenticated.
	r.HandleFunc("/submissions", s.handleCreateSubmission).Methods(http.MethodPost)
	r.HandleFunc("/submissions", s.authenticate(s.handleListSubmissions)).Methods(http.MethodGet)
	r.HandleFunc("/submissions/{id}", s.authenticate(s.handleGetSubmission)).Methods(http.MethodGet)

	r.HandleFunc("/sites", s.authenticate(s.handleListSites)).Methods(http.MethodGet)
	r.HandleFunc("/sites", s.requireRoles(s.handleCreateSite, "Supervisor", "Analyst")).Methods(http.MethodPost)
	r.HandleFunc("/sites/{id}", s.authenticate(s.handleGetSite)).Methods(http.MethodGet)
	r.HandleFunc("/sites/{id}", s.requireRoles(s.handleUpdateSite, "Supervisor", "Analyst")).Methods(http.MethodPut)
	r.HandleFunc("/sites/{id}", s.requireRoles(s.handleDeleteSite, "Supervisor")).Methods(http.MethodDelete)
	r.HandleFunc("/sites/{siteId}/forecast", s.authenticate(s.handleSiteForecast)).Methods(http.MethodGet)
	r.HandleFunc("/sites/{siteId}/anomaly", s.authenticate(s.handleSiteAnomaly)).Methods(http.MethodGet)

	r.HandleFunc("/anomalies", s.authenticate(s.handleListAnomalies)).Methods(http.MethodGet)
	r.HandleFunc("/anomalies/{id}/ack", s.requireRoles(s.handleAcknowledgeAnomaly, "Supervisor", "Analyst")).Methods(http.MethodPut)

	r.HandleFunc("/visits/schedule", s.requireRoles(s.handleScheduleVisit, "Supervisor")).Methods(http.MethodPost)
	r.HandleFunc("/visits", s.authenticate(s.handleListVisits)).Methods(http.MethodGet)
	r.HandleFunc("/visits/{id}", s.authenticate(s.handleGetVisit)).Methods(http.MethodGet)
	r.HandleFunc("/visits/{id}", s.authenticate(s.handleUpdateVisit)).Methods(http.MethodPut)

	r.HandleFunc("/users/profile", s.authenticate(s.handleGetProfile)).Methods(http.MethodGet)
	r.HandleFunc("/users/profile", s.authenticate(s.handleUpdateProfile)).Methods(http.MethodPut)
	r.HandleFunc("/users/profile/password", s.authenticate(s.handleUpdatePassword)).Methods(http.MethodPut)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth returns the server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"status": "healthy",
		"time":   time.Now().UTC().String(),
	})
}

// authedHandler is a handler that receives the verified caller identity
type authedHandler func(w http.ResponseWriter, r *http.Request, identity *models.Identity)

// authenticate wraps a handler with bearer-token verification. Missing
// credentials are 401, bad or expired tokens are 403.
func (s *Server) authenticate(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Access token required")
			return
		}

		identity, err := s.tokens.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusForbidden, "Invalid or expired token")
			return
		}

		next(w, r, identity)
	}
}

// requireRoles wraps an authenticated handler with a role check
func (s *Server) requireRoles(next authedHandler, roles ...string) http.HandlerFunc {
	return s.authenticate(func(w http.ResponseWriter, r *http.Request, identity *models.Identity) {
		if !auth.Authorize(identity, roles...) {
			writeError(w, http.StatusForbidden, "Access denied. Required role: "+strings.Join(roles, " or "))
			return
		}
		next(w, r, identity)
	})
}

// callerIdentity resolves an optional bearer token; an absent or invalid
// token yields nil rather than an error. Used by the ingestion endpoint,
// where a session identifies the relay but is never required.
func (s *Server) callerIdentity(r *http.Request) *models.Identity {
	token := bearerToken(r)
	if token == "" {
		return nil
	}
	identity, err := s.tokens.VerifyToken(token)
	if err != nil {
		return nil
	}
	return identity
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"ok":    false,
		"error": message,
	})
}
