// Package devserver is an in-memory stand-in for the remote survey
// service, used by the `fieldsync devserver` command and by integration
// tests. It honors the idempotency contract the sync engine assumes:
// response uploads are deduplicated by response id, so re-sent batches
// never double-count.
package devserver

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fieldops/fieldsync/internal/store"
)

// Server holds the in-memory state behind the HTTP handler.
type Server struct {
	token string

	mu        sync.Mutex
	surveys   []store.Survey
	responses map[string]store.Response // received, keyed by response id
}

// New creates a Server that accepts the given bearer token and serves a
// small set of sample surveys.
func New(token string) *Server {
	return &Server{
		token:     token,
		surveys:   SampleSurveys(),
		responses: make(map[string]store.Response),
	}
}

// SetSurveys replaces the assigned-survey set the server hands out.
func (s *Server) SetSurveys(surveys []store.Survey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surveys = surveys
}

// ReceivedCount returns how many distinct responses the server has
// accepted so far.
func (s *Server) ReceivedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses)
}

// Handler returns the HTTP handler implementing the collaborator API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Post("/v1/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(s.token))
		r.Post("/v1/responses/batch", s.handleUpload)
		r.Get("/v1/surveys", s.handleSurveys)
	})

	return r
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if req.Email == "" || req.Password == "" {
		httpError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	s.mu.Lock()
	surveys := s.surveys
	s.mu.Unlock()

	// Mirrors the session shape the gateway client decodes.
	sess := map[string]any{
		"token": s.token,
		"enumerator": map[string]string{
			"id":    uuid.NewString(),
			"name":  strings.SplitN(req.Email, "@", 2)[0],
			"email": req.Email,
		},
		"surveys": surveys,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Responses []store.Response `json:"responses"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	s.mu.Lock()
	for _, resp := range req.Responses {
		if resp.ID == "" {
			s.mu.Unlock()
			httpError(w, http.StatusBadRequest, "response without id")
			return
		}
		// Re-sent ids are accepted but stored once.
		if _, seen := s.responses[resp.ID]; !seen {
			s.responses[resp.ID] = resp
		}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"processed": len(req.Responses)})
}

func (s *Server) handleSurveys(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	surveys := s.surveys
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]store.Survey{"surveys": surveys})
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func httpError(w http.ResponseWriter, status int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": fmt.Sprintf(format, args...)})
}

// SampleSurveys returns the seed survey set handed to every login.
func SampleSurveys() []store.Survey {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	return []store.Survey{
		{
			ID:          "sv-household",
			Title:       "Household baseline",
			Description: "Baseline household conditions for new project areas.",
			Questions: []store.Question{
				{ID: "q1", Text: "How many people live in this household?", Type: store.QuestionText, Required: true},
				{ID: "q2", Text: "Primary water source", Type: store.QuestionChoice, Required: true, Options: []string{"piped", "well", "surface", "other"}},
				{ID: "q3", Text: "Overall condition of the dwelling", Type: store.QuestionRating, Scale: 5},
			},
			Status:    store.SurveyActive,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:          "sv-training",
			Title:       "Training feedback",
			Description: "Post-session feedback from training participants.",
			Questions: []store.Question{
				{ID: "q1", Text: "Which session did you attend?", Type: store.QuestionText, Required: true},
				{ID: "q2", Text: "How useful was the session?", Type: store.QuestionRating, Required: true, Scale: 10},
			},
			Status:    store.SurveyActive,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}
