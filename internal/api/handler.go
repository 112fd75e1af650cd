// Package api provides HTTP handlers for the mindX API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/mindx/internal/domain"
	"github.com/ashureev/mindx/internal/session"
	"github.com/ashureev/mindx/internal/store"
	"github.com/go-chi/chi/v5"
)

// maxJSONBody bounds request bodies outside the evidence upload.
const maxJSONBody = 64 << 10

// Config wires a Handler.
type Config struct {
	Session          *session.Session
	Repo             store.Repository
	Transport        string
	MaxEvidenceBytes int64
	RateLimit        int
	RateWindow       time.Duration
	HealthTimeout    time.Duration
	OriginPatterns   []string
	Logger           *slog.Logger
}

// Handler serves the session over HTTP.
type Handler struct {
	session        *session.Session
	repo           store.Repository
	transport      string
	maxEvidence    int64
	healthTimeout  time.Duration
	originPatterns []string
	limiter        *RateLimiter
	streams        *streamRegistry
	logger         *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		session:        cfg.Session,
		repo:           cfg.Repo,
		transport:      cfg.Transport,
		maxEvidence:    cfg.MaxEvidenceBytes,
		healthTimeout:  cfg.HealthTimeout,
		originPatterns: cfg.OriginPatterns,
		streams:        newStreamRegistry(),
		logger:         cfg.Logger,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.maxEvidence <= 0 {
		h.maxEvidence = 10 << 20
	}
	if h.healthTimeout <= 0 {
		h.healthTimeout = 5 * time.Second
	}
	if len(h.originPatterns) == 0 {
		h.originPatterns = []string{"*"}
	}
	if cfg.RateLimit > 0 && cfg.RateWindow > 0 {
		h.limiter = NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	}
	return h
}

// RegisterRoutes registers the API, websocket and health routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/session", h.GetSession)
		r.Post("/login", h.Login)
		r.Post("/navigate", h.Navigate)
		r.Get("/config", h.GetConfig)
		r.Get("/leaderboard", h.GetLeaderboard)

		r.Get("/assessment", h.GetAssessment)
		r.Post("/assessment/start", h.StartAssessment)
		r.Post("/assessment/answer", h.AnswerAssessment)
		r.Post("/assessment/advance", h.AdvanceAssessment)
		r.Post("/assessment/retreat", h.RetreatAssessment)

		r.Get("/challenges", h.ListChallenges)
		r.Post("/challenges/{challengeID}/join", h.JoinChallenge)

		r.Get("/chat", h.GetChat)
		r.Get("/tasks", h.GetTasks)
		r.Post("/tasks/select", h.SelectTask)
		r.Post("/tasks/evidence", h.AttachEvidence)
		r.Delete("/tasks/evidence", h.ClearEvidence)
		r.Post("/tasks/back", h.BackFromTask)
		r.Post("/tasks/leave", h.LeaveTasks)

		r.Get("/pods", h.ListPods)
		r.Post("/pods/close", h.ClosePod)
		r.Get("/pods/{podID}", h.GetPod)
		r.Post("/pods/{podID}/open", h.OpenPod)

		// Endpoints that call an agent share the per-client limit.
		limited := r.With(h.rateLimit)
		limited.Post("/chat", h.SendChat)
		limited.Post("/tasks/recommend", h.RecommendTasks)
		limited.Post("/tasks/submit", h.SubmitEvidence)
		limited.Post("/pods/{podID}/messages", h.PostPodMessage)
	})

	r.Get("/ws/pods/{podID}", h.PodStream)
	r.Get("/health", h.Health)
}

// Close stops the rate limiter and ends every open pod stream.
func (h *Handler) Close() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
	h.streams.closeAll()
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// fail maps flow errors onto status codes.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrBusy):
		Error(w, http.StatusConflict, "operation_in_progress")
	case errors.Is(err, domain.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidState):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decode body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}
